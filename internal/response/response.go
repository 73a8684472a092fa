// Package response writes the local standard JSON envelope. Every error that
// reaches a client is one of a fixed set of kinds with a fixed message.
package response

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Kind is a client-facing error class.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindRateLimited
	KindNotFound
	KindBadRequest
)

type kindInfo struct {
	status  int
	code    string
	message string
}

var kinds = map[Kind]kindInfo{
	KindInternal:     {http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"},
	KindUnauthorized: {http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"},
	KindRateLimited:  {http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, please try again later"},
	KindNotFound:     {http.StatusNotFound, "NOT_FOUND", "Resource not found"},
	KindBadRequest:   {http.StatusBadRequest, "BAD_REQUEST", "Invalid request"},
}

func info(k Kind) kindInfo {
	if ki, ok := kinds[k]; ok {
		return ki
	}
	return kinds[KindInternal]
}

// Status returns the HTTP status for k.
func (k Kind) Status() int { return info(k).status }

// Message returns the fixed user-facing message for k.
func (k Kind) Message() string { return info(k).message }

// Code returns the machine-readable code for k.
func (k Kind) Code() string { return info(k).code }

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func Fail(w http.ResponseWriter, k Kind) {
	ki := info(k)
	JSON(w, ki.status, Envelope{Error: &Error{Code: ki.code, Message: ki.message}})
}

// TooManyRequests writes a 429 with a Retry-After hint in whole seconds,
// rounded up so clients never retry early.
func TooManyRequests(w http.ResponseWriter, retryAfter time.Duration, limit int) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	if limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", "0")
	}
	Fail(w, KindRateLimited)
}
