// Package ratelimit implements fixed-window request throttling keyed by
// client identity and route class.
//
// Two backends satisfy [Limiter]: [Memory] keeps windows in process and is
// the default; [Redis] shares windows between processes. Callers depend only
// on the interface so the backend is chosen once at bootstrap.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidRule = errors.New("ratelimit: rule needs a name, a positive limit and a positive window")

// Rule is one throttling policy. Name is the route class and becomes part of
// the counter key.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

func (r Rule) valid() bool {
	return r.Name != "" && r.Limit > 0 && r.Window > 0
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Rule       string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a request for key under rule. Increment and check
// are a single atomic step per key. A returned error means the backend could
// not decide; the Decision is then meaningless.
type Limiter interface {
	Admit(ctx context.Context, key string, rule Rule) (Decision, error)
}

// Key builds the counter key for a client under a rule.
func Key(rule Rule, client string) string {
	return rule.Name + ":" + client
}

// AdmitAll checks client against every rule in order and stops at the first
// rejection. Rules earlier in the list have already counted the request by
// then.
func AdmitAll(ctx context.Context, l Limiter, client string, rules ...Rule) (Decision, error) {
	var last Decision
	for _, rule := range rules {
		d, err := l.Admit(ctx, Key(rule, client), rule)
		if err != nil {
			return Decision{}, err
		}
		if !d.Allowed {
			return d, nil
		}
		last = d
	}
	if len(rules) == 0 {
		last.Allowed = true
	}
	return last, nil
}

// Clock abstracts time for tests.
type Clock func() time.Time
