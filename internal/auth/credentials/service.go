package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"sessiongate/internal/auth"
	"sessiongate/internal/logger"
	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("credentials: invalid credentials")
	ErrAlreadyRegistered  = errors.New("credentials: user already exists")
	ErrInvalidEmail       = errors.New("credentials: invalid email")
)

// Users is the subset of the user store the service needs.
type Users interface {
	FindByID(ctx context.Context, id string) (*user.User, error)
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	CreateWithPassword(ctx context.Context, u user.User, hash, version string) (*user.User, error)
}

type Options struct {
	ExpiresIn  time.Duration
	UpdateAge  time.Duration
	Cookie     session.CookieOptions
	BcryptCost int
	Now        func() time.Time
}

// Service owns password verification and the session lifecycle. It is the
// session-lookup half of the credential verifier.
type Service struct {
	users    Users
	sessions session.Store
	signer   *session.Signer
	opts     Options
}

func NewService(users Users, sessions session.Store, signer *session.Signer, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		users:    users,
		sessions: sessions,
		signer:   signer,
		opts:     opts,
	}
}

// CookieOptions returns how this service issues its cookie.
func (s *Service) CookieOptions() session.CookieOptions {
	return s.opts.Cookie
}

func (s *Service) Register(ctx context.Context, email, password, name string) (*user.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || strings.Contains(email, " ") {
		return nil, ErrInvalidEmail
	}

	hash, version, err := HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil && existing != nil:
		return nil, ErrAlreadyRegistered
	case err != nil && !errors.Is(err, user.ErrNotFound):
		return nil, fmt.Errorf("credentials: lookup email: %w", err)
	}

	u, err := s.users.CreateWithPassword(ctx, user.User{Email: email, Name: strings.TrimSpace(name)}, hash, version)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("credentials: create user: %w", err)
	}

	return u, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*user.User, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			logger.Error("credential lookup failed", map[string]any{
				"error": logger.ErrorDetail(err),
			})
		}
		// hide whether user exists or not
		return nil, ErrInvalidCredentials
	}

	if u.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// Issue creates and persists a new session for u.
func (s *Service) Issue(ctx context.Context, u user.User, ip, userAgent string) (*Issued, error) {
	token, err := session.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	sess := session.Session{
		Token:     token,
		UserID:    u.ID,
		ExpiresAt: now.Add(s.opts.ExpiresIn),
		CreatedAt: now,
		UpdatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("credentials: persist session: %w", err)
	}

	return &Issued{
		Session: sess,
		Signed:  s.signer.Sign(token),
		User:    u.Public(),
	}, nil
}

// IssueFor is Issue for a user known only by ID, as after social sign-in.
func (s *Service) IssueFor(ctx context.Context, userID, ip, userAgent string) (*Issued, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("credentials: load user: %w", err)
	}
	return s.Issue(ctx, *u, ip, userAgent)
}

// GetSession resolves the request's credential. A request without a
// credential, or whose session is gone or expired, yields (nil, nil). A
// forged credential or a store failure yields an error.
func (s *Service) GetSession(ctx context.Context, r *http.Request) (*auth.Result, error) {
	raw, err := session.RawCredential(r, s.opts.Cookie)
	if errors.Is(err, session.ErrNoCredential) {
		return nil, nil
	}

	token, err := s.signer.Verify(raw)
	if err != nil {
		return nil, err
	}

	return s.Lookup(ctx, token)
}

// Lookup loads the session for token and applies sliding expiry.
func (s *Service) Lookup(ctx context.Context, token string) (*auth.Result, error) {
	sess, err := s.sessions.Get(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: load session: %w", err)
	}

	now := s.opts.Now()
	if !sess.Valid(now) {
		s.discard(ctx, token)
		return nil, nil
	}

	u, err := s.users.FindByID(ctx, sess.UserID)
	if errors.Is(err, user.ErrNotFound) {
		s.discard(ctx, token)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("credentials: load user: %w", err)
	}

	res := &auth.Result{User: u.Public(), Session: *sess}

	if sess.NeedsRefresh(now, s.opts.UpdateAge) {
		refreshed := sess.Refreshed(now, s.opts.ExpiresIn)
		if err := s.sessions.Update(ctx, refreshed); err != nil {
			logger.Warn("session refresh failed", map[string]any{
				"error": logger.ErrorDetail(err),
			})
		} else {
			res.Session = refreshed
			res.Refreshed = true
		}
	}

	return res, nil
}

// SignOut deletes the session carried by r, if any. It succeeds for
// requests without a valid credential.
func (s *Service) SignOut(ctx context.Context, r *http.Request) error {
	raw, err := session.RawCredential(r, s.opts.Cookie)
	if err != nil {
		return nil
	}

	token, err := s.signer.Verify(raw)
	if err != nil {
		return nil
	}

	return s.sessions.Delete(ctx, token)
}

// Sign returns the signed credential for an existing session token.
func (s *Service) Sign(token string) string {
	return s.signer.Sign(token)
}

func (s *Service) discard(ctx context.Context, token string) {
	if err := s.sessions.Delete(ctx, token); err != nil {
		logger.Warn("stale session delete failed", map[string]any{
			"error": logger.ErrorDetail(err),
		})
	}
}
