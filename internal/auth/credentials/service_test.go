package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeUsers is an in-memory user store.
type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]*user.User
	findErr error
	// createErr fails the next CreateWithPassword without storing anything.
	createErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*user.User{}}
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) Create(_ context.Context, u user.User) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, user.ErrEmailTaken
		}
	}
	u.ID = uuid.NewString()
	f.byID[u.ID] = &u
	cp := u
	return &cp, nil
}

func (f *fakeUsers) CreateWithPassword(ctx context.Context, u user.User, hash, _ string) (*user.User, error) {
	f.mu.Lock()
	if err := f.createErr; err != nil {
		f.createErr = nil
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	u.PasswordHash = hash
	created, err := f.Create(ctx, u)
	if err != nil {
		return nil, err
	}
	created.PasswordHash = ""
	return created, nil
}

func (f *fakeUsers) remove(id string) {
	f.mu.Lock()
	delete(f.byID, id)
	f.mu.Unlock()
}

type testEnv struct {
	svc   *Service
	users *fakeUsers
	store *session.RedisStore
	mr    *miniredis.Miniredis
	now   time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
	e.mr.FastForward(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		users: newFakeUsers(),
		mr:    mr,
		now:   time.Now(),
	}
	clock := func() time.Time { return env.now }
	env.store = session.NewRedisStore(rdb, session.WithClock(clock))
	env.svc = NewService(env.users, env.store, session.NewSigner(testSecret), Options{
		ExpiresIn:  7 * 24 * time.Hour,
		UpdateAge:  24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
		Now:        clock,
	})
	return env
}

func requestWithCredential(value string) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	if value != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: value})
	}
	return req
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.svc.Register(ctx, " a@b.com ", "correct horse", " A ")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", u.Email)
	assert.Equal(t, "A", u.Name)

	got, err := env.svc.Authenticate(ctx, "A@B.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = env.svc.Authenticate(ctx, "a@b.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Authenticate(ctx, "nobody@b.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "not-an-email", "long enough", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = env.svc.Register(ctx, "a@b.com", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = env.svc.Register(ctx, "a@b.com", strings.Repeat("x", 73), "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = env.svc.Register(ctx, "a@b.com", "long enough", "")
	require.NoError(t, err)

	_, err = env.svc.Register(ctx, "A@b.com", "long enough", "")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegister_FailedSignUpCanBeRetried(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.users.createErr = errors.New("user: insert credential: connection reset")

	_, err := env.svc.Register(ctx, "a@b.com", "correct horse", "A")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRegistered)

	_, err = env.users.FindByEmail(ctx, "a@b.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	u, err := env.svc.Register(ctx, "a@b.com", "correct horse", "A")
	require.NoError(t, err)

	got, err := env.svc.Authenticate(ctx, "a@b.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestAuthenticate_StoreFailureLooksLikeBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.users.findErr = errors.New("db down")

	_, err := env.svc.Authenticate(context.Background(), "a@b.com", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_SocialOnlyUserHasNoPassword(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.users.Create(context.Background(), user.User{Email: "social@b.com"})
	require.NoError(t, err)

	_, err = env.svc.Authenticate(context.Background(), "social@b.com", "anything1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestIssueAndGetSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u, err := env.svc.Register(ctx, "a@b.com", "correct horse", "A")
	require.NoError(t, err)

	issued, err := env.svc.Issue(ctx, *u, "1.2.3.4", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, u.ID, issued.Session.UserID)
	assert.Equal(t, env.now.Add(7*24*time.Hour), issued.Session.ExpiresAt)
	assert.Equal(t, "1.2.3.4", issued.Session.IPAddress)
	assert.True(t, strings.HasPrefix(issued.Signed, issued.Session.Token+"."))

	res, err := env.svc.GetSession(ctx, requestWithCredential(issued.Signed))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, u.ID, res.User.ID)
	assert.Equal(t, "a@b.com", res.User.Email)
	assert.False(t, res.Refreshed)

	bearer := httptest.NewRequest("GET", "/", nil)
	bearer.Header.Set("Authorization", "Bearer "+issued.Signed)
	res, err = env.svc.GetSession(ctx, bearer)
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestGetSession_NoCredential(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.GetSession(context.Background(), requestWithCredential(""))
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestGetSession_ForgedCredentialIsAnError(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.GetSession(context.Background(), requestWithCredential("garbage"))
	assert.ErrorIs(t, err, session.ErrBadSignature)
	assert.Nil(t, res)
}

func TestGetSession_UnknownToken(t *testing.T) {
	env := newTestEnv(t)
	signed := session.NewSigner(testSecret).Sign("never-issued")

	res, err := env.svc.GetSession(context.Background(), requestWithCredential(signed))
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestGetSession_StoreDownIsAnError(t *testing.T) {
	env := newTestEnv(t)
	signed := session.NewSigner(testSecret).Sign("tok")
	env.mr.Close()

	res, err := env.svc.GetSession(context.Background(), requestWithCredential(signed))
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestLookup_SlidingExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u, err := env.svc.Register(ctx, "a@b.com", "correct horse", "A")
	require.NoError(t, err)
	issued, err := env.svc.Issue(ctx, *u, "", "")
	require.NoError(t, err)

	env.advance(23 * time.Hour)
	res, err := env.svc.Lookup(ctx, issued.Session.Token)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Refreshed, "update age not reached")
	assert.True(t, issued.Session.ExpiresAt.Equal(res.Session.ExpiresAt))

	env.advance(time.Hour)
	res, err = env.svc.Lookup(ctx, issued.Session.Token)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Refreshed)
	assert.Equal(t, env.now.Add(7*24*time.Hour), res.Session.ExpiresAt)
	assert.Equal(t, env.now, res.Session.UpdatedAt)

	stored, err := env.store.Get(ctx, issued.Session.Token)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(res.Session.ExpiresAt))
}

func TestLookup_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u, err := env.svc.Register(ctx, "a@b.com", "correct horse", "A")
	require.NoError(t, err)
	issued, err := env.svc.Issue(ctx, *u, "", "")
	require.NoError(t, err)

	// clock moves past expiry while the record is still in the store
	env.now = env.now.Add(8 * 24 * time.Hour)

	res, err := env.svc.Lookup(ctx, issued.Session.Token)
	assert.NoError(t, err)
	assert.Nil(t, res)

	// the store judges expiry by the same clock as the service
	_, err = env.store.Get(ctx, issued.Session.Token)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestLookup_DeletedUserDropsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u, err := env.svc.Register(ctx, "a@b.com", "correct horse", "A")
	require.NoError(t, err)
	issued, err := env.svc.Issue(ctx, *u, "", "")
	require.NoError(t, err)

	env.users.remove(u.ID)

	res, err := env.svc.Lookup(ctx, issued.Session.Token)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, env.mr.Exists("session:"+issued.Session.Token))
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u, err := env.svc.Register(ctx, "a@b.com", "correct horse", "A")
	require.NoError(t, err)
	issued, err := env.svc.Issue(ctx, *u, "", "")
	require.NoError(t, err)

	require.NoError(t, env.svc.SignOut(ctx, requestWithCredential(issued.Signed)))

	res, err := env.svc.GetSession(ctx, requestWithCredential(issued.Signed))
	assert.NoError(t, err)
	assert.Nil(t, res)

	assert.NoError(t, env.svc.SignOut(ctx, requestWithCredential("")))
	assert.NoError(t, env.svc.SignOut(ctx, requestWithCredential("forged.value")))
}

func TestHashPassword(t *testing.T) {
	hash, version, err := HashPassword("long enough", bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, HashVersionBcrypt, version)
	assert.NoError(t, VerifyPassword(hash, "long enough"))
	assert.Error(t, VerifyPassword(hash, "long enougH"))
}
