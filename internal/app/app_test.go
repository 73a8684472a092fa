package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessiongate/internal/config"
	"sessiongate/internal/ratelimit"
	"sessiongate/internal/session"
	"sessiongate/internal/user"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memUsers struct {
	mu   sync.Mutex
	byID map[string]user.User
}

func (m *memUsers) FindByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, u user.User) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = uuid.NewString()
	m.byID[u.ID] = u
	return &u, nil
}

func (m *memUsers) CreateWithPassword(_ context.Context, u user.User, hash, _ string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = uuid.NewString()
	u.PasswordHash = hash
	m.byID[u.ID] = u
	u.PasswordHash = ""
	return &u, nil
}

func (m *memUsers) FindIdentity(context.Context, string, string) (string, error) {
	return "", user.ErrNotFound
}

func (m *memUsers) LinkIdentity(context.Context, string, string, string) error {
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Auth.BaseURL = "http://localhost:8080"
	cfg.Auth.CookieSecure = false
	cfg.RateLimit.SignInMax = 2
	return cfg
}

// surfaces builds both surfaces over one shared user store and session
// store, as two processes sharing Postgres and Redis would.
func surfaces(t *testing.T) (api http.Handler, web http.Handler) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	users := &memUsers{byID: map[string]user.User{}}
	store := session.NewRedisStore(rdb)
	cfg := testConfig()

	build := func(surface Surface) *core {
		return newCore(cfg, deps{
			users:    users,
			sessions: store,
			limiter:  ratelimit.NewMemory(),
			registry: prometheus.NewRegistry(),
			surface:  string(surface),
		})
	}

	return newAPIRouter(build(SurfaceAPI)), newWebRouter(build(SurfaceWeb))
}

func call(h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func signUp(t *testing.T, h http.Handler) *http.Cookie {
	t.Helper()
	rec := call(h, http.MethodPost, "/api/auth/sign-up/email", `{"email":"a@b.com","password":"correct horse","name":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestAPISurface(t *testing.T) {
	api, _ := surfaces(t)

	assert.Equal(t, http.StatusOK, call(api, http.MethodGet, "/health", "").Code)

	rec := call(api, http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`)

	cookie := signUp(t, api)

	rec = call(api, http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"a@b.com"`)

	rec = call(api, http.MethodGet, "/api/auth/status", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)

	rec = call(api, http.MethodGet, "/api/auth/status", "", &http.Cookie{Name: session.CookieName, Value: "garbage"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"authenticated":false`)

	rec = call(api, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(api, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sessiongate_session_lookups_total")
}

func TestSessionCrossesSurfaces(t *testing.T) {
	api, web := surfaces(t)

	rec := call(web, http.MethodGet, "/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := signUp(t, api)

	rec = call(web, http.MethodGet, "/dashboard", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Signed in as a@b.com")

	rec = call(web, http.MethodGet, "/api/auth/status", "", cookie)
	assert.Contains(t, rec.Body.String(), `"authenticated":true`)

	// sign out on the web surface ends the session for the api surface too
	rec = call(web, http.MethodPost, "/api/auth/sign-out", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, call(api, http.MethodGet, "/api/me", "", cookie).Code)
	assert.Contains(t, call(web, http.MethodGet, "/", "", cookie).Body.String(), "Not signed in")
}

func TestSignInThrottledPerSurface(t *testing.T) {
	api, _ := surfaces(t)
	signUp(t, api)

	body := `{"email":"a@b.com","password":"correct horse"}`
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, call(api, http.MethodPost, "/api/auth/sign-in/email", body).Code)
	}

	rec := call(api, http.MethodPost, "/api/auth/sign-in/email", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// read-only endpoints stay open
	assert.Equal(t, http.StatusOK, call(api, http.MethodGet, "/api/auth/get-session", "").Code)
}

func TestNewLimiter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cfg := testConfig()
	_, ok := newLimiter(ctx, cfg, nil).(*ratelimit.Memory)
	assert.True(t, ok)
}
