package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeIssuer serves OIDC discovery, JWKS and a token endpoint that returns
// an RS256 id_token for the given claims.
func fakeIssuer(t *testing.T, clientID string, extra jwt.MapClaims) *httptest.Server {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "test",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   "AQAB",
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		claims := jwt.MapClaims{
			"iss": srv.URL,
			"aud": clientID,
			"sub": "subject-1",
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		for k, v := range extra {
			claims[k] = v
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = "test"
		idToken, err := tok.SignedString(key)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newEnabled(t *testing.T, issuer string) *Authenticator {
	t.Helper()
	a, err := New(context.Background(), Config{
		Enabled:       true,
		Issuer:        issuer,
		ClientID:      "doktran",
		ClientSecret:  "secret",
		RedirectURL:   "http://localhost/auth/callback",
		SessionSecret: testSecret,
	}, quietLogger())
	require.NoError(t, err)
	return a
}

func TestLoginFlow(t *testing.T) {
	issuer := fakeIssuer(t, "doktran", jwt.MapClaims{
		"preferred_username": "ada@example.com",
		"name":               "Ada Lovelace",
	})
	a := newEnabled(t, issuer.URL)

	rec := httptest.NewRecorder()
	a.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, issuer.URL+"/authorize", loc.Scheme+"://"+loc.Host+loc.Path)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCk *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookie {
			stateCk = c
		}
	}
	require.NotNil(t, stateCk)
	assert.Equal(t, state, stateCk.Value)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
	req.AddCookie(stateCk)
	rec = httptest.NewRecorder()
	a.Callback(rec, req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/", rec.Header().Get("Location"))

	var session string
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			session = c.Value
		}
	}
	require.NotEmpty(t, session)

	user, err := a.ParseSession(session)
	require.NoError(t, err)
	assert.Equal(t, "subject-1", user.ID)
	assert.Equal(t, "Ada Lovelace", user.Name)
}

// login runs the callback for a fresh state and returns the session user.
func login(t *testing.T, a *Authenticator) *User {
	t.Helper()
	rec := httptest.NewRecorder()
	a.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state="+loc.Query().Get("state"), nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	a.Callback(rec, req)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			user, err := a.ParseSession(c.Value)
			require.NoError(t, err)
			return user
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func TestLogin_IdentityIsSubject(t *testing.T) {
	first := login(t, newEnabled(t, fakeIssuer(t, "doktran", jwt.MapClaims{
		"sub":                "tenant-a-user",
		"email":              "ada@example.com",
		"preferred_username": "ada@example.com",
	}).URL))
	second := login(t, newEnabled(t, fakeIssuer(t, "doktran", jwt.MapClaims{
		"sub":                "tenant-b-user",
		"email":              "ada@example.com",
		"preferred_username": "ada@example.com",
	}).URL))

	assert.Equal(t, "tenant-a-user", first.ID)
	assert.Equal(t, "tenant-b-user", second.ID)
	assert.Equal(t, "ada@example.com", second.Email)
	assert.Equal(t, "ada@example.com", second.Name)
}

func TestCallback_StateMismatch(t *testing.T) {
	a := newEnabled(t, fakeIssuer(t, "doktran", nil).URL)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=one", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "two"})
	rec := httptest.NewRecorder()
	a.Callback(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_WrongAudience(t *testing.T) {
	a := newEnabled(t, fakeIssuer(t, "someone-else", nil).URL)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=s", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s"})
	rec := httptest.NewRecorder()
	a.Callback(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_ProviderError(t *testing.T) {
	a := newEnabled(t, fakeIssuer(t, "doktran", nil).URL)

	rec := httptest.NewRecorder()
	a.Callback(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{Enabled: true, SessionSecret: "short"}, quietLogger())
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Enabled: true, Issuer: "http://127.0.0.1:1", SessionSecret: testSecret}, quietLogger())
	assert.Error(t, err)
}

func TestSession_RoundTripAndTamper(t *testing.T) {
	a := &Authenticator{cfg: Config{Enabled: true, SessionSecret: testSecret, SessionTTL: time.Hour}}

	token, err := a.IssueSession(User{ID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)

	user, err := a.ParseSession(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "u1@example.com", user.Email)

	other := &Authenticator{cfg: Config{SessionSecret: "another-secret-another-secret-xx"}}
	_, err = other.ParseSession(token)
	assert.ErrorIs(t, err, ErrInvalidSession)

	expired := &Authenticator{cfg: Config{SessionSecret: testSecret, SessionTTL: -time.Minute}}
	token, err = expired.IssueSession(User{ID: "u1"})
	require.NoError(t, err)
	_, err = a.ParseSession(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMiddleware(t *testing.T) {
	a := &Authenticator{cfg: Config{Enabled: true, SessionSecret: testSecret, SessionTTL: time.Hour}}
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, UserFrom(r.Context()).ID)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _ := a.IssueSession(User{ID: "bearer-user"})
	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bearer-user", rec.Body.String())

	token, _ = a.IssueSession(User{ID: "cookie-user"})
	req = httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "cookie-user", rec.Body.String())
}

func TestMiddleware_Disabled(t *testing.T) {
	a, err := New(context.Background(), Config{}, quietLogger())
	require.NoError(t, err)
	assert.False(t, a.Enabled())

	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, UserFrom(r.Context()).ID)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, Anonymous, rec.Body.String())

	rec = httptest.NewRecorder()
	a.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
