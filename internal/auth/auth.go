// Package auth implements OpenID Connect login and the session cookie that
// guards the translation API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	SessionCookie = "doktran_session"
	stateCookie   = "doktran_state"

	// Anonymous is the user attached to requests when auth is disabled.
	Anonymous = "anonymous"

	DefaultSessionTTL = 12 * time.Hour
	sessionIssuer     = "doktran"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidSession  = errors.New("invalid session")
)

type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Issuer is the OIDC issuer, e.g.
	// https://login.microsoftonline.com/{tenant}/v2.0
	Issuer       string   `mapstructure:"issuer"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`

	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`

	// AfterLoginURL is where the callback redirects once the session is set.
	AfterLoginURL string `mapstructure:"after_login_url"`
}

// User is the authenticated principal.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	cfg      Config
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
	log      *logrus.Logger
}

// New discovers the OIDC provider when auth is enabled. A disabled
// Authenticator lets every request through as Anonymous.
func New(ctx context.Context, cfg Config, log *logrus.Logger) (*Authenticator, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.AfterLoginURL == "" {
		cfg.AfterLoginURL = "/"
	}
	a := &Authenticator{cfg: cfg, log: log}
	if !cfg.Enabled {
		return a, nil
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("auth.session_secret must be at least 32 characters")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	a.provider = provider
	a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	a.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}
	return a, nil
}

func (a *Authenticator) Enabled() bool {
	return a.cfg.Enabled
}

// Login redirects to the identity provider with a fresh state cookie.
func (a *Authenticator) Login(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.Enabled {
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the authorization-code flow and sets the session
// cookie.
func (a *Authenticator) Callback(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.Enabled {
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	if e := r.URL.Query().Get("error"); e != "" {
		a.log.WithFields(logrus.Fields{
			"error":       e,
			"description": r.URL.Query().Get("error_description"),
		}).Warn("Identity provider rejected login")
		writeError(w, http.StatusUnauthorized, "login failed: "+e)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "invalid login state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth", MaxAge: -1})

	user, err := a.exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		a.log.WithError(err).Warn("Login failed")
		writeError(w, http.StatusUnauthorized, "login failed")
		return
	}

	token, err := a.IssueSession(*user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	a.setSessionCookie(w, token, int(a.cfg.SessionTTL.Seconds()))

	a.log.WithField("user", user.ID).Info("User logged in")
	http.Redirect(w, r, a.cfg.AfterLoginURL, http.StatusFound)
}

func (a *Authenticator) exchange(ctx context.Context, code string) (*User, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response")
	}
	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims struct {
		Name              string `json:"name"`
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	// Email and preferred_username are mutable and unverified; they are
	// for display only.
	if idToken.Subject == "" {
		return nil, fmt.Errorf("ID token has no subject")
	}
	user := &User{ID: idToken.Subject, Name: claims.Name, Email: claims.Email}
	if user.Name == "" {
		user.Name = claims.PreferredUsername
	}
	return user, nil
}

// Logout clears the session cookie.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	a.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me reports the current user.
func (a *Authenticator) Me(w http.ResponseWriter, r *http.Request) {
	user, err := a.userFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          user,
		"auth_enabled":  a.cfg.Enabled,
		"authenticated": a.cfg.Enabled,
	})
}

func (a *Authenticator) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// IssueSession signs an HS256 session token for user.
func (a *Authenticator) IssueSession(user User) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.SessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.SessionSecret))
}

// ParseSession validates a session token and returns its user.
func (a *Authenticator) ParseSession(token string) (*User, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(a.cfg.SessionSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(sessionIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return &User{ID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

func (a *Authenticator) userFromRequest(r *http.Request) (*User, error) {
	if !a.cfg.Enabled {
		return &User{ID: Anonymous}, nil
	}
	var token string
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	} else if c, err := r.Cookie(SessionCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}
	return a.ParseSession(token)
}

// Middleware rejects requests without a valid session and stores the user in
// the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.userFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), *user)))
	})
}

type ctxKey struct{}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// UserFrom returns the user stored by Middleware, or Anonymous.
func UserFrom(ctx context.Context) User {
	if u, ok := ctx.Value(ctxKey{}).(User); ok {
		return u
	}
	return User{ID: Anonymous}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
