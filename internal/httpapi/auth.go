package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	sha256pkg "crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"gitea.knapp/jacoknapp/simpl/internal/config"
)

const adminSessionTTL = 12 * time.Hour

type oidcMgr struct {
	enabled      bool
	cookieName   string
	cookieSecure bool
	cookieSecret string
	admins       []string
	verifier     *oidc.IDTokenVerifier
	config       oauth2.Config
}

// initOIDC runs provider discovery. Any misconfiguration or discovery
// failure leaves OIDC disabled; the bearer token keeps working.
func (s *Server) initOIDC(cfg *config.Config) {
	s.oidc = &oidcMgr{
		enabled:      cfg.OAuth.Enabled,
		cookieName:   defaultIf(cfg.OAuth.CookieName, "simpl_admin"),
		cookieSecure: cfg.OAuth.CookieSecure,
		cookieSecret: defaultIf(cfg.OAuth.CookieSecret, cfg.Auth.Token),
		admins:       slices.Clone(cfg.Admins.Emails),
	}
	if !s.oidc.enabled {
		return
	}
	issuer := strings.TrimSuffix(strings.TrimSpace(cfg.OAuth.Issuer), "/")
	if issuer == "" || strings.TrimSpace(cfg.OAuth.ClientID) == "" || strings.TrimSpace(cfg.OAuth.RedirectURL) == "" {
		s.log.Warn().Msg("oidc disabled: issuer, client_id and redirect_url are required")
		s.oidc.enabled = false
		return
	}
	if s.oidc.cookieSecret == "" {
		s.log.Warn().Msg("oidc disabled: no cookie secret or admin token to sign sessions with")
		s.oidc.enabled = false
		return
	}

	discCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 10 * time.Second})
	p, err := oidc.NewProvider(discCtx, issuer)
	if err != nil {
		s.log.Warn().Err(err).Str("issuer", issuer).Msg("oidc disabled: discovery failed")
		s.oidc.enabled = false
		return
	}
	s.oidc.verifier = p.Verifier(&oidc.Config{ClientID: cfg.OAuth.ClientID})

	scopeSet := map[string]bool{oidc.ScopeOpenID: true, "email": true, "profile": true}
	for _, sc := range cfg.OAuth.Scopes {
		scopeSet[sc] = true
	}
	scopes := make([]string, 0, len(scopeSet))
	for sc := range scopeSet {
		scopes = append(scopes, sc)
	}
	sort.Strings(scopes)

	s.oidc.config = oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint:     p.Endpoint(),
		RedirectURL:  cfg.OAuth.RedirectURL,
		Scopes:       scopes,
	}
	// public clients send client_id in the form, confidential ones use basic auth
	if strings.TrimSpace(cfg.OAuth.ClientSecret) == "" {
		s.oidc.config.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	} else {
		s.oidc.config.Endpoint.AuthStyle = oauth2.AuthStyleInHeader
	}
	s.log.Info().Str("issuer", issuer).Str("auth_url", s.oidc.config.Endpoint.AuthURL).Msg("oidc enabled")
}

func defaultIf(v, d string) string {
	if strings.TrimSpace(v) == "" {
		return d
	}
	return v
}

type adminSession struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Exp   int64  `json:"exp"`
}

func (s *Server) sign(b []byte) []byte {
	h := hmac.New(sha256pkg.New, []byte(s.oidc.cookieSecret))
	h.Write(b)
	return h.Sum(nil)
}

func (s *Server) setAdminSession(w http.ResponseWriter, sess *adminSession) {
	b, _ := json.Marshal(sess)
	http.SetCookie(w, &http.Cookie{
		Name:     s.oidc.cookieName,
		Value:    base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(s.sign(b)),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.oidc.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(adminSessionTTL / time.Second),
	})
}

// adminSessionFrom returns the signed, unexpired admin session carried by r.
func (s *Server) adminSessionFrom(r *http.Request) *adminSession {
	if s.oidc.cookieSecret == "" {
		return nil
	}
	c, err := r.Cookie(s.oidc.cookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	payloadPart, sigPart, ok := strings.Cut(c.Value, ".")
	if !ok {
		return nil
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return nil
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil || !hmac.Equal(sig, s.sign(payload)) {
		return nil
	}
	var sess adminSession
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil
	}
	if time.Now().Unix() > sess.Exp {
		return nil
	}
	return &sess
}

func (s *Server) bearerOK(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(tok)), []byte(s.token)) == 1
}

// requireAdmin admits a request carrying the admin bearer token or a signed
// admin session cookie. With neither configured every request is refused.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bearerOK(r) || s.adminSessionFrom(r) != nil {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="simpl"`)
		writeError(w, "unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) mountAuth(r chi.Router) {
	r.Route("/auth", func(ar chi.Router) {
		ar.Get("/login", s.handleOAuthLogin)
		ar.Get("/callback", s.handleCallback)
		ar.Get("/logout", s.handleLogout)
	})
}

func (s *Server) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !s.oidc.enabled {
		writeError(w, "oidc is not enabled", http.StatusNotFound)
		return
	}
	state, err := randomToken(16)
	if err != nil {
		writeError(w, "failed to create state", 500)
		return
	}
	verifier, challenge, err := generatePKCE()
	if err != nil {
		writeError(w, "failed to create pkce", 500)
		return
	}
	for name, v := range map[string]string{"oauth_state": state, "oauth_pkce": verifier} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    v,
			Path:     "/auth",
			MaxAge:   600,
			HttpOnly: true,
			Secure:   s.oidc.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	u := s.oidc.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"))
	http.Redirect(w, r, u, http.StatusFound)
}

// randomToken returns a base64-url-encoded random token of n bytes.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generatePKCE creates a code_verifier and its S256 code_challenge.
func generatePKCE() (verifier string, challenge string, err error) {
	v, err := randomToken(32)
	if err != nil {
		return "", "", err
	}
	sum := sha256pkg.Sum256([]byte(v))
	return v, base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: path, MaxAge: -1})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.oidc.enabled {
		writeError(w, "oidc is not enabled", http.StatusNotFound)
		return
	}
	qstate := r.URL.Query().Get("state")
	sc, err := r.Cookie("oauth_state")
	if err != nil || sc.Value == "" || qstate == "" || subtle.ConstantTimeCompare([]byte(sc.Value), []byte(qstate)) != 1 {
		writeError(w, "invalid state", http.StatusBadRequest)
		return
	}
	var verifier string
	if pc, err := r.Cookie("oauth_pkce"); err == nil {
		verifier = pc.Value
	}
	clearCookie(w, "oauth_state", "/auth")
	clearCookie(w, "oauth_pkce", "/auth")

	ctx := context.WithValue(r.Context(), oauth2.HTTPClient, &http.Client{Timeout: 10 * time.Second})
	tok, err := s.oidc.config.Exchange(ctx, r.URL.Query().Get("code"), oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		s.log.Warn().Err(err).Msg("oidc token exchange failed")
		writeError(w, "exchange failed", http.StatusBadGateway)
		return
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok {
		writeError(w, "no id_token", http.StatusBadGateway)
		return
	}
	idToken, err := s.oidc.verifier.Verify(r.Context(), rawID)
	if err != nil {
		writeError(w, "verify: "+err.Error(), http.StatusUnauthorized)
		return
	}
	var claims struct {
		Email             string `json:"email"`
		PreferredUsername string `json:"preferred_username"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		writeError(w, "claims: "+err.Error(), http.StatusUnauthorized)
		return
	}
	who := defaultIf(claims.Email, claims.PreferredUsername)
	if !s.isAdmin(who) {
		s.log.Warn().Str("user", who).Msg("oidc login refused: not an admin")
		writeError(w, "forbidden", http.StatusForbidden)
		return
	}
	s.setAdminSession(w, &adminSession{
		Email: who,
		Name:  defaultIf(claims.Name, who),
		Exp:   time.Now().Add(adminSessionTTL).Unix(),
	})
	s.log.Info().Str("user", who).Msg("admin login")
	http.Redirect(w, r, "/api/stats", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, s.oidc.cookieName, "/")
	clearCookie(w, "oauth_state", "/auth")
	clearCookie(w, "oauth_pkce", "/auth")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) isAdmin(who string) bool {
	if who == "" {
		return false
	}
	return slices.ContainsFunc(s.oidc.admins, func(a string) bool { return strings.EqualFold(strings.TrimSpace(a), who) })
}
