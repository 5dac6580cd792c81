package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"gitea.knapp/jacoknapp/simpl/internal/bootstrap"
	"gitea.knapp/jacoknapp/simpl/internal/db"
	"gitea.knapp/jacoknapp/simpl/internal/querycache"
	"gitea.knapp/jacoknapp/simpl/internal/session"
	"gitea.knapp/jacoknapp/simpl/internal/settings"
)

type Server struct {
	db       *db.DB
	cache    querycache.Cache
	sessions *session.Store
	settings *settings.Store
	log      zerolog.Logger
	token    string
	oidc     *oidcMgr
	chi      *chi.Mux
}

// NewServer wires the handlers to rt. With OIDC enabled it runs provider
// discovery before returning.
func NewServer(rt *bootstrap.Runtime) *Server {
	s := &Server{
		db:       rt.DB,
		cache:    rt.Cache,
		sessions: rt.Sessions,
		settings: rt.Settings,
		log:      rt.Log.With().Str("component", "http").Logger(),
		token:    rt.Config.Auth.Token,
		chi:      chi.NewRouter(),
	}
	s.initOIDC(rt.Config)
	return s
}

func (s *Server) Router() http.Handler {
	r := s.chi
	r.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	s.mountAuth(r)
	s.mountAPI(r)
	return r
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, map[string]string{"error": msg}, code)
}
