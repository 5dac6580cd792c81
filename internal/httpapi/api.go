package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitea.knapp/jacoknapp/simpl/internal/config"
	"gitea.knapp/jacoknapp/simpl/internal/db"
	"gitea.knapp/jacoknapp/simpl/internal/form"
	"gitea.knapp/jacoknapp/simpl/internal/querycache"
)

type configPatch struct {
	CacheEnabled *bool `json:"cache_enabled"`
	QueryLog     *bool `json:"query_log"`
}

func (s *Server) mountAPI(r chi.Router) {
	r.Route("/api", func(ar chi.Router) {
		ar.Group(func(pr chi.Router) {
			pr.Use(s.requireAdmin)
			pr.Get("/stats", s.apiStats)
			pr.Post("/query", s.apiQuery)
			pr.Delete("/cache", s.apiClearCache)
			pr.Get("/config", s.apiGetConfig)
			pr.Patch("/config", s.apiPatchConfig)
		})
		s.mountSession(ar)
	})
}

func (s *Server) apiStats(w http.ResponseWriter, r *http.Request) {
	cs, err := s.cache.Stats(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("cache stats")
	}
	writeJSON(w, struct {
		DB    db.Stats         `json:"db"`
		Cache querycache.Stats `json:"cache"`
	}{s.db.Stats(), cs}, 200)
}

// apiQuery runs one SELECT. The body is {"sql", "schema", "cache"}; the
// statement executes in read-only mode whether or not it is cached.
func (s *Server) apiQuery(w http.ResponseWriter, r *http.Request) {
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in == nil {
		writeError(w, "invalid json", 400)
		return
	}
	f := form.New(in, form.Required("sql", ""), form.Labels(map[string]string{"sql": "SQL"}))
	if !f.Validate() {
		writeError(w, f.Err().Error(), 400)
		return
	}
	q, ok := f.Value("sql").(string)
	if !ok {
		writeError(w, "sql must be a string", 400)
		return
	}
	if !db.IsReadStatement(q) {
		writeError(w, "only select statements are accepted", 400)
		return
	}

	opts := []db.QueryOption{db.ReadOnly()}
	if schema := f.String("schema"); schema != "" {
		opts = append(opts, db.WithSchema(schema))
	}
	if f.IsField("cache") {
		on, ok := f.Value("cache").(bool)
		if !ok {
			writeError(w, "cache must be a boolean", 400)
			return
		}
		if !on {
			opts = append(opts, db.WithoutCache())
		}
	}

	res, err := s.db.Query(r.Context(), q, opts...)
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	rows := res.Rows()
	if rows == nil {
		rows = []db.Row{}
	}
	cols := res.Columns()
	if cols == nil {
		cols = []string{}
	}
	writeJSON(w, map[string]any{
		"columns": cols,
		"rows":    rows,
		"count":   res.Len(),
		"cached":  res.Cached(),
	}, 200)
}

// statusFor maps wrapper errors onto HTTP codes: bad statements and unknown
// schemas are the caller's fault, an unreachable server is not.
func statusFor(err error) int {
	var qe *db.QueryError
	var se *db.SchemaError
	var ce *db.ConnectionError
	switch {
	case errors.As(err, &qe), errors.As(err, &se):
		return 400
	case errors.As(err, &ce), errors.Is(err, db.ErrNotConfigured):
		return 503
	}
	return 500
}

func (s *Server) apiClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.db.ClearCache(r.Context()); err != nil {
		writeError(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.settings.Get().Redacted(), 200)
}

func (s *Server) apiPatchConfig(w http.ResponseWriter, r *http.Request) {
	var in configPatch
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, "invalid json", 400)
		return
	}
	next, err := s.settings.Modify(func(c *config.Config) {
		if in.CacheEnabled != nil {
			c.Cache.Enabled = *in.CacheEnabled
		}
		if in.QueryLog != nil {
			c.QueryLog.Enabled = *in.QueryLog
		}
	})
	if err != nil {
		writeError(w, err.Error(), 500)
		return
	}
	s.db.SetCacheEnabled(next.Cache.Enabled)
	s.db.SetLogQueries(next.QueryLog.Enabled)
	s.log.Info().Bool("cache_enabled", next.Cache.Enabled).Bool("query_log", next.QueryLog.Enabled).Msg("config updated")
	writeJSON(w, next.Redacted(), 200)
}
