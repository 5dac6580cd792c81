package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitea.knapp/jacoknapp/simpl/internal/session"
)

const sessionCookie = "SIMPLSESSID"

func (s *Server) mountSession(r chi.Router) {
	r.Route("/session", func(sr chi.Router) {
		sr.Get("/", s.apiSessionGet)
		sr.Put("/", s.apiSessionPut)
		sr.Delete("/", s.apiSessionDelete)
	})
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) apiSessionGet(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{}
	if id := sessionID(r); id != "" {
		b, err := s.sessions.Read(r.Context(), id)
		if err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
		if len(b) > 0 {
			_ = json.Unmarshal(b, &data)
		}
		if data == nil {
			data = map[string]any{}
		}
	}
	writeJSON(w, data, 200)
}

func (s *Server) apiSessionPut(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		writeError(w, "expected a json object", 400)
		return
	}
	id := sessionID(r)
	if id == "" {
		id = session.NewID()
	}
	b, _ := json.Marshal(data)
	if err := s.sessions.Write(r.Context(), id, b); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	s.setSessionCookie(w, id, int(s.sessions.Lifetime().Seconds()))
	writeJSON(w, data, 200)
}

func (s *Server) apiSessionDelete(w http.ResponseWriter, r *http.Request) {
	if id := sessionID(r); id != "" {
		if err := s.sessions.Destroy(r.Context(), id); err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
	}
	s.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}
