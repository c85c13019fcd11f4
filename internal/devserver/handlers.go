package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/teadocs/internal/assets"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/metrics"
	"git.home.luguber.info/inful/teadocs/internal/route"
	"git.home.luguber.info/inful/teadocs/internal/server/middleware"
)

// Handler returns the HTTP routes of the server. Internal endpoints live
// under /__teadocs at the host root regardless of the base URL.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Chain(s.log, nil))
	r.Route("/__teadocs", func(r chi.Router) {
		r.Get("/livereload", s.hub.ServeHTTP)
		r.Get("/livereload.js", s.handleScript)
		r.Get("/status", s.handleStatus)
		r.Get("/healthz", s.handleHealth)
		if s.snap.Load().cfg.Dev.Metrics {
			r.Handle("/metrics", metrics.HTTPHandler(s.gatherer))
		}
	})
	r.Get("/*", s.handleContent)
	r.Head("/*", s.handleContent)
	return r
}

func (s *Server) handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(clientScript))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// Status is the JSON body of the status endpoint.
type Status struct {
	State      State    `json:"state"`
	Generation uint64   `json:"generation"`
	Pages      int      `json:"pages"`
	Cached     int      `json:"cached"`
	Errors     []string `json:"errors"`
	Clients    int      `json:"clients"`
}

// Status reports the current snapshot.
func (s *Server) Status() Status {
	snap := s.snap.Load()
	return Status{
		State:      s.State(),
		Generation: snap.gen,
		Pages:      len(snap.routes),
		Cached:     len(snap.pages),
		Errors:     snap.problems,
		Clients:    s.hub.Clients(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.log.Debug("Failed to write status", logfields.Error(err))
	}
}

// handleContent serves assets by URL, then pages by route. Pages missing
// from the snapshot are generated by the worker on first request.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	snap := s.snap.Load()
	if loc, ok := snap.assets[r.URL.Path]; ok {
		s.serveAsset(w, r, snap, loc)
		return
	}
	rt, ok := pageRoute(r.URL.Path, snap.cfg.BaseURL)
	if !ok || !snap.routes[rt] {
		writePage(w, snap.notFound, http.StatusNotFound)
		return
	}
	e := snap.pages[rt]
	if e == nil {
		var err error
		if e, err = s.generate(r.Context(), rt); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if e == nil {
			writePage(w, s.snap.Load().notFound, http.StatusNotFound)
			return
		}
	}
	writePage(w, e.body, e.status)
}

func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request, snap *snapshot, loc assets.Location) {
	data, err := snap.pipe.Open(loc)
	if err != nil {
		s.log.Debug("Asset unavailable", logfields.Path(loc.Source), logfields.Error(err))
		writePage(w, snap.notFound, http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, path.Base(loc.Output), time.Time{}, bytes.NewReader(data))
}

func writePage(w http.ResponseWriter, body []byte, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// pageRoute strips the base path from a request path and maps the rest to
// a route.
func pageRoute(p, base string) (route.Route, bool) {
	if base == "" {
		base = "/"
	}
	if p == strings.TrimSuffix(base, "/") {
		return route.Root, true
	}
	rest, ok := strings.CutPrefix(p, base)
	if !ok {
		return "", false
	}
	return route.FromURLPath(rest), true
}
