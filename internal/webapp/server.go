package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type httpServer struct {
	srv      *http.Server
	listener net.Listener
}

// run blocks serving the listener. A nil return means an orderly shutdown.
func (s *httpServer) run() error {
	err := s.srv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *httpServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func (a *App) newMainServer(ln net.Listener) *httpServer {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{
			"app":    "kolibrid",
			"status": "serving",
		})
	})
	r.Get("/api/ping", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return &httpServer{
		srv: &http.Server{
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		listener: ln,
	}
}

func (a *App) newZipServer(ln net.Listener) *httpServer {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	fs := http.StripPrefix("/content/", http.FileServer(http.Dir(contentDir(a.cfg.HomePath))))
	r.Get("/content/*", fs.ServeHTTP)
	r.Get("/api/ping", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return &httpServer{
		srv: &http.Server{
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		listener: ln,
	}
}

func contentDir(home string) string {
	return filepath.Join(home, "content")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
