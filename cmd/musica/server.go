package main

import (
	"log"
	"net/http"
	"time"

	"github.com/kevigoci/musica/catalog"
	"github.com/kevigoci/musica/config"
	"github.com/kevigoci/musica/match"
	"github.com/kevigoci/musica/stream"
)

// api bundles every dependency the HTTP handlers need, replacing the
// teacher's package-level dbClient/fpConfig globals with an explicit
// receiver so handlers stay testable without a process-wide database.
type api struct {
	store   *catalog.Store
	cfg     *config.Config
	matcher *match.Matcher
	timing  stream.Timing
	pool    *stream.Pool
}

func serve(store *catalog.Store, cfg *config.Config) {
	a := &api{
		store:   store,
		cfg:     cfg,
		matcher: match.New(store, fpConfig),
		timing:  stream.DefaultTiming(),
		pool:    stream.NewPool(int64(max(1, cfg.IdleTimeoutSec/2))),
	}
	a.timing.IdleTimeout = time.Duration(cfg.IdleTimeoutSec) * time.Second
	a.timing.AttemptTimeout = time.Duration(cfg.AttemptTimeoutSec) * time.Second

	mux := http.NewServeMux()
	mux.HandleFunc("/api/songs", dispatchSongs(a))
	mux.HandleFunc("/api/songs/", a.handleSongByID)
	mux.HandleFunc("/api/stats", a.handleStats)
	mux.HandleFunc("/api/recognize", a.handleRecognize)
	mux.HandleFunc("/ws/recognize", func(w http.ResponseWriter, r *http.Request) {
		stream.ServeWebSocket(w, r, a.store, fpConfig, a.timing, a.pool, a.matcher, a.cfg.AllowedOrigins)
	})

	handler := requestLogger(corsMiddleware(a.cfg, mux))

	log.Printf("[server] listening on %s", a.cfg.Addr())
	if err := http.ListenAndServe(a.cfg.Addr(), handler); err != nil {
		log.Fatalf("[server] %v", err)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// dispatchSongs routes POST (add) and GET (list) on the same /api/songs
// path, matching spec's HTTP surface without pulling in a router
// dependency the rest of the pack doesn't reach for either.
func dispatchSongs(a *api) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			a.handleAddSong(w, r)
		case http.MethodGet:
			a.handleListSongs(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: 200}
		next.ServeHTTP(rec, r)
		log.Printf("[http] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func corsMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if cfg.AllowsOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
