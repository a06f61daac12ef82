package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/seo-monitor/internal/metrics"
	"github.com/AngelCh415/seo-monitor/internal/store"
	"github.com/AngelCh415/seo-monitor/internal/utils"
)

const maxBodyBytes = 4 << 10

var validate = validator.New()

// TrackedKeywords is the mutable keyword list behind /api/keywords/add.
type TrackedKeywords interface {
	Tracked() []string
	Add(keyword string) (bool, error)
}

type Deps struct {
	Log       *slog.Logger
	Service   *metrics.Service
	Keywords  TrackedKeywords
	Refresh   func()
	Sources   map[string]bool
	Realtime  http.Handler
	StaticDir string

	CORSOrigins        []string
	RateLimitPerMinute int
}

type addKeywordReq struct {
	Keyword string `json:"keyword" validate:"required,max=200"`
}

func NewRouter(d Deps) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log))
	mux.Use(utils.Metrics)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	mux.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
	})

	mux.Get("/api/data/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Service.Latest())
	})

	mux.Get("/api/data/history/{period}", func(w http.ResponseWriter, r *http.Request) {
		rows, err := d.Service.History(r.Context(), chi.URLParam(r, "period"))
		if errors.Is(err, store.ErrInvalidPeriod) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			d.Log.Error("history query failed", slog.String("rid", utils.RID(r.Context())), slog.String("err", err.Error()))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		writeJSON(w, http.StatusOK, rows)
	})

	mux.Get("/api/keywords", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Service.Keywords())
	})

	mux.Get("/api/keywords/tracked", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"keywords": d.Keywords.Tracked()})
	})

	mux.Get("/api/keywords/ranking", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Service.KeywordRanking(r.URL.Query()))
	})

	mux.Get("/api/performance", func(w http.ResponseWriter, r *http.Request) {
		perf, ok := d.Service.Performance()
		if !ok {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}
		writeJSON(w, http.StatusOK, perf)
	})

	mux.Get("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Service.Summary())
	})

	mux.Get("/api/status/sources", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"configured": d.Sources}
		if st := d.Service.SourceStates(); st != nil {
			body["lastRun"] = st
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.Group(func(mux chi.Router) {
		if d.RateLimitPerMinute > 0 {
			mux.Use(httprate.Limit(d.RateLimitPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		mux.Post("/api/keywords/add", func(w http.ResponseWriter, r *http.Request) {
			var req addKeywordReq
			if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			req.Keyword = strings.TrimSpace(req.Keyword)
			if err := validate.Struct(req); err != nil {
				writeError(w, http.StatusBadRequest, "keyword is required and must be at most 200 characters")
				return
			}
			added, err := d.Keywords.Add(req.Keyword)
			if err != nil {
				d.Log.Error("adding keyword failed", slog.String("rid", utils.RID(r.Context())), slog.String("err", err.Error()))
				writeError(w, http.StatusInternalServerError, "keyword could not be saved")
				return
			}
			msg := "Keyword added"
			if !added {
				msg = "Keyword already tracked"
			}
			d.Log.Info("keyword added to monitoring", slog.String("keyword", req.Keyword), slog.Bool("new", added))
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg, "keyword": req.Keyword})
		})

		mux.Post("/api/data/refresh", func(w http.ResponseWriter, r *http.Request) {
			d.Refresh()
			writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "message": "check scheduled"})
		})
	})

	mux.Handle("/metrics", promhttp.Handler())
	if d.Realtime != nil {
		mux.Handle("/ws", d.Realtime)
	}
	if d.StaticDir != "" {
		mux.Get("/*", spa(d.StaticDir))
	}
	return mux
}

// spa serves files from dir and falls back to index.html for client routes.
func spa(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		p := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
