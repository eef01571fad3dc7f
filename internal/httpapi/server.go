// Package httpapi serves the Mission Control HTTP surface: health, the runtime webhook,
// the JSON API under /api/, the SSE change feed, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/notify"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/internal/store/postgres"
	"github.com/ankittk/missioncontrol/internal/webhook"
	"github.com/ankittk/missioncontrol/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServiceName is reported by /health and used as the OTel service name.
const ServiceName = "mission-control"

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for dev mode (dashboard served from another origin).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP app.
type ServerOptions struct {
	Home              string
	Addr              string
	Dev               bool
	APIKey            string       // if set, /api/ and /stream require X-API-Key header or query api_key
	DBDriver          string       // "sqlite" (default) or "postgres"
	DBURL             string       // for postgres: connection string (or set DATABASE_URL env)
	Store             store.Store  // if set, used instead of opening one from Home/DBURL
	MetricsHandler    http.Handler // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP       bool         // if true, wrap handler with otelhttp for request metrics
	WebhookAuth       webhook.Authenticator
	StrictTransitions bool
	SlackWebhookURL   string
	MaxBodyBytes      int64
	Seed              bool // load the starter squad at startup
	Logger            *slog.Logger
}

// App holds the HTTP server, SSE hub, store, domain service and notification channels.
type App struct {
	Server   *http.Server
	Hub      *SSEHub
	Store    store.Store
	Service  *mission.Service
	Channels *notify.Registry
	Home     string
}

// OpenStore opens the store selected by opts (sqlite under Home, or postgres).
func OpenStore(opts ServerOptions) (store.Store, error) {
	if opts.DBDriver == "postgres" {
		return postgres.Open(opts.DBURL)
	}
	return store.Open(opts.Home)
}

// NewApp opens the store, builds the mission service, and registers all routes.
func NewApp(opts ServerOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := opts.Store
	if st == nil {
		var err error
		st, err = OpenStore(opts)
		if err != nil {
			return nil, err
		}
	}

	hub := NewSSEHub()
	channels := notify.FromEnv(opts.SlackWebhookURL)

	svc := mission.New(st)
	svc.Publisher = hub
	svc.Logger = logger
	if opts.StrictTransitions {
		svc.Transitions = mission.StrictTransitions{}
	}
	for _, c := range channels.Channels() {
		svc.Notifiers = append(svc.Notifiers, c)
	}
	if opts.Seed {
		res, err := svc.Seed(context.Background())
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		logger.Info("seed complete", "agents_created", res.Agents.Created, "tasks_created", res.Tasks.Created)
	}

	wh := webhook.New(svc)
	wh.Logger = logger
	if opts.WebhookAuth != nil {
		wh.Auth = opts.WebhookAuth
	}

	api := &api{svc: svc, log: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.Health{Status: "ok", Service: ServiceName})
	})
	mux.Handle("POST /webhook", wh)
	mux.HandleFunc("GET /stream", hub.Handler())

	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			counts := svc.TaskCounts(r.Context())
			_, _ = fmt.Fprintf(w, "# TYPE missioncontrol_tasks gauge\n")
			for _, status := range models.TaskStatuses {
				_, _ = fmt.Fprintf(w, "missioncontrol_tasks{status=%q} %d\n", status, counts[status])
			}
		})
	}

	api.routes(mux)

	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = models.DefaultMaxRequestBodyBytes
	}
	var handler http.Handler = mux
	handler = bodyLimitMiddleware(maxBody, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(logger, handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "missioncontrol")
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE streams outlive WriteTimeout; keepalives only refresh idle proxies.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(func() {
		_ = st.Close()
	})
	return &App{Server: srv, Hub: hub, Store: st, Service: svc, Channels: channels, Home: opts.Home}, nil
}

// responseRecorder captures status code for logging and forwards Flusher if supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// apiKeyMiddleware guards everything except /health, /metrics and /webhook (which has its own bearer check).
func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/metrics", "/webhook":
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		logger.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
