package http

import (
	"net/http"

	"github.com/artpar/crudkit/adapters/metrics"
	"github.com/artpar/crudkit/core/openapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig holds the parts of the main router.
type RouterConfig struct {
	Logger zerolog.Logger
	Errors *ErrorHandler

	// API serves every path the service endpoints do not claim, e.g. the
	// entity registry.
	API http.Handler

	Health  *HealthHandler
	Version VersionInfo

	// Metrics enables request metrics and GET /metrics when set.
	Metrics *metrics.Collector

	// OpenAPI enables /openapi.json and /swagger/ when set.
	OpenAPI *openapi.Document

	CORSOrigins []string
	BodyLimit   int64
}

// NewRouter creates the main HTTP router. Middleware runs in this order:
// request id, real ip, recovery, security headers, CORS, body limit,
// parameter pollution, compression, request logging, metrics.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Errors == nil {
		cfg.Errors = NewErrorHandler(cfg.Logger, false)
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 1 << 20
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Recoverer(cfg.Errors.Handle))
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigins))
	r.Use(BodyLimit(cfg.BodyLimit, cfg.Errors.Handle))
	r.Use(ParamPollution)
	r.Use(Compress)
	r.Use(NewLoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.NotFound(cfg.Errors.NotFound)
	r.MethodNotAllowed(cfg.Errors.NotFound)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	r.Get("/version", Version(cfg.Version))

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	if cfg.OpenAPI != nil {
		doc := cfg.OpenAPI
		r.Get("/openapi.json", func(w http.ResponseWriter, req *http.Request) {
			data, err := doc.Spec().ToJSON()
			if err != nil {
				cfg.Errors.Handle(w, req, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)
		})
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/openapi.json"),
		))
	}

	if cfg.API != nil {
		r.Mount("/", cfg.API)
	}

	return r
}
