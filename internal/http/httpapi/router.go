package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"sketchgen/internal/http/handlers"
	"sketchgen/internal/infra"
	"sketchgen/internal/middleware"
)

// Options tunes the router's middleware.
type Options struct {
	CORSOrigins     []string
	SubmitPerMinute int
	Metrics         http.Handler
	StaticDir       string
	StaticURLPrefix string
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.SubmitPerMinute, time.Minute)).Post("/", app.SubmitGeneration)
	})
	r.Route("/v1/assets/{asset_id}", func(r chi.Router) {
		r.Get("/", app.GetAsset)
		r.Delete("/", app.DeleteAsset)
	})
	r.Delete("/v1/jobs/{job_id}", app.CancelJob)
	r.Get("/v1/budget", app.Budget)

	// Filesystem-backed artifacts are served from here in development.
	if opts.StaticDir != "" && opts.StaticURLPrefix != "" {
		fs := http.StripPrefix(opts.StaticURLPrefix, http.FileServer(http.Dir(opts.StaticDir)))
		r.Handle(opts.StaticURLPrefix+"/*", fs)
	}

	return r
}
