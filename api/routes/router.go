package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/mpsync/api/controllers"
	"github.com/angelmondragon/mpsync/api/middleware"
	"github.com/angelmondragon/mpsync/pkg/config"
	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
)

type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Pingers   map[string]controllers.Pinger
	Responses middleware.ResponseStore
	Tasks     controllers.TaskEnqueuer
	Locks     controllers.LockReader
	Gatherer  prometheus.Gatherer
	HTTP      *metrics.HTTPMetrics
}

func NewRouter(p RouterParams) http.Handler {
	logg := p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTP),
		middleware.CORS(p.Config.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config.App.Env))
		r.Get("/ready", controllers.HealthReady(logg, p.Pingers))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Token(p.Config.App.APIToken, logg))
		if p.Tasks != nil {
			r.With(middleware.Idempotency(p.Responses, logg)).Post("/tasks", controllers.EnqueueTask(p.Tasks, logg))
		}
		if p.Locks != nil {
			r.Get("/locks/{name}", controllers.LockState(p.Locks, logg))
		}
	})

	return r
}
