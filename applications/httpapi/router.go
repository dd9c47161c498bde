package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/skyport-ops/soc-backend/domain/soc"
	"github.com/skyport-ops/soc-backend/domain/ticketing"
	"github.com/skyport-ops/soc-backend/infrastructure/metrics"
	"github.com/skyport-ops/soc-backend/infrastructure/middleware"
	"github.com/skyport-ops/soc-backend/pkg/logger"
	"github.com/skyport-ops/soc-backend/system/events"
)

// API holds the dependencies every handler needs (spec §6.1's surface).
type API struct {
	bus       *events.Bus
	soc       *soc.Service
	ticketing *ticketing.Service
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// Options configures NewRouter.
type Options struct {
	Bus            *events.Bus
	SOC            *soc.Service
	Ticketing      *ticketing.Service
	Logger         *logger.Logger
	CORSOrigins    []string
	ServiceVersion string
	Ready          *bool
	AuthSecret     string
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter assembles the full HTTP surface (spec §6.1), wiring the
// shared middleware stack ahead of the route table.
func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	api := &API{
		bus:       opts.Bus,
		soc:       opts.SOC,
		ticketing: opts.Ticketing,
		logger:    log,
		metrics:   metrics.Global(),
	}

	r := mux.NewRouter()

	r.HandleFunc("/stream/ops", api.StreamHandler).Methods(http.MethodGet)
	r.HandleFunc("/events", api.EventsHandler).Methods(http.MethodGet)
	r.HandleFunc("/incidents/{id}/transition", api.TransitionIncidentHandler).Methods(http.MethodPost)
	r.HandleFunc("/incidents/{id}/escalate", api.EscalateIncidentHandler).Methods(http.MethodPost)
	r.HandleFunc("/tickets", api.CreateTicketHandler).Methods(http.MethodPost)

	r.HandleFunc("/healthz", middleware.NewHealthChecker(opts.ServiceVersion).Handler()).Methods(http.MethodGet)
	r.HandleFunc("/livez", middleware.LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", middleware.ReadinessHandler(opts.Ready)).Methods(http.MethodGet)

	rps, burst := opts.RateLimitRPS, opts.RateLimitBurst
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = rps * 2
	}

	cors := middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: opts.CORSOrigins})
	recovery := middleware.NewRecoveryMiddleware(log)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(nil)
	auth := middleware.NewSharedSecretMiddleware(opts.AuthSecret, "/healthz", "/livez", "/readyz")
	limiter := middleware.NewRateLimiter(rps, time.Second, burst)

	r.Use(middleware.LoggingMiddleware(log))
	r.Use(cors.Handler)
	r.Use(securityHeaders.Handler)
	r.Use(recovery.Handler)
	r.Use(limiter.Handler)
	r.Use(auth.Handler)

	return r
}
