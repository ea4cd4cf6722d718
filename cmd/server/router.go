package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/handlers"
	"github.com/kevinmaint/maint-api/internal/middleware"
)

const (
	serviceName = "maint-api"

	// requestTimeout bounds every request; location detection has its own shorter budget
	requestTimeout = 30 * time.Second
	// imageRequestSize leaves room for a base64 photo of up to handlers.MaxImageBytes
	imageRequestSize = 8 << 20
)

// routerDeps is everything the HTTP surface is assembled from
type routerDeps struct {
	logger      *zap.Logger
	tracing     bool
	enableHSTS  bool
	corsOrigins []string

	verifier  middleware.TokenVerifier
	users     middleware.UserProvisioner
	rateLimit func(http.Handler) http.Handler

	health     *handlers.HealthChecker
	openAPI    *handlers.OpenAPIHandler
	auth       *handlers.AuthHandler
	issues     *handlers.IssueHandler
	threads    *handlers.ThreadHandler
	location   *handlers.LocationHandler
	bugReports *handlers.BugReportHandler
}

// newRouter assembles routes and middleware. gorilla/mux runs middleware in
// registration order, so the first Use is the outermost wrapper.
func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()

	if d.tracing {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.Logging(d.logger))
	r.Use(middleware.ErrorHandler(d.logger))
	r.Use(middleware.SecurityHeaders(d.enableHSTS))
	r.Use(middleware.CORS(d.corsOrigins))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(requestTimeout))

	// Public routes
	r.HandleFunc("/healthz", d.health.HealthCheck).Methods("GET")
	r.HandleFunc("/version", d.health.Version).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	d.openAPI.RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()

	authRouter := api.PathPrefix("/auth").Subrouter()
	publicAuth := authRouter.PathPrefix("").Subrouter()
	publicAuth.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	if d.rateLimit != nil {
		publicAuth.Use(d.rateLimit)
	}
	d.auth.RegisterPublicRoutes(publicAuth)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(d.verifier, d.users, d.logger))
	if d.rateLimit != nil {
		protected.Use(d.rateLimit)
	}

	meRouter := protected.PathPrefix("/auth").Subrouter()
	d.auth.RegisterRoutes(meRouter)

	// Thread routes live under /issues/{id}/... too, so they are matched first
	threadRouter := protected.PathPrefix("").Subrouter()
	threadRouter.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	d.threads.RegisterRoutes(threadRouter)

	issuesRouter := protected.PathPrefix("/issues").Subrouter()
	issuesRouter.Use(middleware.MaxRequestSize(imageRequestSize))
	d.issues.RegisterRoutes(issuesRouter)

	locationRouter := protected.PathPrefix("/location").Subrouter()
	locationRouter.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	d.location.RegisterRoutes(locationRouter)

	bugRouter := protected.PathPrefix("/bug-reports").Subrouter()
	bugRouter.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	d.bugReports.RegisterRoutes(bugRouter)

	// Preflight requests match no method-restricted route; CORS has already answered them
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
