package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chrissnell/designflood/internal/cache"
	"github.com/chrissnell/designflood/internal/log"
	"github.com/chrissnell/designflood/internal/observability"
	"github.com/chrissnell/designflood/internal/pipeline"
	"github.com/chrissnell/designflood/pkg/config"
)

const (
	runIDHeader = "X-Run-Id"
	cacheHeader = "X-Cache"
)

type contextKey string

const runIDContextKey contextKey = "run-id"
const requestInfoContextKey contextKey = "request-info"

// requestInfo carries what the access log needs from a handler.
type requestInfo struct {
	err error
}

// Services are the components the REST server dispatches to. Cache may be
// nil to disable result caching.
type Services struct {
	Pipeline *pipeline.Pipeline
	Analyzer *pipeline.FrequencyAnalyzer
	Cache    cache.Cache
	Metrics  *observability.Metrics
}

// Controller represents the REST server controller
type Controller struct {
	ctx          context.Context
	wg           *sync.WaitGroup
	serverConfig config.ServerData
	defaults     config.DefaultsData
	timeout      time.Duration
	cacheTTL     time.Duration
	pipeline     *pipeline.Pipeline
	analyzer     *pipeline.FrequencyAnalyzer
	cache        cache.Cache
	metrics      *observability.Metrics
	Server       http.Server
	logger       *zap.SugaredLogger
	handlers     *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, svc Services, logger *zap.SugaredLogger) (*Controller, error) {
	if svc.Pipeline == nil || svc.Analyzer == nil {
		return nil, fmt.Errorf("REST server needs a design flood pipeline and a frequency analyzer")
	}
	if svc.Metrics == nil {
		return nil, fmt.Errorf("REST server needs metrics")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctrl := &Controller{
		ctx:          ctx,
		wg:           wg,
		serverConfig: cfg.Server,
		defaults:     cfg.Defaults,
		timeout:      cfg.Defaults.TimeoutDuration(),
		cacheTTL:     cfg.Cache.TTLDuration(),
		pipeline:     svc.Pipeline,
		analyzer:     svc.Analyzer,
		cache:        svc.Cache,
		metrics:      svc.Metrics,
		logger:       logger,
	}

	// If a listen address was not provided, listen on all interfaces
	if ctrl.serverConfig.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ctrl.serverConfig.ListenAddr = config.DefaultListenAddr
	}
	if ctrl.serverConfig.Port == 0 {
		logger.Infof("server.port not provided; defaulting to %d", config.DefaultPort)
		ctrl.serverConfig.Port = config.DefaultPort
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.serverConfig.ListenAddr, ctrl.serverConfig.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.serverConfig.Cert != "" && c.serverConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.serverConfig.Cert, c.serverConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Handler returns the router, for tests and embedding.
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// setupRouter configures the HTTP router with all endpoints, wrapped in
// response compression and, when enabled, CORS
func (c *Controller) setupRouter() http.Handler {
	router := mux.NewRouter()
	router.Use(c.accessLogMiddleware)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/design-flood", c.handlers.PostDesignFlood).Methods(http.MethodPost)
	api.HandleFunc("/frequency", c.handlers.PostFrequency).Methods(http.MethodPost)
	api.HandleFunc("/regions", c.handlers.GetRegion).Methods(http.MethodGet)

	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var h http.Handler = handlers.CompressHandler(router)
	if c.serverConfig.EnableCORS {
		h = handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Accept"}),
			handlers.ExposedHeaders([]string{runIDHeader, cacheHeader}),
		)(h)
	}
	return h
}

// statusRecorder captures the status and size of a response
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// accessLogMiddleware assigns every request a run id and logs it once the
// handler returns
func (c *Controller) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := observability.Clock().Now()
		runID := uuid.NewString()
		info := &requestInfo{}

		ctx := context.WithValue(r.Context(), runIDContextKey, runID)
		ctx = context.WithValue(ctx, requestInfoContextKey, info)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		log.LogHTTPRequest(c.logger, log.HTTPLogEntry{
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     rec.status,
			Duration:   observability.Clock().Since(start),
			Size:       rec.size,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			RunID:      runID,
			Err:        info.err,
		})
	})
}

// recordError hands a handler error to the access log
func recordError(req *http.Request, err error) {
	if info, ok := req.Context().Value(requestInfoContextKey).(*requestInfo); ok {
		info.err = err
	}
}
