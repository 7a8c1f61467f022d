package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/toongate/pkg/config"
	"github.com/pario-ai/toongate/pkg/middleware"
	"github.com/pario-ai/toongate/pkg/router"
)

// Server is the toongate reverse proxy.
type Server struct {
	cfg     *config.Config
	router  *router.Router
	proxies []*httputil.ReverseProxy
	logger  *zap.Logger
	mux     *http.ServeMux
}

// New creates a proxy Server that forwards to the configured upstreams
// through mw. When metrics are enabled and gatherer is non-nil, the metrics
// path serves it.
func New(cfg *config.Config, mw *middleware.Middleware, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	rt, err := router.New(cfg.Upstreams)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if mw == nil {
		mw = middleware.New(middleware.WithLogger(logger))
	}

	s := &Server{
		cfg:    cfg,
		router: rt,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	for _, route := range rt.Routes() {
		s.proxies = append(s.proxies, s.newReverseProxy(route))
	}

	s.mux.HandleFunc("/healthz", handleHealth)
	if cfg.Metrics.Enabled && gatherer != nil {
		s.mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.Handle("/", mw.Handler(http.HandlerFunc(s.handleUpstream)))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the proxy server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("toongate proxy listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) newReverseProxy(route router.Route) *httputil.ReverseProxy {
	target := route.Target
	name := route.Upstream.Name
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			// Let the transport negotiate compression so bodies arrive decoded.
			pr.Out.Header.Del("Accept-Encoding")
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("upstream request failed",
				zap.String("upstream", name),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeJSONError(w, http.StatusBadGateway, "upstream "+name+" unavailable")
		},
	}
}

func (s *Server) handleUpstream(w http.ResponseWriter, r *http.Request) {
	route, err := s.router.Resolve(r.URL.Path)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "no upstream for path")
		return
	}
	s.proxies[route.Index].ServeHTTP(w, r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"toongate_error","code":%d}}`, message, code)
}
