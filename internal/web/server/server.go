package server

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/kdex-tech/kdex-gadgets/internal/config"
	"github.com/kdex-tech/kdex-gadgets/internal/gadget"
	"github.com/kdex-tech/kdex-gadgets/internal/urlgen"
	"github.com/kdex-tech/kdex-gadgets/internal/web/middleware"
)

// MaxSpecBytes bounds the gadget spec accepted by the iframe-url endpoint.
const MaxSpecBytes = 1 << 20

// HostPolicy decides which gadgets may be served to a request arriving on a
// locked domain.
type HostPolicy interface {
	GadgetCanRender(host string, spec *gadget.Spec, container string) bool
	IsSafeForOpenProxy(host string) bool
}

type Server struct {
	config    config.ContainerConfig
	generator urlgen.Generator
	hosts     HostPolicy
	log       logr.Logger
}

// New serves the gadget endpoints on addr. A nil hosts policy accepts every
// request host.
func New(addr string, cfg config.ContainerConfig, generator urlgen.Generator, hosts HostPolicy, log logr.Logger) *http.Server {
	s := &Server{
		config:    cfg,
		generator: generator,
		hosts:     hosts,
		log:       log,
	}

	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /gadgets/js-url", s.jsURL)
	mux.HandleFunc("POST /gadgets/iframe-url", s.iframeURL)

	var handler http.Handler = mux
	handler = middleware.WithContainer(s.config, config.DefaultContainer)(handler)
	handler = middleware.WithRequestID()(handler)
	handler = middleware.WithLogger(s.log)(handler)
	return handler
}
