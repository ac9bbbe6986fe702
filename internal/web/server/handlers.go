package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	"github.com/kdex-tech/kdex-gadgets/internal/gadget"
	khttp "github.com/kdex-tech/kdex-gadgets/internal/http"
	"github.com/kdex-tech/kdex-gadgets/internal/mime"
	"github.com/kdex-tech/kdex-gadgets/internal/urlgen"
	"github.com/kdex-tech/kdex-gadgets/internal/web/middleware"
)

var (
	errForeignLockedDomain = errors.New("host is the locked domain of another gadget")
	errMissingSpecURL      = fmt.Errorf("%w: url is required", khttp.ErrInvalidParameter)
)

type jsURLResponse struct {
	Param string `json:"param"`
	URL   string `json:"url"`
}

type iframeURLResponse struct {
	URL  string `json:"url"`
	View string `json:"view"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) jsURL(w http.ResponseWriter, r *http.Request) {
	gc, err := khttp.NewGadgetContext(r, middleware.Container(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	features := splitFeatures(khttp.GetParamArray("f", nil, r))

	param, err := s.generator.BundledJSParam(r.Context(), features, gc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsURL, err := s.generator.BundledJSURL(r.Context(), features, gc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, jsURLResponse{Param: param, URL: jsURL})
}

func (s *Server) iframeURL(w http.ResponseWriter, r *http.Request) {
	gc, err := khttp.NewGadgetContext(r, middleware.Container(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if gc.URL == nil {
		writeError(w, r, errMissingSpecURL)
		return
	}

	doc, err := mime.ReadText(http.MaxBytesReader(w, r.Body, MaxSpecBytes+1), MaxSpecBytes)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: reading spec: %w", gadget.ErrInvalidSpec, err))
		return
	}

	spec, err := gadget.ParseSpec(gc.URL, doc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if host := requestHost(r); s.hosts != nil && !s.hosts.IsSafeForOpenProxy(host) &&
		!s.hosts.GadgetCanRender(host, spec, gc.Container) {
		writeError(w, r, fmt.Errorf("%w: %s", errForeignLockedDomain, host))
		return
	}

	view, ok := spec.ResolveView(gc.View)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no view %q or %q", urlgen.ErrUnresolvedView, gc.View, gadget.DefaultView))
		return
	}

	iframeURL, err := s.generator.IframeURL(r.Context(), &gadget.Gadget{
		Context:     gc,
		CurrentView: view,
		Spec:        spec,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, iframeURLResponse{URL: iframeURL, View: view.Name})
}

func requestHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}

// splitFeatures accepts both repeated f parameters and colon or comma
// separated lists.
func splitFeatures(values []string) []string {
	features := []string{}
	for _, value := range values {
		features = append(features, strings.FieldsFunc(value, func(r rune) bool {
			return r == ':' || r == ','
		})...)
	}
	return features
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, khttp.ErrInvalidParameter),
		errors.Is(err, gadget.ErrInvalidSpec):
		return http.StatusBadRequest
	case errors.Is(err, errForeignLockedDomain):
		return http.StatusForbidden
	case errors.Is(err, urlgen.ErrUnresolvedView):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logr.FromContextOrDiscard(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(err, "request failed", "path", r.URL.Path)
	} else {
		log.V(1).Info("rejected request", "path", r.URL.Path, "status", status, "err", err.Error())
	}
	writeJSON(w, r, status, errorResponse{Error: err.Error(), RequestID: middleware.RequestID(r.Context())})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "writing response")
	}
}
