package urlgen

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/kdex-tech/kdex-gadgets/internal/config"
	"github.com/kdex-tech/kdex-gadgets/internal/gadget"
	"github.com/kdex-tech/kdex-gadgets/internal/lockeddomain"
)

const (
	IframeBaseURIKey = "gadgets.iframeBaseUri"
	JSURITemplateKey = "gadgets.jsUriTemplate"

	HostPlaceholder = "%host%"
	JSPlaceholder   = "%js%"
)

var (
	ErrInvalidConfiguration = errors.New("invalid container configuration")
	ErrMissingConfiguration = errors.New("missing container configuration")
	ErrUnresolvedView       = errors.New("gadget view is not resolved")
)

// Generator produces the URLs a container hands to the browser for a gadget.
type Generator interface {
	// BundledJSParam returns the feature bundle path and query, e.g.
	// "core:rpc.js?v=abc&container=default&debug=0".
	BundledJSParam(ctx context.Context, features []string, gc gadget.Context) (string, error)
	// BundledJSURL expands the container's JS URL template with the bundle
	// parameter.
	BundledJSURL(ctx context.Context, features []string, gc gadget.Context) (string, error)
	// IframeURL returns the URL of the frame that renders the gadget's
	// current view.
	IframeURL(ctx context.Context, g *gadget.Gadget) (string, error)
}

// ChecksumSource supplies the version token of the installed features.
type ChecksumSource interface {
	Checksum(ctx context.Context) (string, error)
}

// DefaultGenerator builds URLs from container configuration, the feature
// checksum and the locked-domain decision of each gadget.
type DefaultGenerator struct {
	checksums     ChecksumSource
	config        config.ContainerConfig
	lockedDomains lockeddomain.Service
	log           logr.Logger
}

var _ Generator = (*DefaultGenerator)(nil)

// NewDefaultGenerator returns a generator that never locks gadgets when
// lockedDomains is nil.
func NewDefaultGenerator(
	cfg config.ContainerConfig,
	lockedDomains lockeddomain.Service,
	checksums ChecksumSource,
	log logr.Logger,
) *DefaultGenerator {
	if lockedDomains == nil {
		lockedDomains = lockeddomain.NoopService{}
	}
	return &DefaultGenerator{
		checksums:     checksums,
		config:        cfg,
		lockedDomains: lockedDomains,
		log:           log,
	}
}
