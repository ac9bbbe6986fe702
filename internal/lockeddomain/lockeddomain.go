package lockeddomain

import (
	"context"
	"crypto/sha1"
	"encoding/base32"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kdex-tech/kdex-gadgets/internal/config"
	"github.com/kdex-tech/kdex-gadgets/internal/gadget"
)

const (
	RequiredKey = "gadgets.lockedDomainRequired"
	SuffixKey   = "gadgets.lockedDomainSuffix"
)

var ErrMissingSuffix = errors.New("locked domain required but no suffix configured")

// Service decides which host, if any, a gadget must be rendered on. An empty
// host means the gadget is not locked.
type Service interface {
	LockedDomainForGadget(ctx context.Context, g *gadget.Gadget, container string) (string, error)
}

// NoopService never locks a gadget.
type NoopService struct{}

func (NoopService) LockedDomainForGadget(context.Context, *gadget.Gadget, string) (string, error) {
	return "", nil
}

// HashService locks gadgets to <base32(sha1(spec url))><suffix>, where the
// suffix comes from the container configuration.
type HashService struct {
	config  config.ContainerConfig
	enabled bool
	hashes  *lru.Cache[string, string]
	log     logr.Logger
}

var _ Service = (*HashService)(nil)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func NewHashService(cfg config.ContainerConfig, enabled bool, log logr.Logger) (*HashService, error) {
	hashes, err := lru.New[string, string](4096)
	if err != nil {
		return nil, err
	}
	return &HashService{
		config:  cfg,
		enabled: enabled,
		hashes:  hashes,
		log:     log,
	}, nil
}

func (s *HashService) Enabled() bool {
	return s.enabled
}

func (s *HashService) LockedDomainForGadget(ctx context.Context, g *gadget.Gadget, container string) (string, error) {
	if !s.enabled || g == nil || g.Spec == nil {
		return "", nil
	}
	if !g.Spec.RequiresFeature(gadget.LockedDomainFeature) && !s.containerRequiresLockedDomain(container) {
		return "", nil
	}
	return s.lockedDomain(g.Spec, container)
}

// GadgetCanRender reports whether a spec may be rendered on host. A host
// that carries any locked suffix, a gadget requiring a locked domain, or a
// container that requires one all demand the exact locked host.
func (s *HashService) GadgetCanRender(host string, spec *gadget.Spec, container string) bool {
	if !s.enabled {
		return true
	}
	if spec.RequiresFeature(gadget.LockedDomainFeature) ||
		s.hostRequiresLockedDomain(host) ||
		s.containerRequiresLockedDomain(container) {
		needed, err := s.lockedDomain(spec, container)
		if err != nil {
			s.log.V(1).Info("no locked domain for gadget", "container", container, "error", err.Error())
			return false
		}
		return strings.EqualFold(host, needed)
	}
	return true
}

// IsSafeForOpenProxy reports whether host is outside every locked domain.
func (s *HashService) IsSafeForOpenProxy(host string) bool {
	return !s.enabled || !s.hostRequiresLockedDomain(host)
}

func (s *HashService) containerRequiresLockedDomain(container string) bool {
	value, ok := s.config.Property(container, RequiredKey)
	if !ok {
		return false
	}
	required, err := strconv.ParseBool(value)
	return err == nil && required
}

func (s *HashService) hostRequiresLockedDomain(host string) bool {
	host = strings.ToLower(host)
	for _, container := range s.config.Containers() {
		suffix, ok := s.config.Property(container, SuffixKey)
		if ok && suffix != "" && strings.HasSuffix(host, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

func (s *HashService) lockedDomain(spec *gadget.Spec, container string) (string, error) {
	suffix, ok := s.config.Property(container, SuffixKey)
	if !ok || suffix == "" {
		return "", fmt.Errorf("%w: container %s", ErrMissingSuffix, container)
	}
	if spec.URL == nil {
		return "", fmt.Errorf("gadget spec has no url to derive a locked domain from")
	}
	return s.hash(spec.URL.String()) + suffix, nil
}

func (s *HashService) hash(specURL string) string {
	if h, ok := s.hashes.Get(specURL); ok {
		return h
	}
	sum := sha1.Sum([]byte(specURL))
	h := strings.ToLower(encoding.EncodeToString(sum[:]))
	s.hashes.Add(specURL, h)
	return h
}
