package feature

import (
	"bytes"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// Resource is an installed feature and the script it contributes.
type Resource struct {
	Content []byte
	Name    string
}

// Registry enumerates installed features.
type Registry interface {
	AllFeatures() []Resource
}

// VersionedRegistry is a Registry whose contents carry a generation that
// changes on every mutation. Snapshot returns the generation together with the
// resources it describes.
type VersionedRegistry interface {
	Registry
	Snapshot() (int64, []Resource)
}

// Store is an in memory VersionedRegistry. onUpdate is called with the new
// generation after every mutation.
type Store struct {
	generation int64
	log        logr.Logger
	mu         sync.RWMutex
	onUpdate   func(generation int64)
	resources  map[string]Resource
}

var _ VersionedRegistry = (*Store)(nil)

func NewStore(onUpdate func(generation int64), log logr.Logger) *Store {
	return &Store{
		log:       log,
		onUpdate:  onUpdate,
		resources: map[string]Resource{},
	}
}

func (s *Store) AllFeatures() []Resource {
	_, resources := s.Snapshot()
	return resources
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.resources)
}

func (s *Store) Delete(name string) {
	s.log.V(1).Info("delete", "name", name)
	s.mu.Lock()
	if _, ok := s.resources[name]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.resources, name)
	s.generation++
	generation := s.generation
	s.mu.Unlock()
	s.notify(generation)
}

func (s *Store) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) Get(name string) (Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[name]
	return r, ok
}

// Set installs or replaces resources in a single generation step.
func (s *Store) Set(resources ...Resource) {
	if len(resources) == 0 {
		return
	}
	s.mu.Lock()
	for _, r := range resources {
		s.log.V(1).Info("set", "name", r.Name, "bytes", len(r.Content))
		s.resources[r.Name] = Resource{
			Content: slices.Clone(r.Content),
			Name:    r.Name,
		}
	}
	s.generation++
	generation := s.generation
	s.mu.Unlock()
	s.notify(generation)
}

// Replace makes resources the complete set of installed features. It reports
// whether anything changed; an identical set does not start a new generation.
func (s *Store) Replace(resources ...Resource) bool {
	next := make(map[string]Resource, len(resources))
	for _, r := range resources {
		next[r.Name] = Resource{
			Content: slices.Clone(r.Content),
			Name:    r.Name,
		}
	}

	s.mu.Lock()
	if maps.EqualFunc(s.resources, next, func(a, b Resource) bool {
		return bytes.Equal(a.Content, b.Content)
	}) {
		s.mu.Unlock()
		return false
	}
	s.log.V(1).Info("replace", "before", len(s.resources), "after", len(next))
	s.resources = next
	s.generation++
	generation := s.generation
	s.mu.Unlock()
	s.notify(generation)
	return true
}

// Snapshot returns the resources sorted by name.
func (s *Store) Snapshot() (int64, []Resource) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resources := make([]Resource, 0, len(s.resources))
	for _, r := range s.resources {
		resources = append(resources, r)
	}
	return s.generation, sorted(resources)
}

func (s *Store) notify(generation int64) {
	if s.onUpdate != nil {
		s.onUpdate(generation)
	}
}

func sorted(resources []Resource) []Resource {
	out := slices.Clone(resources)
	slices.SortStableFunc(out, func(a, b Resource) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}
