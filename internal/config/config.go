package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultContainer is the implicit parent of every container and the
	// fallback for containers that are not configured.
	DefaultContainer = "default"
	ParentKey        = "gadgets.parent"
)

var (
	ErrParentCycle   = errors.New("container parent cycle")
	ErrTemplate      = errors.New("container property template")
	ErrUnknownParent = errors.New("unknown parent container")
)

// ContainerConfig answers per container property lookups.
type ContainerConfig interface {
	Containers() []string
	Property(container, key string) (string, bool)
}

type document struct {
	Containers map[string]map[string]any `json:"containers"`
}

// Store is a ContainerConfig with every container's inheritance and property
// templates resolved up front.
type Store struct {
	containers map[string]map[string]string
}

var _ ContainerConfig = (*Store)(nil)

func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading container config: %w", err)
	}
	return Parse(data)
}

// Parse reads a YAML (or JSON) document of the form
//
//	containers:
//	  default:
//	    gadgets.iframeBaseUri: /gadgets/ifr
//	  shindig:
//	    gadgets.parent: default
func Parse(data []byte) (*Store, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing container config: %w", err)
	}
	return New(doc.Containers)
}

func New(containers map[string]map[string]any) (*Store, error) {
	raw := map[string]map[string]string{}
	for name, props := range containers {
		raw[name] = map[string]string{}
		for key, value := range props {
			s, err := stringify(value)
			if err != nil {
				return nil, fmt.Errorf("container %s property %s: %w", name, key, err)
			}
			raw[name][key] = s
		}
	}

	s := &Store{containers: map[string]map[string]string{}}
	for name := range raw {
		merged, err := merge(raw, name, nil)
		if err != nil {
			return nil, err
		}
		expanded, err := expand(name, merged)
		if err != nil {
			return nil, err
		}
		s.containers[name] = expanded
	}
	return s, nil
}

func (s *Store) Containers() []string {
	names := slices.Collect(maps.Keys(s.containers))
	slices.Sort(names)
	return names
}

func (s *Store) Property(container, key string) (string, bool) {
	props, ok := s.containers[container]
	if !ok {
		props, ok = s.containers[DefaultContainer]
		if !ok {
			return "", false
		}
	}
	value, ok := props[key]
	return value, ok
}

func merge(raw map[string]map[string]string, name string, visiting []string) (map[string]string, error) {
	if slices.Contains(visiting, name) {
		return nil, fmt.Errorf("%w: %s", ErrParentCycle, strings.Join(append(visiting, name), " -> "))
	}
	visiting = append(visiting, name)

	own := raw[name]
	parent, explicit := own[ParentKey]
	if !explicit && name != DefaultContainer {
		if _, ok := raw[DefaultContainer]; ok {
			parent = DefaultContainer
		}
	}

	merged := map[string]string{}
	if parent != "" {
		if _, ok := raw[parent]; !ok {
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParent, parent, name)
		}
		inherited, err := merge(raw, parent, visiting)
		if err != nil {
			return nil, err
		}
		maps.Copy(merged, inherited)
	}
	maps.Copy(merged, own)
	return merged, nil
}

func expand(container string, props map[string]string) (map[string]string, error) {
	data := map[string]any{
		"Container": container,
		"Cur":       props,
	}

	out := make(map[string]string, len(props))
	for key, value := range props {
		if !strings.Contains(value, "{{") {
			out[key] = value
			continue
		}
		t, err := template.New(key).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(value)
		if err != nil {
			return nil, fmt.Errorf("%w: container %s property %s: %w", ErrTemplate, container, key, err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("%w: container %s property %s: %w", ErrTemplate, container, key, err)
		}
		out[key] = buf.String()
	}
	return out, nil
}

func stringify(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
