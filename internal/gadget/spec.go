package gadget

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var ErrInvalidSpec = errors.New("invalid gadget spec")

type xmlModule struct {
	XMLName     xml.Name      `xml:"Module"`
	ModulePrefs xmlPrefs      `xml:"ModulePrefs"`
	UserPrefs   []xmlUserPref `xml:"UserPref"`
	Contents    []xmlContent  `xml:"Content"`
}

type xmlPrefs struct {
	Title    string       `xml:"title,attr"`
	Require  []xmlFeature `xml:"Require"`
	Optional []xmlFeature `xml:"Optional"`
}

type xmlFeature struct {
	Feature string `xml:"feature,attr"`
}

type xmlUserPref struct {
	Name         string `xml:"name,attr"`
	DisplayName  string `xml:"display_name,attr"`
	DefaultValue string `xml:"default_value,attr"`
	DataType     string `xml:"datatype,attr"`
}

type xmlContent struct {
	Type string `xml:"type,attr"`
	Href string `xml:"href,attr"`
	View string `xml:"view,attr"`
	Body string `xml:",chardata"`
}

// ParseSpec builds a Spec from a gadget XML document. Only the structure the
// container needs is read; unknown elements are ignored.
func ParseSpec(specURL *url.URL, doc []byte) (*Spec, error) {
	var m xmlModule
	if err := xml.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
	}

	spec := &Spec{
		Checksum: fmt.Sprintf("%x", xxhash.Sum64(doc)),
		Title:    m.ModulePrefs.Title,
		URL:      specURL,
		Views:    map[string]*View{},
	}

	for _, f := range m.ModulePrefs.Require {
		if f.Feature == "" {
			return nil, fmt.Errorf("%w: Require without feature", ErrInvalidSpec)
		}
		spec.RequiredFeatures = append(spec.RequiredFeatures, f.Feature)
	}
	for _, f := range m.ModulePrefs.Optional {
		if f.Feature == "" {
			return nil, fmt.Errorf("%w: Optional without feature", ErrInvalidSpec)
		}
		spec.OptionalFeatures = append(spec.OptionalFeatures, f.Feature)
	}

	for _, up := range m.UserPrefs {
		if up.Name == "" {
			return nil, fmt.Errorf("%w: UserPref without name", ErrInvalidSpec)
		}
		spec.UserPrefs = append(spec.UserPrefs, UserPref{
			DataType:     up.DataType,
			DefaultValue: up.DefaultValue,
			DisplayName:  up.DisplayName,
			Name:         up.Name,
		})
	}

	if len(m.Contents) == 0 {
		return nil, fmt.Errorf("%w: no Content section", ErrInvalidSpec)
	}

	for _, c := range m.Contents {
		contentType, ok := ParseContentType(c.Type)
		if !ok {
			return nil, fmt.Errorf("%w: unknown content type %q", ErrInvalidSpec, c.Type)
		}

		var href *url.URL
		if contentType == ContentTypeURL {
			if strings.TrimSpace(c.Href) == "" {
				return nil, fmt.Errorf("%w: url content without href", ErrInvalidSpec)
			}
			parsed, err := url.Parse(strings.TrimSpace(c.Href))
			if err != nil {
				return nil, fmt.Errorf("%w: bad href: %w", ErrInvalidSpec, err)
			}
			href = parsed
		}

		for _, name := range viewNames(c.View) {
			existing, ok := spec.Views[name]
			if !ok {
				spec.Views[name] = &View{
					Content: c.Body,
					Href:    href,
					Name:    name,
					Type:    contentType,
				}
				continue
			}
			if existing.Type != ContentTypeHTML || contentType != ContentTypeHTML {
				return nil, fmt.Errorf("%w: view %q declared more than once", ErrInvalidSpec, name)
			}
			existing.Content += c.Body
		}
	}

	return spec, nil
}

func viewNames(attr string) []string {
	names := []string{}
	for name := range strings.SplitSeq(attr, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = append(names, DefaultView)
	}
	return names
}
