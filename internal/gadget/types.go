package gadget

import (
	"net/url"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

const (
	DefaultView = "default"

	// LockedDomainFeature is the feature a gadget requires to be rendered on
	// its own locked domain.
	LockedDomainFeature = "locked-domain"
)

type ContentType string

const (
	ContentTypeHTML ContentType = "html"
	ContentTypeURL  ContentType = "url"
)

// ParseContentType maps the type attribute of a Content element. An empty
// value means html.
func ParseContentType(s string) (ContentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ContentTypeHTML):
		return ContentTypeHTML, true
	case string(ContentTypeURL):
		return ContentTypeURL, true
	}
	return "", false
}

// Context is the request scoped view of who is asking for a gadget and how.
// It is built once per inbound request and never mutated afterwards.
type Context struct {
	Container   string
	Debug       bool
	Host        string
	IgnoreCache bool
	Locale      language.Tag
	ModuleID    int64
	URL         *url.URL
	UserPrefs   UserPrefs
	View        string
}

// Country returns the region of the locale, or "ALL" when the tag does not
// name one.
func (c Context) Country() string {
	region, confidence := c.Locale.Region()
	if confidence != language.Exact {
		return "ALL"
	}
	return region.String()
}

// Language returns the base language of the locale, or "all" when the tag
// does not name one.
func (c Context) Language() string {
	base, confidence := c.Locale.Base()
	if confidence != language.Exact {
		return "all"
	}
	return base.String()
}

// UserPrefs is an insertion ordered set of preference values.
type UserPrefs struct {
	names  []string
	values map[string]string
}

// NewUserPrefs builds preferences from name/value pairs. A repeated name keeps
// its first position and its last value.
func NewUserPrefs(pairs ...string) UserPrefs {
	up := UserPrefs{}
	for i := 0; i+1 < len(pairs); i += 2 {
		up = up.With(pairs[i], pairs[i+1])
	}
	return up
}

func (u UserPrefs) Get(name string) (string, bool) {
	v, ok := u.values[name]
	return v, ok
}

func (u UserPrefs) Len() int {
	return len(u.names)
}

func (u UserPrefs) Names() []string {
	return slices.Clone(u.names)
}

// With returns a copy of the preferences with name set to value.
func (u UserPrefs) With(name, value string) UserPrefs {
	out := UserPrefs{
		names:  slices.Clone(u.names),
		values: make(map[string]string, len(u.values)+1),
	}
	for k, v := range u.values {
		out.values[k] = v
	}
	if _, ok := out.values[name]; !ok {
		out.names = append(out.names, name)
	}
	out.values[name] = value
	return out
}

type UserPref struct {
	DataType     string
	DefaultValue string
	DisplayName  string
	Name         string
}

type View struct {
	Content string
	Href    *url.URL
	Name    string
	Type    ContentType
}

type Spec struct {
	Checksum         string
	OptionalFeatures []string
	RequiredFeatures []string
	Title            string
	URL              *url.URL
	UserPrefs        []UserPref
	Views            map[string]*View
}

// RequiresFeature reports whether the spec lists name as a required feature.
func (s *Spec) RequiresFeature(name string) bool {
	return slices.Contains(s.RequiredFeatures, name)
}

// View returns the named view.
func (s *Spec) View(name string) (*View, bool) {
	v, ok := s.Views[name]
	return v, ok
}

// ResolveView returns the named view, falling back to the default view when
// the spec does not declare one with that name.
func (s *Spec) ResolveView(name string) (*View, bool) {
	if v, ok := s.Views[name]; ok {
		return v, true
	}
	return s.View(DefaultView)
}

// Gadget is a spec bound to the request that is about to render it.
type Gadget struct {
	Context     Context
	CurrentView *View
	Spec        *Spec
}
