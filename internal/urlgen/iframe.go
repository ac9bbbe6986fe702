package urlgen

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kdex-tech/kdex-gadgets/internal/gadget"
)

func (g *DefaultGenerator) IframeURL(ctx context.Context, gdt *gadget.Gadget) (string, error) {
	if gdt == nil || gdt.Spec == nil || gdt.CurrentView == nil {
		return "", ErrUnresolvedView
	}

	gc := gdt.Context
	view := gdt.CurrentView

	base, err := g.iframeBase(gc.Container, view)
	if err != nil {
		return "", err
	}

	params := iframeParams(gdt)

	host, err := g.lockedDomains.LockedDomainForGadget(ctx, gdt, gc.Container)
	if err != nil {
		return "", fmt.Errorf("locked domain for container %q: %w", gc.Container, err)
	}
	if host != "" {
		base.Host = host
	}

	base.RawQuery = mergeQuery(base.RawQuery, params)

	iframeURL := base.String()
	g.log.V(1).Info("iframe url", "container", gc.Container, "view", view.Name, "type", view.Type, "locked", host != "", "url", iframeURL)
	return iframeURL, nil
}

func (g *DefaultGenerator) iframeBase(container string, view *gadget.View) (*url.URL, error) {
	switch view.Type {
	case gadget.ContentTypeURL:
		if view.Href == nil {
			return nil, fmt.Errorf("%w: url view %q has no href", ErrUnresolvedView, view.Name)
		}
		href := *view.Href
		return &href, nil
	default:
		base, ok := g.config.Property(container, IframeBaseURIKey)
		if !ok || base == "" {
			return nil, fmt.Errorf("%w: %s for container %q", ErrMissingConfiguration, IframeBaseURIKey, container)
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("%w: %s for container %q: %w", ErrInvalidConfiguration, IframeBaseURIKey, container, err)
		}
		return u, nil
	}
}

func iframeParams(gdt *gadget.Gadget) *query {
	gc := gdt.Context
	hosted := gdt.CurrentView.Type != gadget.ContentTypeURL

	q := &query{}
	q.Set("container", gc.Container)
	q.Set("mid", strconv.FormatInt(gc.ModuleID, 10))
	if gc.IgnoreCache {
		q.Set("nocache", "1")
	} else if gdt.Spec.Checksum != "" {
		q.Set("v", gdt.Spec.Checksum)
	}
	q.Set("lang", gc.Language())
	q.Set("country", gc.Country())

	if hosted {
		viewName := gc.View
		if viewName == "" {
			viewName = gdt.CurrentView.Name
		}
		q.Set("view", viewName)
	}

	for _, name := range gc.UserPrefs.Names() {
		value, _ := gc.UserPrefs.Get(name)
		q.Set("up_"+name, value)
	}
	for _, pref := range gdt.Spec.UserPrefs {
		if !q.Has("up_" + pref.Name) {
			q.Set("up_"+pref.Name, pref.DefaultValue)
		}
	}

	// url goes last, some browsers truncate long query strings
	if hosted {
		specURL := gc.URL
		if specURL == nil {
			specURL = gdt.Spec.URL
		}
		if specURL != nil {
			q.Set("url", specURL.String())
		}
	}
	return q
}

// mergeQuery appends params after every raw parameter of existing. The
// existing pairs are kept verbatim, even when params repeats their keys.
func mergeQuery(existing string, params *query) string {
	kept := []string{}
	for pair := range strings.SplitSeq(existing, "&") {
		if pair != "" {
			kept = append(kept, pair)
		}
	}
	if encoded := params.Encode(); encoded != "" {
		kept = append(kept, encoded)
	}
	return strings.Join(kept, "&")
}

// query is an insertion ordered set of single valued parameters.
type query struct {
	keys   []string
	values map[string]string
}

func (q *query) Has(key string) bool {
	_, ok := q.values[key]
	return ok
}

func (q *query) Set(key, value string) {
	if q.values == nil {
		q.values = map[string]string{}
	}
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = value
}

func (q *query) Encode() string {
	var b strings.Builder
	for i, key := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.values[key]))
	}
	return b.String()
}
