package urlgen

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kdex-tech/kdex-gadgets/internal/feature"
	"github.com/kdex-tech/kdex-gadgets/internal/gadget"
)

func (g *DefaultGenerator) BundledJSParam(ctx context.Context, features []string, gc gadget.Context) (string, error) {
	checksum, err := g.checksums.Checksum(ctx)
	if err != nil {
		return "", fmt.Errorf("computing feature checksum: %w", err)
	}

	debug := "0"
	if gc.Debug {
		debug = "1"
	}

	var b strings.Builder
	b.WriteString(strings.Join(feature.NamesOrDefault(features), ":"))
	b.WriteString(".js?v=")
	b.WriteString(checksum)
	b.WriteString("&container=")
	b.WriteString(url.QueryEscape(gc.Container))
	b.WriteString("&debug=")
	b.WriteString(debug)
	return b.String(), nil
}

func (g *DefaultGenerator) BundledJSURL(ctx context.Context, features []string, gc gadget.Context) (string, error) {
	template, ok := g.config.Property(gc.Container, JSURITemplateKey)
	if !ok || template == "" {
		return "", fmt.Errorf("%w: %s for container %q", ErrMissingConfiguration, JSURITemplateKey, gc.Container)
	}

	param, err := g.BundledJSParam(ctx, features, gc)
	if err != nil {
		return "", err
	}

	jsURL := strings.NewReplacer(HostPlaceholder, gc.Host, JSPlaceholder, param).Replace(template)
	g.log.V(1).Info("bundled js url", "container", gc.Container, "url", jsURL)
	return jsURL, nil
}
