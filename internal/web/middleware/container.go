package middleware

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-logr/logr"
	"github.com/kdex-tech/kdex-gadgets/internal/config"
	"github.com/kdex-tech/kdex-gadgets/internal/utils"
)

type contextKey string

const (
	ContainerKey contextKey = "container"
	RequestIDKey contextKey = "requestID"

	// HostsKey lists, comma separated, the request hosts served for a
	// container.
	HostsKey = "gadgets.hosts"
)

// WithContainer resolves the container whose gadgets.hosts matches the
// request host. Entries may start with "*." to match subdomains. Containers
// are tried in name order and requests on any other host use
// defaultContainer.
func WithContainer(cfg config.ContainerConfig, defaultContainer string) func(http.Handler) http.Handler {
	type hostContainer struct {
		matcher *regexp.Regexp
		name    string
	}

	matchers := []hostContainer{}
	for _, name := range cfg.Containers() {
		if name == defaultContainer {
			continue
		}
		hosts, ok := cfg.Property(name, HostsKey)
		if !ok {
			continue
		}
		if matcher := utils.HostMatcher(strings.Split(hosts, ",")); matcher != nil {
			matchers = append(matchers, hostContainer{matcher: matcher, name: name})
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hostHeader := r.Host
			if host, _, err := net.SplitHostPort(hostHeader); err == nil {
				hostHeader = host
			}

			container := defaultContainer
			for _, m := range matchers {
				if m.matcher.MatchString(hostHeader) {
					container = m.name
					break
				}
			}

			ctx := context.WithValue(r.Context(), ContainerKey, container)
			if container != defaultContainer {
				ctx = logr.NewContext(ctx, logr.FromContextOrDiscard(ctx).WithValues("container", container))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Container returns the container resolved by WithContainer, or "" outside of
// it.
func Container(ctx context.Context) string {
	container, _ := ctx.Value(ContainerKey).(string)
	return container
}
