package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/kdex-tech/kdex-gadgets/internal/gadget"
	"golang.org/x/text/language"
)

const userPrefPrefix = "up_"

var ErrInvalidParameter = errors.New("invalid request parameter")

func GetParam(name string, defaultValue string, r *http.Request) string {
	value := r.PathValue(name)

	if value == "" {
		value = r.URL.Query().Get(name)
	}

	if value == "" {
		return defaultValue
	}
	return value
}

func GetParamArray(name string, defaultValue []string, r *http.Request) []string {
	value := r.PathValue(name)
	var values []string

	if value == "" {
		values = r.URL.Query()[name]
	} else {
		values = []string{value}
	}

	if len(values) == 0 {
		return defaultValue
	}
	return values
}

// GetLang picks the request locale from the l10n parameter, then the
// Accept-Language header. With no supported languages any well formed
// preference is accepted as is.
func GetLang(r *http.Request, defaultLang string, supportedLangs []language.Tag) language.Tag {
	log := logr.FromContextOrDiscard(r.Context())

	fromParams := GetParam("l10n", "", r)

	if fromParams != "" {
		tag, err := language.Parse(fromParams)
		if err != nil || tag.IsRoot() {
			log.Info("parsing user supplied 'l10n' parameter failed, falling back to default", "l10n", fromParams, "defaultLang", defaultLang)
			return language.Make(defaultLang)
		}
		return tag
	}

	preferences, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil {
		log.V(1).Info("ignoring malformed Accept-Language", "header", r.Header.Get("Accept-Language"), "err", err)
	}
	if len(preferences) == 0 {
		return language.Make(defaultLang)
	}

	if len(supportedLangs) == 0 {
		return preferences[0]
	}

	tag, _, confidence := language.NewMatcher(supportedLangs).Match(preferences...)

	if tag.IsRoot() || confidence == language.No {
		return language.Make(defaultLang)
	}

	return tag
}

// GetBool reads a flag parameter. Both "1"/"0" and "true"/"false" are
// understood.
func GetBool(name string, r *http.Request) (bool, error) {
	value := GetParam(name, "", r)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, name, value)
	}
	return b, nil
}

// NewGadgetContext builds the render context of a gadget request. The
// container parameter overrides defaultContainer.
func NewGadgetContext(r *http.Request, defaultContainer string) (gadget.Context, error) {
	gc := gadget.Context{
		Container: GetParam("container", defaultContainer, r),
		Host:      r.Host,
		Locale:    GetLang(r, "", nil),
		UserPrefs: userPrefs(r.URL.RawQuery),
		View:      GetParam("view", gadget.DefaultView, r),
	}

	var err error
	if gc.Debug, err = GetBool("debug", r); err != nil {
		return gadget.Context{}, err
	}
	if gc.IgnoreCache, err = GetBool("nocache", r); err != nil {
		return gadget.Context{}, err
	}

	if mid := GetParam("mid", "", r); mid != "" {
		if gc.ModuleID, err = strconv.ParseInt(mid, 10, 64); err != nil {
			return gadget.Context{}, fmt.Errorf("%w: mid=%q", ErrInvalidParameter, mid)
		}
	}

	if raw := GetParam("url", "", r); raw != "" {
		specURL, err := url.Parse(raw)
		if err != nil || !specURL.IsAbs() || (specURL.Scheme != "http" && specURL.Scheme != "https") {
			return gadget.Context{}, fmt.Errorf("%w: url=%q is not an absolute http(s) url", ErrInvalidParameter, raw)
		}
		gc.URL = specURL
	}

	return gc, nil
}

// userPrefs collects up_<name> parameters in the order they appear in the
// query string.
func userPrefs(rawQuery string) gadget.UserPrefs {
	prefs := gadget.UserPrefs{}
	for pair := range strings.SplitSeq(rawQuery, "&") {
		key, value, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(key)
		if err != nil || !strings.HasPrefix(key, userPrefPrefix) || key == userPrefPrefix {
			continue
		}
		if value, err = url.QueryUnescape(value); err != nil {
			continue
		}
		prefs = prefs.With(strings.TrimPrefix(key, userPrefPrefix), value)
	}
	return prefs
}
