package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kdex-tech/kdex-gadgets/internal/feature"
	"github.com/kdex-tech/kdex-gadgets/internal/web/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	specURL  = "http://example.org/gadget.xml"
	htmlSpec = `<?xml version="1.0" encoding="UTF-8"?>
<Module>
 <ModulePrefs title="test"/>
 <UserPref name="color" default_value="blue"/>
 <Content type="html" view="default,canvas">hello</Content>
</Module>`
	lockedSpec = `<Module>
 <ModulePrefs title="locked"><Require feature="locked-domain"/></ModulePrefs>
 <Content type="html">hello</Content>
</Module>`
	urlSpec = `<Module>
 <ModulePrefs title="url"/>
 <Content type="url" href="http://opensocial.org/app/foo?foo=bar&amp;bar=baz"/>
</Module>`
)

func do(method, host, target, body string) (*http.Response, map[string]string) {
	GinkgoHelper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, testServer.URL+target, reader)
	Expect(err).NotTo(HaveOccurred())
	if host != "" {
		req.Host = host
	}

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := map[string]string{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	}
	return resp, out
}

func iframeTarget(params url.Values) string {
	if !params.Has("url") {
		params.Set("url", specURL)
	}
	return "/gadgets/iframe-url?" + params.Encode()
}

var _ = Describe("Server", func() {
	Context("health", func() {
		It("reports ok", func() {
			resp, _ := do(http.MethodGet, "", "/healthz", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get(middleware.RequestIDHeader)).NotTo(BeEmpty())
		})
	})

	Context("js-url", func() {
		It("builds the bundle url for the container of the host", func() {
			resp, body := do(http.MethodGet, "shindig.example.org", "/gadgets/js-url?f=foo&f=bar", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Expect(body["param"]).To(MatchRegexp(`^foo:bar\.js\?v=[0-9a-f]+&container=shindig&debug=0$`))

			u, err := url.Parse(body["url"])
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Host).To(Equal("shindig.example.org"))
			Expect(u.Path).To(Equal("/get-together/livescript/foo:bar.js"))
			Expect(u.Query().Get("container")).To(Equal("shindig"))
		})

		It("lets the container parameter override the host", func() {
			resp, body := do(http.MethodGet, "shindig.example.org", "/gadgets/js-url?container=default&f=rpc:core&debug=1", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["param"]).To(MatchRegexp(`^rpc:core\.js\?v=[0-9a-f]+&container=default&debug=1$`))
			Expect(body["url"]).To(HavePrefix("http://shindig.example.org/gadgets/js/rpc:core.js?"))
		})

		It("falls back to core when no feature name is valid", func() {
			resp, body := do(http.MethodGet, "", "/gadgets/js-url?f=%3Cscript%3E", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["param"]).To(HavePrefix("core.js?v="))
		})

		It("changes the version when the features change", func() {
			_, before := do(http.MethodGet, "", "/gadgets/js-url", "")
			_, again := do(http.MethodGet, "", "/gadgets/js-url", "")
			Expect(again["param"]).To(Equal(before["param"]))

			features.Set(feature.Resource{Name: "views", Content: []byte("core.views = {};")})
			DeferCleanup(func() { features.Delete("views") })

			_, after := do(http.MethodGet, "", "/gadgets/js-url", "")
			Expect(after["param"]).NotTo(Equal(before["param"]))
		})

		It("rejects a malformed debug flag", func() {
			resp, body := do(http.MethodGet, "", "/gadgets/js-url?debug=maybe", "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["requestId"]).To(Equal(resp.Header.Get(middleware.RequestIDHeader)))
		})

		It("fails when the container has no template", func() {
			resp, body := do(http.MethodGet, "", "/gadgets/js-url?container=broken", "")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(body["error"]).To(ContainSubstring("gadgets.jsUriTemplate"))
		})
	})

	Context("iframe-url", func() {
		It("builds the iframe url of an html gadget", func() {
			resp, body := do(http.MethodPost, "shindig.example.org", iframeTarget(url.Values{
				"mid":      {"3435"},
				"view":     {"canvas"},
				"up_color": {"red"},
				"l10n":     {"en-US"},
			}), htmlSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["view"]).To(Equal("canvas"))

			u, err := url.Parse(body["url"])
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Host).To(BeEmpty())
			Expect(u.Path).To(Equal("/gadgets/eye-frame"))

			q := u.Query()
			Expect(q.Get("container")).To(Equal("shindig"))
			Expect(q.Get("mid")).To(Equal("3435"))
			Expect(q.Get("view")).To(Equal("canvas"))
			Expect(q.Get("up_color")).To(Equal("red"))
			Expect(q.Get("lang")).To(Equal("en"))
			Expect(q.Get("country")).To(Equal("US"))
			Expect(q.Get("url")).To(Equal(specURL))
			Expect(q.Get("v")).NotTo(BeEmpty())
		})

		It("falls back to the default view", func() {
			resp, body := do(http.MethodPost, "", iframeTarget(url.Values{"view": {"profile"}}), htmlSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["view"]).To(Equal("default"))

			u, err := url.Parse(body["url"])
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Path).To(Equal("/gadgets/ifr"))
			Expect(u.Query().Get("view")).To(Equal("profile"))
			Expect(u.Query().Get("up_color")).To(Equal("blue"))
		})

		It("moves gadgets requiring a locked domain to it", func() {
			resp, body := do(http.MethodPost, "", iframeTarget(url.Values{}), lockedSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			u, err := url.Parse(body["url"])
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Host).To(MatchRegexp(`^[a-z2-7]{32}\.locked\.example\.org$`))
		})

		It("serves a locked gadget on its own locked domain", func() {
			_, body := do(http.MethodPost, "", iframeTarget(url.Values{}), lockedSpec)
			u, err := url.Parse(body["url"])
			Expect(err).NotTo(HaveOccurred())

			resp, body := do(http.MethodPost, u.Host+":8080", iframeTarget(url.Values{}), lockedSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body["url"]).To(ContainSubstring("//" + u.Host + "/"))
		})

		It("refuses gadgets on another gadget's locked domain", func() {
			resp, body := do(http.MethodPost, "abcdef.locked.example.org", iframeTarget(url.Values{}), htmlSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(body["error"]).To(ContainSubstring("abcdef.locked.example.org"))

			resp, _ = do(http.MethodPost, "abcdef.locked.example.org", iframeTarget(url.Values{}), lockedSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("keeps the href of a url gadget", func() {
			resp, body := do(http.MethodPost, "", iframeTarget(url.Values{"mid": {"7"}}), urlSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			u, err := url.Parse(body["url"])
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Host).To(Equal("opensocial.org"))
			Expect(u.Path).To(Equal("/app/foo"))
			Expect(u.RawQuery).To(HavePrefix("foo=bar&bar=baz&container=default&mid=7"))
			Expect(u.Query()).NotTo(HaveKey("url"))
		})

		It("requires the spec url", func() {
			resp, _ := do(http.MethodPost, "", "/gadgets/iframe-url", htmlSpec)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a spec that does not parse", func() {
			resp, body := do(http.MethodPost, "", iframeTarget(url.Values{}), "<Module>")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body["error"]).To(ContainSubstring("invalid gadget spec"))
		})

		It("rejects a binary body", func() {
			resp, _ := do(http.MethodPost, "", iframeTarget(url.Values{}), "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("reports a spec without a usable view", func() {
			spec := `<Module><Content view="canvas">x</Content></Module>`
			resp, _ := do(http.MethodPost, "", iframeTarget(url.Values{"view": {"home"}}), spec)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("only accepts POST", func() {
			resp, _ := do(http.MethodGet, "", iframeTarget(url.Values{}), "")
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
		})
	})
})

var _ = Describe("splitFeatures", func() {
	It("accepts repeated and joined names", func() {
		Expect(splitFeatures([]string{"core:rpc", "views,pubsub", "", "a::b"})).
			To(Equal([]string{"core", "rpc", "views", "pubsub", "a", "b"}))
		Expect(splitFeatures(nil)).To(BeEmpty())
	})
})
