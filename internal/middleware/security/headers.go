// Package security sets response security headers and flags suspicious requests.
package security

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// HeadersConfig lists the headers sent on every response. Empty values are skipped.
type HeadersConfig struct {
	// ContentSecurityPolicy maps a directive to its sources.
	ContentSecurityPolicy map[string][]string
	// HSTS is sent only over TLS. Zero disables it.
	HSTS              time.Duration
	HSTSSubdomains    bool
	FrameOptions      string
	ReferrerPolicy    string
	PermissionsPolicy string
	CrossOrigin       string
}

// DefaultHeadersConfig allows scripts from the site itself and the htmx CDN.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		ContentSecurityPolicy: map[string][]string{
			"default-src":     {"'self'"},
			"script-src":      {"'self'", "https://unpkg.com"},
			"style-src":       {"'self'", "'unsafe-inline'"},
			"img-src":         {"'self'", "data:"},
			"connect-src":     {"'self'"},
			"object-src":      {"'none'"},
			"frame-ancestors": {"'none'"},
			"base-uri":        {"'self'"},
			"form-action":     {"'self'"},
		},
		HSTS:              365 * 24 * time.Hour,
		HSTSSubdomains:    true,
		FrameOptions:      "DENY",
		ReferrerPolicy:    "strict-origin-when-cross-origin",
		PermissionsPolicy: "geolocation=(), microphone=(), camera=(), payment=()",
		CrossOrigin:       "same-origin",
	}
}

// HeadersMiddleware writes a fixed header set computed once from its config.
type HeadersMiddleware struct {
	static http.Header
	hsts   string
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	h := http.Header{}
	add := func(name, value string) {
		if value != "" {
			h.Set(name, value)
		}
	}
	add("Content-Security-Policy", policy(config.ContentSecurityPolicy))
	add("X-Content-Type-Options", "nosniff")
	add("X-Frame-Options", config.FrameOptions)
	add("Referrer-Policy", config.ReferrerPolicy)
	add("Permissions-Policy", config.PermissionsPolicy)
	add("Cross-Origin-Opener-Policy", config.CrossOrigin)
	add("Cross-Origin-Resource-Policy", config.CrossOrigin)

	m := &HeadersMiddleware{static: h}
	if config.HSTS > 0 {
		m.hsts = "max-age=" + strconv.Itoa(int(config.HSTS.Seconds()))
		if config.HSTSSubdomains {
			m.hsts += "; includeSubDomains"
		}
	}
	return m
}

// policy renders directives with default-src first and the rest sorted.
func policy(directives map[string][]string) string {
	names := make([]string, 0, len(directives))
	for name := range directives {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "default-src":
			return -1
		case b == "default-src":
			return 1
		}
		return strings.Compare(a, b)
	})

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+strings.Join(directives[name], " "))
	}
	return strings.Join(parts, "; ")
}

func (m *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for name := range m.static {
			dst.Set(name, m.static.Get(name))
		}
		if r.TLS != nil && m.hsts != "" {
			dst.Set("Strict-Transport-Security", m.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware lets browsers cache embedded assets for maxAge.
func StaticAssetMiddleware(maxAge time.Duration) func(http.Handler) http.Handler {
	value := "public, max-age=" + strconv.Itoa(int(maxAge.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoStore marks a response as uncacheable. Pages carry per-user figures.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
