package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultCORSMaxAge = 10 * time.Minute

// Headers the web client sends. x-client-info and apikey come from the
// hosted client library and are accepted so the same fetch code works
// against both backends.
var corsClientHeaders = map[string]struct{}{
	"accept":        {},
	"apikey":        {},
	"authorization": {},
	"cache-control": {},
	"content-type":  {},
	"last-event-id": {},
	"x-client-info": {},
	"x-request-id":  {},
	"x-user-id":     {},
}

const corsMethods = "GET, POST, PATCH, DELETE, OPTIONS"

type CORSConfig struct {
	// AllowedOrigins holds exact origins, "*", or "https://*.example.com"
	// to admit every subdomain of example.com over https.
	AllowedOrigins []string
	MaxAge         time.Duration
}

type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
	wildcards []string
	maxAge    string
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	policy := corsPolicy{origins: make(map[string]struct{})}
	for _, raw := range cfg.AllowedOrigins {
		origin := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(raw), "/"))
		switch {
		case origin == "":
		case origin == "*":
			policy.anyOrigin = true
		case strings.Contains(origin, "://*."):
			// "https://*.example.com" matches "https://app.example.com".
			scheme, host, _ := strings.Cut(origin, "://*")
			policy.wildcards = append(policy.wildcards, scheme+"://|"+host)
		default:
			policy.origins[origin] = struct{}{}
		}
	}

	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultCORSMaxAge
	}
	policy.maxAge = strconv.Itoa(int(maxAge.Seconds()))
	return policy
}

func (p corsPolicy) allows(origin string) bool {
	if p.anyOrigin {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := p.origins[origin]; ok {
		return true
	}
	for _, wildcard := range p.wildcards {
		scheme, suffix, _ := strings.Cut(wildcard, "|")
		if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, suffix) &&
			len(origin) > len(scheme)+len(suffix) {
			return true
		}
	}
	return false
}

// requestedHeaders returns the normalized preflight header list and the
// first header the client may not send.
func requestedHeaders(r *http.Request) ([]string, string) {
	var headers []string
	for _, value := range r.Header.Values("Access-Control-Request-Headers") {
		for _, name := range strings.Split(value, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			if _, ok := corsClientHeaders[name]; !ok {
				return nil, name
			}
			headers = append(headers, name)
		}
	}
	return headers, ""
}

// CORS answers preflights for the browser client and marks actual
// responses readable cross-origin. Streamed chat responses get the same
// headers before the first event is written.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || !policy.allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			header := w.Header()
			header.Add("Vary", "Origin")
			if policy.anyOrigin {
				header.Set("Access-Control-Allow-Origin", "*")
			} else {
				header.Set("Access-Control-Allow-Origin", origin)
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				header.Set("Access-Control-Expose-Headers", "X-Request-Id")
				next.ServeHTTP(w, r)
				return
			}

			header.Add("Vary", "Access-Control-Request-Method")
			header.Add("Vary", "Access-Control-Request-Headers")
			headers, rejected := requestedHeaders(r)
			if rejected != "" {
				writeErrorJSON(w, r, http.StatusForbidden, "cors_rejected", "header not allowed: "+rejected)
				return
			}
			if !corsMethodAllowed(r.Header.Get("Access-Control-Request-Method")) {
				writeErrorJSON(w, r, http.StatusForbidden, "cors_rejected", "method not allowed")
				return
			}

			header.Set("Access-Control-Allow-Methods", corsMethods)
			if len(headers) > 0 {
				header.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
			}
			header.Set("Access-Control-Max-Age", policy.maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func corsMethodAllowed(method string) bool {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
