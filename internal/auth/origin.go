package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginAllowed reports whether a browser request may open an authenticated
// socket. Requests without an Origin header come from non-browser clients and
// pass. Otherwise the origin must be the server itself or allowed.
func OriginAllowed(r *http.Request, allowed string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return allowed != "" && strings.EqualFold(strings.TrimSuffix(origin, "/"), strings.TrimSuffix(allowed, "/"))
}
