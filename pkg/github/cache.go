package github

import (
	"net/http"

	"github.com/gregjones/httpcache"
)

// NewHTTPCacheTransport wraps in with an in-memory HTTP cache. Reads always
// revalidate with the server, so a cached body is only reused on 304 Not Modified,
// which GitHub does not count against the rate limit.
func NewHTTPCacheTransport(in http.RoundTripper) http.RoundTripper {
	t := httpcache.NewMemoryCacheTransport()
	t.Transport = in
	return &cacheRoundtripper{Transport: t}
}

// cacheRoundtripper invalidates the cache on writes and on non-"200 OK" responses
type cacheRoundtripper struct {
	Transport *httpcache.Transport
}

// cacheKey follows github.com/gregjones/httpcache
func cacheKey(req *http.Request) string {
	if req.Method == http.MethodGet {
		return req.URL.String()
	}
	return req.Method + " " + req.URL.String()
}

// RoundTrip implements http.RoundTripper
func (r *cacheRoundtripper) RoundTrip(req *http.Request) (*http.Response, error) {
	key := cacheKey(req)
	cacheable := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Header.Get("range") == ""

	if !cacheable {
		// A write changes the resource behind the GET URL too
		r.Transport.Cache.Delete(req.URL.String())
	} else if req.Header.Get("Cache-Control") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Cache-Control", "max-age=0")
	}

	resp, err := r.Transport.RoundTrip(req)
	if resp == nil || resp.StatusCode != http.StatusOK {
		r.Transport.Cache.Delete(key)
	}
	return resp, err
}
