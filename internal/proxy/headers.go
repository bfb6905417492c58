package proxy

import (
	"net/http"
	"strings"
)

// promptCachingBetaHeader is forwarded upstream whenever the incoming request
// carries any cache_control annotation. Upstreams that honor Anthropic-style
// prompt caching use it; others drop it.
const promptCachingBetaHeader = "prompt-caching-2024-07-31"

// clientCredential extracts the caller's API credential from either the
// Authorization or x-api-key header. The returned value always carries the
// "Bearer " prefix expected by OpenAI-compatible upstreams.
func clientCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return auth
		}
		return "Bearer " + auth
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return "Bearer " + key
	}
	return ""
}

// upstreamAuthorization resolves the Authorization header value for the
// upstream request: the configured key wins, otherwise the client credential
// is forwarded as-is.
func (p *Proxy) upstreamAuthorization(r *http.Request) string {
	if p.upstream.APIKey != "" && !p.upstream.ForwardClientKey {
		return "Bearer " + p.upstream.APIKey
	}
	if cred := clientCredential(r); cred != "" {
		return cred
	}
	if p.upstream.APIKey != "" {
		return "Bearer " + p.upstream.APIKey
	}
	return ""
}

// setSSEHeaders sets the response headers for an Anthropic event stream.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
