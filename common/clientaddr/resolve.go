// Package clientaddr determines the originating client address of a request that may have
// passed through proxies.
package clientaddr

import (
	"net"
	"net/http"
	"strings"

	"github.com/enset/storefront/common/headers"
	"github.com/enset/storefront/common/metadata"
)

// unknownAddress is what some proxies write when they could not tell the client address.
const unknownAddress = "unknown"

// Resolve returns the best-effort client address. Headers are consulted in order
// X-Forwarded-For, X-Real-IP; the first usable one wins, otherwise the host part of
// peer is returned. The result may be "" when nothing is known.
//
// Forwarding headers are client-controlled and the value is informational only.
func Resolve(md metadata.Metadata, peer string) string {
	for _, h := range []string{headers.HeaderXForwardedFor, headers.HeaderXRealIP} {
		if addr, ok := fromHeader(md.First(h)); ok {
			return addr
		}
	}
	return peerHost(peer)
}

// FromRequest resolves the client address of r.
func FromRequest(r *http.Request) string {
	return Resolve(metadata.FromHTTPHeader(r.Header), r.RemoteAddr)
}

// fromHeader returns the first comma-separated entry of value, trimmed.
func fromHeader(value string) (string, bool) {
	first, _, _ := strings.Cut(value, ",")
	first = strings.TrimSpace(first)
	if first == "" || strings.EqualFold(first, unknownAddress) {
		return "", false
	}
	return first, true
}

func peerHost(peer string) string {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(peer)
	if err != nil {
		return peer
	}
	return host
}
