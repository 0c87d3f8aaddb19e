package engine

import (
	"net/http"
	"net/textproto"
	"sort"
	"strings"
)

// canonicalHeaders renders h as a deterministic, order-independent string:
// one "Name: value" line per header value, sorted by name then value. Two
// requests with the same header content always produce the same string
// regardless of the order their caller set them in, which is what lets the
// DataLoaderRequest fingerprint coalesce logically identical calls.
func canonicalHeaders(h http.Header) string {
	var lines []string
	for name, values := range h {
		canon := textproto.CanonicalMIMEHeaderKey(name)
		for _, v := range values {
			lines = append(lines, canon+": "+v)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// parseCanonicalHeaders inverts canonicalHeaders, reconstructing an
// http.Header to attach to a freshly-built request.
func parseCanonicalHeaders(s string) http.Header {
	h := make(http.Header)
	if s == "" {
		return h
	}
	for _, line := range strings.Split(s, "\n") {
		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		h.Add(name, value)
	}
	return h
}

// filterHeaders keeps only the entries of headers whose name appears in
// allowed, per an @upstream's allowedHeaders declaration.
func filterHeaders(headers map[string][]string, allowed map[string]struct{}) http.Header {
	out := make(http.Header)
	if len(allowed) == 0 {
		return out
	}
	for name, values := range headers {
		if _, ok := allowed[strings.ToLower(name)]; !ok {
			continue
		}
		for _, v := range values {
			out.Add(name, v)
		}
	}
	return out
}
