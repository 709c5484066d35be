package security

import (
	"fmt"
	"slices"
	"strings"
)

// MaxHeaderValueBytes is the largest accepted value for a single header.
// Legitimate control-plane clients send short headers; anything larger is
// rejected outright.
const MaxHeaderValueBytes = 8192

// Proxy-identification headers. Their presence on a loopback control plane
// is unusual enough to audit, but blocking on them would break clients
// behind corporate proxies for no security gain: the values are
// client-controlled either way.
var proxyHeaders = []string{
	"via",
	"forwarded",
	"x-forwarded-for",
	"x-forwarded-host",
	"x-forwarded-proto",
	"x-real-ip",
	"true-client-ip",
}

// CheckHeaders rejects requests carrying any header value larger than
// MaxHeaderValueBytes. Keys are expected lowercased, as the request parser
// produces them.
func CheckHeaders(headers map[string]string) *CheckError {
	for name, value := range headers {
		if len(value) > MaxHeaderValueBytes {
			return &CheckError{
				Code:    CodeHeaderTooLarge,
				Message: fmt.Sprintf("header %q exceeds %d bytes", name, MaxHeaderValueBytes),
			}
		}
	}
	return nil
}

// DetectProxyHeaders returns the proxy-identification headers present in
// the request, sorted, for audit logging. Never rejects.
func DetectProxyHeaders(headers map[string]string) []string {
	var found []string
	for name := range headers {
		if slices.Contains(proxyHeaders, strings.ToLower(name)) {
			found = append(found, strings.ToLower(name))
		}
	}
	slices.Sort(found)
	return found
}
