package security

// MatchOrigin implements the CORS allow-list policy and returns the
// Access-Control-Allow-Origin value to echo for an allowed request.
//
// Policy:
//   - empty allow-list: every origin is allowed, echo "*"
//   - a "*" entry anywhere in the list: every origin is allowed, echo "*"
//   - otherwise: the origin must equal an entry exactly, and that origin
//     is echoed back, whatever its position in the list
//
// The caller only invokes this when the request carries an Origin header;
// same-origin and non-browser requests have none and always pass.
func MatchOrigin(origin string, allowed []string) (echo string, ok bool) {
	if len(allowed) == 0 {
		return "*", true
	}

	for _, entry := range allowed {
		if entry == "*" {
			return "*", true
		}
		if entry == origin {
			return origin, true
		}
	}

	return "", false
}

// CheckOrigin validates a request Origin against the allow-list. Returns
// nil when allowed.
func CheckOrigin(origin string, allowed []string) *CheckError {
	if _, ok := MatchOrigin(origin, allowed); ok {
		return nil
	}
	return &CheckError{
		Code:    CodeOriginDenied,
		Message: "origin is not in the allowed origins list",
	}
}
