package security

import (
	"fmt"
	"strings"
)

// MaxPathLength is the longest request target the server accepts. The five
// served routes are all under 20 bytes; anything approaching this limit is
// either a scanner or a mistake.
const MaxPathLength = 1000

// Traversal markers rejected anywhere in the request target, checked
// case-insensitively so percent-encoded variants cannot slip through with
// uppercase hex digits.
var traversalPatterns = []string{
	"../",
	"..\\",
	"..%2f",
	"..%5c",
	"%2e%2e/",
	"%2e%2e\\",
	"%2e%2e%2f",
	"%2e%2e%5c",
}

// CheckPath validates the raw request target (path plus any query string)
// before routing. Returns nil when the target is acceptable.
//
// Rejections, in evaluation order:
//   - malformed: empty or not starting with "/"
//   - too long: over MaxPathLength bytes
//   - traversal: contains a traversal marker or ends in a ".." segment
//
// The check runs before route lookup, so a traversal attempt against an
// unknown route is still reported as traversal, not as not-found.
func CheckPath(target string) *CheckError {
	if target == "" || target[0] != '/' {
		return &CheckError{
			Code:    CodePathMalformed,
			Message: "request path must start with /",
		}
	}

	if len(target) > MaxPathLength {
		return &CheckError{
			Code:    CodePathTooLong,
			Message: fmt.Sprintf("request path exceeds %d bytes", MaxPathLength),
		}
	}

	lower := strings.ToLower(target)
	for _, pattern := range traversalPatterns {
		if strings.Contains(lower, pattern) {
			return &CheckError{
				Code:    CodePathTraversal,
				Message: "request path contains a traversal sequence",
			}
		}
	}
	// A trailing ".." has no separator after it and escapes the pattern
	// list above.
	if lower == "/.." || strings.HasSuffix(lower, "/..") || strings.HasSuffix(lower, "%2e%2e") {
		return &CheckError{
			Code:    CodePathTraversal,
			Message: "request path contains a traversal sequence",
		}
	}

	return nil
}
