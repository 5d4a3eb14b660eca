package recovery

import "strings"

// expiredPhrases are the remote error fragments that mean the link's
// credential has expired or was already consumed. Matching is a
// case-insensitive substring check; the backend is not consistent about
// message casing or error codes across flows.
var expiredPhrases = []string{
	"expired",
	"already used",
	"otp_expired",
	"invalid_grant",
	"invalid token",
	"invalid otp",
	"invalid recovery",
}

// IsExpiredOrUsed reports whether msg describes an expired or already-used
// recovery credential.
func IsExpiredOrUsed(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range expiredPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
