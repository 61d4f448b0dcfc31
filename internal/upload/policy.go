package upload

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// isTypeAllowed matches a declared content type against the allow-list.
// Entries ending in "/" match a whole family such as "video/". Other entries
// match exactly or through a known alias (audio/mp3 for audio/mpeg).
// An empty allow-list accepts everything.
func isTypeAllowed(fileType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	base, _, _ := strings.Cut(fileType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	known := mimetype.Lookup(base)

	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "":
			continue
		case strings.HasSuffix(a, "/"):
			if strings.HasPrefix(base, a) {
				return true
			}
		case a == base:
			return true
		case known != nil && known.Is(a):
			return true
		}
	}
	return false
}
