package upload

import (
	"regexp"
	"strconv"
	"time"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.\-/]`)

// SanitizeFileName replaces every character outside [A-Za-z0-9_.-/] with '_'.
func SanitizeFileName(name string) string {
	return unsafeKeyChars.ReplaceAllString(name, "_")
}

// BuildObjectKey derives the storage key as <prefix><unix millis>_<sanitized name>.
func BuildObjectKey(prefix string, now time.Time, fileName string) string {
	return prefix + strconv.FormatInt(now.UnixMilli(), 10) + "_" + SanitizeFileName(fileName)
}
