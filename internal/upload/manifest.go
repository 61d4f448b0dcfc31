package upload

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// RawPart is a manifest entry exactly as the client sent it. Fields stay
// untyped until ValidateManifest has checked them.
type RawPart struct {
	PartNumber any `json:"part_number"`
	ETag       any `json:"etag"`
}

// CompletedPart is a validated manifest entry.
type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// ParseManifest decodes a JSON manifest and validates it. Anything that is not
// a JSON array of entries is an invalid manifest.
func ParseManifest(data json.RawMessage, maxParts int) ([]CompletedPart, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, invalidManifest("parts is required and cannot be empty")
	}
	if trimmed[0] != '[' {
		return nil, invalidManifest("parts must be an array")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var raw []RawPart
	if err := dec.Decode(&raw); err != nil {
		return nil, invalidManifest(fmt.Sprintf("parts could not be decoded: %v", err))
	}

	return ValidateManifest(raw, maxParts)
}

// ValidateManifest keeps entries with a non-empty string ETag and an integral
// part number in [1, maxParts]. If any entry is dropped the whole manifest is
// rejected. The result is sorted by part number and free of duplicates.
// A maxParts of zero disables the upper bound.
func ValidateManifest(raw []RawPart, maxParts int) ([]CompletedPart, error) {
	if len(raw) == 0 {
		return nil, invalidManifest("parts is required and cannot be empty")
	}

	parts := make([]CompletedPart, 0, len(raw))
	for _, p := range raw {
		etag, ok := p.ETag.(string)
		if !ok || etag == "" {
			continue
		}
		n, ok := partNumberOf(p.PartNumber)
		if !ok || n < 1 || (maxParts > 0 && n > maxParts) {
			continue
		}
		parts = append(parts, CompletedPart{PartNumber: n, ETag: etag})
	}

	if len(parts) != len(raw) {
		return nil, invalidManifest(fmt.Sprintf("%d of %d parts are malformed: each needs a non-empty etag and a part_number between 1 and %d",
			len(raw)-len(parts), len(raw), maxPartsOrDefault(maxParts)))
	}

	slices.SortStableFunc(parts, func(a, b CompletedPart) int {
		return cmp.Compare(a.PartNumber, b.PartNumber)
	})

	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber == parts[i-1].PartNumber {
			return nil, invalidManifest(fmt.Sprintf("part_number %d appears more than once", parts[i].PartNumber))
		}
	}

	return parts, nil
}

func partNumberOf(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return partNumberOf(i)
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return partNumberOf(f)
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func maxPartsOrDefault(maxParts int) int {
	if maxParts > 0 {
		return maxParts
	}
	return math.MaxInt32
}
