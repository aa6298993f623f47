// Package ids derives stable integer identifiers for catalog records.
package ids

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseInt64 parses a value into a signed 64-bit integer. It accepts
// integer-valued floats and numeric strings; anything else returns false.
func ParseInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// StableID maps a raw identifier into the positive signed 64-bit range.
// Values that already parse as int64 are used directly; everything else is
// hashed with a domain prefix so distinct id spaces cannot collide with
// each other. The mapping is deterministic and collision-resistant, not
// collision-proof; a hash collision within one domain is an accepted risk.
func StableID(domainPrefix, rawValue string) int64 {
	raw := strings.TrimSpace(rawValue)
	if raw == "" {
		return 0
	}
	if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return parsed
	}
	digest := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", domainPrefix, raw)))
	masked := int64(binary.BigEndian.Uint64(digest[:8]) & math.MaxInt64)
	if masked == 0 {
		return 1
	}
	return masked
}
