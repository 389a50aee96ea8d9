package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// GenerateName synthesizes a schedule name when the caller leaves Name
// empty: task_name, an 8-hex digest of the canonicalized kwargs, and a
// human frequency label derived from the cron expression, joined with "-".
// Decided in DESIGN.md's Open Question log since spec.md names
// auto_generated_name without specifying an algorithm.
func GenerateName(taskName string, kwargs json.RawMessage, cronExpr string) string {
	digest := kwargsDigest(kwargs)
	freq := frequencyLabel(cronExpr)
	return fmt.Sprintf("%s-%s-%s", taskName, digest, freq)
}

// kwargsDigest returns the first 8 hex characters of the SHA-256 digest of
// kwargs, canonicalized by re-marshaling its keys in sorted order so that
// equivalent kwargs always hash identically regardless of key order.
func kwargsDigest(kwargs json.RawMessage) string {
	canonical := canonicalizeJSON(kwargs)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:8]
}

func canonicalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return []byte(b.String())
}

// frequencyLabel gives a short human label for common cron shapes and
// falls back to "cron" for anything else.
func frequencyLabel(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return "cron"
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	switch {
	case dom == "*" && month == "*" && dow == "*" && hour == "*" && strings.HasPrefix(minute, "*/"):
		return "minutely"
	case dom == "*" && month == "*" && dow == "*" && minute != "*" && hour == "*":
		return "hourly"
	case dom == "*" && month == "*" && dow == "*" && minute != "*" && hour != "*":
		return "daily"
	case dom == "*" && month == "*" && dow != "*" && minute != "*" && hour != "*":
		return "weekly"
	case dom != "*" && month == "*" && dow == "*":
		return "monthly"
	default:
		return "cron"
	}
}
