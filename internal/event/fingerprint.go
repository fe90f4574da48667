package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint computes the stable response-cache key for an event as seen by
// a player with the given persona and language. Two requests with the same
// fingerprint must produce the same response, so every identity-bearing
// field participates: tenant, game, persona, language, kind, the normalized
// payload and context maps, and the emotion when it is already known
// (dialogue-only lookups).
//
// The hash input is a canonical line-per-field rendering with sorted map
// keys, so map iteration order never leaks into the key.
func Fingerprint(e *Event, persona, language, emotion string) string {
	h := sha256.New()
	fmt.Fprintf(h, "t=%s\n", e.Tenant)
	fmt.Fprintf(h, "g=%s\n", e.Game)
	fmt.Fprintf(h, "p=%s\n", persona)
	fmt.Fprintf(h, "l=%s\n", language)
	fmt.Fprintf(h, "k=%s\n", e.Kind)
	writeMap(h, "payload", e.Payload)
	writeMap(h, "context", e.Context)
	if emotion != "" {
		fmt.Fprintf(h, "e=%s\n", emotion)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeMap(h interface{ Write([]byte) (int, error) }, label string, m map[string]any) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s.%s=%s\n", label, k, normalize(m[k]))
	}
}

// normalize renders a map value in a representation-independent form:
// all JSON numbers (which decode as float64) and native ints agree, and
// nested structures are flattened recursively.
func normalize(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case int:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case int64:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = normalize(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + normalize(x[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", x)
	}
}
