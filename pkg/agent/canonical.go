package agent

import "encoding/json"

// canonicalEqual reports whether a and b marshal to the same bytes.
// encoding/json sorts map[string]any keys at every nesting level, so
// this gives a deterministic canonical form for structural-equality
// comparisons without a bespoke deep-equality comparator.
func canonicalEqual(a, b map[string]any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ab) == string(bb)
}
