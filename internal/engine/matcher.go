package engine

import "github.com/roach88/opinionated/internal/ir"

// Match returns the first rule for key, in registration order, whose old
// value is carry or equals value byte-exactly.
//
// Match is order-preserving, not priority-sorting: a fixed-value rule only
// beats a carry rule for the same key if it was registered first.
func Match(key, value string, table *RuleTable) (ir.Rule, bool) {
	for _, r := range table.Candidates(key) {
		if r.OldValue.Matches(value) {
			return r, true
		}
	}
	return ir.Rule{}, false
}
