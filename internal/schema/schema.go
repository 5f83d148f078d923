// Package schema validates an inbound file's column header against the
// expected column set for its source. Order is not a validation criterion;
// only set membership counts.
package schema

import (
	"fmt"
	"strings"
)

// Issue tags embedded into quarantined file names. Their exact composition
// is part of the external contract: a human browsing the Error folder
// triages from the file name alone.
const (
	IssueExtra   = "ExtraColumns"
	IssueMissing = "MissingColumns"
)

// Result holds the outcome of a header validation. Extra and Missing are
// exact set differences in first-seen order.
type Result struct {
	Extra   []string
	Missing []string
}

// Validate compares an actual header against the expected column set.
func Validate(actual, expected []string) Result {
	expectedSet := toSet(expected)
	actualSet := toSet(actual)

	var res Result
	for _, name := range actual {
		if _, ok := expectedSet[name]; !ok {
			res.Extra = appendOnce(res.Extra, name)
		}
	}
	for _, name := range expected {
		if _, ok := actualSet[name]; !ok {
			res.Missing = appendOnce(res.Missing, name)
		}
	}
	return res
}

// OK reports whether the header matched exactly as a set.
func (r Result) OK() bool { return len(r.Extra) == 0 && len(r.Missing) == 0 }

// Issue returns the tag describing the violation: "ExtraColumns",
// "MissingColumns", or "ExtraColumns.MissingColumns" when both apply.
// Empty for a valid header.
func (r Result) Issue() string {
	var parts []string
	if len(r.Extra) > 0 {
		parts = append(parts, IssueExtra)
	}
	if len(r.Missing) > 0 {
		parts = append(parts, IssueMissing)
	}
	return strings.Join(parts, ".")
}

// Messages returns the human diagnostics for each non-empty violation list.
func (r Result) Messages() []string {
	var msgs []string
	if len(r.Extra) > 0 {
		msgs = append(msgs, fmt.Sprintf("Extra column(s) found: [%s]", strings.Join(r.Extra, ", ")))
	}
	if len(r.Missing) > 0 {
		msgs = append(msgs, fmt.Sprintf("Column(s) missing: [%s]", strings.Join(r.Missing, ", ")))
	}
	return msgs
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func appendOnce(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}
