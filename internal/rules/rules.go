// Package rules implements the local signature-match "triage hint" of
// spec.md §4.2, generalizing the teacher's single-purpose log-pattern matcher
// (getDefaultPatterns/analyzeWithPatterns in the original controller) into a
// table of rules that can each match on container state, events, or logs.
package rules

import (
	"regexp"
	"strings"

	"github.com/opsdev/podsleuthd/internal/model"
)

// Diagnosis is the optional local hint a fired Rule produces.
type Diagnosis struct {
	Summary      string
	Confidence   float64
	SuggestedFix string
	Tags         []string
}

// Matcher is either a case-insensitive substring or a pre-compiled regex.
// Exactly one of Substr/Regex is set.
type Matcher struct {
	Substr string
	Regex  *regexp.Regexp
}

func (m Matcher) matches(s string) bool {
	if m.Regex != nil {
		return m.Regex.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(m.Substr))
}

// Match declares the sub-matchers a Rule tests. A Rule fires if any declared
// sub-matcher matches (spec.md §4.2: "fires if any of its declared
// sub-matchers matches").
type Match struct {
	ContainerStates []Matcher // matched against "<reason>" of each container state
	Logs            []Matcher
	Events          []Matcher // matched against "<reason> <message>" of each event
}

// Rule is one row of the rule table, loaded at startup (spec.md §4.2, §6).
type Rule struct {
	ID        string
	Match     Match
	Diagnosis Diagnosis
}

// Table is the ordered, authoritative list of rules: "the first firing rule
// wins (table order is authoritative)" (spec.md §4.2). The JSON asset the
// rules are loaded from has incidental ordering in the original system;
// here order is preserved exactly as loaded and is significant by design
// (spec.md §9 Open Question) — callers must not reorder a Table after load.
type Table struct {
	rules []Rule
}

// NewTable wraps an already-validated, ordered rule slice.
func NewTable(rules []Rule) *Table {
	return &Table{rules: append([]Rule(nil), rules...)}
}

// Input is the data a Match is evaluated against.
type Input struct {
	ContainerStates []model.SnapshotContainerState
	Events          []model.EventRecord
	Logs            []string
}

// Evaluate returns the diagnosis of the first rule whose Match fires, or nil
// if no rule matches.
func (t *Table) Evaluate(in Input) *Diagnosis {
	for i := range t.rules {
		if fires(t.rules[i].Match, in) {
			d := t.rules[i].Diagnosis
			return &d
		}
	}
	return nil
}

func fires(m Match, in Input) bool {
	for _, matcher := range m.ContainerStates {
		for _, cs := range in.ContainerStates {
			if matcher.matches(cs.Reason) {
				return true
			}
		}
	}
	for _, matcher := range m.Logs {
		for _, line := range in.Logs {
			if matcher.matches(line) {
				return true
			}
		}
	}
	for _, matcher := range m.Events {
		for _, ev := range in.Events {
			if matcher.matches(ev.Reason + " " + ev.Message) {
				return true
			}
		}
	}
	return false
}

// Len reports the number of rules currently loaded.
func (t *Table) Len() int {
	return len(t.rules)
}
