// Package ruletable loads the rule-matcher's rule table from a JSON asset
// (spec.md §6 "Rule table loader"; §9 notes the original loads rules "from a
// JSON asset whose order is incidental" — this loader preserves file order
// exactly and documents, rather than fixes, that order-sensitivity).
package ruletable

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/go-logr/logr"

	"github.com/opsdev/podsleuthd/internal/rules"
)

// rawMatcher is either {"substr": "..."} or {"regex": "..."}.
type rawMatcher struct {
	Substr string `json:"substr,omitempty"`
	Regex  string `json:"regex,omitempty"`
}

type rawMatch struct {
	ContainerStates []rawMatcher `json:"containerStates,omitempty"`
	Logs            []rawMatcher `json:"logs,omitempty"`
	Events          []rawMatcher `json:"events,omitempty"`
}

type rawDiagnosis struct {
	Summary      string   `json:"summary"`
	Confidence   float64  `json:"confidence"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

type rawRule struct {
	ID        string       `json:"id"`
	Match     rawMatch     `json:"match"`
	Diagnosis rawDiagnosis `json:"diagnosis"`
}

// LoadFile reads and parses a JSON rule-table asset from disk. Rules with an
// invalid regex are skipped with a warning logged through log, matching the
// teacher's own analyzeWithPatterns behavior for custom patterns
// (log_analysis.go: "Skip invalid patterns").
func LoadFile(path string, log logr.Logger) (*rules.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ruletable: read %s: %w", path, err)
	}
	return Load(data, log)
}

// Load parses rule-table JSON bytes directly, useful for tests and embedded
// defaults.
func Load(data []byte, log logr.Logger) (*rules.Table, error) {
	var raw []rawRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ruletable: decode: %w", err)
	}

	out := make([]rules.Rule, 0, len(raw))
	for _, r := range raw {
		match, ok := compileMatch(r.ID, r.Match, log)
		if !ok {
			continue
		}
		out = append(out, rules.Rule{
			ID:    r.ID,
			Match: match,
			Diagnosis: rules.Diagnosis{
				Summary:      r.Diagnosis.Summary,
				Confidence:   r.Diagnosis.Confidence,
				SuggestedFix: r.Diagnosis.SuggestedFix,
				Tags:         r.Diagnosis.Tags,
			},
		})
	}
	return rules.NewTable(out), nil
}

func compileMatch(ruleID string, raw rawMatch, log logr.Logger) (rules.Match, bool) {
	cs, _ := compileMatchers(ruleID, "containerStates", raw.ContainerStates, log)
	lg, _ := compileMatchers(ruleID, "logs", raw.Logs, log)
	ev, _ := compileMatchers(ruleID, "events", raw.Events, log)

	m := rules.Match{ContainerStates: cs, Logs: lg, Events: ev}
	if len(cs) == 0 && len(lg) == 0 && len(ev) == 0 {
		log.Info("rule has no usable sub-matchers after compilation, skipping", "rule", ruleID)
		return m, false
	}
	return m, true
}

func compileMatchers(ruleID, field string, raw []rawMatcher, log logr.Logger) ([]rules.Matcher, bool) {
	out := make([]rules.Matcher, 0, len(raw))
	for _, m := range raw {
		switch {
		case m.Regex != "":
			re, err := regexp.Compile(m.Regex)
			if err != nil {
				log.Info("skipping rule sub-matcher with invalid regex", "rule", ruleID, "field", field, "pattern", m.Regex, "error", err.Error())
				continue
			}
			out = append(out, rules.Matcher{Regex: re})
		case m.Substr != "":
			out = append(out, rules.Matcher{Substr: m.Substr})
		}
	}
	return out, len(out) > 0
}
