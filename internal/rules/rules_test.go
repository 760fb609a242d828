package rules_test

import (
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opsdev/podsleuthd/internal/model"
	"github.com/opsdev/podsleuthd/internal/rules"
)

var _ = Describe("Table", func() {
	It("returns nil when no rule fires", func() {
		table := rules.NewTable([]rules.Rule{
			{
				ID:    "r1",
				Match: rules.Match{Logs: []rules.Matcher{{Substr: "oom"}}},
				Diagnosis: rules.Diagnosis{Summary: "OOM"},
			},
		})
		got := table.Evaluate(rules.Input{Logs: []string{"all good here"}})
		Expect(got).To(BeNil())
	})

	It("is case-insensitive for substring matchers", func() {
		table := rules.NewTable([]rules.Rule{
			{ID: "r1", Match: rules.Match{Logs: []rules.Matcher{{Substr: "connection refused"}}}, Diagnosis: rules.Diagnosis{Summary: "net"}},
		})
		got := table.Evaluate(rules.Input{Logs: []string{"ERROR: Connection Refused by peer"}})
		Expect(got).NotTo(BeNil())
		Expect(got.Summary).To(Equal("net"))
	})

	It("supports regex sub-matchers", func() {
		table := rules.NewTable([]rules.Rule{
			{ID: "r1", Match: rules.Match{Logs: []rules.Matcher{{Regex: regexp.MustCompile(`(?i)out of memory`)}}}, Diagnosis: rules.Diagnosis{Summary: "oom"}},
		})
		got := table.Evaluate(rules.Input{Logs: []string{"killed: Out Of Memory"}})
		Expect(got).NotTo(BeNil())
	})

	It("honors table order: first firing rule wins", func() {
		table := rules.NewTable([]rules.Rule{
			{ID: "general", Match: rules.Match{Logs: []rules.Matcher{{Substr: "error"}}}, Diagnosis: rules.Diagnosis{Summary: "general"}},
			{ID: "specific", Match: rules.Match{Logs: []rules.Matcher{{Substr: "connection refused"}}}, Diagnosis: rules.Diagnosis{Summary: "specific"}},
		})
		got := table.Evaluate(rules.Input{Logs: []string{"error: connection refused"}})
		Expect(got.Summary).To(Equal("general"))
	})

	It("fires if any declared sub-matcher matches across kinds", func() {
		table := rules.NewTable([]rules.Rule{
			{
				ID: "r1",
				Match: rules.Match{
					ContainerStates: []rules.Matcher{{Substr: "CrashLoopBackOff"}},
					Events:          []rules.Matcher{{Substr: "BackOff"}},
				},
				Diagnosis: rules.Diagnosis{Summary: "crash"},
			},
		})
		got := table.Evaluate(rules.Input{
			Events: []model.EventRecord{{Reason: "BackOff", Message: "restarting"}},
		})
		Expect(got).NotTo(BeNil())
	})
})
