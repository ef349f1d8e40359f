// Package change classifies the severity of capture content changes and
// renders their diffs.
package change

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/fleetcap/fleetcap/internal/capture"
)

// Severity orders change impact from critical down to informational.
type Severity string

const (
	SeverityCritical      Severity = "critical"
	SeverityModerate      Severity = "moderate"
	SeverityMinor         Severity = "minor"
	SeverityInformational Severity = "informational"
)

// moderateLineThreshold is the changed-line count at or above which a
// change is at least moderate even when every line is counter-like.
const moderateLineThreshold = 10

// maxDiffInput bounds the combined input size the detector will diff.
// Beyond it the change is reported moderate with no diff artifact.
const maxDiffInput = 4 << 20

// Patterns are the compiled sensitive and counter-like line sets.
type Patterns struct {
	sensitive []*regexp.Regexp
	counter   []*regexp.Regexp
}

// CompilePatterns compiles the configured pattern sets.
func CompilePatterns(sensitive, counter []string) (*Patterns, error) {
	p := &Patterns{}
	for _, expr := range sensitive {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("change: sensitive pattern %q: %w", expr, err)
		}
		p.sensitive = append(p.sensitive, re)
	}
	for _, expr := range counter {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("change: counter pattern %q: %w", expr, err)
		}
		p.counter = append(p.counter, re)
	}
	return p, nil
}

// DefaultSensitivePatterns flag configuration lines whose change is always
// critical.
var DefaultSensitivePatterns = []string{
	`^username `,
	`^enable secret`,
	`^crypto key`,
	`^access-list `,
	`^ip access-list`,
	`^router `,
	`^snmp-server community`,
	`^tacacs server`,
	`^radius server`,
	`^aaa `,
}

// DefaultCounterPatterns flag counter-like lines: uptimes, byte counts,
// interface statistics.
var DefaultCounterPatterns = []string{
	`uptime`,
	`\d+\s+(?:weeks?|days?|hours?|minutes?|seconds?)`,
	`\d+\s+(?:packets|bytes|errors|drops|collisions)`,
	`(?:input|output)\s+rate\s+\d+`,
	`Last (?:input|output|clearing)`,
	`\d{2}:\d{2}:\d{2}`,
}

// DefaultPatterns compiles the builtin sets. The builtin expressions are
// known-good, so compilation cannot fail.
func DefaultPatterns() *Patterns {
	p, err := CompilePatterns(DefaultSensitivePatterns, DefaultCounterPatterns)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Patterns) isSensitive(line string) bool {
	return matchAny(p.sensitive, line)
}

func (p *Patterns) isCounter(line string) bool {
	return matchAny(p.counter, line)
}

func matchAny(res []*regexp.Regexp, line string) bool {
	for _, re := range res {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Result is the detector's verdict for one prior/new content pair.
type Result struct {
	LinesAdded   int
	LinesRemoved int
	ChangedLines int // replaced pairs count once
	Severity     Severity
	Diff         string // unified diff; empty on size overflow
}

// Classify diffs prior against new content line by line and grades the
// change:
//
//	critical       any changed line matches the sensitive set
//	moderate       >= 10 changed lines, or any change outside the
//	               counter-like set, or input too large to diff
//	minor          < 10 changed lines, all counter-like
//	informational  no effective change
func Classify(prior, new string, p *Patterns) Result {
	if len(prior)+len(new) > maxDiffInput {
		return Result{Severity: SeverityModerate}
	}

	a := difflib.SplitLines(prior)
	b := difflib.SplitLines(new)
	matcher := difflib.NewMatcher(a, b)

	var res Result
	var changed []string
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		removed := op.I2 - op.I1
		added := op.J2 - op.J1
		res.LinesRemoved += removed
		res.LinesAdded += added
		if removed > added {
			res.ChangedLines += removed
		} else {
			res.ChangedLines += added
		}
		for _, line := range a[op.I1:op.I2] {
			changed = append(changed, strings.TrimRight(line, "\n"))
		}
		for _, line := range b[op.J1:op.J2] {
			changed = append(changed, strings.TrimRight(line, "\n"))
		}
	}

	res.Severity = grade(changed, res.ChangedLines, p)
	if res.Severity != SeverityInformational {
		res.Diff = renderDiff(a, b)
	}
	return res
}

func grade(changed []string, changedLines int, p *Patterns) Severity {
	effective := false
	outsideCounters := false
	sensitive := false
	for _, line := range changed {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		effective = true
		if p.isSensitive(trimmed) {
			sensitive = true
		}
		if !p.isCounter(trimmed) {
			outsideCounters = true
		}
	}

	switch {
	case !effective:
		return SeverityInformational
	case sensitive:
		return SeverityCritical
	case changedLines >= moderateLineThreshold || outsideCounters:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

func renderDiff(a, b []string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "prior",
		ToFile:   "new",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

// DiffPath returns the content-addressed artifact path for a change id:
// <root>/<id[:2]>/<id>.diff.
func DiffPath(root, changeID string) string {
	prefix := changeID
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(root, prefix, changeID+".diff")
}

// WriteDiff commits the diff artifact for a change and returns its path.
// An empty diff writes nothing and returns the empty path.
func WriteDiff(root, changeID, diff string) (string, error) {
	if diff == "" {
		return "", nil
	}
	path := DiffPath(root, changeID)
	if err := capture.WriteAtomic(path, []byte(diff)); err != nil {
		return "", fmt.Errorf("change: write diff %s: %w", changeID, err)
	}
	return path, nil
}
