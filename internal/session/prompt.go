package session

import (
	"bytes"
	"strings"
	"time"
)

// Mode selects the prompt detector's behaviour. Probe is used on initial
// contact, before any prompt is known; Tracking is used once a prompt has
// been adopted.
type Mode int

const (
	ModeProbe Mode = iota
	ModeTracking
)

// promptTails are the characters a probe-adopted prompt may end with.
const promptTails = "#>:$"

// tailMax bounds the rolling tail buffer kept for suffix checks.
const tailMax = 8 * 1024

// Detect is the detector's verdict for the current buffer state.
type Detect struct {
	Found  bool
	Prompt string
}

// PromptDetector recognizes when a device is awaiting input. It keeps a
// rolling tail of sanitized output, the expected prompt, and the aggregate
// prompt counter: in tracking mode the prompt is considered found when the
// buffer ends with the expected prompt on a fresh line, or when the prompt
// has been observed exactly one more time than the number of commands
// issued so far.
//
// Detection is a pure function of the bytes fed in (plus, in probe mode,
// the quiet interval): chunking does not change the outcome.
type PromptDetector struct {
	mode     Mode
	expected string
	quiet    time.Duration

	commands    int // commands issued so far
	occurrences int // times the expected prompt has been seen

	tail     []byte // sanitized rolling tail
	carry    []byte // overlap carry for streaming occurrence counting
	lastFeed time.Time

	now func() time.Time
}

// NewPromptDetector creates a detector in the given mode. quiet is the
// probe-mode quiet interval after which the last line is examined.
func NewPromptDetector(mode Mode, quiet time.Duration) *PromptDetector {
	return &PromptDetector{
		mode:  mode,
		quiet: quiet,
		now:   time.Now,
	}
}

// SetExpected switches the detector into tracking mode with the given
// prompt and resets the occurrence and command counters. Callers re-probe
// after operations that may change the prompt (privilege elevation).
func (d *PromptDetector) SetExpected(prompt string) {
	d.mode = ModeTracking
	d.expected = prompt
	d.commands = 0
	d.occurrences = 0
	d.carry = nil
	// The adopted prompt is itself the first occurrence.
	if prompt != "" && bytes.HasSuffix(d.tail, []byte(prompt)) {
		d.occurrences = 1
	}
}

// Expected returns the current expected prompt ("" while probing).
func (d *PromptDetector) Expected() string {
	return d.expected
}

// CommandIssued bumps the aggregate command counter. The session calls it
// once per command written to the device.
func (d *PromptDetector) CommandIssued() {
	d.commands++
}

// Feed appends a chunk of already-sanitized bytes to the detector state.
func (d *PromptDetector) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	d.lastFeed = d.now()

	if d.mode == ModeTracking && d.expected != "" {
		// Count occurrences over carry+chunk so matches spanning chunk
		// boundaries are seen exactly once.
		window := append(append([]byte{}, d.carry...), chunk...)
		d.occurrences += bytes.Count(window, []byte(d.expected))
		if n := len(d.expected) - 1; n > 0 && len(window) > n {
			d.carry = append([]byte{}, window[len(window)-n:]...)
		} else {
			d.carry = append([]byte{}, window...)
		}
	}

	d.tail = append(d.tail, chunk...)
	if len(d.tail) > tailMax {
		d.tail = d.tail[len(d.tail)-tailMax:]
	}
}

// Tail returns the most recent sanitized bytes, for error reporting.
func (d *PromptDetector) Tail(max int) string {
	if max <= 0 || max > len(d.tail) {
		max = len(d.tail)
	}
	return string(d.tail[len(d.tail)-max:])
}

// Check evaluates the current buffer state.
//
// Probe mode: after a quiet interval with no new bytes, the last non-empty
// line ending in one of # > : $ is adopted as the prompt. The adopted
// prompt must be at least 2 characters and free of control bytes.
//
// Tracking mode: found when the buffer ends with the expected prompt
// anchored after a newline, or when the prompt has occurred exactly
// commands+1 times.
func (d *PromptDetector) Check() Detect {
	switch d.mode {
	case ModeProbe:
		return d.checkProbe()
	default:
		return d.checkTracking()
	}
}

func (d *PromptDetector) checkProbe() Detect {
	if d.lastFeed.IsZero() || d.now().Sub(d.lastFeed) < d.quiet {
		return Detect{}
	}
	line := lastNonEmptyLine(d.tail)
	if len(line) < 2 {
		return Detect{}
	}
	if !strings.ContainsRune(promptTails, rune(line[len(line)-1])) {
		return Detect{}
	}
	for _, b := range []byte(line) {
		if b < 0x20 || b == 0x7f {
			return Detect{}
		}
	}
	return Detect{Found: true, Prompt: line}
}

func (d *PromptDetector) checkTracking() Detect {
	if d.expected == "" {
		return Detect{}
	}

	trimmed := bytes.TrimRight(d.tail, " \t")
	if bytes.HasSuffix(trimmed, []byte(d.expected)) {
		head := trimmed[:len(trimmed)-len(d.expected)]
		if len(head) == 0 || head[len(head)-1] == '\n' {
			return Detect{Found: true, Prompt: d.expected}
		}
	}

	// Aggregate count: one prompt per completed command plus the initial
	// one. Intermediate output that merely contains prompt-like text does
	// not reach commands+1.
	if d.occurrences == d.commands+1 {
		return Detect{Found: true, Prompt: d.expected}
	}

	return Detect{}
}
