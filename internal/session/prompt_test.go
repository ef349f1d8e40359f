package session

import (
	"testing"
	"time"
)

// fixedClock lets tests drive the probe quiet interval deterministically.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newProbeDetector(clock *fixedClock) *PromptDetector {
	d := NewPromptDetector(ModeProbe, 400*time.Millisecond)
	d.now = clock.now
	return d
}

func TestProbe_AdoptsLastLine(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	d := newProbeDetector(clock)

	d.Feed([]byte("Welcome banner\nlogin notice\nswitch01# "))
	if got := d.Check(); got.Found {
		t.Fatal("found before quiet interval elapsed")
	}

	clock.advance(500 * time.Millisecond)
	got := d.Check()
	if !got.Found || got.Prompt != "switch01#" {
		t.Fatalf("got %+v, want found switch01#", got)
	}
}

func TestProbe_RejectsShortAndControl(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}

	d := newProbeDetector(clock)
	d.Feed([]byte("#"))
	clock.advance(time.Second)
	if d.Check().Found {
		t.Error("one-character prompt adopted")
	}

	d = newProbeDetector(clock)
	d.Feed([]byte("sw\x0101#"))
	clock.advance(time.Second)
	if d.Check().Found {
		t.Error("prompt with control byte adopted")
	}
}

func TestProbe_RejectsNonPromptTail(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	d := newProbeDetector(clock)
	d.Feed([]byte("loading configuration...\n"))
	clock.advance(time.Second)
	if d.Check().Found {
		t.Error("line without prompt tail adopted")
	}
}

func TestTracking_NewlineAnchoredSuffix(t *testing.T) {
	d := NewPromptDetector(ModeTracking, 0)
	d.SetExpected("switch01#")
	d.CommandIssued()

	d.Feed([]byte("show version output\nmid switch01# mention\nmore\n"))
	if d.Check().Found {
		t.Fatal("found on mid-line prompt text")
	}

	d.Feed([]byte("switch01# "))
	if !d.Check().Found {
		t.Fatal("not found with newline-anchored prompt suffix")
	}
}

func TestTracking_AggregateCount(t *testing.T) {
	d := NewPromptDetector(ModeTracking, 0)
	d.SetExpected("sw#")

	// Initial prompt observed once.
	d.Feed([]byte("sw# extra trailing junk"))

	d.CommandIssued()
	d.Feed([]byte("output line\n"))
	if d.Check().Found {
		t.Fatal("found before second occurrence")
	}
	d.Feed([]byte("sw# trailing"))
	if !d.Check().Found {
		t.Fatal("not found at occurrences == commands+1")
	}
}

// Feeding the same byte sequence in different chunkings yields the same
// outcome.
func TestTracking_ChunkingIndependence(t *testing.T) {
	stream := []byte("command echo\nsome output\nswitch01-longprompt# ")

	verdicts := make([]bool, 0, 3)
	for _, size := range []int{1, 7, len(stream)} {
		d := NewPromptDetector(ModeTracking, 0)
		d.SetExpected("switch01-longprompt#")
		d.CommandIssued()
		for i := 0; i < len(stream); i += size {
			end := i + size
			if end > len(stream) {
				end = len(stream)
			}
			d.Feed(stream[i:end])
		}
		verdicts = append(verdicts, d.Check().Found)
	}

	for i := 1; i < len(verdicts); i++ {
		if verdicts[i] != verdicts[0] {
			t.Fatalf("chunking changed verdict: %v", verdicts)
		}
	}
	if !verdicts[0] {
		t.Fatal("prompt not found in any chunking")
	}
}

func TestTracking_OccurrenceAcrossChunkBoundary(t *testing.T) {
	d := NewPromptDetector(ModeTracking, 0)
	d.SetExpected("sw#")
	d.CommandIssued()

	// Prompt split across two feeds; the closing prompt is not at the start
	// of a line, so the suffix check alone cannot rescue detection.
	d.Feed([]byte("output\ns"))
	d.Feed([]byte("w# output continues\nmore output\n"))
	d.Feed([]byte("end sw# "))
	if !d.Check().Found {
		t.Fatal("split occurrence not counted")
	}
}

func TestTail(t *testing.T) {
	d := NewPromptDetector(ModeProbe, 0)
	d.Feed([]byte("abcdef"))
	if got := d.Tail(3); got != "def" {
		t.Errorf("Tail(3): got %q", got)
	}
	if got := d.Tail(100); got != "abcdef" {
		t.Errorf("Tail(100): got %q", got)
	}
}
