package session

import (
	"bytes"
	"testing"
)

func TestSanitize_CSI(t *testing.T) {
	in := []byte("plain \x1b[1;32mgreen\x1b[0m text")
	want := "plain green text"
	if got := string(Sanitize(in)); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitize_OSC(t *testing.T) {
	in := []byte("a\x1b]0;window title\x07b")
	if got := string(Sanitize(in)); got != "ab" {
		t.Errorf("BEL-terminated OSC: got %q", got)
	}
	in = []byte("a\x1b]0;title\x1b\\b")
	if got := string(Sanitize(in)); got != "ab" {
		t.Errorf("ST-terminated OSC: got %q", got)
	}
}

func TestSanitize_LoneESC(t *testing.T) {
	if got := string(Sanitize([]byte("a\x1bZb"))); got != "aZb" {
		t.Errorf("got %q", got)
	}
}

func TestSanitize_CarriageReturns(t *testing.T) {
	if got := string(Sanitize([]byte("line1\r\nline2\rtail"))); got != "line1\nline2tail" {
		t.Errorf("got %q", got)
	}
}

func TestSanitize_InvalidUTF8(t *testing.T) {
	got := Sanitize([]byte{'a', 0xff, 'b'})
	if !bytes.Contains(got, []byte("�")) {
		t.Errorf("expected replacement marker, got %q", got)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := [][]byte{
		[]byte("switch01# show version\r\n\x1b[7mCisco\x1b[0m IOS\r\n"),
		{'a', 0xc3, 0x28, 'b'},
		[]byte("\x1b]0;t\x07done\x1b"),
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if !bytes.Equal(once, twice) {
			t.Errorf("not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestStripTrailingPrompt(t *testing.T) {
	out := []byte("Cisco IOS Software\nmore output\nswitch01#")
	got := StripTrailingPrompt(out, "switch01#")
	want := "Cisco IOS Software\nmore output\n"
	if string(got) != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStripTrailingPrompt_NormalizesNewline(t *testing.T) {
	got := StripTrailingPrompt([]byte("no trailing newline"), "")
	if string(got) != "no trailing newline\n" {
		t.Errorf("got %q", got)
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	if got := lastNonEmptyLine([]byte("a\nb\n  \n")); got != "b" {
		t.Errorf("got %q", got)
	}
	if got := lastNonEmptyLine([]byte("switch01#  ")); got != "switch01#" {
		t.Errorf("trailing space not trimmed: %q", got)
	}
}
