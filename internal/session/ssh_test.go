package session

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
)

func TestTargetAddr(t *testing.T) {
	if got := (Target{Host: "10.0.0.1"}).Addr(); got != "10.0.0.1:22" {
		t.Errorf("default port: %q", got)
	}
	if got := (Target{Host: "sw1", Port: 2222}).Addr(); got != "sw1:2222" {
		t.Errorf("explicit port: %q", got)
	}
}

func TestClassifyDialError(t *testing.T) {
	ctx := context.Background()

	if got := classifyDialError(ctx, &net.DNSError{Err: "no such host"}); got != ConnectDNS {
		t.Errorf("dns: %s", got)
	}
	if got := classifyDialError(ctx, &net.OpError{Err: syscall.ECONNREFUSED}); got != ConnectRefused {
		t.Errorf("refused: %s", got)
	}
	if got := classifyDialError(ctx, &net.DNSError{Err: "timeout", IsTimeout: true}); got != ConnectDNS {
		t.Errorf("dns wins over timeout: %s", got)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := classifyDialError(canceled, errors.New("dial aborted")); got != ConnectTimeout {
		t.Errorf("canceled context: %s", got)
	}
	if got := classifyDialError(ctx, errors.New("weird failure")); got != ConnectHandshake {
		t.Errorf("fallback: %s", got)
	}
}

func TestAuthMethods(t *testing.T) {
	if _, err := authMethods(Target{Host: "h"}); err == nil {
		t.Error("no credentials should error")
	}
	methods, err := authMethods(Target{Host: "h", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 2 {
		t.Errorf("password auth should offer password + keyboard-interactive, got %d", len(methods))
	}
}

func TestSplitIncompleteEscape(t *testing.T) {
	complete, rest := splitIncompleteEscape([]byte("plain text"))
	if string(complete) != "plain text" || rest != nil {
		t.Errorf("plain: %q %q", complete, rest)
	}

	complete, rest = splitIncompleteEscape([]byte("abc\x1b[1"))
	if string(complete) != "abc" || string(rest) != "\x1b[1" {
		t.Errorf("open CSI: %q %q", complete, rest)
	}

	complete, rest = splitIncompleteEscape([]byte("abc\x1b[1m"))
	if string(complete) != "abc\x1b[1m" || rest != nil {
		t.Errorf("closed CSI: %q %q", complete, rest)
	}

	complete, rest = splitIncompleteEscape([]byte("x\x1b]0;title"))
	if string(complete) != "x" || string(rest) != "\x1b]0;title" {
		t.Errorf("open OSC: %q %q", complete, rest)
	}

	complete, rest = splitIncompleteEscape([]byte("x\x1b]0;t\x07y"))
	if len(rest) != 0 {
		t.Errorf("closed OSC: %q %q", complete, rest)
	}
}
