package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Target identifies one device endpoint and its credentials.
type Target struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyFile  string
}

// Addr returns host:port, defaulting the port to 22.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Options configure session timing and limits.
type Options struct {
	ConnectTimeout time.Duration // transport dial + handshake
	QuietPeriod    time.Duration // probe-mode quiet interval
	ProbeTimeout   time.Duration // overall probe budget
	ReadInterval   time.Duration // max interval between channel drains
	MaxOutput      int           // output cap per device, in bytes
}

// Shell is an interactive device session. The concrete implementation is
// SSHSession; the runner is written against the interface so it can be
// exercised with fakes.
type Shell interface {
	// Probe adopts the device prompt on initial contact.
	Probe(ctx context.Context) (string, error)
	// RunPrologue issues each preamble command, waiting for the prompt
	// between commands. Failures fold into a PrologueError.
	RunPrologue(ctx context.Context, commands []string) error
	// Execute runs the command sequence and returns the concatenated
	// sanitized output. perCmd bounds each individual command.
	Execute(ctx context.Context, commands []string, perCmd time.Duration) ([]byte, error)
	// Close tears the session down. Idempotent.
	Close() error
}

// DialFunc opens a Shell to a target. Production code uses Dial; tests
// substitute fakes.
type DialFunc func(ctx context.Context, target Target, opts Options) (Shell, error)

// SSHSession is a Shell over an interactive SSH shell channel with a pty.
type SSHSession struct {
	host    string
	opts    Options
	started time.Time

	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser

	chunks  chan []byte
	readErr chan error

	detector  *PromptDetector
	sanCarry  []byte // held-back incomplete escape sequence
	collected int    // total sanitized bytes accumulated this session

	closeOnce sync.Once
}

var _ Shell = (*SSHSession)(nil)

// Dial opens an SSH transport and an interactive shell to the target.
// Connection failures are classified into ConnectError kinds; a rejected
// login returns AuthError.
func Dial(ctx context.Context, target Target, opts Options) (Shell, error) {
	start := time.Now()

	auth, err := authMethods(target)
	if err != nil {
		return nil, &ConnectError{Host: target.Host, Kind: ConnectHandshake, Elapsed: time.Since(start), Err: err}
	}

	cfg := &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         opts.ConnectTimeout,
	}
	// Older network gear still negotiates legacy key exchanges and ciphers,
	// so offer the insecure algorithm set alongside the current one.
	supported, insecure := ssh.SupportedAlgorithms(), ssh.InsecureAlgorithms()
	cfg.KeyExchanges = append(supported.KeyExchanges, insecure.KeyExchanges...)
	cfg.Ciphers = append(supported.Ciphers, insecure.Ciphers...)

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return nil, &ConnectError{Host: target.Host, Kind: classifyDialError(ctx, err), Elapsed: time.Since(start), Err: err}
	}

	sconn, chans, reqs, err := ssh.NewClientConn(conn, target.Addr(), cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "password") {
			return nil, &AuthError{Host: target.Host, Elapsed: time.Since(start), Err: err}
		}
		return nil, &ConnectError{Host: target.Host, Kind: ConnectHandshake, Elapsed: time.Since(start), Err: err}
	}
	client := ssh.NewClient(sconn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &ConnectError{Host: target.Host, Kind: ConnectHandshake, Elapsed: time.Since(start), Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := sess.RequestPty("vt100", 80, 200, modes); err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Host: target.Host, Kind: ConnectHandshake, Elapsed: time.Since(start), Err: err}
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Host: target.Host, Kind: ConnectHandshake, Elapsed: time.Since(start), Err: err}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Host: target.Host, Kind: ConnectHandshake, Elapsed: time.Since(start), Err: err}
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, &ConnectError{Host: target.Host, Kind: ConnectHandshake, Elapsed: time.Since(start), Err: err}
	}

	s := &SSHSession{
		host:     target.Host,
		opts:     opts,
		started:  start,
		client:   client,
		sess:     sess,
		stdin:    stdin,
		chunks:   make(chan []byte, 64),
		readErr:  make(chan error, 1),
		detector: NewPromptDetector(ModeProbe, opts.QuietPeriod),
	}

	// Reader goroutine. Publishing to a buffered channel keeps the remote
	// side drained even while the consumer is between ticks.
	go func() {
		defer close(s.chunks)
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				s.chunks <- chunk
			}
			if err != nil {
				s.readErr <- err
				return
			}
		}
	}()

	log.Debug().Str("host", target.Host).Dur("elapsed", time.Since(start)).Msg("session opened")
	return s, nil
}

func authMethods(target Target) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if target.KeyFile != "" {
		pem, err := os.ReadFile(target.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file %s: %w", target.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse key file %s: %w", target.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if target.Password != "" {
		pw := target.Password
		auth = append(auth, ssh.Password(pw))
		// Some devices only offer keyboard-interactive.
		auth = append(auth, ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = pw
			}
			return answers, nil
		}))
	}
	if len(auth) == 0 {
		return nil, errors.New("no credentials for target")
	}
	return auth, nil
}

func classifyDialError(ctx context.Context, err error) ConnectKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ConnectDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ConnectRefused
	}
	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || ctx.Err() != nil {
		return ConnectTimeout
	}
	return ConnectHandshake
}

// Probe waits for the device to settle at a prompt and adopts it.
func (s *SSHSession) Probe(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.opts.ProbeTimeout)
	if err := s.collect(ctx, deadline, nil); err != nil {
		return "", err
	}
	d := s.detector.Check()
	s.detector.SetExpected(d.Prompt)
	log.Debug().Str("host", s.host).Str("prompt", d.Prompt).Msg("prompt adopted")
	return d.Prompt, nil
}

// RunPrologue issues the preamble commands, waiting for the prompt after
// each one. All failures fold into a single PrologueError.
func (s *SSHSession) RunPrologue(ctx context.Context, commands []string) error {
	var merr *multierror.Error
	for _, cmd := range commands {
		if _, err := s.runCommand(ctx, cmd, s.opts.ProbeTimeout); err != nil {
			var cerr *CanceledError
			if errors.As(err, &cerr) {
				return err
			}
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", cmd, err))
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return &PrologueError{Host: s.host, Elapsed: time.Since(s.started), Err: err}
	}
	return nil
}

// Execute runs the command sequence in order and returns the concatenated
// sanitized output, with echoed commands and trailing prompts removed.
func (s *SSHSession) Execute(ctx context.Context, commands []string, perCmd time.Duration) ([]byte, error) {
	var out bytes.Buffer
	for _, cmd := range commands {
		budget := perCmd
		if dl, ok := ctx.Deadline(); ok {
			if remaining := time.Until(dl); remaining < budget {
				budget = remaining
			}
		}
		text, err := s.runCommand(ctx, cmd, budget)
		if err != nil {
			return nil, err
		}
		out.Write(text)
	}
	return out.Bytes(), nil
}

// runCommand writes one command and collects output until the prompt is
// observed again.
func (s *SSHSession) runCommand(ctx context.Context, cmd string, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CanceledError{Host: s.host}
	}

	s.detector.CommandIssued()
	if _, err := s.stdin.Write([]byte(cmd + "\n")); err != nil {
		return nil, &WriteError{Host: s.host, Elapsed: time.Since(s.started), Err: err}
	}

	var out bytes.Buffer
	if err := s.collect(ctx, time.Now().Add(timeout), &out); err != nil {
		return nil, err
	}

	text := out.Bytes()
	// Drop the echoed command line.
	if idx := bytes.IndexByte(text, '\n'); idx >= 0 && strings.TrimSpace(string(text[:idx])) == cmd {
		text = text[idx+1:]
	}
	return StripTrailingPrompt(text, s.detector.Expected()), nil
}

// collect drains the read channel into out (when non-nil) until the
// detector reports the prompt, the deadline passes, or ctx is canceled.
// The channel is polled at least every ReadInterval so the remote side
// never sees backpressure.
func (s *SSHSession) collect(ctx context.Context, deadline time.Time, out *bytes.Buffer) error {
	ticker := time.NewTicker(s.opts.ReadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return &CanceledError{Host: s.host}

		case chunk, open := <-s.chunks:
			if !open {
				err := <-s.readErr
				return &ReadError{Host: s.host, Elapsed: time.Since(s.started), Err: err}
			}
			clean := s.sanitizeChunk(chunk)
			s.detector.Feed(clean)
			if out != nil {
				out.Write(clean)
			}
			s.collected += len(clean)
			if s.opts.MaxOutput > 0 && s.collected > s.opts.MaxOutput {
				return &OutputTooLargeError{Host: s.host, Bytes: s.collected}
			}
			if d := s.detector.Check(); d.Found {
				return nil
			}

		case <-ticker.C:
			if d := s.detector.Check(); d.Found {
				return nil
			}
			if time.Now().After(deadline) {
				return &PromptTimeoutError{
					Host:      s.host,
					Elapsed:   time.Since(s.started),
					LastBytes: s.detector.Tail(120),
				}
			}
		}
	}
}

// sanitizeChunk sanitizes a chunk while holding back a trailing incomplete
// escape sequence so sequences split across reads are stripped whole.
func (s *SSHSession) sanitizeChunk(chunk []byte) []byte {
	buf := append(s.sanCarry, chunk...)
	complete, rest := splitIncompleteEscape(buf)
	s.sanCarry = rest
	return Sanitize(complete)
}

// splitIncompleteEscape splits buf so that any unterminated trailing escape
// sequence lands in rest.
func splitIncompleteEscape(buf []byte) (complete, rest []byte) {
	idx := bytes.LastIndexByte(buf, 0x1b)
	if idx < 0 {
		return buf, nil
	}
	tail := buf[idx:]
	if escapeTerminated(tail) {
		return buf, nil
	}
	return buf[:idx], append([]byte{}, tail...)
}

func escapeTerminated(seq []byte) bool {
	if len(seq) < 2 {
		return false
	}
	switch seq[1] {
	case '[':
		for _, b := range seq[2:] {
			if b >= 0x40 && b <= 0x7e {
				return true
			}
		}
		return false
	case ']':
		if bytes.IndexByte(seq[2:], 0x07) >= 0 {
			return true
		}
		return bytes.Contains(seq[2:], []byte{0x1b, '\\'})
	default:
		return true
	}
}

// Close tears down the shell and transport. Safe to call multiple times
// and on any exit path.
func (s *SSHSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stdin.Close()
		if s.sess != nil {
			s.sess.Close()
		}
		if s.client != nil {
			err = s.client.Close()
		}
		log.Debug().Str("host", s.host).Dur("elapsed", time.Since(s.started)).Msg("session closed")
	})
	return err
}
