package session

import (
	"bytes"
	"strings"
)

// Sanitize strips terminal control sequences from device output and
// normalizes it to valid UTF-8 text:
//
//   - CSI sequences (ESC [ ... final byte) are removed
//   - OSC sequences (ESC ] ... BEL or ESC \) are removed
//   - lone ESC bytes are removed
//   - carriage returns are dropped, so CRLF collapses to LF
//   - malformed byte sequences are replaced with U+FFFD
//
// Sanitize is idempotent: applying it to its own output is a no-op.
func Sanitize(raw []byte) []byte {
	out := make([]byte, 0, len(raw))

	for i := 0; i < len(raw); i++ {
		b := raw[i]
		switch b {
		case 0x1b: // ESC
			if i+1 >= len(raw) {
				continue
			}
			switch raw[i+1] {
			case '[': // CSI: skip parameter/intermediate bytes up to a final byte
				j := i + 2
				for j < len(raw) && !(raw[j] >= 0x40 && raw[j] <= 0x7e) {
					j++
				}
				i = j // consume final byte too
			case ']': // OSC: terminated by BEL or ST (ESC \)
				j := i + 2
				for j < len(raw) {
					if raw[j] == 0x07 {
						break
					}
					if raw[j] == 0x1b && j+1 < len(raw) && raw[j+1] == '\\' {
						j++
						break
					}
					j++
				}
				i = j
			default:
				// Lone ESC: drop the ESC, keep the following byte.
			}
		case '\r':
			// Dropped unconditionally; CRLF becomes LF.
		default:
			out = append(out, b)
		}
	}

	return []byte(strings.ToValidUTF8(string(out), "�"))
}

// lastNonEmptyLine returns the last line of buf that contains any
// non-whitespace byte, with trailing whitespace trimmed.
func lastNonEmptyLine(buf []byte) string {
	lines := bytes.Split(buf, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimRight(lines[i], " \t")
		if len(bytes.TrimSpace(line)) > 0 {
			return string(line)
		}
	}
	return ""
}

// StripTrailingPrompt removes a trailing prompt line from sanitized command
// output and normalizes the final newline.
func StripTrailingPrompt(out []byte, prompt string) []byte {
	if prompt != "" {
		trimmed := bytes.TrimRight(out, " \t")
		if bytes.HasSuffix(trimmed, []byte(prompt)) {
			trimmed = trimmed[:len(trimmed)-len(prompt)]
			out = trimmed
		}
	}
	out = bytes.TrimRight(out, " \t")
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out
}
