package observer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrSignatureComputation is returned when a signal cannot be turned into a
// state signature.
var ErrSignatureComputation = errors.New("signature computation failed")

// Signal is one externally visible state indication produced by the target
// after a packet, such as a reply status code or banner.
type Signal interface {
	// Canonical returns the bytes the state signature is computed from. Two
	// signals denote the same state exactly when their canonical bytes are
	// equal.
	Canonical() []byte
	String() string
}

// BytesSignal is a raw reply.
type BytesSignal []byte

func (s BytesSignal) Canonical() []byte {
	return append([]byte{'b'}, s...)
}

func (s BytesSignal) String() string {
	if utf8.Valid(s) {
		return strconv.Quote(string(s))
	}
	return fmt.Sprintf("%x", []byte(s))
}

// StringSignal is a textual state token.
type StringSignal string

func (s StringSignal) Canonical() []byte {
	return append([]byte{'s'}, s...)
}

func (s StringSignal) String() string { return string(s) }

// IntSignal is a numeric state such as a status code.
type IntSignal int64

func (s IntSignal) Canonical() []byte {
	var buf [9]byte
	buf[0] = 'i'
	binary.BigEndian.PutUint64(buf[1:], uint64(s))
	return buf[:]
}

func (s IntSignal) String() string { return strconv.FormatInt(int64(s), 10) }

// Tokens recorded for replies that carry no usable state.
const (
	SilenceToken   StringSignal = "silence"
	MalformedToken StringSignal = "malformed"
)

// Normalizer reduces a raw signal to the part that identifies state.
type Normalizer func(Signal) (Signal, error)

// Raw keeps the signal unchanged.
func Raw(sig Signal) (Signal, error) {
	if sig == nil {
		return nil, fmt.Errorf("%w: nil signal", ErrSignatureComputation)
	}
	return sig, nil
}

// StatusCode keeps the leading three-digit reply code of a text reply, the
// convention of FTP, SMTP and HTTP status lines. Replies without one map to
// MalformedToken. Integer signals pass through.
func StatusCode(sig Signal) (Signal, error) {
	switch s := sig.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil signal", ErrSignatureComputation)
	case IntSignal:
		return s, nil
	case StringSignal:
		return statusOf([]byte(s)), nil
	case BytesSignal:
		return statusOf(s), nil
	}
	return sig, nil
}

func statusOf(reply []byte) Signal {
	reply = bytes.TrimLeft(reply, " \t\r\n")
	// HTTP/1.x status lines carry the code after the version.
	if bytes.HasPrefix(reply, []byte("HTTP/")) {
		if sp := bytes.IndexByte(reply, ' '); sp > 0 {
			reply = reply[sp+1:]
		}
	}
	if len(reply) < 3 {
		return MalformedToken
	}
	code := 0
	for _, c := range reply[:3] {
		if c < '0' || c > '9' {
			return MalformedToken
		}
		code = code*10 + int(c-'0')
	}
	if len(reply) > 3 && reply[3] >= '0' && reply[3] <= '9' {
		return MalformedToken
	}
	return IntSignal(code)
}

// FirstLine keeps the first line of a reply without its line terminator.
func FirstLine(sig Signal) (Signal, error) {
	switch s := sig.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil signal", ErrSignatureComputation)
	case BytesSignal:
		if i := bytes.IndexByte(s, '\n'); i >= 0 {
			s = s[:i]
		}
		return BytesSignal(bytes.TrimRight(s, "\r")), nil
	case StringSignal:
		line, _, _ := strings.Cut(string(s), "\n")
		return StringSignal(strings.TrimRight(line, "\r")), nil
	}
	return sig, nil
}

// ParseNormalizer maps a configuration name to a Normalizer.
func ParseNormalizer(name string) (Normalizer, error) {
	switch strings.ToLower(name) {
	case "", "raw":
		return Raw, nil
	case "status_code":
		return StatusCode, nil
	case "first_line":
		return FirstLine, nil
	}
	return nil, fmt.Errorf("unknown signal normalizer %q", name)
}
