package cursor

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned by Decode when a token cannot be turned back
// into a position.
var ErrInvalidCursor = errors.New("cursor: invalid token")

// Codec converts positions to opaque, URL safe tokens and back.
type Codec struct {
	now func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock overrides the clock used for the default "now" position.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a Codec using the wall clock unless overridden.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode wraps the text form of p in unpadded URL safe base64.
func (c *Codec) Encode(p Position) string {
	if p.IsZero() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(p.String()))
}

// Decode parses a token produced by Encode. An empty token is not an error:
// it yields the origin position "now". Tokens minted with padded or standard
// alphabet base64 are accepted as well.
func (c *Codec) Decode(token string) (Position, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return c.origin(), nil
	}

	raw, err := decodeBase64(token)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	text := string(raw)
	if text == "" {
		return Position{}, fmt.Errorf("%w: empty payload", ErrInvalidCursor)
	}

	if isDigits(text) {
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Position{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		return ID(id), nil
	}

	at, tie := splitTie(text)
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return At(t).WithTie(tie), nil
}

// Resolve decodes token and recovers from ErrInvalidCursor by starting over
// from the origin. It never fails.
func (c *Codec) Resolve(token string) Position {
	p, err := c.Decode(token)
	if err != nil {
		return c.origin()
	}
	return p
}

func (c *Codec) origin() Position {
	p := At(c.now())
	p.origin = true
	return p
}

func decodeBase64(token string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(token)
		if err == nil {
			return raw, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func isDigits(s string) bool {
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
