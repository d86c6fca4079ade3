package cursor

import (
	"strconv"
	"strings"
	"time"
)

// tieSeparator joins a timestamp and its tie-breaker in the text form. It
// never occurs in RFC3339 output.
const tieSeparator = "|"

// Kind identifies how a Position is ordered.
type Kind uint8

const (
	// KindTime positions order by timestamp.
	KindTime Kind = iota + 1
	// KindID positions order by a monotonically increasing numeric ID.
	KindID
)

// Position is the resume point of a descending listing: the last item a
// client has seen. Listings return items strictly older (or lower) than it.
type Position struct {
	kind   Kind
	at     time.Time
	id     int64
	tie    string
	origin bool
}

// At returns a timestamp position. The monotonic clock reading is dropped and
// the value normalised to UTC so it survives encoding unchanged.
func At(t time.Time) Position {
	return Position{kind: KindTime, at: t.Round(0).UTC()}
}

// WithTie attaches a tie-breaker to a timestamp position. Items sharing the
// timestamp are ordered by their tie-breaker, so a listing can resume in the
// middle of a run of equal timestamps. Non-time positions are returned as is.
func (p Position) WithTie(tie string) Position {
	if p.kind != KindTime {
		return p
	}
	p.tie = tie
	return p
}

// Tie returns the tie-breaker of a timestamp position, empty when none was set.
func (p Position) Tie() string {
	return p.tie
}

// ID returns a numeric position.
func ID(id int64) Position {
	return Position{kind: KindID, id: id}
}

// Kind reports the ordering kind of the position.
func (p Position) Kind() Kind {
	return p.kind
}

// Time returns the timestamp of a KindTime position and false otherwise.
func (p Position) Time() (time.Time, bool) {
	return p.at, p.kind == KindTime
}

// IDValue returns the numeric value of a KindID position and false otherwise.
func (p Position) IDValue() (int64, bool) {
	return p.id, p.kind == KindID
}

// IsOrigin reports whether the position was substituted by the codec because
// the client sent no cursor or an unreadable one. Origin positions mark the
// first page of a listing.
func (p Position) IsOrigin() bool {
	return p.origin
}

// IsZero reports whether p carries no position at all.
func (p Position) IsZero() bool {
	return p.kind == 0
}

// Equal compares kind and value. The origin marker is not part of identity.
func (p Position) Equal(o Position) bool {
	if p.kind != o.kind {
		return false
	}
	switch p.kind {
	case KindTime:
		return p.at.Equal(o.at) && p.tie == o.tie
	case KindID:
		return p.id == o.id
	default:
		return true
	}
}

// String returns the plain text form that is wrapped by Encode.
func (p Position) String() string {
	switch p.kind {
	case KindTime:
		text := p.at.Format(time.RFC3339Nano)
		if p.tie != "" {
			text += tieSeparator + p.tie
		}
		return text
	case KindID:
		return strconv.FormatInt(p.id, 10)
	default:
		return ""
	}
}

// Before reports whether the given timestamp sorts strictly after p in a
// descending listing, i.e. t is older than p. Non-time positions never bound
// time ordered collections.
func (p Position) Before(t time.Time) bool {
	if p.kind != KindTime {
		return true
	}
	return t.Before(p.at)
}

// Below reports whether id sorts strictly after p in a descending ID
// listing. Timestamp positions (including the "now" origin) do not bound ID
// ordered collections.
func (p Position) Below(id int64) bool {
	if p.kind != KindID {
		return true
	}
	return id < p.id
}

func splitTie(text string) (string, string) {
	at, tie, _ := strings.Cut(text, tieSeparator)
	return at, tie
}
