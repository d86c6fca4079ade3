package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// ErrInvalidActivity is returned when an activity fails validation.
var ErrInvalidActivity = errors.New("feed: invalid activity")

// Verb is what the actor did.
type Verb string

const (
	VerbCreated   Verb = "created"
	VerbFollowed  Verb = "followed"
	VerbConnected Verb = "connected"
)

// SubjectType tags the variant carried in Activity.Subject.
type SubjectType string

const (
	SubjectChannel SubjectType = "channel"
	SubjectUser    SubjectType = "user"
	SubjectBlock   SubjectType = "block"
)

// Subject is the entity an activity is about. Feeds reference entities by
// ID plus a few display fields; they never own them.
type Subject interface {
	SubjectType() SubjectType
	SubjectID() int64
	isSubject()
}

// ChannelSubject references a channel.
type ChannelSubject struct {
	ID      int64  `json:"id"`
	Title   string `json:"title,omitempty"`
	OwnerID int64  `json:"ownerId,omitempty"`
}

func (ChannelSubject) SubjectType() SubjectType { return SubjectChannel }
func (s ChannelSubject) SubjectID() int64       { return s.ID }
func (ChannelSubject) isSubject()               {}

// Validate implements validation.Validatable.
func (s ChannelSubject) Validate() error {
	return validation.ValidateStruct(&s, validation.Field(&s.ID, validation.Required, validation.Min(int64(1))))
}

// UserSubject references a user.
type UserSubject struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

func (UserSubject) SubjectType() SubjectType { return SubjectUser }
func (s UserSubject) SubjectID() int64       { return s.ID }
func (UserSubject) isSubject()               {}

// Validate implements validation.Validatable.
func (s UserSubject) Validate() error {
	return validation.ValidateStruct(&s, validation.Field(&s.ID, validation.Required, validation.Min(int64(1))))
}

// BlockSubject references a block connected to a channel.
type BlockSubject struct {
	ID        int64  `json:"id"`
	ChannelID int64  `json:"channelId"`
	Title     string `json:"title,omitempty"`
}

func (BlockSubject) SubjectType() SubjectType { return SubjectBlock }
func (s BlockSubject) SubjectID() int64       { return s.ID }
func (BlockSubject) isSubject()               {}

// Validate implements validation.Validatable.
func (s BlockSubject) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&s.ChannelID, validation.Required, validation.Min(int64(1))),
	)
}

// Activity is one entry of a feed: actor did verb to subject at timestamp.
type Activity struct {
	ID        string
	ActorID   int64
	Verb      Verb
	Subject   Subject
	Timestamp time.Time
}

// NewActivity builds an activity with a fresh ID. The timestamp keeps its
// full precision; only the feed score is in milliseconds.
func NewActivity(actorID int64, verb Verb, subject Subject, at time.Time) Activity {
	return Activity{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Verb:      verb,
		Subject:   subject,
		Timestamp: at.Round(0).UTC(),
	}
}

// Score orders activities inside a feed: the timestamp in Unix milliseconds.
// Activities sharing a score are ordered by ID.
func (a Activity) Score() int64 {
	return a.Timestamp.UnixMilli()
}

// Validate checks the activity before it is fanned out. Failures match
// ErrInvalidActivity and carry the validation.Errors detail.
func (a Activity) Validate() error {
	err := validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required, validation.By(isUUID)),
		validation.Field(&a.ActorID, validation.Required, validation.Min(int64(1))),
		validation.Field(&a.Verb, validation.Required, validation.In(VerbCreated, VerbFollowed, VerbConnected)),
		validation.Field(&a.Subject, validation.Required),
		validation.Field(&a.Timestamp, validation.Required),
	)
	if err != nil {
		return errors.Join(ErrInvalidActivity, err)
	}
	return nil
}

func isUUID(value any) error {
	s, _ := value.(string)
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
}

type activityJSON struct {
	ID          string          `json:"id"`
	Actor       int64           `json:"actor"`
	Verb        Verb            `json:"verb"`
	SubjectType SubjectType     `json:"subjectType"`
	Subject     json.RawMessage `json:"subject"`
	Timestamp   time.Time       `json:"timestamp"`
}

// MarshalJSON encodes the subject next to its type tag.
func (a Activity) MarshalJSON() ([]byte, error) {
	out := activityJSON{
		ID:        a.ID,
		Actor:     a.ActorID,
		Verb:      a.Verb,
		Timestamp: a.Timestamp,
		Subject:   json.RawMessage("null"),
	}
	if a.Subject != nil {
		raw, err := json.Marshal(a.Subject)
		if err != nil {
			return nil, err
		}
		out.SubjectType = a.Subject.SubjectType()
		out.Subject = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the subject variant named by subjectType.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var in activityJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	subject, err := decodeSubject(in.SubjectType, in.Subject)
	if err != nil {
		return err
	}

	*a = Activity{
		ID:        in.ID,
		ActorID:   in.Actor,
		Verb:      in.Verb,
		Subject:   subject,
		Timestamp: in.Timestamp,
	}
	return nil
}

func decodeSubject(t SubjectType, raw json.RawMessage) (Subject, error) {
	if t == "" {
		return nil, nil
	}
	switch t {
	case SubjectChannel:
		var s ChannelSubject
		err := json.Unmarshal(raw, &s)
		return s, err
	case SubjectUser:
		var s UserSubject
		err := json.Unmarshal(raw, &s)
		return s, err
	case SubjectBlock:
		var s BlockSubject
		err := json.Unmarshal(raw, &s)
		return s, err
	default:
		return nil, fmt.Errorf("feed: unknown subject type %q", t)
	}
}
