// Package platform defines the boundary between ingestion and the messaging
// platform client. Workers drive a Session; the concrete MTProto adapter
// lives in the mtproto subpackage and tests substitute fakes.
package platform

import (
	"context"
	"fmt"
	"time"
)

// Message is a decoded chat event in canonical form. Dates are ISO-8601 UTC
// second precision. Nil pointer fields are absent values.
type Message struct {
	ID          int64
	GroupID     int64
	SenderID    *int64
	SenderName  string
	Text        *string
	Date        string
	MediaType   *string
	ForwardFrom *string
	ReplyToID   *int64
}

// GroupRef identifies a group to resolve: numeric id or public username.
type GroupRef struct {
	ID       int64
	Username string
}

// GroupInfo is resolved group metadata.
type GroupInfo struct {
	ID          int64
	Title       string
	Username    string
	MemberCount int
}

// Handlers receives live events. A handler must not block the update stream;
// heavy work happens on the worker side.
type Handlers struct {
	// OnNewMessage receives decoded non-service messages.
	OnNewMessage func(m *Message)
	// OnEditMessage receives text edits.
	OnEditMessage func(groupID, id int64, newText string, newMediaType *string)
	// OnDeleteMessages receives delete events. scoped reports whether the
	// platform identified the group; when false groupID is meaningless and
	// the caller probes every monitored group.
	OnDeleteMessages func(groupID int64, ids []int64, scoped bool)
}

// Session is one authenticated platform connection.
type Session interface {
	// SetHandlers registers the live event handlers. Must be called before
	// Run.
	SetHandlers(h Handlers)
	// Run connects and authenticates, calls ready once the session is
	// usable, then blocks delivering updates until the connection drops or
	// ctx is canceled. A dropped connection returns a non-nil error.
	Run(ctx context.Context, ready func(ctx context.Context) error) error
	// Resolve maps a configured group reference to canonical metadata.
	Resolve(ctx context.Context, ref GroupRef) (*GroupInfo, error)
	// History walks a group's history backward from now, returning decoded
	// messages newer than stopAt (exclusive), at most limit. stopAt "" means
	// no date bound.
	History(ctx context.Context, groupID int64, limit int, stopAt string) ([]*Message, error)
}

// RateLimitError is a platform rate limit carrying a mandatory wait. The
// wait replaces any backoff schedule.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, wait %s", e.Wait)
}

// ISOTime renders t in the canonical timestamp format.
func ISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
