package model

import "time"

// AutoReplyConfigID is the fixed primary key of the singleton
// auto-reply configuration record.
const AutoReplyConfigID = 1

// BodyMode selects which body representation the composer uses.
type BodyMode string

const (
	// BodyModeEditor means Body holds HTML rendered by the rich editor.
	BodyModeEditor BodyMode = "editor"

	// BodyModeHTML means RawBody holds hand-written HTML.
	BodyModeHTML BodyMode = "html"
)

// AutoReplyConfig is the singleton auto-reply configuration aggregate.
// At most one record exists, keyed by AutoReplyConfigID.
//
// IsActive is the one-shot arm flag: it is set false immediately after a
// send attempt completes (including the zero-recipient branch), so each
// arm cycle fires at most once.
type AutoReplyConfig struct {
	ID      int64    `json:"-"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	RawBody *string  `json:"rawBody"`
	Mode    BodyMode `json:"mode"`

	// ReplyTime is the stored fire instant in the wire format
	// "<local datetime>@<IANA zone>", e.g.
	// "2025-01-01T09:00@America/Toronto". Parse it with ParseReplyTime
	// before doing any time arithmetic.
	ReplyTime string `json:"replyTime"`

	IsUsingLatestImage bool    `json:"isUsingLatestImage"`
	ImageURL           *string `json:"imageUrl"`
	AttachmentURL      *string `json:"attachmentUrl"`
	IsActive           bool    `json:"isActive"`

	UpdatedAt time.Time `json:"-"`
}

// HTMLBody returns the body to send according to Mode.
func (c *AutoReplyConfig) HTMLBody() string {
	if c.Mode == BodyModeHTML && c.RawBody != nil && *c.RawBody != "" {
		return *c.RawBody
	}
	return c.Body
}
