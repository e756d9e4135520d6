// Package mailer assembles MIME messages and submits them to the
// outbound SMTP transport.
package mailer

import (
	"context"
	"errors"
	"fmt"
)

// Attachment is a named file carried by a message, held in memory.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is an outbound email. Bcc recipients appear only in the SMTP
// envelope, never in the headers.
type Message struct {
	From        string
	DisplayName string
	To          []string
	Bcc         []string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Receipt reports a completed delivery to the transport.
type Receipt struct {
	MessageID string
}

// Sender submits a message to the outbound mail transport.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*Receipt, error)
}

// SendError indicates the outbound transport rejected or failed a send.
// The auto-reply scheduler treats it as retryable: the configuration is
// not disarmed and the next periodic check tries again.
type SendError struct {
	Stage string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsSendError reports whether err (or any error in its chain) is a
// SendError.
func IsSendError(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr)
}
