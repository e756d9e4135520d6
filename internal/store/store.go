// Package store persists the singleton auto-reply configuration record.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ezhang/mail-console/internal/model"
)

// ValidationError indicates a save request is missing required fields.
// It maps to HTTP 400 and is never retried.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}

// SaveRequest carries the fields submitted to Save. Nil pointers mean
// the field was absent from the request; AttachmentPresent distinguishes
// an explicit null attachment (clear it) from an absent one.
type SaveRequest struct {
	Subject            *string
	Body               *string
	RawBody            *string
	Mode               *string
	ReplyTime          *string
	IsUsingLatestImage *bool
	ImageURL           *string
	ImagePresent       bool
	AttachmentURL      *string
	AttachmentPresent  bool
	IsActive           *bool
}

// AttachmentOnly reports whether the request updates nothing but the
// attachment reference. Such writes skip full-save validation and leave
// every other field untouched.
func (r *SaveRequest) AttachmentOnly() bool {
	return r.AttachmentPresent &&
		r.Subject == nil &&
		r.Body == nil &&
		r.RawBody == nil &&
		r.Mode == nil &&
		r.ReplyTime == nil &&
		r.IsUsingLatestImage == nil &&
		!r.ImagePresent &&
		r.IsActive == nil
}

// Validate checks the full-save field requirements: subject, a body in
// either representation, mode, replyTime, isUsingLatestImage, isActive.
func (r *SaveRequest) Validate() error {
	var missing []string

	if r.Subject == nil || *r.Subject == "" {
		missing = append(missing, "subject")
	}
	hasBody := r.Body != nil && *r.Body != ""
	hasRawBody := r.RawBody != nil && *r.RawBody != ""
	if !hasBody && !hasRawBody {
		missing = append(missing, "body")
	}
	if r.Mode == nil || *r.Mode == "" {
		missing = append(missing, "mode")
	}
	if r.ReplyTime == nil || *r.ReplyTime == "" {
		missing = append(missing, "replyTime")
	}
	if r.IsUsingLatestImage == nil {
		missing = append(missing, "isUsingLatestImage")
	}
	if r.IsActive == nil {
		missing = append(missing, "isActive")
	}

	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Store is the persistence interface for the auto-reply configuration.
type Store interface {
	// Get returns the configuration record, or nil when none was ever
	// saved.
	Get(ctx context.Context) (*model.AutoReplyConfig, error)

	// Save upserts the singleton record. Attachment-only requests
	// update just the attachment reference; full requests are
	// validated and have their reply time resolved to an absolute
	// instant before persisting.
	Save(ctx context.Context, req SaveRequest) (*model.AutoReplyConfig, error)

	// DisarmIfActive atomically clears isActive, but only if it is
	// still set. It reports whether this call performed the
	// transition, letting concurrent checkers race safely: exactly
	// one wins.
	DisarmIfActive(ctx context.Context) (bool, error)

	Close() error
}
