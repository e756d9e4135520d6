package autoreply

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ezhang/mail-console/internal/blob"
	"github.com/ezhang/mail-console/internal/mailer"
	"github.com/ezhang/mail-console/internal/model"
	"github.com/ezhang/mail-console/internal/store"
)

// noticeDisplayName is the From display name on system notices, as
// opposed to the configured display name used on the bulk reply itself.
const noticeDisplayName = "AutoReply System"

// CheckStatus is the outcome of one scheduler check.
type CheckStatus string

const (
	// StatusSkipped means no configuration exists or it is disarmed.
	StatusSkipped CheckStatus = "skipped"

	// StatusPending means the configuration is armed but the fire time
	// has not been reached. The check had no side effects.
	StatusPending CheckStatus = "pending"

	// StatusNoRecipients means the fire time passed but nobody was
	// pending. A notice went to the system mailbox and the
	// configuration was disarmed.
	StatusNoRecipients CheckStatus = "no-recipients"

	// StatusSent means the bulk reply went out and the configuration
	// was disarmed.
	StatusSent CheckStatus = "sent"

	// StatusError means the check failed. The configuration stays
	// armed and the next trigger retries.
	StatusError CheckStatus = "error"
)

// CheckResult is the structured outcome of Scheduler.Check.
type CheckResult struct {
	Status CheckStatus `json:"status"`

	// RemainingMinutes and RemainingDisplay are set on the pending path.
	RemainingMinutes int    `json:"remainingMinutes,omitempty"`
	RemainingDisplay string `json:"remainingTime,omitempty"`

	// Recipients is the BCC set on the sent path.
	Recipients []string `json:"recipients,omitempty"`

	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Scheduler runs the armed/disarmed auto-reply state machine. Check is
// safe to call repeatedly: before the fire time it is side-effect free,
// and after a completed send attempt the compare-and-set disarm ensures
// at most one firing per arm cycle.
type Scheduler struct {
	store    store.Store
	resolver Resolver
	sender   mailer.Sender
	blobs    blob.Store
	mail     model.MailConfig
	log      *slog.Logger

	now func() time.Time
}

// NewScheduler wires the scheduler's collaborators.
func NewScheduler(
	st store.Store,
	resolver Resolver,
	sender mailer.Sender,
	blobs blob.Store,
	mail model.MailConfig,
	log *slog.Logger,
) *Scheduler {
	return &Scheduler{
		store:    st,
		resolver: resolver,
		sender:   sender,
		blobs:    blobs,
		mail:     mail,
		log:      log,
		now:      time.Now,
	}
}

// Check evaluates the auto-reply state machine once.
func (s *Scheduler) Check(ctx context.Context) CheckResult {
	cfg, err := s.store.Get(ctx)
	if err != nil {
		return s.fail("loading auto-reply config", err)
	}
	if cfg == nil || !cfg.IsActive {
		return CheckResult{Status: StatusSkipped}
	}

	fire, err := model.ParseReplyTime(cfg.ReplyTime)
	if err != nil {
		return s.fail("parsing reply time", err)
	}

	now := s.now()
	if !fire.Due(now) {
		remaining := fire.Remaining(now)
		return CheckResult{
			Status:           StatusPending,
			RemainingMinutes: int(remaining.Minutes()),
			RemainingDisplay: formatRemaining(remaining),
		}
	}

	recipients, err := s.resolver.ResolvePending(ctx, now.Add(-PendingLookback), now)
	if err != nil {
		return s.fail("resolving pending recipients", err)
	}

	if len(recipients) == 0 {
		return s.fireEmpty(ctx)
	}
	return s.fireBulk(ctx, cfg, recipients)
}

// fireEmpty handles the due-but-nobody-pending branch: notify self,
// disarm.
func (s *Scheduler) fireEmpty(ctx context.Context) CheckResult {
	notice := &mailer.Message{
		From:        s.mail.Address,
		DisplayName: noticeDisplayName,
		To:          []string{s.mail.Address},
		Subject:     "Auto-reply check: no pending senders",
		HTML: fmt.Sprintf(
			"<p>No senders in the last %s needed an automatic reply.</p>",
			formatRemaining(PendingLookback),
		),
	}
	if _, err := s.sender.Send(ctx, notice); err != nil {
		return s.fail("sending no-recipient notice", err)
	}

	if _, err := s.store.DisarmIfActive(ctx); err != nil {
		return s.fail("disarming after notice", err)
	}

	s.log.Info("auto-reply disarmed without recipients")
	return CheckResult{Status: StatusNoRecipients}
}

// fireBulk sends the configured reply to every pending sender as BCC,
// confirms to the system mailbox, and disarms.
func (s *Scheduler) fireBulk(
	ctx context.Context, cfg *model.AutoReplyConfig, recipients []string,
) CheckResult {
	html := cfg.HTMLBody()
	if cfg.IsUsingLatestImage && cfg.ImageURL != nil {
		html = mailer.AppendImageTag(html, *cfg.ImageURL)
	}

	var attachments []mailer.Attachment
	if cfg.AttachmentURL != nil && *cfg.AttachmentURL != "" {
		att, err := s.fetchAttachment(ctx, *cfg.AttachmentURL)
		if err != nil {
			return s.fail("fetching attachment", err)
		}
		attachments = append(attachments, att)
	}

	receipt, err := s.sender.Send(ctx, &mailer.Message{
		From:        s.mail.Address,
		DisplayName: s.mail.DisplayName,
		To:          []string{s.mail.Address},
		Bcc:         recipients,
		Subject:     cfg.Subject,
		HTML:        html,
		Attachments: attachments,
	})
	if err != nil {
		return s.fail("sending auto-reply", err)
	}

	// The bulk mail is already out. A failed confirmation must not keep
	// the configuration armed, or the next check would mail every
	// recipient again.
	if err := s.sendConfirmation(ctx, cfg, recipients); err != nil {
		s.log.Warn("confirmation mail failed", "error", err)
	}

	if _, err := s.store.DisarmIfActive(ctx); err != nil {
		return s.fail("disarming after send", err)
	}

	s.log.Info("auto-reply sent",
		"recipients", len(recipients), "messageID", receipt.MessageID)

	return CheckResult{
		Status:     StatusSent,
		Recipients: recipients,
		MessageID:  receipt.MessageID,
	}
}

// sendConfirmation mails the system mailbox a summary of what just went
// out.
func (s *Scheduler) sendConfirmation(
	ctx context.Context, cfg *model.AutoReplyConfig, recipients []string,
) error {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>The auto-reply was sent to %d recipients:</p><ul>", len(recipients))
	for _, addr := range recipients {
		fmt.Fprintf(&b, "<li>%s</li>", addr)
	}
	fmt.Fprintf(&b, "</ul><p>Subject: <strong>%s</strong></p>", cfg.Subject)

	_, err := s.sender.Send(ctx, &mailer.Message{
		From:        s.mail.Address,
		DisplayName: noticeDisplayName,
		To:          []string{s.mail.Address},
		Subject:     "Auto-reply sent: " + cfg.Subject,
		HTML:        b.String(),
	})
	return err
}

// fetchAttachment downloads the configured attachment from the blob
// store into memory.
func (s *Scheduler) fetchAttachment(
	ctx context.Context, attachmentURL string,
) (mailer.Attachment, error) {
	key, err := blob.KeyFromURL(attachmentURL)
	if err != nil {
		return mailer.Attachment{}, err
	}

	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return mailer.Attachment{}, err
	}

	return mailer.Attachment{
		Filename:    key,
		ContentType: http.DetectContentType(data),
		Content:     data,
	}, nil
}

// fail logs the failure and wraps it into an error result. The
// configuration is left untouched so the next trigger retries.
func (s *Scheduler) fail(op string, err error) CheckResult {
	s.log.Error("auto-reply check failed", "op", op, "error", err)
	return CheckResult{
		Status: StatusError,
		Error:  fmt.Sprintf("%s: %v", op, err),
	}
}

// formatRemaining renders a duration as "XhYm" for display.
func formatRemaining(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%dh%dm", minutes/60, minutes%60)
}
