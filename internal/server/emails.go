package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ezhang/mail-console/internal/autoreply"
	"github.com/ezhang/mail-console/internal/blob"
	"github.com/ezhang/mail-console/internal/mailbox"
	"github.com/ezhang/mail-console/internal/mailer"
	"github.com/ezhang/mail-console/internal/store"
)

// maxSendMemory bounds how much of a multipart send request is held in
// memory before spilling to disk.
const maxSendMemory = 32 << 20

// handleAutoReplyCheck runs the scheduler state machine once.
func (s *Server) handleAutoReplyCheck(c *gin.Context) {
	result := s.deps.Checker.Check(c.Request.Context())

	status := http.StatusOK
	if result.Status == autoreply.StatusError {
		status = http.StatusInternalServerError
	}
	c.JSON(status, result)
}

// handleAutoReplyGet returns the saved configuration in an
// {exists, data} envelope.
func (s *Server) handleAutoReplyGet(c *gin.Context) {
	cfg, err := s.deps.Store.Get(c.Request.Context())
	if err != nil {
		s.failInternal(c, "auto-reply get", err)
		return
	}
	if cfg == nil {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": true, "data": cfg})
}

// handleAutoReplySave persists the configuration. Key presence matters:
// an attachmentUrl-only payload updates just the attachment, and an
// explicit null clears it, so the body is inspected before binding.
func (s *Server) handleAutoReplySave(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	req, err := saveRequestFromJSON(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := s.deps.Store.Save(c.Request.Context(), req)
	if err != nil {
		if store.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.failInternal(c, "auto-reply save", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "setting": cfg})
}

// saveRequestFromJSON maps present JSON keys onto the save request,
// keeping absent and explicit-null fields distinguishable.
func saveRequestFromJSON(raw map[string]json.RawMessage) (store.SaveRequest, error) {
	var req store.SaveRequest
	var err error

	if req.Subject, _, err = jsonString(raw, "subject"); err != nil {
		return req, err
	}
	if req.Body, _, err = jsonString(raw, "body"); err != nil {
		return req, err
	}
	if req.RawBody, _, err = jsonString(raw, "rawBody"); err != nil {
		return req, err
	}
	if req.Mode, _, err = jsonString(raw, "mode"); err != nil {
		return req, err
	}
	if req.ReplyTime, _, err = jsonString(raw, "replyTime"); err != nil {
		return req, err
	}
	if req.IsUsingLatestImage, _, err = jsonBool(raw, "isUsingLatestImage"); err != nil {
		return req, err
	}
	if req.ImageURL, req.ImagePresent, err = jsonString(raw, "imageUrl"); err != nil {
		return req, err
	}
	if req.AttachmentURL, req.AttachmentPresent, err = jsonString(raw, "attachmentUrl"); err != nil {
		return req, err
	}
	if req.IsActive, _, err = jsonBool(raw, "isActive"); err != nil {
		return req, err
	}

	return req, nil
}

func jsonString(raw map[string]json.RawMessage, key string) (*string, bool, error) {
	v, ok := raw[key]
	if !ok {
		return nil, false, nil
	}
	var s *string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, true, fmt.Errorf("field %q must be a string", key)
	}
	return s, true, nil
}

func jsonBool(raw map[string]json.RawMessage, key string) (*bool, bool, error) {
	v, ok := raw[key]
	if !ok {
		return nil, false, nil
	}
	var b *bool
	if err := json.Unmarshal(v, &b); err != nil {
		return nil, true, fmt.Errorf("field %q must be a boolean", key)
	}
	return b, true, nil
}

// handleSend performs a manual send from a multipart form: recipients
// as a JSON array, subject, body, optional local files under
// "attachments", and an optional blob-hosted attachment referenced by
// attachmentUrl + attachmentName.
func (s *Server) handleSend(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxSendMemory); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	var recipients []string
	if raw := c.PostForm("recipients"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &recipients); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON format for recipients"})
			return
		}
	}

	subject := c.PostForm("subject")
	body := c.PostForm("body")
	if len(recipients) == 0 || subject == "" || body == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing required fields: recipients, subject, or body",
		})
		return
	}

	var attachments []mailer.Attachment
	if form := c.Request.MultipartForm; form != nil {
		for _, fh := range form.File["attachments"] {
			att, err := readUpload(fh)
			if err != nil {
				s.failInternal(c, "reading upload", err)
				return
			}
			attachments = append(attachments, att)
		}
	}

	attachmentURL := c.PostForm("attachmentUrl")
	attachmentName := c.PostForm("attachmentName")
	if attachmentURL != "" && attachmentName != "" {
		att, err := s.fetchBlobAttachment(c, attachmentURL, attachmentName)
		if err != nil {
			s.failInternal(c, "fetching attachment", err)
			return
		}
		attachments = append(attachments, att)
	}

	receipt, err := s.deps.Sender.Send(c.Request.Context(), &mailer.Message{
		From:        s.deps.Mail.Address,
		DisplayName: s.deps.Mail.DisplayName,
		To:          recipients,
		Subject:     subject,
		HTML:        body,
		Attachments: attachments,
	})
	if err != nil {
		s.failInternal(c, "sending email", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": receipt.MessageID})
}

// readUpload loads one uploaded file into memory.
func readUpload(fh *multipart.FileHeader) (mailer.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return mailer.Attachment{}, fmt.Errorf("opening upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return mailer.Attachment{}, fmt.Errorf("reading upload %q: %w", fh.Filename, err)
	}

	return mailer.Attachment{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     data,
	}, nil
}

// fetchBlobAttachment downloads a hosted attachment for a manual send.
func (s *Server) fetchBlobAttachment(
	c *gin.Context, attachmentURL, attachmentName string,
) (mailer.Attachment, error) {
	key, err := blob.KeyFromURL(attachmentURL)
	if err != nil {
		return mailer.Attachment{}, err
	}

	data, err := s.deps.Blobs.Get(c.Request.Context(), key)
	if err != nil {
		return mailer.Attachment{}, err
	}

	return mailer.Attachment{
		Filename:    attachmentName,
		ContentType: http.DetectContentType(data),
		Content:     data,
	}, nil
}

// byDateRequest is the {start, end} body of the by-date route.
type byDateRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// byDateEntry is one received message in the by-date response.
type byDateEntry struct {
	Time  time.Time `json:"time"`
	Email string    `json:"email"`
}

// handleByDate lists who mailed us between two instants, across inbox
// and spam.
func (s *Server) handleByDate(c *gin.Context) {
	var req byDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start or end time"})
		return
	}
	if req.Start.IsZero() || req.End.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing start or end time"})
		return
	}

	window := mailbox.Window{Start: req.Start, End: req.End}

	entries := []byDateEntry{}
	for _, folder := range []string{s.deps.Mail.Folders.Inbox, s.deps.Mail.Folders.Spam} {
		envelopes, err := s.deps.Reader.FetchEnvelopes(c.Request.Context(), folder, window)
		if err != nil {
			s.failInternal(c, "reading mailbox", err)
			return
		}
		for _, env := range envelopes {
			entries = append(entries, byDateEntry{
				Time:  env.Date.UTC(),
				Email: env.From,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{"emails": entries})
}

// handlePendingRecipients returns who would receive the auto-reply if
// it fired right now.
func (s *Server) handlePendingRecipients(c *gin.Context) {
	now := time.Now()
	pending, err := s.deps.Resolver.ResolvePending(
		c.Request.Context(), now.Add(-autoreply.PendingLookback), now)
	if err != nil {
		s.failInternal(c, "resolving pending recipients", err)
		return
	}

	if pending == nil {
		pending = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"emails": pending})
}
