package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/ezhang/mail-console/internal/model"
)

// dialTimeout bounds the TCP+TLS handshake against the submission
// server.
const dialTimeout = 15 * time.Second

// SMTPSender implements Sender against a submission server. Port 465
// uses implicit TLS; anything else goes through STARTTLS. A fresh
// connection is opened per send.
type SMTPSender struct {
	host     string
	port     string
	username string
	password string
}

// NewSMTPSender creates a sender authenticated as the admin mailbox.
func NewSMTPSender(cfg model.MailConfig) *SMTPSender {
	return &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Address,
		password: cfg.Password,
	}
}

// Send builds the MIME message and submits it. The envelope recipient
// list is To plus Bcc; Bcc addresses are not written into the headers.
// The context deadline bounds the whole SMTP dialogue, not just the
// dial.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	msgID := fmt.Sprintf("%s@%s", uuid.New().String(), s.host)

	raw, err := buildMIME(msg, msgID)
	if err != nil {
		return nil, &SendError{Stage: "compose", Err: err}
	}

	addr := s.host + ":" + s.port
	dialer := &net.Dialer{Timeout: dialTimeout}

	var client *smtp.Client
	if s.port == "465" {
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
		if err != nil {
			return nil, &SendError{Stage: "dial", Err: err}
		}
		bindDeadline(ctx, conn)
		client = smtp.NewClient(conn)
	} else {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &SendError{Stage: "dial", Err: err}
		}
		bindDeadline(ctx, conn)
		client, err = smtp.NewClientStartTLS(conn, &tls.Config{ServerName: s.host})
		if err != nil {
			return nil, &SendError{Stage: "starttls", Err: err}
		}
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", s.username, s.password)
	if err := client.Auth(auth); err != nil {
		return nil, &SendError{Stage: "auth", Err: err}
	}

	if err := client.Mail(msg.From, nil); err != nil {
		return nil, &SendError{Stage: "mail", Err: err}
	}

	rcpts := make([]string, 0, len(msg.To)+len(msg.Bcc))
	rcpts = append(rcpts, msg.To...)
	rcpts = append(rcpts, msg.Bcc...)
	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return nil, &SendError{Stage: "rcpt", Err: err}
		}
	}

	writer, err := client.Data()
	if err != nil {
		return nil, &SendError{Stage: "data", Err: err}
	}
	if _, err := writer.Write(raw); err != nil {
		_ = writer.Close()
		return nil, &SendError{Stage: "data", Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &SendError{Stage: "data", Err: err}
	}

	if err := client.Quit(); err != nil {
		return nil, &SendError{Stage: "quit", Err: err}
	}

	return &Receipt{MessageID: msgID}, nil
}

// bindDeadline applies the context deadline to the connection so a
// wedged server cannot stall the session past the caller's budget.
func bindDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}

// buildMIME renders the message as an RFC 5322 document with an inline
// HTML part followed by attachment parts.
func buildMIME(msg *Message, msgID string) ([]byte, error) {
	var buf bytes.Buffer

	from := &mail.Address{Name: msg.DisplayName, Address: msg.From}
	to := make([]*mail.Address, 0, len(msg.To))
	for _, addr := range msg.To {
		to = append(to, &mail.Address{Address: addr})
	}

	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{from})
	if len(to) > 0 {
		header.SetAddressList("To", to)
	}
	header.SetSubject(msg.Subject)
	header.SetMessageID(msgID)

	mw, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	var inlineHeader mail.InlineHeader
	inlineHeader.Set("Content-Type", "text/html; charset=utf-8")

	body, err := mw.CreateSingleInline(inlineHeader)
	if err != nil {
		return nil, fmt.Errorf("creating body part: %w", err)
	}
	if _, err := io.WriteString(body, msg.HTML); err != nil {
		return nil, fmt.Errorf("writing body: %w", err)
	}
	if err := body.Close(); err != nil {
		return nil, fmt.Errorf("closing body part: %w", err)
	}

	for _, att := range msg.Attachments {
		var attHeader mail.AttachmentHeader
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attHeader.Set("Content-Type", contentType)
		attHeader.SetFilename(att.Filename)

		part, err := mw.CreateAttachment(attHeader)
		if err != nil {
			return nil, fmt.Errorf("creating attachment %s: %w", att.Filename, err)
		}
		if _, err := part.Write(att.Content); err != nil {
			return nil, fmt.Errorf("writing attachment %s: %w", att.Filename, err)
		}
		if err := part.Close(); err != nil {
			return nil, fmt.Errorf("closing attachment %s: %w", att.Filename, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing message writer: %w", err)
	}

	return buf.Bytes(), nil
}
