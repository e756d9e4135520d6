// Package mailbox reads envelope metadata from a remote IMAP store.
package mailbox

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/ezhang/mail-console/internal/model"
)

// dialTimeout bounds the TCP+TLS handshake against the IMAP server.
const dialTimeout = 15 * time.Second

// Envelope holds the sender, recipients, and date of a single message.
type Envelope struct {
	From string
	To   []string
	Date time.Time
}

// Window is a closed time interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window, inclusive on both
// ends.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Reader lists message envelopes in a named folder within a time window.
type Reader interface {
	FetchEnvelopes(ctx context.Context, folder string, window Window) ([]Envelope, error)
}

// IMAPReader implements Reader against an IMAP server using go-imap v2.
// It opens a fresh connection per call; the caller decides on retries.
type IMAPReader struct {
	host     string
	port     string
	username string
	password string
}

// NewIMAPReader creates a reader for the configured admin mailbox.
func NewIMAPReader(cfg model.MailConfig) *IMAPReader {
	return &IMAPReader{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		username: cfg.Address,
		password: cfg.Password,
	}
}

// connect establishes a TLS connection to the IMAP server and
// authenticates. The context deadline bounds the whole session, not
// just the dial. The caller is responsible for calling Logout on the
// returned client.
func (r *IMAPReader) connect(ctx context.Context) (*imapclient.Client, error) {
	addr := r.host + ":" + r.port

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	bindDeadline(ctx, conn)
	client := imapclient.New(conn, nil)

	if err := client.Login(r.username, r.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	return client, nil
}

// FetchEnvelopes selects folder and returns the envelopes of messages
// dated within window. The server-side SINCE search narrows the UID set
// to day granularity; the precise inclusive window filter is applied
// client-side.
func (r *IMAPReader) FetchEnvelopes(
	ctx context.Context, folder string, window Window,
) ([]Envelope, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		return nil, &FolderNotFoundError{Folder: folder, Err: err}
	}

	criteria := &imap.SearchCriteria{
		Since: window.Start,
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &ConnectError{Addr: r.host + ":" + r.port, Err: err}
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSetNum(uids...)

	fetchOpts := &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	}

	fetchCmd := client.Fetch(uidSet, fetchOpts)

	var envelopes []Envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		env, ok := envelopeFromBuffer(buf)
		if !ok || !window.Contains(env.Date) {
			continue
		}
		envelopes = append(envelopes, env)
	}

	if err := fetchCmd.Close(); err != nil {
		return envelopes, &ConnectError{Addr: r.host + ":" + r.port, Err: err}
	}

	return envelopes, nil
}

// bindDeadline applies the context deadline to the connection so a
// wedged server cannot stall the session past the caller's budget.
func bindDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
// Messages without envelope data or a sender address are skipped.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) (Envelope, bool) {
	if buf.Envelope == nil || len(buf.Envelope.From) == 0 {
		return Envelope{}, false
	}

	env := Envelope{
		From: buf.Envelope.From[0].Addr(),
		Date: buf.Envelope.Date,
	}
	if env.From == "" || env.Date.IsZero() {
		return Envelope{}, false
	}

	for _, to := range buf.Envelope.To {
		if addr := to.Addr(); addr != "" {
			env.To = append(env.To, addr)
		}
	}

	return env, true
}
