package autoreply

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ezhang/mail-console/internal/blob"
	"github.com/ezhang/mail-console/internal/mailer"
	"github.com/ezhang/mail-console/internal/model"
	"github.com/ezhang/mail-console/internal/store"
)

type fakeConfigStore struct {
	mu         sync.Mutex
	cfg        *model.AutoReplyConfig
	getErr     error
	disarmWins int
}

func (f *fakeConfigStore) Get(_ context.Context) (*model.AutoReplyConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.cfg == nil {
		return nil, nil
	}
	cp := *f.cfg
	return &cp, nil
}

func (f *fakeConfigStore) Save(_ context.Context, _ store.SaveRequest) (*model.AutoReplyConfig, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConfigStore) DisarmIfActive(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg != nil && f.cfg.IsActive {
		f.cfg.IsActive = false
		f.disarmWins++
		return true, nil
	}
	return false, nil
}

func (f *fakeConfigStore) Close() error { return nil }

func (f *fakeConfigStore) active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg != nil && f.cfg.IsActive
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*mailer.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *mailer.Message) (*mailer.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &mailer.Receipt{MessageID: "<test@local>"}, nil
}

func (f *fakeSender) messages() []*mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mailer.Message(nil), f.sent...)
}

type fakeResolver struct {
	pending []string
	err     error
}

func (f *fakeResolver) ResolvePending(_ context.Context, _, _ time.Time) ([]string, error) {
	return f.pending, f.err
}

type fakeBlobs struct {
	objects map[string][]byte
}

func (f *fakeBlobs) List(_ context.Context, _, _ int) (*blob.Listing, error) {
	return &blob.Listing{}, nil
}

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) SignUploadURL(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, &blob.FetchError{Key: key, Err: errors.New("no such key")}
	}
	return data, nil
}

func (f *fakeBlobs) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type schedulerFixture struct {
	scheduler *Scheduler
	store     *fakeConfigStore
	sender    *fakeSender
	resolver  *fakeResolver
	blobs     *fakeBlobs
}

func newSchedulerFixture(t *testing.T, cfg *model.AutoReplyConfig, now time.Time) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		store:    &fakeConfigStore{cfg: cfg},
		sender:   &fakeSender{},
		resolver: &fakeResolver{},
		blobs:    &fakeBlobs{objects: make(map[string][]byte)},
	}

	mail := model.MailConfig{
		Address:     "admin@example.com",
		DisplayName: "Evan Zhang",
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f.scheduler = NewScheduler(f.store, f.resolver, f.sender, f.blobs, mail, log)
	f.scheduler.now = func() time.Time { return now }

	return f
}

func armedConfig(replyTime string) *model.AutoReplyConfig {
	return &model.AutoReplyConfig{
		ID:        model.AutoReplyConfigID,
		Subject:   "Out of office",
		Body:      "<p>I will reply soon.</p>",
		Mode:      model.BodyModeEditor,
		ReplyTime: replyTime,
		IsActive:  true,
	}
}

func TestCheckSkipped(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no config", func(t *testing.T) {
		f := newSchedulerFixture(t, nil, now)
		res := f.scheduler.Check(context.Background())
		require.Equal(t, StatusSkipped, res.Status)
		require.Empty(t, f.sender.messages())
	})

	t.Run("disarmed config", func(t *testing.T) {
		cfg := armedConfig("2025-01-01T09:00@UTC")
		cfg.IsActive = false
		f := newSchedulerFixture(t, cfg, now)
		res := f.scheduler.Check(context.Background())
		require.Equal(t, StatusSkipped, res.Status)
		require.Empty(t, f.sender.messages())
	})
}

func TestCheckPendingBeforeDue(t *testing.T) {
	// 06:30 Toronto against a 09:00 Toronto target: 150 minutes out.
	toronto, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 6, 30, 0, 0, toronto)

	f := newSchedulerFixture(t, armedConfig("2025-01-01T09:00@America/Toronto"), now)
	f.resolver.pending = []string{"alice@example.com"}

	for i := 0; i < 3; i++ {
		res := f.scheduler.Check(context.Background())
		require.Equal(t, StatusPending, res.Status)
		require.Equal(t, 150, res.RemainingMinutes)
		require.Equal(t, "2h30m", res.RemainingDisplay)
	}

	require.Empty(t, f.sender.messages(), "pending path must be side-effect free")
	require.True(t, f.store.active(), "pending path must not disarm")
}

func TestCheckNoRecipients(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, armedConfig("2025-01-01T09:00@UTC"), now)

	res := f.scheduler.Check(context.Background())
	require.Equal(t, StatusNoRecipients, res.Status)

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, []string{"admin@example.com"}, msgs[0].To)
	require.Empty(t, msgs[0].Bcc)
	require.False(t, f.store.active(), "zero-recipient branch still disarms")

	// A follow-up check is a no-op.
	require.Equal(t, StatusSkipped, f.scheduler.Check(context.Background()).Status)
	require.Len(t, f.sender.messages(), 1)
}

func TestCheckSendsBulkReply(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := armedConfig("2025-01-01T09:00@UTC")
	attachmentURL := "https://cdn.example.com/report.pdf"
	cfg.AttachmentURL = &attachmentURL

	f := newSchedulerFixture(t, cfg, now)
	f.resolver.pending = []string{"alice@example.com", "bob@example.com", "carol@example.com"}
	f.blobs.objects["report.pdf"] = []byte("%PDF-1.4 fake")

	res := f.scheduler.Check(context.Background())
	require.Equal(t, StatusSent, res.Status)
	require.ElementsMatch(t, f.resolver.pending, res.Recipients)
	require.NotEmpty(t, res.MessageID)

	msgs := f.sender.messages()
	require.Len(t, msgs, 2, "bulk reply plus confirmation")

	bulk := msgs[0]
	require.Equal(t, "Out of office", bulk.Subject)
	require.Equal(t, "Evan Zhang", bulk.DisplayName)
	require.Equal(t, []string{"admin@example.com"}, bulk.To)
	require.ElementsMatch(t, f.resolver.pending, bulk.Bcc)
	require.Len(t, bulk.Attachments, 1)
	require.Equal(t, "report.pdf", bulk.Attachments[0].Filename)
	require.Equal(t, []byte("%PDF-1.4 fake"), bulk.Attachments[0].Content)

	confirmation := msgs[1]
	require.Equal(t, []string{"admin@example.com"}, confirmation.To)
	require.Empty(t, confirmation.Bcc)
	require.Contains(t, confirmation.HTML, "alice@example.com")
	require.Contains(t, confirmation.Subject, "Out of office")

	require.False(t, f.store.active())

	// Each arm cycle fires at most once.
	require.Equal(t, StatusSkipped, f.scheduler.Check(context.Background()).Status)
	require.Len(t, f.sender.messages(), 2)
}

func TestCheckAppendsLatestImage(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := armedConfig("2025-01-01T09:00@UTC")
	imageURL := "https://cdn.example.com/20250101000000.png"
	cfg.IsUsingLatestImage = true
	cfg.ImageURL = &imageURL

	f := newSchedulerFixture(t, cfg, now)
	f.resolver.pending = []string{"alice@example.com"}

	res := f.scheduler.Check(context.Background())
	require.Equal(t, StatusSent, res.Status)

	bulk := f.sender.messages()[0]
	require.Contains(t, bulk.HTML, imageURL)
	require.Equal(t, 1, strings.Count(bulk.HTML, imageURL))
}

func TestCheckRawBodyMode(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := armedConfig("2025-01-01T09:00@UTC")
	raw := "<div>hand written</div>"
	cfg.Mode = model.BodyModeHTML
	cfg.RawBody = &raw

	f := newSchedulerFixture(t, cfg, now)
	f.resolver.pending = []string{"alice@example.com"}

	f.scheduler.Check(context.Background())
	require.Equal(t, raw, f.sender.messages()[0].HTML)
}

func TestCheckFailuresKeepConfigArmed(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("send failure", func(t *testing.T) {
		f := newSchedulerFixture(t, armedConfig("2025-01-01T09:00@UTC"), now)
		f.resolver.pending = []string{"alice@example.com"}
		f.sender.err = &mailer.SendError{Stage: "data", Err: errors.New("connection reset")}

		res := f.scheduler.Check(context.Background())
		require.Equal(t, StatusError, res.Status)
		require.NotEmpty(t, res.Error)
		require.True(t, f.store.active(), "failures must not disarm")
	})

	t.Run("resolver failure", func(t *testing.T) {
		f := newSchedulerFixture(t, armedConfig("2025-01-01T09:00@UTC"), now)
		f.resolver.err = errors.New("imap unreachable")

		res := f.scheduler.Check(context.Background())
		require.Equal(t, StatusError, res.Status)
		require.True(t, f.store.active())
		require.Empty(t, f.sender.messages())
	})

	t.Run("missing attachment aborts before any send", func(t *testing.T) {
		cfg := armedConfig("2025-01-01T09:00@UTC")
		attachmentURL := "https://cdn.example.com/gone.pdf"
		cfg.AttachmentURL = &attachmentURL

		f := newSchedulerFixture(t, cfg, now)
		f.resolver.pending = []string{"alice@example.com"}

		res := f.scheduler.Check(context.Background())
		require.Equal(t, StatusError, res.Status)
		require.Empty(t, f.sender.messages())
		require.True(t, f.store.active())
	})
}

func TestConcurrentChecksDisarmOnce(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	f := newSchedulerFixture(t, armedConfig("2025-01-01T09:00@UTC"), now)
	f.resolver.pending = []string{"alice@example.com"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.scheduler.Check(context.Background())
		}()
	}
	wg.Wait()

	// Overlapping checks may both reach the send, but the conditional
	// disarm transitions exactly once and the config ends disarmed.
	require.False(t, f.store.active())
	require.Equal(t, 1, f.store.disarmWins)
}
