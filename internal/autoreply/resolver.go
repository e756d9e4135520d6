// Package autoreply decides who still needs a reply and runs the
// one-shot scheduled send.
package autoreply

import (
	"context"
	"strings"
	"time"

	"github.com/ezhang/mail-console/internal/mailbox"
	"github.com/ezhang/mail-console/internal/model"
)

// PendingLookback is how far back the resolver searches for unanswered
// senders. It is a fixed policy, not persisted configuration.
const PendingLookback = time.Hour

const (
	fetchRetries    = 2
	fetchBackoff    = time.Second
	maxFetchBackoff = 4 * time.Second
)

// Resolver lists addresses that mailed us recently and were not replied
// to yet.
type Resolver interface {
	ResolvePending(ctx context.Context, start, end time.Time) ([]string, error)
}

// PendingResolver implements Resolver against the remote mailbox.
type PendingResolver struct {
	reader  mailbox.Reader
	folders model.FolderConfig

	// ownAddress is excluded from the inbound side so self-notices and
	// confirmation copies never count as pending senders.
	ownAddress string
}

// NewPendingResolver creates a resolver for the configured mailbox.
func NewPendingResolver(reader mailbox.Reader, cfg model.MailConfig) *PendingResolver {
	return &PendingResolver{
		reader:     reader,
		folders:    cfg.Folders,
		ownAddress: strings.ToLower(cfg.Address),
	}
}

// ResolvePending compares inbound and outbound message counts per
// address over [start, end]. An address is pending when it sent more
// messages than it received replies, so a sender who mailed twice and
// was answered once is still pending. Addresses are normalized to
// lowercase and returned in arbitrary order.
func (r *PendingResolver) ResolvePending(
	ctx context.Context, start, end time.Time,
) ([]string, error) {
	window := mailbox.Window{Start: start, End: end}

	inbound := make(map[string]int)
	for _, folder := range []string{r.folders.Inbox, r.folders.Spam} {
		envelopes, err := r.fetchWithRetry(ctx, folder, window)
		if err != nil {
			return nil, err
		}
		for _, env := range envelopes {
			from := strings.ToLower(env.From)
			if from == r.ownAddress {
				continue
			}
			inbound[from]++
		}
	}

	outbound := make(map[string]int)
	envelopes, err := r.fetchWithRetry(ctx, r.folders.Sent, window)
	if err != nil {
		return nil, err
	}
	for _, env := range envelopes {
		// One sent message counts as one reply per recipient, no
		// matter how often (or in which casing) the address appears
		// in its To list.
		seen := make(map[string]struct{}, len(env.To))
		for _, to := range env.To {
			addr := strings.ToLower(to)
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			outbound[addr]++
		}
	}

	var pending []string
	for addr, count := range inbound {
		if count > outbound[addr] {
			pending = append(pending, addr)
		}
	}

	return pending, nil
}

// fetchWithRetry retries transient mailbox failures with doubling
// backoff. A missing folder is configuration, not weather, so it is not
// retried.
func (r *PendingResolver) fetchWithRetry(
	ctx context.Context, folder string, window mailbox.Window,
) ([]mailbox.Envelope, error) {
	backoff := fetchBackoff

	var lastErr error
	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxFetchBackoff {
				backoff = maxFetchBackoff
			}
		}

		envelopes, err := r.reader.FetchEnvelopes(ctx, folder, window)
		if err == nil {
			return envelopes, nil
		}
		lastErr = err

		if mailbox.IsFolderNotFound(err) {
			break
		}
	}

	return nil, lastErr
}
