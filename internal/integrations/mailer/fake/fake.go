package fake

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BearBump/CampaignBox/internal/integrations/mailer"
)

// DefaultKeep is how many accepted messages New keeps.
const DefaultKeep = 1000

// FakeClient stands in for the mail relay in local runs and tests. It keeps
// the most recent accepted messages in memory and fails for the addresses
// passed to New.
type FakeClient struct {
	mu      sync.Mutex
	sent    []mailer.Message
	keep    int
	failFor map[string]struct{}
}

func New(failFor ...string) *FakeClient {
	f := &FakeClient{keep: DefaultKeep, failFor: map[string]struct{}{}}
	for _, a := range failFor {
		f.failFor[a] = struct{}{}
	}
	return f
}

// WithKeep changes how many messages are retained; older ones are dropped.
func (f *FakeClient) WithKeep(n int) *FakeClient {
	if n > 0 {
		f.keep = n
	}
	return f
}

func (f *FakeClient) Send(ctx context.Context, msg mailer.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := f.failFor[msg.To]; ok {
		return fmt.Errorf("fake mailer: rejected %s", msg.To)
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	if over := len(f.sent) - f.keep; over > 0 {
		f.sent = append(f.sent[:0], f.sent[over:]...)
	}
	f.mu.Unlock()
	slog.Debug("fake mailer accepted message", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (f *FakeClient) Sent() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sent...)
}
