package mailer

import "context"

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	// Headers are passed through to the provider (campaign and tracking ids).
	Headers map[string]string
}

// Client is the external mail transport. Send either hands the message off
// or returns an error; delivery guarantees beyond that belong to the provider.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
