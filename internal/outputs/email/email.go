package email

import "context"

// Message is a multipart alert email. HTMLBody is optional.
type Message struct {
	From     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	// Headers are extra header fields, such as a run id for correlation.
	Headers map[string]string
}

type Sender interface {
	Send(ctx context.Context, message Message) error
}
