package alert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bakkerme/matchday/internal/core"
	"github.com/bakkerme/matchday/internal/outputs/email"
)

const (
	subjectPrefix = "[matchday] "
	runIDHeader   = "X-Matchday-Run-ID"
)

// Notifier tells an operator that something needs attention. Body is Markdown.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// EmailNotifier sends alerts as text+HTML email.
type EmailNotifier struct {
	sender    email.Sender
	from      string
	to        string
	converter goldmark.Markdown
}

func NewEmailNotifier(sender email.Sender, from, to string) (*EmailNotifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("alert recipient is required")
	}
	return &EmailNotifier{
		sender:    sender,
		from:      from,
		to:        to,
		converter: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

func (n *EmailNotifier) Notify(ctx context.Context, subject, body string) error {
	var html bytes.Buffer
	if err := n.converter.Convert([]byte(body), &html); err != nil {
		return fmt.Errorf("render alert markdown: %w", err)
	}
	message := email.Message{
		From:     n.from,
		To:       n.to,
		Subject:  subjectPrefix + subject,
		TextBody: body,
		HTMLBody: html.String(),
	}
	if runID := core.RunIDFromContext(ctx); runID != "" {
		message.Headers = map[string]string{runIDHeader: runID}
	}
	if err := n.sender.Send(ctx, message); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the log when no mail transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, subject, body string) error {
	core.LoggerFromContext(ctx).Error("alert", "subject", subject, "body", body)
	return nil
}
