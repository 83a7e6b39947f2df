package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/bakkerme/matchday/internal/config"
	"github.com/bakkerme/matchday/internal/outputs/email"
)

// TLSMode determines how the SMTP client should negotiate TLS.
type TLSMode string

const (
	// TLSModeAuto uses implicit TLS on 465 and STARTTLS otherwise.
	TLSModeAuto     TLSMode = "auto"
	TLSModeDisabled TLSMode = "disabled"
	TLSModeStartTLS TLSMode = "starttls"
	TLSModeImplicit TLSMode = "implicit"
)

// Sender delivers alert emails over SMTP.
type Sender struct {
	cfg  config.SMTPEnvConfig
	mode TLSMode
}

func NewSender(cfg config.SMTPEnvConfig) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port must be positive")
	}
	mode, err := resolveTLSMode(cfg.TLSMode, cfg.Port)
	if err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, mode: mode}, nil
}

func (s *Sender) Send(ctx context.Context, message email.Message) error {
	msg, err := s.buildMessage(message)
	if err != nil {
		return err
	}
	err = s.dialAndSend(ctx, msg, s.cfg.User != "")
	if err == nil {
		return nil
	}
	// Local sinks such as mailpit refuse AUTH; a shared env often still sets credentials.
	if s.cfg.User != "" && isAuthUnsupported(err) && isLocalDevSMTPHost(s.cfg.Host) {
		if retryErr := s.dialAndSend(ctx, msg, false); retryErr == nil {
			return nil
		}
	}
	return err
}

func (s *Sender) buildMessage(message email.Message) (*mail.Msg, error) {
	from := message.From
	if from == "" {
		from = s.cfg.User
	}
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := m.EnvelopeFrom(from); err != nil {
		return nil, fmt.Errorf("invalid envelope from address %q: %w", from, err)
	}
	if err := m.ToFromString(message.To); err != nil {
		return nil, fmt.Errorf("invalid to address(es) %q: %w", message.To, err)
	}
	m.Subject(message.Subject)
	for name, value := range message.Headers {
		m.SetGenHeader(mail.Header(name), value)
	}
	m.SetBodyString(mail.TypeTextPlain, message.TextBody)
	if message.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, message.HTMLBody)
	}
	return m, nil
}

func (s *Sender) dialAndSend(ctx context.Context, msg *mail.Msg, withAuth bool) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSConfig(&tls.Config{
			ServerName:         s.cfg.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.cfg.InsecureSkipVerify,
		}),
	}
	switch s.mode {
	case TLSModeDisabled:
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	case TLSModeStartTLS:
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	case TLSModeImplicit:
		opts = append(opts, mail.WithSSL())
	}
	if withAuth {
		opts = append(opts,
			mail.WithUsername(s.cfg.User),
			mail.WithPassword(s.cfg.Password),
			mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email via %s: %w", s.cfg.Host, err)
	}
	return nil
}

func resolveTLSMode(raw string, port int) (TLSMode, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "", string(TLSModeAuto):
		if port == 465 {
			return TLSModeImplicit, nil
		}
		return TLSModeStartTLS, nil
	case "disabled", "off", "none":
		return TLSModeDisabled, nil
	case "starttls", "start_tls":
		return TLSModeStartTLS, nil
	case "implicit", "smtps", "smtp_tls":
		return TLSModeImplicit, nil
	default:
		return "", fmt.Errorf("invalid SMTP_TLS_MODE %q (auto, disabled, starttls, implicit)", raw)
	}
}

func isAuthUnsupported(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "server does not support SMTP AUTH") ||
		strings.Contains(msg, "SMTP Auth autodiscover was not able to detect a supported authentication mechanism")
}

func isLocalDevSMTPHost(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "localhost" || host == "mailpit" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
