package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/ppiankov/changewatch/internal/feeder"
)

const (
	DefaultSMTPPort    = 587
	DefaultSMTPTimeout = 60 * time.Second
)

// TLS policy names accepted by SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	TLS      string
	Timeout  time.Duration
}

// SMTP mails every event to a fixed set of recipients.
type SMTP struct {
	cfg    SMTPConfig
	client *mail.Client
}

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("smtp recipient is required")
	}
	if _, err := tlsPolicy(cfg.TLS); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultSMTPPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	return &SMTP{cfg: cfg}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case TLSMandatory:
		return mail.TLSMandatory, nil
	case TLSOpportunistic, "":
		return mail.TLSOpportunistic, nil
	case TLSNone:
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown smtp tls policy %q", name)
	}
}

func (s *SMTP) options() []mail.Option {
	policy, _ := tlsPolicy(s.cfg.TLS)
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(policy),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// Connect dials the server. Calling it again drops any previous connection
// first, which is how the runner reconnects after a transient failure.
func (s *SMTP) Connect(ctx context.Context) error {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	client, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("dial %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	s.client = client
	return nil
}

func (s *SMTP) Send(ctx context.Context, ev feeder.Event) error {
	if s.client == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := s.message(ev)
	if err != nil {
		return err
	}
	if err := s.client.Send(msg); err != nil {
		return fmt.Errorf("send %q: %w", ev.Subject, err)
	}
	return nil
}

func (s *SMTP) message(ev feeder.Event) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("set to: %w", err)
	}
	msg.Subject(Subject(ev))
	if !ev.Date.IsZero() {
		msg.SetDateWithValue(ev.Date)
	} else {
		msg.SetDate()
	}

	contentType := mail.TypeTextPlain
	if ev.HTML {
		contentType = mail.TypeTextHTML
	}
	msg.SetBodyString(contentType, ev.Body)

	for _, f := range ev.Files {
		msg.AttachFile(f)
	}
	return msg, nil
}

func (s *SMTP) Disconnect() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return fmt.Errorf("close smtp connection: %w", err)
	}
	return nil
}
