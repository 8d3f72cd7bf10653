// Package mail delivers intervention emails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/churnboard/churnboard/pkg/logger"
	gomail "github.com/wneessen/go-mail"
)

// ErrSend wraps every delivery failure.
var ErrSend = errors.New("mail send failed")

// Message is one outgoing email. An empty To uses the sender's default
// recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTP sends plain-text mail through an SMTP relay.
type SMTP struct {
	addr string
	from string
	to   string
	auth bool

	client    *gomail.Client
	clientErr error

	// send delivers a composed message; swapped in tests.
	send func(ctx context.Context, msg *gomail.Msg) error
	now  func() time.Time
}

// SMTPConfig holds relay settings. Username empty disables auth.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// NewSMTP creates an SMTP sender. STARTTLS is used when the relay offers it.
// A config the client rejects surfaces on the first Send.
func NewSMTP(cfg SMTPConfig) *SMTP {
	s := &SMTP{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		to:   cfg.To,
		auth: cfg.Username != "",
		now:  time.Now,
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if s.auth {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	s.client, s.clientErr = gomail.NewClient(cfg.Host, opts...)
	s.send = s.dialAndSend
	return s
}

func (s *SMTP) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	if s.clientErr != nil {
		return s.clientErr
	}
	return s.client.DialAndSendWithContext(ctx, msg)
}

// Send delivers m. ctx bounds the whole SMTP session.
func (s *SMTP) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	to := m.To
	if to == "" {
		to = s.to
	}
	if to == "" {
		return fmt.Errorf("%w: no recipient", ErrSend)
	}
	msg, err := s.compose(to, m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSend, err)
	}
	if err := s.send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSend, s.addr, err)
	}
	return nil
}

func (s *SMTP) compose(to string, m Message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("from %q: %w", s.from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to %q: %w", to, err)
	}
	msg.Subject(m.Subject)
	msg.SetDateWithValue(s.now())
	msg.SetBodyString(gomail.TypeTextPlain, m.Body)
	return msg, nil
}

// Log writes messages to the logger instead of sending them.
type Log struct {
	log logger.Logger
	to  string
}

// NewLog creates a log-only sender.
func NewLog(l logger.Logger, defaultTo string) *Log {
	if l == nil {
		l = logger.Nop()
	}
	return &Log{log: l, to: defaultTo}
}

// Send logs m.
func (s *Log) Send(ctx context.Context, m Message) error {
	to := m.To
	if to == "" {
		to = s.to
	}
	s.log.Info(ctx, "email not sent (no smtp relay configured)",
		logger.String("to", to),
		logger.String("subject", m.Subject),
	)
	return nil
}
