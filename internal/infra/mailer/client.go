package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

type config struct {
	Port      int
	Username  string
	Password  string
	TLSPolicy mail.TLSPolicy
	TLSConfig *tls.Config
	RateRPS   float64
	Timeout   time.Duration
}

type Option func(*config)

func WithPort(port int) Option {
	return func(c *config) {
		c.Port = port
	}
}

func WithCredentials(username, password string) Option {
	return func(c *config) {
		c.Username = username
		c.Password = password
	}
}

// WithTLSPolicy accepts "mandatory", "opportunistic" or "none".
func WithTLSPolicy(policy string) Option {
	return func(c *config) {
		switch strings.ToLower(policy) {
		case "none", "notls":
			c.TLSPolicy = mail.NoTLS
		case "opportunistic":
			c.TLSPolicy = mail.TLSOpportunistic
		default:
			c.TLSPolicy = mail.TLSMandatory
		}
	}
}

func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(c *config) {
		c.TLSConfig = tlsConfig
	}
}

func WithRate(rps float64) Option {
	return func(c *config) {
		c.RateRPS = rps
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.Timeout = timeout
	}
}

// Client sends HTML mail over SMTP. Sends are rate limited so a burst of
// due reminders does not trip the relay's limits.
type Client struct {
	client  *mail.Client
	from    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(host, from string, logger *slog.Logger, opts ...Option) (*Client, error) {
	cfg := &config{
		Port:      587,
		TLSPolicy: mail.TLSMandatory,
		RateRPS:   5,
		Timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mailOpts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(cfg.TLSPolicy),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.TLSConfig != nil {
		mailOpts = append(mailOpts, mail.WithTLSConfig(cfg.TLSConfig))
	}
	if cfg.Username != "" {
		mailOpts = append(mailOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(host, mailOpts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &Client{
		client:  client,
		from:    from,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateRPS), 1),
		logger:  logger,
	}, nil
}

// Send delivers one HTML message.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiting: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(c.from); err != nil {
		return fmt.Errorf("set sender %q: %w", c.from, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if err := c.client.DialAndSendWithContext(ctx, msg); err != nil {
		c.logger.Error("Failed to send email",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.String("error", err.Error()))
		return fmt.Errorf("send email: %w", err)
	}

	c.logger.Debug("Email sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// LogClient only logs messages. It stands in for SMTP in local setups.
type LogClient struct {
	logger *slog.Logger
}

func NewLogClient(logger *slog.Logger) *LogClient {
	return &LogClient{logger: logger}
}

func (c *LogClient) Send(_ context.Context, to, subject, htmlBody string) error {
	c.logger.Info("Email not sent, SMTP mock mode",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(htmlBody)))
	return nil
}
