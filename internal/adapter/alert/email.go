package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"

	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const defaultSendTimeout = 10 * time.Second

// Mailer sends one message. *email.Pool implements it.
type Mailer interface {
	Send(e *email.Email, timeout time.Duration) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

func SMTPConfigFrom(cfg *config.Config) SMTPConfig {
	from := cfg.AlertEmailFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	var to []string
	for _, addr := range strings.Split(cfg.AlertEmailTo, ",") {
		if a := strings.TrimSpace(addr); a != "" {
			to = append(to, a)
		}
	}
	return SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     from,
		To:       to,
	}
}

func (c SMTPConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c SMTPConfig) auth() smtp.Auth {
	if c.User == "" {
		return nil
	}
	return smtp.PlainAuth("", c.User, c.Password, c.Host)
}

// NewSMTPPool opens a small pool of SMTP connections.
func NewSMTPPool(cfg SMTPConfig, size int) (*email.Pool, error) {
	pool, err := email.NewPool(cfg.addr(), size, cfg.auth())
	if err != nil {
		return nil, fmt.Errorf("mailer: new pool: %w", err)
	}
	return pool, nil
}

// EmailChannel mails one message per crossing.
type EmailChannel struct {
	mailer Mailer
	from   string
	to     []string
}

func NewEmailChannel(mailer Mailer, from string, to []string) *EmailChannel {
	return &EmailChannel{mailer: mailer, from: from, to: to}
}

func (c *EmailChannel) Name() string { return config.ChannelEmail }

func (c *EmailChannel) Deliver(ctx context.Context, event domain.CrossingEvent) error {
	e := email.NewEmail()
	e.From = c.from
	e.To = c.to
	e.Subject = crossingSubject(event)
	e.Text = []byte(crossingBody(event))

	if err := c.mailer.Send(e, sendTimeout(ctx)); err != nil {
		return fmt.Errorf("mailer: send crossing alert: %w", err)
	}
	return nil
}

func sendTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return defaultSendTimeout
}

func crossingSubject(event domain.CrossingEvent) string {
	if event.Severity == domain.SeverityRecovered {
		return fmt.Sprintf("Stock Recovered - %s", event.ItemSKU)
	}
	return fmt.Sprintf("Stock Alert - %s is %s", event.ItemSKU, event.NewStatus)
}

func crossingBody(event domain.CrossingEvent) string {
	var b strings.Builder
	name := event.ItemName
	if name == "" {
		name = event.ItemSKU
	}
	fmt.Fprintf(&b, "%s (SKU: %s)\n\n", name, event.ItemSKU)
	fmt.Fprintf(&b, "Status:      %s -> %s\n", event.PreviousStatus, event.NewStatus)
	fmt.Fprintf(&b, "Quantity:    %d units (Min: %d)\n", event.Quantity, event.MinStockLevel)
	fmt.Fprintf(&b, "Transaction: %s\n", event.TransactionID)
	fmt.Fprintf(&b, "Time:        %s\n", event.OccurredAt.UTC().Format(time.RFC3339))
	return b.String()
}

// DigestSubject is the subject line of the periodic low stock digest.
func DigestSubject(n int) string {
	return fmt.Sprintf("Low Stock Alert - %d Items Need Restocking", n)
}

func DigestBody(entries []service.LowStockEntry) string {
	rule := strings.Repeat("=", 50)
	var b strings.Builder
	b.WriteString("Low Stock Alert - Stock Ledger\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "The following %d items are running low on stock:\n\n", len(entries))
	for _, e := range entries {
		name := e.Item.Name
		if name == "" {
			name = e.Item.SKU
		}
		fmt.Fprintf(&b, "- %s (SKU: %s): %d units (Min: %d) %s, reorder %d\n",
			name, e.Item.SKU, e.Item.Quantity, e.Item.MinStockLevel, e.Status, e.ReorderQuantity)
	}
	b.WriteString("\n" + rule + "\n")
	b.WriteString("Please restock these items soon.\n")
	return b.String()
}

// SendDigest mails the low stock digest. It sends nothing for an empty list
// and reports whether a message went out.
func SendDigest(mailer Mailer, from string, to []string, entries []service.LowStockEntry) (bool, error) {
	if len(entries) == 0 {
		return false, nil
	}
	e := email.NewEmail()
	e.From = from
	e.To = to
	e.Subject = DigestSubject(len(entries))
	e.Text = []byte(DigestBody(entries))

	if err := mailer.Send(e, defaultSendTimeout); err != nil {
		return false, fmt.Errorf("mailer: send digest: %w", err)
	}
	return true, nil
}
