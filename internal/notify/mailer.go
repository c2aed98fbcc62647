package notify

import (
	"fmt"
	"strings"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/chataru/craftsite/config"
	"github.com/chataru/craftsite/internal/domain"
	"github.com/chataru/craftsite/internal/enquiry"
)

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer emails the site owner about each new enquiry.
type Mailer struct {
	sender Sender
	from   string
	to     []string
}

// NewMailer returns nil when mail is disabled or has no recipient.
func NewMailer(cfg config.MailConfig) *Mailer {
	if !cfg.Enabled || cfg.Host == "" || cfg.To == "" {
		return nil
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return NewMailerWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), from, cfg.To)
}

// NewMailerWithSender takes a comma separated recipient list.
func NewMailerWithSender(sender Sender, from, to string) *Mailer {
	var rcpt []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			rcpt = append(rcpt, addr)
		}
	}
	return &Mailer{sender: sender, from: from, to: rcpt}
}

// Subscribe hooks the mailer onto the enquiry topic. Delivery runs off the
// request goroutine.
func (m *Mailer) Subscribe(bus EventBus.Bus) error {
	return bus.SubscribeAsync(enquiry.TopicCreated, m.OnEnquiry, false)
}

// OnEnquiry sends the notification. Failures are only logged: the visitor's
// submission has already been stored.
func (m *Mailer) OnEnquiry(e *domain.Enquiry) {
	if e == nil || len(m.to) == 0 {
		return
	}
	if err := m.sender.DialAndSend(m.compose(e)); err != nil {
		zap.L().Error("failed to send enquiry notification",
			zap.Int64("enquiry_id", e.ID),
			zap.Error(err))
		return
	}
	zap.L().Info("enquiry notification sent", zap.Int64("enquiry_id", e.ID))
}

func (m *Mailer) compose(e *domain.Enquiry) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to...)
	msg.SetHeader("Reply-To", e.Email)
	msg.SetHeader("Subject", fmt.Sprintf("New enquiry from %s", e.Name))

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", e.Name)
	fmt.Fprintf(&b, "Email: %s\n", e.Email)
	if e.Phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", e.Phone)
	}
	if e.SourcePage != "" {
		fmt.Fprintf(&b, "Page: %s\n", e.SourcePage)
	}
	fmt.Fprintf(&b, "Received: %s\n\n%s\n", e.CreatedAt.Format("2006-01-02 15:04:05 MST"), e.Message)
	msg.SetBody("text/plain", b.String())
	return msg
}
