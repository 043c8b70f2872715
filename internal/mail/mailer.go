// Package mail delivers alarm notifications through an SMTP relay.
// Delivery is best-effort: failures are logged and counted, never
// retried.
package mail

import (
	"fmt"
	"net/mail"
	"net/smtp"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"

	"wxalarm/internal/logger"
	"wxalarm/internal/metrics"
)

// Mailer sends plain-text email through a configured relay. The sender
// address is fixed at construction time.
type Mailer struct {
	server string // relay host:port
	sender string
}

// NewMailer creates a Mailer for the given relay endpoint and sender.
// An empty server means the local relay; an empty sender falls back to
// the OS user owning the process.
func NewMailer(server, sender string) *Mailer {
	if server == "" {
		server = "localhost:25"
	}
	if !strings.Contains(server, ":") {
		server += ":25"
	}
	if sender == "" {
		sender = ownerAddress()
	}
	return &Mailer{server: server, sender: sender}
}

// ownerAddress identifies the process owner as a fallback sender.
func ownerAddress() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "wxalarm"
	}
	return u.Username
}

// Sender returns the configured sender address.
func (m *Mailer) Sender() string { return m.sender }

// Send delivers one notification to a comma-separated recipient list.
// A delivery failure is logged with the subject for operator
// correlation; the caller is expected to ignore the returned error
// beyond counting it.
func (m *Mailer) Send(recipients, subject, body string) error {
	log := logger.WithComponent("mailer")

	msg := BuildMessage(m.sender, recipients, subject, body)
	if err := m.deliver(recipients, msg); err != nil {
		metrics.NotificationsFailed.Inc()
		log.Error().
			Err(err).
			Str("server", m.server).
			Str("subject", subject).
			Msg("smtp send failed")
		return err
	}

	metrics.NotificationsSent.Inc()
	log.Info().Str("subject", subject).Str("to", recipients).Msg("notification sent")
	return nil
}

// deliver runs the connect/MAIL/RCPT/DATA/quit sequence. The relay
// connection is released on every exit path.
func (m *Mailer) deliver(recipients string, msg []byte) error {
	c, err := smtp.Dial(m.server)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.server, err)
	}
	defer c.Close()

	if err := c.Mail(envelopeAddress(m.sender)); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range SplitRecipients(recipients) {
		if err := c.Rcpt(envelopeAddress(rcpt)); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	return c.Quit()
}

// BuildMessage assembles the RFC 5322 message bytes. The body is always
// newline-terminated.
func BuildMessage(from, to, subject, body string) []byte {
	host, _ := os.Hostname()
	if host == "" {
		host = "wxalarm"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", uuid.NewString(), host)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// SplitRecipients splits a comma-separated recipient list, dropping
// empty entries.
func SplitRecipients(recipients string) []string {
	parts := strings.Split(recipients, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envelopeAddress extracts the bare address from a display-name form
// like "Wx Name <wx@example.com>" for the SMTP envelope.
func envelopeAddress(s string) string {
	if a, err := mail.ParseAddress(s); err == nil {
		return a.Address
	}
	return strings.TrimSpace(s)
}
