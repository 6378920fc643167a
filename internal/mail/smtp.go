package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"time"

	"github.com/blog-moderation-api/internal/config"
	"github.com/rs/zerolog"
)

// SMTPMailer sends mail through an SMTP relay
type SMTPMailer struct {
	addr     string
	host     string
	username string
	password string
	from     string
	fromName string
	log      zerolog.Logger

	// sendMail is smtp.SendMail; replaced in tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer for the configured relay
func NewSMTPMailer(cfg *config.MailConfig, log zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{
		addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		fromName: cfg.FromName,
		log:      log.With().Str("component", "smtp").Logger(),
		sendMail: smtp.SendMail,
	}
}

// Send delivers msg. Transport failures are returned as *DeliveryError.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	raw := m.buildMessage(msg, time.Now())
	if err := m.sendMail(m.addr, auth, m.from, []string{msg.To}, raw); err != nil {
		return &DeliveryError{To: msg.To, Err: err}
	}

	m.log.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("Email sent")
	return nil
}

// buildMessage renders msg as an RFC 5322 message with a text and an HTML part
func (m *SMTPMailer) buildMessage(msg *Message, now time.Time) []byte {
	const boundary = "blog-moderation-alt"

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", formatAddress(m.fromName, m.from))
	fmt.Fprintf(&buf, "To: %s\r\n", formatAddress(msg.ToName, msg.To))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	writePart(&buf, boundary, "text/plain", msg.TextBody)
	writePart(&buf, boundary, "text/html", msg.HTMLBody)

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// writePart appends one quoted-printable body part. Encoded lines stay
// within 76 octets whatever the body holds.
func writePart(buf *bytes.Buffer, boundary, contentType, body string) {
	fmt.Fprintf(buf, "--%s\r\n", boundary)
	fmt.Fprintf(buf, "Content-Type: %s; charset=\"UTF-8\"\r\n", contentType)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")

	qp := quotedprintable.NewWriter(buf)
	qp.Write([]byte(body))
	qp.Close()
	buf.WriteString("\r\n")
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", name), addr)
}
