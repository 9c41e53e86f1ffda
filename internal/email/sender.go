package email

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/gomail.v2"
)

// ErrTransportClosed is returned for sends attempted after Close.
var ErrTransportClosed = errors.New("mail transport closed")

// DeliveryError wraps a transport send failure.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Message is a fully resolved outbound email: templates already rendered,
// attachment bytes already fetched.
type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

type Attachment struct {
	Filename string
	Data     []byte
}

// Transport sends messages over SMTP. Every send dials its own connection,
// so concurrent use is safe and bounded only by the caller's fan-out.
type Transport struct {
	dialer *gomail.Dialer
	from   string

	mu     sync.Mutex
	closed bool
}

func NewTransport(host string, port int, user, password, from string) *Transport {
	return &Transport{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

// Verify dials the SMTP server once and closes the connection, so a
// misconfigured transport fails the process before any job is claimed.
func (t *Transport) Verify() error {
	conn, err := t.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp verify: %w", err)
	}
	return conn.Close()
}

// Send assembles and transmits one message. The plain-text part falls back
// to tag-stripped HTML when the message carries no explicit text body.
func (t *Transport) Send(msg Message) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return &DeliveryError{Recipient: msg.To, Err: ErrTransportClosed}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	text := msg.TextBody
	if text == "" {
		text = StripTags(msg.HTMLBody)
	}
	m.SetBody("text/plain", text)

	if msg.HTMLBody != "" {
		m.AddAlternative("text/html", msg.HTMLBody)
	}

	for _, att := range msg.Attachments {
		data := att.Data
		m.Attach(att.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}

	if err := t.dialer.DialAndSend(m); err != nil {
		return &DeliveryError{Recipient: msg.To, Err: err}
	}
	return nil
}

// Close stops the transport from accepting further sends. In-flight sends
// hold their own connections and finish undisturbed.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags produces a crude plain-text fallback from HTML markup.
func StripTags(html string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(html, ""))
}
