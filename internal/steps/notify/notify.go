// Package notify delivers the end-of-run report to the configured
// recipients.
//
// Recipients are protocol-prefixed strings ("email:ops@example.org",
// "http:https://ntfy.example.org/pipeline"). A recipient that cannot be
// parsed or reached records its failure on the notify list instead of
// failing the run; the handler folds undelivered notifications into the
// final result.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

const userAgent = "Tideflow/0.1.0"

const (
	ProtocolEmail = "email"
	ProtocolHTTP  = "http"
)

// Recipient is one notification target with its delivery outcome.
type Recipient struct {
	// Spec is the raw protocol-prefixed string from configuration. It is
	// the identity of the recipient within a NotifyList.
	Spec     string
	Protocol string
	Address  string

	Sent  bool
	Error string
}

// ParseRecipient splits a protocol-prefixed recipient string. An
// unrecognised protocol is recorded on the recipient rather than returned,
// so one bad entry never blocks delivery to the rest of the list.
func ParseRecipient(spec string) Recipient {
	r := Recipient{Spec: spec}
	protocol, address, found := strings.Cut(spec, ":")
	if !found || address == "" {
		r.Error = fmt.Sprintf("invalid recipient %q: expected protocol:address", spec)
		return r
	}
	switch protocol {
	case ProtocolEmail, ProtocolHTTP:
		r.Protocol = protocol
		r.Address = address
	default:
		r.Error = fmt.Sprintf("invalid recipient %q: unknown protocol %q", spec, protocol)
	}
	return r
}

// NotifyList is an ordered set of recipients, unique by spec string.
type NotifyList struct {
	recipients []*Recipient
	index      map[string]*Recipient
}

// NewNotifyList builds a list from recipient specs, silently dropping
// duplicates so a recipient on both the owner and error lists is notified
// once.
func NewNotifyList(specs ...string) *NotifyList {
	l := &NotifyList{index: make(map[string]*Recipient)}
	for _, spec := range specs {
		l.Add(spec)
	}
	return l
}

// Add appends a recipient unless its spec is already present.
func (l *NotifyList) Add(spec string) {
	if _, exists := l.index[spec]; exists {
		return
	}
	r := ParseRecipient(spec)
	l.recipients = append(l.recipients, &r)
	l.index[spec] = &r
}

// Len returns the number of recipients.
func (l *NotifyList) Len() int { return len(l.recipients) }

// Recipients returns the recipients in insertion order. The slice is a copy;
// the Recipient pointers are shared.
func (l *NotifyList) Recipients() []*Recipient {
	out := make([]*Recipient, len(l.recipients))
	copy(out, l.recipients)
	return out
}

// Failed returns the recipients whose delivery failed or never started.
func (l *NotifyList) Failed() []*Recipient {
	var out []*Recipient
	for _, r := range l.recipients {
		if !r.Sent {
			out = append(out, r)
		}
	}
	return out
}

// AllSent reports whether every recipient received the notification.
func (l *NotifyList) AllSent() bool {
	for _, r := range l.recipients {
		if !r.Sent {
			return false
		}
	}
	return true
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Body    string
}

// Sender delivers a message to a single recipient over one protocol.
type Sender interface {
	Send(ctx context.Context, r *Recipient, msg Message) error
}

// Notifier dispatches a message to every recipient on a list, recording the
// per-recipient outcome. Delivery failures are recorded values; Notify
// itself only fails on context cancellation.
type Notifier struct {
	senders map[string]Sender
	log     *slog.Logger
}

// NewNotifier builds a notifier with email and HTTP delivery configured from
// the given SMTP endpoint and request timeout.
func NewNotifier(fromAddress, smtpHost string, smtpPort int, requestTimeout time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		senders: map[string]Sender{
			ProtocolEmail: &emailSender{from: fromAddress, addr: fmt.Sprintf("%s:%d", smtpHost, smtpPort)},
			ProtocolHTTP:  &httpSender{client: &http.Client{Timeout: requestTimeout}},
		},
		log: logger.With(slog.String("component", "notify")),
	}
}

// NewNotifierWithSenders builds a notifier around explicit senders.
func NewNotifierWithSenders(senders map[string]Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{senders: senders, log: logger.With(slog.String("component", "notify"))}
}

// Notify delivers the message to every valid recipient on the list.
func (n *Notifier) Notify(ctx context.Context, list *NotifyList, msg Message) error {
	for _, r := range list.Recipients() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Error != "" {
			n.log.Warn("skipping invalid recipient", slog.String("recipient", r.Spec), slog.String("error", r.Error))
			continue
		}
		sender, ok := n.senders[r.Protocol]
		if !ok {
			r.Error = fmt.Sprintf("no sender for protocol %q", r.Protocol)
			continue
		}
		if err := sender.Send(ctx, r, msg); err != nil {
			r.Error = err.Error()
			n.log.Warn("notification failed",
				slog.String("recipient", r.Spec),
				slog.String("error", r.Error))
			continue
		}
		r.Sent = true
		n.log.Info("notification sent", slog.String("recipient", r.Spec))
	}
	return nil
}

// emailSender delivers over plain SMTP.
type emailSender struct {
	from string
	addr string
}

func (s *emailSender) Send(ctx context.Context, r *Recipient, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", r.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(s.addr, nil, s.from, []string{r.Address}, []byte(b.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", r.Address, err)
	}
	return nil
}

// httpSender posts the body to a webhook URL, carrying the subject in a
// Title header.
type httpSender struct {
	client *http.Client
}

func (s *httpSender) Send(ctx context.Context, r *Recipient, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Address, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.Subject != "" {
		req.Header.Set("Title", msg.Subject)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
