package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// OutgoingMessage is one email to send from the linked mailbox.
type OutgoingMessage struct {
	To      string
	Subject string
	Body    string
}

// InboundMessage is one message pulled from the inbox during reply
// scanning.
type InboundMessage struct {
	MessageID   string // RFC 2822 Message-ID header
	FromAddress string
	Subject     string
	Snippet     string
	ReceivedAt  time.Time
}

// Mailbox defines the mailbox operations used by campaigns.
type Mailbox interface {
	// Send delivers a message and returns the provider message ID.
	Send(ctx context.Context, msg OutgoingMessage) (string, error)
	// ListInbound returns inbox messages received since the given time,
	// newest first, up to max.
	ListInbound(ctx context.Context, since time.Time, max int64) ([]InboundMessage, error)
}

type gmailMailbox struct {
	svc *gmailapi.Service
}

// NewMailbox builds a Mailbox over the Gmail API using the given token
// source.
func NewMailbox(ctx context.Context, ts oauth2.TokenSource) (Mailbox, error) {
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, eris.Wrap(err, "gmail: create service")
	}
	return &gmailMailbox{svc: svc}, nil
}

func (m *gmailMailbox) Send(ctx context.Context, msg OutgoingMessage) (string, error) {
	raw := buildMIME(msg.To, msg.Subject, msg.Body)
	sent, err := m.svc.Users.Messages.Send("me", &gmailapi.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return "", eris.Wrapf(err, "gmail: send to %s", msg.To)
	}
	return sent.Id, nil
}

func (m *gmailMailbox) ListInbound(ctx context.Context, since time.Time, max int64) ([]InboundMessage, error) {
	if max <= 0 {
		max = 100
	}
	query := fmt.Sprintf("in:inbox after:%d", since.Unix())
	list, err := m.svc.Users.Messages.List("me").
		Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrap(err, "gmail: list inbox")
	}

	var out []InboundMessage
	for _, ref := range list.Messages {
		full, err := m.svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Message-ID").
			Context(ctx).Do()
		if err != nil {
			return nil, eris.Wrapf(err, "gmail: get message %s", ref.Id)
		}
		out = append(out, fromAPIMessage(full))
	}
	return out, nil
}

func fromAPIMessage(msg *gmailapi.Message) InboundMessage {
	im := InboundMessage{
		Snippet:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		im.MessageID = msg.Id
		return im
	}
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "From":
			im.FromAddress = ExtractAddress(h.Value)
		case "Subject":
			im.Subject = h.Value
		case "Message-ID":
			im.MessageID = h.Value
		}
	}
	// Fall back to the provider ID when the header is absent.
	if im.MessageID == "" {
		im.MessageID = msg.Id
	}
	return im
}

// buildMIME assembles a minimal RFC 2822 text message. The From header
// is omitted; Gmail fills in the authenticated account.
func buildMIME(to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// ExtractAddress pulls the bare address out of a From header like
// `"Jane Doe" <jane@example.com>`. Unparseable input is returned
// lowercased as-is.
func ExtractAddress(header string) string {
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(header))
	}
	return strings.ToLower(addr.Address)
}
