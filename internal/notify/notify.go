// Package notify sends plain-text notification emails through Gmail.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
)

var errNoRecipient = errors.New("notification recipient is empty")

type Message struct {
	To      string
	Subject string
	Body    string
}

// GmailNotifier sends messages as the authenticated user.
type GmailNotifier struct {
	svc  *gmail.Service
	from string
	now  func() time.Time
}

// NewGmail wraps svc. from is optional; Gmail fills in the account address
// when it is empty.
func NewGmail(svc *gmail.Service, from string) *GmailNotifier {
	return &GmailNotifier{svc: svc, from: from, now: time.Now}
}

func (n *GmailNotifier) Notify(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errNoRecipient
	}
	raw := Build(n.from, msg, n.now())
	_, err := n.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("send notification to %s: %w", msg.To, err)
	}
	return nil
}

// Build renders msg as an RFC 2822 text/plain message.
func Build(from string, msg Message, date time.Time) []byte {
	var b bytes.Buffer
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(msg.Body, "\r\n", "\n"), "\n", "\r\n"))
	return b.Bytes()
}

// CreatedMessage describes a freshly scheduled batch.
func CreatedMessage(to, eventName string, start, end time.Time, days int, totalHours float64) Message {
	from, until := start.Format("2006-01-02"), end.Format("2006-01-02")
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s Calendar Event Created (%s_%s)", eventName, from, until),
		Body: fmt.Sprintf("Calendar event(s) created for %q event, for %s hours, over the course of %d days. The event days are between %s and %s.",
			eventName, formatHours(totalHours), days, from, until),
	}
}

// DeletedMessage reports a removed batch. skipped counts events that were
// already gone from the calendar.
func DeletedMessage(to string, deleted int, eventNames []string, batch string, skipped int, at time.Time) Message {
	names := append([]string(nil), eventNames...)
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%d calendar event(s) deleted:\n\n", deleted)
	fmt.Fprintf(&b, "Event name(s): %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "Batch: %s\n", batch)
	if skipped > 0 {
		fmt.Fprintf(&b, "\n%d event(s) were already deleted or not found\n", skipped)
	}
	fmt.Fprintf(&b, "Deleted on: %s", at.Format("2006-01-02 15:04:05"))
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Calendar Events Deleted - %d events", deleted),
		Body:    b.String(),
	}
}

// UpdatedMessage describes a batch whose schedule was replaced.
func UpdatedMessage(to, eventName string, start, end time.Time, days int, totalHours float64) Message {
	from, until := start.Format("2006-01-02"), end.Format("2006-01-02")
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s Calendar Event Updated (%s_%s)", eventName, from, until),
		Body: fmt.Sprintf("Calendar event(s) updated for %q, for %s hours, over %d days. New dates: %s to %s.",
			eventName, formatHours(totalHours), days, from, until),
	}
}

func formatHours(h float64) string {
	s := fmt.Sprintf("%.2f", h)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
