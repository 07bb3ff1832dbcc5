package filter

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/mikey/llm-mail-triage/internal/core"
)

// Headers consulted when mapping a raw message onto core.Message
const (
	headerCategory = "X-Category"
	headerFlagged  = "X-Flagged"
)

// TagAttachment marks messages that carry attachments
const TagAttachment = "attachment"

// ParseMessage parses a raw RFC 5322 message. envelopeFrom is used when
// the message has no usable From header; a missing Message-Id is replaced
// with a generated one.
func ParseMessage(raw []byte, envelopeFrom string) (*core.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	msg := &core.Message{
		From:     core.Address{Email: envelopeFrom},
		Category: categoryFromHeader(h),
	}

	if id, err := h.MessageID(); err == nil && id != "" {
		msg.ID = id
	} else {
		msg.ID = uuid.NewString()
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = h.Get("Subject")
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = core.Address{Email: from[0].Address, Name: from[0].Name}
	}
	if date, err := h.Date(); err == nil {
		msg.ReceivedAt = date
	}
	msg.ThreadID = threadID(h)
	msg.IsFlagged = strings.EqualFold(strings.TrimSpace(h.Get(headerFlagged)), "yes")

	textBody, htmlBody, attachments := readParts(mr)
	switch {
	case strings.TrimSpace(textBody) != "":
		msg.Body = textBody
	case htmlBody != "":
		msg.Body = htmlToText(htmlBody)
	}
	if attachments > 0 {
		msg.Tags = append(msg.Tags, TagAttachment)
	}

	return msg, nil
}

// readParts collects the first text/plain and text/html parts and counts attachments
func readParts(mr *mail.Reader) (textBody, htmlBody string, attachments int) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			// io.EOF or a malformed part; keep what was read so far
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && textBody == "":
				textBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
				htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			attachments++
		}
	}
	return textBody, htmlBody, attachments
}

// threadID derives a stable thread key: the root of References, else
// In-Reply-To, else the message's own id
func threadID(h mail.Header) string {
	if refs, err := h.MsgIDList("References"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if parents, err := h.MsgIDList("In-Reply-To"); err == nil && len(parents) > 0 {
		return parents[0]
	}
	if id, err := h.MessageID(); err == nil {
		return id
	}
	return ""
}

// categoryFromHeader maps provider and list headers onto a category
func categoryFromHeader(h mail.Header) core.Category {
	if c, ok := core.ParseCategory(h.Get(headerCategory)); ok {
		return c
	}
	switch {
	case h.Has("List-Unsubscribe") && strings.EqualFold(h.Get("Precedence"), "bulk"):
		return core.CategoryPromotions
	case h.Has("List-Id"):
		return core.CategoryForums
	case h.Has("List-Unsubscribe"):
		return core.CategoryUpdates
	}
	return core.CategoryPrimary
}

// htmlToText returns the visible text of an HTML document
func htmlToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// receivedNow fills in a missing date with the time the filter saw the message
func receivedNow(msg *core.Message, now time.Time) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = now
	}
}
