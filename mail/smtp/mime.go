package smtp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"maps"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/mail"
)

// entity is a node of the MIME tree: either a leaf with a body or a multipart
// container with children.
type entity struct {
	header    textproto.MIMEHeader
	body      []byte
	mediaType string // multipart/* for containers
	children  []*entity
}

func (e *entity) render() (textproto.MIMEHeader, []byte, error) {
	if e.mediaType == "" {
		return e.header, e.body, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, child := range e.children {
		h, body, err := child.render()
		if err != nil {
			return nil, nil, err
		}
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create MIME part")
		}
		if _, err := part.Write(body); err != nil {
			return nil, nil, errors.Wrap(err, "failed to write MIME part")
		}
	}
	if err := w.Close(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to close multipart writer")
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", mime.FormatMediaType(e.mediaType, map[string]string{"boundary": w.Boundary()}))
	return h, buf.Bytes(), nil
}

func container(mediaType string, children ...*entity) *entity {
	if len(children) == 1 {
		return children[0]
	}
	return &entity{mediaType: mediaType, children: children}
}

// BuildMessage renders the RFC 5322 message: multipart/mixed (attachments)
// wrapping multipart/related (inline parts) wrapping multipart/alternative
// (plain text before HTML). Containers with a single child are collapsed.
func BuildMessage(msg *mail.Message, from mail.Address, now time.Time) ([]byte, error) {
	if err := msg.ValidateHeaders(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	writeHeader(&buf, "From", from.String())
	if len(msg.To) > 0 {
		writeHeader(&buf, "To", formatAddressList(msg.To))
	}
	if len(msg.Cc) > 0 {
		writeHeader(&buf, "Cc", formatAddressList(msg.Cc))
	}
	if len(msg.ReplyTo) > 0 {
		writeHeader(&buf, "Reply-To", formatAddressList(msg.ReplyTo))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	if _, ok := msg.Header("Message-Id"); !ok {
		writeHeader(&buf, "Message-Id", messageID(from))
	}
	writeHeader(&buf, "MIME-Version", "1.0")

	switch msg.Priority {
	case mail.PriorityHigh:
		writeHeader(&buf, "X-Priority", "1 (Highest)")
		writeHeader(&buf, "Importance", "High")
	case mail.PriorityLow:
		writeHeader(&buf, "X-Priority", "5 (Lowest)")
		writeHeader(&buf, "Importance", "Low")
	}

	// Custom headers are copied verbatim.
	headers := msg.Headers()
	for _, name := range msg.HeaderNames() {
		writeHeader(&buf, name, headers[name])
	}

	root, err := buildBody(msg)
	if err != nil {
		return nil, err
	}
	h, body, err := root.render()
	if err != nil {
		return nil, err
	}
	for _, name := range slices.Sorted(maps.Keys(h)) {
		for _, v := range h[name] {
			writeHeader(&buf, name, v)
		}
	}
	buf.WriteString("\r\n")
	buf.Write(body)

	return buf.Bytes(), nil
}

func buildBody(msg *mail.Message) (*entity, error) {
	var views []*entity
	if v, ok := msg.TextView(); ok {
		views = append(views, textEntity(v))
	}
	if v, ok := msg.HTMLView(); ok {
		views = append(views, textEntity(v))
	}
	if len(views) == 0 {
		views = append(views, textEntity(mail.AlternateView{ContentType: mail.ContentTypeText, Charset: msg.Charset()}))
	}
	root := container("multipart/alternative", views...)

	if msg.Attachments.Len() == 0 {
		return root, nil
	}

	related := []*entity{root}
	var attached []*entity
	for _, att := range msg.Attachments.Wire() {
		if att.Inline {
			related = append(related, attachmentEntity(att))
			continue
		}
		attached = append(attached, attachmentEntity(att))
	}
	root = container(mail.InlineMimeType, related...)

	return container("multipart/mixed", append([]*entity{root}, attached...)...), nil
}

func textEntity(v mail.AlternateView) *entity {
	charset := v.Charset
	if charset == "" {
		charset = mail.DefaultEncoding
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Type", mime.FormatMediaType(v.ContentType, map[string]string{"charset": strings.ToLower(charset)}))
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var body bytes.Buffer
	qp := quotedprintable.NewWriter(&body)
	_, _ = qp.Write(v.Content)
	_ = qp.Close()

	return &entity{header: h, body: body.Bytes()}
}

func attachmentEntity(att mail.WireAttachment) *entity {
	disposition := "attachment"
	if att.Inline {
		disposition = "inline"
	}

	h := make(textproto.MIMEHeader)
	// Inline parts are leaves of the multipart/related container, so the part
	// itself carries the type resolved from the file name.
	h.Set("Content-Type", mime.FormatMediaType(mail.ExtensionMimeType(att.Name), map[string]string{"name": att.Name}))
	h.Set("Content-Transfer-Encoding", "base64")
	h.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": att.Name}))
	if att.Inline {
		h.Set("Content-Id", "<"+att.ContentID+">")
	}

	return &entity{header: h, body: encodeBase64WithLineBreaks(att.Data)}
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character lines per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	var out bytes.Buffer
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		out.WriteString(encoded[i:end])
		out.WriteString("\r\n")
	}
	return out.Bytes()
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", name, value)
}

// formatAddressList formats a list of addresses.
func formatAddressList(addrs []mail.Address) string {
	formatted := make([]string, len(addrs))
	for i, addr := range addrs {
		formatted[i] = addr.String()
	}
	return strings.Join(formatted, ", ")
}

func messageID(from mail.Address) string {
	domain := "localhost"
	if at := strings.LastIndexByte(from.Address, '@'); at >= 0 && at < len(from.Address)-1 {
		domain = from.Address[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
