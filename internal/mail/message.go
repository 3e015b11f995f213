package mail

import (
	"bytes"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"portfolio/backend/internal/domain"
)

// buildMessage 生成 multipart/alternative 邮件（纯文本 + HTML）
func buildMessage(from, to string, p *domain.SubmissionPayload, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	body := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("From", from)
	header.Set("To", to)
	if p.SenderEmail != "" {
		header.Set("Reply-To", p.SenderEmail)
	}
	header.Set("Subject", mime.QEncoding.Encode("utf-8", subject(p)))
	header.Set("Date", now.Format(time.RFC1123Z))
	header.Set("Message-ID", fmt.Sprintf("<%s@portfolio>", uuid.NewString()))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "multipart/alternative; boundary="+body.Boundary())

	var head bytes.Buffer
	for _, key := range []string{"From", "To", "Reply-To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type"} {
		if v := header.Get(key); v != "" {
			fmt.Fprintf(&head, "%s: %s\r\n", key, v)
		}
	}
	head.WriteString("\r\n")

	if err := writePart(body, "text/plain; charset=utf-8", plainBody(p)); err != nil {
		return nil, err
	}
	if err := writePart(body, "text/html; charset=utf-8", htmlBody(p)); err != nil {
		return nil, err
	}
	if err := body.Close(); err != nil {
		return nil, err
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

func writePart(w *multipart.Writer, contentType, content string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(content)); err != nil {
		return err
	}
	return qp.Close()
}

func subject(p *domain.SubmissionPayload) string {
	s := "New contact message from " + p.SenderName
	if p.OrderID != "" {
		s += " (" + p.OrderID + ")"
	}
	return s
}

func plainBody(p *domain.SubmissionPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\r\n", p.SenderName)
	fmt.Fprintf(&sb, "Email: %s\r\n", p.SenderEmail)
	if p.OrderID != "" {
		fmt.Fprintf(&sb, "Order: %s\r\n", p.OrderID)
	}
	sb.WriteString("\r\n")
	sb.WriteString(p.MessageBody)
	sb.WriteString("\r\n")
	if p.AttachmentNames != "" {
		fmt.Fprintf(&sb, "\r\nAttachments: %s\r\n", p.AttachmentNames)
		fmt.Fprintf(&sb, "Links: %s\r\n", p.AttachmentURLs)
	}
	return sb.String()
}

func htmlBody(p *domain.SubmissionPayload) string {
	var sb strings.Builder
	sb.WriteString("<p><strong>Name:</strong> " + html.EscapeString(p.SenderName) + "<br>")
	sb.WriteString("<strong>Email:</strong> " + html.EscapeString(p.SenderEmail))
	if p.OrderID != "" {
		sb.WriteString("<br><strong>Order:</strong> " + html.EscapeString(p.OrderID))
	}
	sb.WriteString("</p>")
	sb.WriteString("<p>" + strings.ReplaceAll(html.EscapeString(p.MessageBody), "\n", "<br>") + "</p>")
	if p.AttachmentURLsHTML != "" {
		sb.WriteString("<p><strong>Attachments:</strong> " + html.EscapeString(p.AttachmentNames) + "</p>")
		sb.WriteString(p.AttachmentURLsHTML)
	}
	return sb.String()
}
