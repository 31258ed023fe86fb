// Package mailer defines the reset-mail job format shared by the identity
// service (producer) and the worker (consumer), plus SMTP delivery.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// Channel is the queue channel reset-mail jobs travel on.
const Channel = "auth.reset-mail"

// Job is one password recovery mail to deliver.
type Job struct {
	// To is the recipient address.
	To string `json:"to"`

	// Link is the recovery callback URL, already carrying the marker and
	// token query parameters.
	Link string `json:"link"`
}

// EncodeJob serializes a job for the queue.
func EncodeJob(job Job) ([]byte, error) {
	if strings.TrimSpace(job.To) == "" {
		return nil, errors.New("mail job recipient is required")
	}
	if strings.TrimSpace(job.Link) == "" {
		return nil, errors.New("mail job link is required")
	}
	return json.Marshal(job)
}

// DecodeJob parses a queued job payload.
func DecodeJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("invalid mail job: %w", err)
	}
	if strings.TrimSpace(job.To) == "" {
		return Job{}, errors.New("mail job recipient is required")
	}
	return job, nil
}

// Mailer delivers reset mails over plain SMTP submission.
type Mailer struct {
	addr string
	from string
}

// New constructs a Mailer for the given submission server and sender.
func New(addr, from string) (*Mailer, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("smtp address is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("mail sender is required")
	}
	return &Mailer{addr: addr, from: from}, nil
}

// Send delivers one job. Failures are terminal for the attempt; the broker's
// redelivery is the only retry.
func (m *Mailer) Send(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := Message(m.from, job)
	return smtp.SendMail(m.addr, nil, m.from, []string{job.To}, msg)
}

// Message renders the RFC 5322 payload for a job.
func Message(from string, job Job) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", job.To)
	b.WriteString("Subject: Reset your Aussie Verify password\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString("Someone requested a password reset for this address.\r\n\r\n")
	fmt.Fprintf(&b, "Follow this link to choose a new password:\r\n%s\r\n\r\n", job.Link)
	b.WriteString("If this wasn't you, ignore this email; the link expires shortly.\r\n")
	return []byte(b.String())
}
