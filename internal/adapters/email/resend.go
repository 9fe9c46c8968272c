package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// resendBatchLimit is the maximum number of messages per batch call.
const resendBatchLimit = 100

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	now    func() time.Time
}

var _ Sender = (*ResendSender)(nil)

// NewResendSender creates a sender with a default From address.
// PRE: apiKey is a valid Resend API key
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from, now: time.Now}
}

func (s *ResendSender) params(req SendRequest) *resend.SendEmailRequest {
	p := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		ReplyTo: req.ReplyTo,
	}
	if p.From == "" {
		p.From = s.from
	}
	return p
}

// Send delivers one message.
// POST: Returns the Resend message id
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.params(req))
	if err != nil {
		slog.Error("email_event", "event", "send_failed", "error", err, "recipients", len(req.To))
		return SendResult{}, fmt.Errorf("resend send: %w", err)
	}
	slog.Info("email_event", "event", "sent", "message_id", sent.Id, "recipients", len(req.To))
	return SendResult{MessageID: sent.Id, SentAt: s.now()}, nil
}

// SendBatch delivers messages in chunks of resendBatchLimit.
// On failure the results of the chunks already sent are returned with the error.
func (s *ResendSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	var results []SendResult
	for start := 0; start < len(reqs); start += resendBatchLimit {
		end := min(start+resendBatchLimit, len(reqs))

		params := make([]*resend.SendEmailRequest, 0, end-start)
		for _, req := range reqs[start:end] {
			params = append(params, s.params(req))
		}

		resp, err := s.client.Batch.SendWithContext(ctx, params)
		if err != nil {
			slog.Error("email_event", "event", "batch_failed", "error", err, "batch_size", len(params))
			return results, fmt.Errorf("resend batch: %w", err)
		}
		for _, item := range resp.Data {
			results = append(results, SendResult{MessageID: item.Id, SentAt: s.now()})
		}
	}
	slog.Info("email_event", "event", "batch_sent", "count", len(results))
	return results, nil
}
