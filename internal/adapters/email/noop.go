package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// NoopSender logs messages instead of delivering them and keeps them for inspection.
type NoopSender struct {
	mu   sync.Mutex
	sent []SendRequest
}

var _ Sender = (*NoopSender)(nil)

// NewNoopSender creates a NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send records req.
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(req), nil
}

// SendBatch records every request.
func (s *NoopSender) SendBatch(_ context.Context, reqs []SendRequest) ([]SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]SendResult, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, s.record(req))
	}
	return results, nil
}

// Sent returns a copy of everything recorded so far.
func (s *NoopSender) Sent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRequest(nil), s.sent...)
}

func (s *NoopSender) record(req SendRequest) SendResult {
	s.sent = append(s.sent, req)
	slog.Debug("email_event", "event", "suppressed", "to", req.To, "subject", req.Subject)
	return SendResult{MessageID: fmt.Sprintf("noop-%d", len(s.sent)), SentAt: time.Now()}
}
