package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	emailAdapter "slotmanager/internal/adapters/email"
	"slotmanager/internal/adapters/storage"
	"slotmanager/internal/adapters/telemetry"
	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/user"
)

// ResultSlotStore defines the slot store interface needed to record a result.
type ResultSlotStore interface {
	RecordDetails(ctx context.Context, slotID string, details slot.Details) (slot.Slot, error)
}

// UserLookup defines the user store interface needed to address registrants.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// RecordResultInput carries input for RecordSlotResult.
type RecordResultInput struct {
	SlotID     string
	Actor      Actor
	Teams      slot.Teams
	FinalScore string
	Notes      string
}

// RecordResultDeps holds dependencies for RecordSlotResult.
type RecordResultDeps struct {
	SlotStore   ResultSlotStore
	UserStore   UserLookup
	EmailSender emailAdapter.Sender // nil disables the match report
	FromAddress string
	ReplyTo     string
	Retrier     storage.Retrier
}

// ExecuteRecordSlotResult replaces the post-game details of a slot and mails
// the match report to its registrants.
// PRE: Actor is an admin
// POST: Details persisted; e-mail failures are logged, never returned
func ExecuteRecordSlotResult(ctx context.Context, input RecordResultInput, deps RecordResultDeps) (slot.Slot, error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "RecordSlotResult")
	defer span.End()
	span.SetAttributes(attribute.String("slot.id", input.SlotID))

	if !input.Actor.IsAdmin {
		return slot.Slot{}, fail(span, slot.ErrForbidden)
	}

	details := slot.Details{
		Teams: slot.Teams{
			TeamA: trimLabels(input.Teams.TeamA),
			TeamB: trimLabels(input.Teams.TeamB),
		},
		FinalScore: strings.TrimSpace(input.FinalScore),
		Notes:      strings.TrimSpace(input.Notes),
	}
	if err := details.Validate(); err != nil {
		return slot.Slot{}, fail(span, err)
	}

	s, err := storage.Retry(ctx, deps.Retrier, "record_details", func(ctx context.Context) (slot.Slot, error) {
		return deps.SlotStore.RecordDetails(ctx, input.SlotID, details)
	})
	if err != nil {
		return slot.Slot{}, fail(span, storeErr(err))
	}

	slog.Info("slot_event", "event", "result_recorded", "slot_id", s.ID, "final_score", s.Details.FinalScore, "actor_id", input.Actor.UserID)

	if deps.EmailSender != nil && len(s.Registrations) > 0 {
		sendMatchReport(ctx, s, deps)
	}
	return s, nil
}

// sendMatchReport is best-effort: a failed lookup skips that registrant.
func sendMatchReport(ctx context.Context, s slot.Slot, deps RecordResultDeps) {
	var recipients []string
	for _, r := range s.Registrations {
		u, err := deps.UserStore.GetByID(ctx, r.UserID)
		if err != nil {
			slog.Warn("slot_event", "event", "report_recipient_skipped", "slot_id", s.ID, "user_id", r.UserID, "error", err)
			continue
		}
		if u.IsActive && u.Email != "" {
			recipients = append(recipients, u.Email)
		}
	}
	if len(recipients) == 0 {
		return
	}

	report, err := emailAdapter.NewMatchReport(s)
	if err != nil {
		slog.Error("slot_event", "event", "report_render_failed", "slot_id", s.ID, "error", err)
		return
	}
	reqs, err := report.Requests(recipients, deps.FromAddress, deps.ReplyTo)
	if err != nil {
		slog.Error("slot_event", "event", "report_render_failed", "slot_id", s.ID, "error", err)
		return
	}
	if _, err := deps.EmailSender.SendBatch(ctx, reqs); err != nil {
		slog.Error("slot_event", "event", "report_send_failed", "slot_id", s.ID, "error", err)
		return
	}
	slog.Info("slot_event", "event", "report_sent", "slot_id", s.ID, "recipients", len(reqs))
}

func trimLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, strings.TrimSpace(l))
	}
	return out
}
