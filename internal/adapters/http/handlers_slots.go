package web

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"slotmanager/internal/adapters/markdown"
	"slotmanager/internal/application/listutil"
	"slotmanager/internal/application/orchestrators"
	"slotmanager/internal/application/projections"
	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/user"
)

// slotView is the JSON shape of a slot.
type slotView struct {
	ID                string            `json:"id"`
	Date              time.Time         `json:"date"`
	Participants      []participantView `json:"participants"`
	Occupants         []occupantView    `json:"occupants"`
	Details           detailsView       `json:"details"`
	TotalParticipants int               `json:"totalParticipants"`
	MaxParticipants   int               `json:"maxParticipants"`
	IsFull            bool              `json:"isFull"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// participantView carries the registrant's names when the directory resolves them.
type participantView struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Guests       []string  `json:"guests"`
	CreatedBy    string    `json:"createdBy"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// occupantView carries userId for members and name/addedBy for guests.
type occupantView struct {
	Kind    slot.OccupantKind `json:"kind"`
	UserID  string            `json:"userId,omitempty"`
	Name    string            `json:"name,omitempty"`
	AddedBy string            `json:"addedBy,omitempty"`
}

type detailsView struct {
	Teams      slot.Teams    `json:"teams"`
	FinalScore string        `json:"finalScore"`
	Notes      string        `json:"notes"`
	NotesHTML  template.HTML `json:"notesHtml"`
}

func toSlotView(s slot.Slot, names map[string]user.User) slotView {
	v := slotView{
		ID:                s.ID,
		Date:              s.Date,
		Participants:      make([]participantView, 0, len(s.Registrations)),
		Occupants:         make([]occupantView, 0, s.Occupancy()),
		TotalParticipants: s.Occupancy(),
		MaxParticipants:   options.MaxOccupancy,
		IsFull:            s.IsFull(options.MaxOccupancy),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		Details: detailsView{
			Teams:      teamsOrEmpty(s.Details.Teams),
			FinalScore: s.Details.FinalScore,
			Notes:      s.Details.Notes,
		},
	}
	for _, r := range s.Registrations {
		guests := r.Guests
		if guests == nil {
			guests = []string{}
		}
		u := names[r.UserID]
		v.Participants = append(v.Participants, participantView{
			UserID:       r.UserID,
			DisplayName:  u.DisplayName,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			Guests:       guests,
			CreatedBy:    r.CreatedBy,
			RegisteredAt: r.RegisteredAt,
		})
	}
	for _, o := range s.Occupants() {
		v.Occupants = append(v.Occupants, occupantView(o))
	}
	if strings.TrimSpace(s.Details.Notes) != "" {
		html, err := markdown.ToHTML(s.Details.Notes)
		if err != nil {
			slog.Warn("slot_event", "event", "notes_render_failed", "slot_id", s.ID, "error", err)
		}
		v.Details.NotesHTML = html
	}
	return v
}

// registrants resolves participant names. A directory failure is logged and
// the slot is still answered with ids only.
func registrants(r *http.Request, slots ...slot.Slot) map[string]user.User {
	found, err := projections.QueryRegistrants(r.Context(), userQueryDeps(), slots...)
	if err != nil {
		slog.Warn("slot_event", "event", "registrants_unresolved", "error", err)
		return nil
	}
	return found
}

func teamsOrEmpty(t slot.Teams) slot.Teams {
	if t.TeamA == nil {
		t.TeamA = []string{}
	}
	if t.TeamB == nil {
		t.TeamB = []string{}
	}
	return t
}

type slotListView struct {
	Slots []slotView        `json:"slots"`
	Page  listutil.PageInfo `json:"page"`
}

func slotQueryDeps() projections.SlotQueryDeps {
	return projections.SlotQueryDeps{SlotStore: stores.SlotStore, Retrier: options.Retrier}
}

func registrationDeps() orchestrators.RegistrationDeps {
	return orchestrators.RegistrationDeps{
		SlotStore:    stores.SlotStore,
		Retrier:      options.Retrier,
		MaxOccupancy: options.MaxOccupancy,
		MaxGuests:    options.MaxGuests,
		Now:          timeNow,
	}
}

// handleGetNextSlot handles GET /api/slots/next
// The slot is created on first request for its date.
func handleGetNextSlot(w http.ResponseWriter, r *http.Request) {
	s, err := orchestrators.ExecuteGetNextSlot(r.Context(), orchestrators.NextSlotDeps{
		SlotStore: stores.SlotStore,
		Rule:      options.Rule,
		Retrier:   options.Retrier,
		Now:       timeNow,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotView(s, registrants(r, s)))
}

// handleListSlots handles GET /api/slots?page=N&per_page=M
// Returns slots newest first with page info.
func handleListSlots(w http.ResponseWriter, r *http.Request) {
	result, err := projections.QueryListSlots(r.Context(), listutil.ParsePageParams(r.URL.Query()), slotQueryDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	view := slotListView{Slots: make([]slotView, 0, len(result.Slots)), Page: result.Page}
	names := registrants(r, result.Slots...)
	for _, s := range result.Slots {
		view.Slots = append(view.Slots, toSlotView(s, names))
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetSlot handles GET /api/slots/{id}
func handleGetSlot(w http.ResponseWriter, r *http.Request) {
	s, err := projections.QueryGetSlot(r.Context(), r.PathValue("id"), slotQueryDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotView(s, registrants(r, s)))
}

type registrationRequest struct {
	Guests []string `json:"guests"`
}

// registrationInput reads the slot id, the optional user_id target and, when
// withBody is set, the guest list.
// POST: Returns false after writing an error answer
func registrationInput(w http.ResponseWriter, r *http.Request, withBody bool) (orchestrators.RegistrationInput, bool) {
	in := orchestrators.RegistrationInput{SlotID: r.PathValue("id"), Actor: actorFrom(r)}

	if target := strings.TrimSpace(r.URL.Query().Get("user_id")); target != "" && target != in.Actor.UserID {
		if !in.Actor.IsAdmin {
			writeEngineError(w, slot.ErrForbidden)
			return in, false
		}
		u, err := stores.UserStore.GetByID(r.Context(), target)
		if err != nil {
			writeEngineError(w, err)
			return in, false
		}
		if !u.IsActive {
			writeEngineError(w, user.ErrInactiveIdentity)
			return in, false
		}
		in.UserID = target
	}

	if withBody && r.ContentLength != 0 {
		var req registrationRequest
		if err := strictDecode(r, &req); err != nil {
			badRequest(w, "invalid JSON body")
			return in, false
		}
		in.Guests = req.Guests
	}
	return in, true
}

// handleRegister handles POST /api/slots/{id}/register
func handleRegister(w http.ResponseWriter, r *http.Request) {
	in, ok := registrationInput(w, r, true)
	if !ok {
		return
	}
	s, err := orchestrators.ExecuteRegisterForSlot(r.Context(), in, registrationDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSlotView(s, registrants(r, s)))
}

// handleUpdateRegistration handles PUT /api/slots/{id}/register
// Replaces the guest list of an existing registration.
func handleUpdateRegistration(w http.ResponseWriter, r *http.Request) {
	in, ok := registrationInput(w, r, true)
	if !ok {
		return
	}
	s, err := orchestrators.ExecuteUpdateRegistration(r.Context(), in, registrationDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotView(s, registrants(r, s)))
}

// handleCancelRegistration handles DELETE /api/slots/{id}/register
func handleCancelRegistration(w http.ResponseWriter, r *http.Request) {
	in, ok := registrationInput(w, r, false)
	if !ok {
		return
	}
	s, err := orchestrators.ExecuteCancelRegistration(r.Context(), in, registrationDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotView(s, registrants(r, s)))
}

type detailsRequest struct {
	Teams      slot.Teams `json:"teams"`
	FinalScore string     `json:"finalScore"`
	Notes      string     `json:"notes"`
}

// handleRecordDetails handles PUT /api/slots/{id}/details (admin)
// Replaces teams, score and notes, then mails the match report.
func handleRecordDetails(w http.ResponseWriter, r *http.Request) {
	var req detailsRequest
	if err := strictDecode(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	s, err := orchestrators.ExecuteRecordSlotResult(r.Context(), orchestrators.RecordResultInput{
		SlotID:     r.PathValue("id"),
		Actor:      actorFrom(r),
		Teams:      req.Teams,
		FinalScore: req.FinalScore,
		Notes:      req.Notes,
	}, orchestrators.RecordResultDeps{
		SlotStore:   stores.SlotStore,
		UserStore:   stores.UserStore,
		EmailSender: emailSender,
		FromAddress: emailFromAddress,
		ReplyTo:     emailReplyTo,
		Retrier:     options.Retrier,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSlotView(s, registrants(r, s)))
}
