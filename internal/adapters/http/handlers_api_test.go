package web

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"slotmanager/internal/adapters/email"
	"slotmanager/internal/adapters/http/perf"
	"slotmanager/internal/adapters/storage"
	slotStore "slotmanager/internal/adapters/storage/slot"
	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/domain/schedule"
	"slotmanager/internal/domain/slot"
	"slotmanager/internal/domain/user"
)

// Monday 2025-12-08 12:00 UTC; the next Wednesday 19:00 is 2025-12-10.
var testNow = time.Date(2025, 12, 8, 12, 0, 0, 0, time.UTC)

var nextKickoff = time.Date(2025, 12, 10, 19, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	stores  *Stores
	mail    *email.NoopSender
}

// newTestServer wires the full middleware chain over real SQLite stores seeded with
// admin a1 (Root), members u1 (Ann), u2 (Bob) and inactive u3 (Old).
func newTestServer(t *testing.T, maxOccupancy int) *testServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slots.db")
	db, err := sql.Open("sqlite", storage.DSN(path))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(db, path); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := &Stores{SlotStore: slotStore.NewSQLiteStore(db), UserStore: userStore.NewSQLiteStore(db)}
	seed := []user.User{
		{ID: "a1", DisplayName: "Root", FirstName: "Ro", LastName: "Ot", Email: "root@example.com", IsActive: true, IsAdmin: true},
		{ID: "u1", DisplayName: "Ann", FirstName: "Ann", LastName: "Lee", Email: "ann@example.com", SponsorID: "a1", IsActive: true},
		{ID: "u2", DisplayName: "Bob", FirstName: "Bob", LastName: "Ray", Email: "bob@example.com", SponsorID: "a1", IsActive: true},
		{ID: "u3", DisplayName: "Old", FirstName: "Old", LastName: "Timer", Email: "old@example.com", SponsorID: "a1"},
	}
	for i, u := range seed {
		u.RegistrationDate = testNow.AddDate(0, 0, -30+i)
		if err := s.UserStore.Create(context.Background(), u); err != nil {
			t.Fatalf("seed %s: %v", u.ID, err)
		}
	}

	prevNow := timeNow
	timeNow = func() time.Time { return testNow }
	mail := email.NewNoopSender()
	SetEmailSender(mail, "games@example.com", "")
	t.Cleanup(func() {
		timeNow = prevNow
		SetEmailSender(nil, "", "")
	})

	h, stop := NewMux(s, perf.NewCollector(100), Options{
		Rule:           schedule.Rule{Day: schedule.Wednesday, StartTime: "19:00", EndTime: "20:00", Location: time.UTC},
		MaxOccupancy:   maxOccupancy,
		MaxGuests:      5,
		Retrier:        storage.Retrier{Timeout: time.Second, MaxTries: 2, InitialInterval: time.Millisecond},
		IdentityHeader: "X-Remote-User",
		CSRFKey:        []byte("0123456789abcdef0123456789abcdef"),
		RateLimit:      0,
	})
	t.Cleanup(stop)
	return &testServer{handler: h, stores: s, mail: mail}
}

func (ts *testServer) do(t *testing.T, method, path, as string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("X-Remote-User", as)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rr.Code, want, rr.Body.String())
	}
}

func (ts *testServer) nextSlot(t *testing.T) slotView {
	t.Helper()
	rr := ts.do(t, http.MethodGet, "/api/slots/next", "u1", nil)
	expectStatus(t, rr, http.StatusOK)
	return decode[slotView](t, rr)
}

// TestHealth answers without an identity.
func TestHealth(t *testing.T) {
	ts := newTestServer(t, 10)
	rr := ts.do(t, http.MethodGet, "/health", "", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[map[string]string](t, rr)["status"]; got != "ok" {
		t.Errorf("status = %q, want ok", got)
	}
}

// TestAPI_RequiresIdentity rejects anonymous and inactive callers.
func TestAPI_RequiresIdentity(t *testing.T) {
	ts := newTestServer(t, 10)
	for _, as := range []string{"", "nobody", "u3"} {
		rr := ts.do(t, http.MethodGet, "/api/slots/next", as, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("as %q: status = %d, want 401", as, rr.Code)
		}
	}
	rr := ts.do(t, http.MethodGet, "/api/me", "ann@example.com", nil)
	expectStatus(t, rr, http.StatusOK)
	got := decode[userView](t, rr)
	if got.ID != "u1" {
		t.Errorf("identity by e-mail resolved to %q, want u1", got.ID)
	}
	if got.FullName != "Ann Lee" {
		t.Errorf("fullName = %q, want Ann Lee", got.FullName)
	}
}

// TestGetNextSlot creates the slot once and returns it on every call.
func TestGetNextSlot(t *testing.T) {
	ts := newTestServer(t, 10)
	first := ts.nextSlot(t)
	second := ts.nextSlot(t)

	if first.ID == "" || first.ID != second.ID {
		t.Errorf("ids = %q, %q; want one stable slot", first.ID, second.ID)
	}
	if !first.Date.Equal(nextKickoff) {
		t.Errorf("date = %v, want %v", first.Date, nextKickoff)
	}
	if first.MaxParticipants != 10 || first.IsFull || first.TotalParticipants != 0 {
		t.Errorf("capacity view = %d/%d full=%v", first.TotalParticipants, first.MaxParticipants, first.IsFull)
	}
	if first.Participants == nil || first.Occupants == nil {
		t.Error("empty lists must encode as [] not null")
	}
}

// TestRegistrationLifecycle walks register, duplicate, update and double cancel.
func TestRegistrationLifecycle(t *testing.T) {
	ts := newTestServer(t, 10)
	s := ts.nextSlot(t)
	path := "/api/slots/" + s.ID + "/register"

	rr := ts.do(t, http.MethodPost, path, "u1", registrationRequest{Guests: []string{" Sam ", ""}})
	expectStatus(t, rr, http.StatusCreated)
	got := decode[slotView](t, rr)
	if got.TotalParticipants != 2 {
		t.Errorf("occupancy = %d, want 2", got.TotalParticipants)
	}
	if len(got.Occupants) != 2 || got.Occupants[1].Kind != slot.KindGuest || got.Occupants[1].Name != "Sam" || got.Occupants[1].AddedBy != "u1" {
		t.Errorf("occupants = %+v", got.Occupants)
	}
	if p := got.Participants[0]; p.DisplayName != "Ann" || p.FirstName != "Ann" || p.LastName != "Lee" {
		t.Errorf("participant names = %+v, want Ann Lee", p)
	}

	rr = ts.do(t, http.MethodPost, path, "u1", nil)
	expectStatus(t, rr, http.StatusConflict)
	if code := decode[errorBody](t, rr).Code; code != "ALREADY_REGISTERED" {
		t.Errorf("code = %q, want ALREADY_REGISTERED", code)
	}

	rr = ts.do(t, http.MethodPut, path, "u1", registrationRequest{Guests: []string{}})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[slotView](t, rr); got.TotalParticipants != 1 {
		t.Errorf("occupancy after update = %d, want 1", got.TotalParticipants)
	}

	rr = ts.do(t, http.MethodDelete, path, "u1", nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[slotView](t, rr); got.TotalParticipants != 0 {
		t.Errorf("occupancy after cancel = %d, want 0", got.TotalParticipants)
	}

	rr = ts.do(t, http.MethodDelete, path, "u1", nil)
	expectStatus(t, rr, http.StatusNotFound)
	if code := decode[errorBody](t, rr).Code; code != "NOT_REGISTERED" {
		t.Errorf("code = %q, want NOT_REGISTERED", code)
	}
}

// TestRegistration_WithoutBody registers and cancels with bare requests that
// carry no Content-Type.
func TestRegistration_WithoutBody(t *testing.T) {
	ts := newTestServer(t, 10)
	s := ts.nextSlot(t)
	path := "/api/slots/" + s.ID + "/register"

	bare := func(method, as string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Remote-User", as)
		rr := httptest.NewRecorder()
		ts.handler.ServeHTTP(rr, req)
		return rr
	}

	rr := bare(http.MethodPost, "u2")
	expectStatus(t, rr, http.StatusCreated)
	if got := decode[slotView](t, rr); got.TotalParticipants != 1 {
		t.Errorf("occupancy = %d, want 1", got.TotalParticipants)
	}
	rr = bare(http.MethodDelete, "u2")
	expectStatus(t, rr, http.StatusOK)
	if got := decode[slotView](t, rr); got.TotalParticipants != 0 {
		t.Errorf("occupancy after cancel = %d, want 0", got.TotalParticipants)
	}
}

// TestListSlots_ParticipantNames resolves names for a registration made on behalf of a member.
func TestListSlots_ParticipantNames(t *testing.T) {
	ts := newTestServer(t, 10)
	s := ts.nextSlot(t)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/slots/"+s.ID+"/register?user_id=u2", "a1", nil), http.StatusCreated)

	rr := ts.do(t, http.MethodGet, "/api/slots?page=1", "u1", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decode[slotListView](t, rr)
	if len(list.Slots) != 1 || len(list.Slots[0].Participants) != 1 {
		t.Fatalf("slots = %+v", list.Slots)
	}
	if p := list.Slots[0].Participants[0]; p.UserID != "u2" || p.DisplayName != "Bob" || p.LastName != "Ray" {
		t.Errorf("participant = %+v, want Bob Ray", p)
	}
}

// TestRegister_CapacityExceeded reports occupancy, max and attempted units.
func TestRegister_CapacityExceeded(t *testing.T) {
	ts := newTestServer(t, 3)
	s := ts.nextSlot(t)
	path := "/api/slots/" + s.ID + "/register"

	expectStatus(t, ts.do(t, http.MethodPost, path, "u1", registrationRequest{Guests: []string{"Sam"}}), http.StatusCreated)

	rr := ts.do(t, http.MethodPost, path, "u2", registrationRequest{Guests: []string{"Kim"}})
	expectStatus(t, rr, http.StatusConflict)
	body := decode[errorBody](t, rr)
	if body.Code != "CAPACITY_EXCEEDED" {
		t.Fatalf("code = %q, want CAPACITY_EXCEEDED", body.Code)
	}
	if body.Occupancy == nil || *body.Occupancy != 2 || *body.Max != 3 || *body.Attempted != 2 {
		t.Errorf("capacity fields = %v/%v/%v, want 2/3/2", body.Occupancy, body.Max, body.Attempted)
	}

	rr = ts.do(t, http.MethodPost, path, "u2", nil)
	expectStatus(t, rr, http.StatusCreated)
	if got := decode[slotView](t, rr); !got.IsFull {
		t.Error("isFull = false at 3/3")
	}
}

// TestRegister_Validation rejects bad bodies and too many guests.
func TestRegister_Validation(t *testing.T) {
	ts := newTestServer(t, 0)
	s := ts.nextSlot(t)
	path := "/api/slots/" + s.ID + "/register"

	rr := ts.do(t, http.MethodPost, path, "u1", map[string]any{"guests": []string{"a"}, "extra": true})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodPost, path, "u1", registrationRequest{Guests: []string{"a", "b", "c", "d", "e", "f"}})
	expectStatus(t, rr, http.StatusBadRequest)
	if msg := decode[errorBody](t, rr).Error; msg != slot.ErrTooManyGuests.Error() {
		t.Errorf("error = %q, want %q", msg, slot.ErrTooManyGuests.Error())
	}

	rr = ts.do(t, http.MethodPost, "/api/slots/missing/register", "u1", nil)
	expectStatus(t, rr, http.StatusNotFound)
}

// TestRegister_OnBehalf lets admins act for other members via user_id.
func TestRegister_OnBehalf(t *testing.T) {
	ts := newTestServer(t, 10)
	s := ts.nextSlot(t)
	path := "/api/slots/" + s.ID + "/register"

	tests := []struct {
		name       string
		method     string
		as         string
		target     string
		wantStatus int
	}{
		{"member for someone else", http.MethodPost, "u1", "u2", http.StatusForbidden},
		{"admin for unknown user", http.MethodPost, "a1", "ghost", http.StatusNotFound},
		{"admin for inactive user", http.MethodPost, "a1", "u3", http.StatusBadRequest},
		{"admin registers member", http.MethodPost, "a1", "u2", http.StatusCreated},
		{"member cancels other's registration", http.MethodDelete, "u1", "u2", http.StatusForbidden},
		{"admin cancels member", http.MethodDelete, "a1", "u2", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, tt.method, path+"?user_id="+tt.target, tt.as, nil)
			expectStatus(t, rr, tt.wantStatus)
		})
	}
}

// TestRecordDetails is admin only, renders notes and mails registrants.
func TestRecordDetails(t *testing.T) {
	ts := newTestServer(t, 10)
	s := ts.nextSlot(t)
	expectStatus(t, ts.do(t, http.MethodPost, "/api/slots/"+s.ID+"/register", "u1", nil), http.StatusCreated)

	req := detailsRequest{
		Teams:      slot.Teams{TeamA: []string{"u1"}, TeamB: []string{"Bob"}},
		FinalScore: "5-3",
		Notes:      "**great** game\n<script>alert(1)</script>",
	}
	path := "/api/slots/" + s.ID + "/details"

	expectStatus(t, ts.do(t, http.MethodPut, path, "u1", req), http.StatusForbidden)

	rr := ts.do(t, http.MethodPut, path, "a1", req)
	expectStatus(t, rr, http.StatusOK)
	got := decode[slotView](t, rr)
	if got.Details.FinalScore != "5-3" || len(got.Details.Teams.TeamA) != 1 {
		t.Errorf("details = %+v", got.Details)
	}
	html := string(got.Details.NotesHTML)
	if !strings.Contains(html, "<strong>great</strong>") || strings.Contains(html, "<script>") {
		t.Errorf("notesHtml = %q", html)
	}

	sent := ts.mail.Sent()
	if len(sent) != 1 || sent[0].To[0] != "ann@example.com" {
		t.Fatalf("sent = %+v, want one report to ann@example.com", sent)
	}
	if !strings.Contains(sent[0].Subject, "5-3") {
		t.Errorf("subject = %q", sent[0].Subject)
	}

	bad := req
	bad.Teams.TeamA = []string{"  "}
	expectStatus(t, ts.do(t, http.MethodPut, path, "a1", bad), http.StatusBadRequest)
}

// TestStats derives wins from teams and score.
func TestStats(t *testing.T) {
	ts := newTestServer(t, 10)
	s := ts.nextSlot(t)
	for _, id := range []string{"u1", "u2"} {
		expectStatus(t, ts.do(t, http.MethodPost, "/api/slots/"+s.ID+"/register", id, nil), http.StatusCreated)
	}
	expectStatus(t, ts.do(t, http.MethodPut, "/api/slots/"+s.ID+"/details", "a1", detailsRequest{
		Teams:      slot.Teams{TeamA: []string{"ann"}, TeamB: []string{"u2"}},
		FinalScore: "5-3",
	}), http.StatusOK)

	rr := ts.do(t, http.MethodGet, "/api/stats", "u2", nil)
	expectStatus(t, rr, http.StatusOK)
	got := decode[statsView](t, rr)
	if got.Statistics.MostWins == nil || got.Statistics.MostWins.UserID != "u1" {
		t.Errorf("mostWins = %+v, want u1", got.Statistics.MostWins)
	}
	if got.Statistics.BestAttendance == nil || got.Statistics.BestAttendance.UserID != "u1" {
		t.Errorf("bestAttendance = %+v, want u1 (earlier registration wins the tie)", got.Statistics.BestAttendance)
	}
	if len(got.AllStats) != 3 {
		t.Errorf("allStats len = %d, want 3 active users", len(got.AllStats))
	}

	rr = ts.do(t, http.MethodGet, "/api/stats/user/u1", "u2", nil)
	expectStatus(t, rr, http.StatusOK)
	one := decode[userStatsResultView](t, rr)
	if one.Statistics.Wins != 1 || one.Statistics.Attendance != 1 {
		t.Errorf("u1 stats = %+v, want 1 win 1 attendance", one.Statistics)
	}
	if one.User.ID != "u1" || one.User.DisplayName != "Ann" || one.User.LastName != "Lee" {
		t.Errorf("user = %+v, want Ann Lee", one.User)
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/stats/user/ghost", "u2", nil), http.StatusNotFound)
}

// TestStats_Empty encodes missing leaders as null.
func TestStats_Empty(t *testing.T) {
	ts := newTestServer(t, 10)
	rr := ts.do(t, http.MethodGet, "/api/stats", "u1", nil)
	expectStatus(t, rr, http.StatusOK)
	raw := decode[map[string]json.RawMessage](t, rr)
	if !strings.Contains(string(raw["statistics"]), `"mostWins":null`) {
		t.Errorf("statistics = %s", raw["statistics"])
	}
}

// TestListSlots pages newest first.
func TestListSlots(t *testing.T) {
	ts := newTestServer(t, 10)
	for i := 0; i < 3; i++ {
		date := nextKickoff.AddDate(0, 0, -7*i)
		if _, err := ts.stores.SlotStore.CreateIfAbsent(context.Background(), slot.Slot{ID: fmt.Sprintf("s%d", i), Date: date}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	rr := ts.do(t, http.MethodGet, "/api/slots?page=1&per_page=2", "u1", nil)
	expectStatus(t, rr, http.StatusOK)
	got := decode[slotListView](t, rr)
	if len(got.Slots) != 2 || got.Slots[0].ID != "s0" || got.Slots[1].ID != "s1" {
		t.Errorf("slots = %+v", got.Slots)
	}
	if got.Page.Total != 3 || got.Page.TotalPages != 2 || !got.Page.HasNext || got.Page.HasPrev {
		t.Errorf("page = %+v", got.Page)
	}

	rr = ts.do(t, http.MethodGet, "/api/slots/s2", "u1", nil)
	expectStatus(t, rr, http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/slots/nope", "u1", nil), http.StatusNotFound)
}

// TestUsers covers the directory, sponsored signup and self-only profile edits.
func TestUsers(t *testing.T) {
	ts := newTestServer(t, 10)

	rr := ts.do(t, http.MethodGet, "/api/users", "u1", nil)
	expectStatus(t, rr, http.StatusOK)
	list := decode[[]userView](t, rr)
	var names []string
	for _, u := range list {
		names = append(names, u.DisplayName)
		if u.ID != "u1" && u.Email != "" {
			t.Errorf("e-mail of %s leaked to a member", u.ID)
		}
	}
	if strings.Join(names, ",") != "Ann,Bob,Root" {
		t.Errorf("users = %v, want Ann,Bob,Root", names)
	}

	rr = ts.do(t, http.MethodPost, "/api/users", "u1", createUserRequest{
		FirstName: "Cy", LastName: "Dee", DisplayName: "Cyd", Email: "CY@example.com",
	})
	expectStatus(t, rr, http.StatusCreated)
	created := decode[userView](t, rr)
	if created.SponsorID != "u1" || created.Email != "cy@example.com" || !created.IsActive {
		t.Errorf("created = %+v", created)
	}

	rr = ts.do(t, http.MethodPost, "/api/users", "u1", createUserRequest{
		FirstName: "Cy", LastName: "Two", DisplayName: "cyd", Email: "cy2@example.com",
	})
	expectStatus(t, rr, http.StatusConflict)

	rr = ts.do(t, http.MethodPost, "/api/users", "u1", createUserRequest{
		FirstName: "Ed", LastName: "Ex", DisplayName: "Ed", Email: "ed@example.com", SponsorID: "u3",
	})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodGet, "/api/users/"+created.ID, "u2", nil)
	expectStatus(t, rr, http.StatusOK)
	profile := decode[userProfileView](t, rr)
	if profile.Sponsor == nil || profile.Sponsor.ID != "u1" {
		t.Errorf("sponsor = %+v, want u1", profile.Sponsor)
	}

	rr = ts.do(t, http.MethodGet, "/api/users/u1", "u2", nil)
	expectStatus(t, rr, http.StatusOK)
	if p := decode[userProfileView](t, rr); len(p.Sponsored) != 1 || p.Sponsored[0].ID != created.ID {
		t.Errorf("sponsored = %+v", p.Sponsored)
	}

	edit := profileRequest{DisplayName: "Annie", FirstName: "Ann", LastName: "Lee"}
	expectStatus(t, ts.do(t, http.MethodPut, "/api/users/u1", "a1", edit), http.StatusForbidden)
	rr = ts.do(t, http.MethodPut, "/api/users/u1", "u1", edit)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[userView](t, rr); got.DisplayName != "Annie" {
		t.Errorf("displayName = %q, want Annie", got.DisplayName)
	}
	expectStatus(t, ts.do(t, http.MethodPut, "/api/users/u2", "u2", profileRequest{DisplayName: "annie", FirstName: "B", LastName: "R"}), http.StatusConflict)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/users/ghost", "u1", nil), http.StatusNotFound)
}

// TestAdminPerf is admin only and returns the timing snapshot.
func TestAdminPerf(t *testing.T) {
	ts := newTestServer(t, 10)
	ts.nextSlot(t)

	expectStatus(t, ts.do(t, http.MethodGet, "/api/admin/perf", "u1", nil), http.StatusForbidden)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/admin/perf?minutes=0", "a1", nil), http.StatusBadRequest)

	rr := ts.do(t, http.MethodGet, "/api/admin/perf", "a1", nil)
	expectStatus(t, rr, http.StatusOK)
	snap := decode[perf.Snapshot](t, rr)
	if snap.TotalRecorded == 0 {
		t.Error("expected recorded requests")
	}
}

// TestWriteEngineError maps each error class to its status and code.
func TestWriteEngineError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"store unavailable", fmt.Errorf("%w: timeout", slot.ErrStoreUnavailable), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"forbidden", slot.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"profile owner", user.ErrNotProfileOwner, http.StatusForbidden, "FORBIDDEN"},
		{"sponsor missing", user.ErrSponsorNotFound, http.StatusNotFound, "USER_NOT_FOUND"},
		{"email taken", user.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
		{"wrapped validation", fmt.Errorf("create: %w", user.ErrInvalidEmail), http.StatusBadRequest, "INVALID"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeEngineError(rr, tt.err)
			expectStatus(t, rr, tt.wantStatus)
			body := decode[errorBody](t, rr)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(body.Error, "disk") {
				t.Errorf("internal detail leaked: %q", body.Error)
			}
			if tt.wantStatus == http.StatusServiceUnavailable && rr.Header().Get("Retry-After") == "" {
				t.Error("missing Retry-After")
			}
		})
	}
}
