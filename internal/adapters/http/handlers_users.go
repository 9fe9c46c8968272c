package web

import (
	"net/http"
	"time"

	"slotmanager/internal/adapters/http/middleware"
	"slotmanager/internal/application/orchestrators"
	"slotmanager/internal/application/projections"
	"slotmanager/internal/domain/user"
)

// userView omits the e-mail address unless the caller is the user or an admin.
type userView struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"displayName"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	FullName         string    `json:"fullName"`
	Email            string    `json:"email,omitempty"`
	RegistrationDate time.Time `json:"registrationDate"`
	SponsorID        string    `json:"sponsorId,omitempty"`
	IsActive         bool      `json:"isActive"`
	IsAdmin          bool      `json:"isAdmin"`
}

type userSummaryView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type userProfileView struct {
	userView
	Sponsor   *userSummaryView  `json:"sponsor"`
	Sponsored []userSummaryView `json:"sponsored"`
}

func toUserView(u user.User, withEmail bool) userView {
	v := userView{
		ID:               u.ID,
		DisplayName:      u.DisplayName,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		FullName:         u.FullName(),
		RegistrationDate: u.RegistrationDate,
		SponsorID:        u.SponsorID,
		IsActive:         u.IsActive,
		IsAdmin:          u.IsAdmin,
	}
	if withEmail {
		v.Email = u.Email
	}
	return v
}

// canSeeEmail reports whether the caller may read id's e-mail address.
func canSeeEmail(r *http.Request, id string) bool {
	me, _ := middleware.CurrentUser(r.Context())
	return me.IsAdmin || me.ID == id
}

func userQueryDeps() projections.UserQueryDeps {
	return projections.UserQueryDeps{UserStore: stores.UserStore, Retrier: options.Retrier}
}

// handleGetMe handles GET /api/me
func handleGetMe(w http.ResponseWriter, r *http.Request) {
	me, _ := middleware.CurrentUser(r.Context())
	writeJSON(w, http.StatusOK, toUserView(me, true))
}

// handleListUsers handles GET /api/users
// Returns active users ordered by display name.
func handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := projections.QueryListUsers(r.Context(), userQueryDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u, canSeeEmail(r, u.ID)))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetUser handles GET /api/users/{id}
// Returns the user with their sponsor and sponsored members.
func handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	profile, err := projections.QueryGetUserProfile(r.Context(), id, userQueryDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	view := userProfileView{
		userView:  toUserView(profile.User, canSeeEmail(r, id)),
		Sponsored: make([]userSummaryView, 0, len(profile.Sponsored)),
	}
	if profile.Sponsor != nil {
		view.Sponsor = &userSummaryView{ID: profile.Sponsor.ID, DisplayName: profile.Sponsor.DisplayName}
	}
	for _, s := range profile.Sponsored {
		view.Sponsored = append(view.Sponsored, userSummaryView(s))
	}
	writeJSON(w, http.StatusOK, view)
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// handleUpdateUser handles PUT /api/users/{id}
// Only the user may edit their own profile.
func handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := strictDecode(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	updated, err := orchestrators.ExecuteUpdateProfile(r.Context(), orchestrators.UpdateProfileInput{
		ActorID:     actorFrom(r).UserID,
		UserID:      r.PathValue("id"),
		DisplayName: req.DisplayName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
	}, orchestrators.UpdateProfileDeps{UserStore: stores.UserStore})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(updated, true))
}

type createUserRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	SponsorID   string `json:"sponsorId"`
}

// handleCreateUser handles POST /api/users
// Any active member may sponsor a new member; sponsorId defaults to the caller.
func handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := strictDecode(r, &req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	created, err := orchestrators.ExecuteCreateUser(r.Context(), orchestrators.CreateUserInput{
		Actor:       actorFrom(r),
		DisplayName: req.DisplayName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		SponsorID:   req.SponsorID,
	}, orchestrators.CreateUserDeps{UserStore: stores.UserStore, Now: timeNow})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(created, true))
}
