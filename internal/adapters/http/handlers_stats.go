package web

import (
	"net/http"
	"time"

	"slotmanager/internal/application/projections"
	"slotmanager/internal/domain/stats"
)

type userStatsView struct {
	UserID             string    `json:"userId"`
	DisplayName        string    `json:"displayName"`
	RegistrationDate   time.Time `json:"registrationDate"`
	IsActive           bool      `json:"isActive"`
	Attendance         int       `json:"attendance"`
	Wins               int       `json:"wins"`
	GuestsInvited      int       `json:"guestsInvited"`
	SponsoredUsers     int       `json:"sponsoredUsers"`
	TotalContributions int       `json:"totalContributions"`
}

// leadersView holds null for a category nobody has scored in.
type leadersView struct {
	MostWins       *userStatsView `json:"mostWins"`
	BestAttendance *userStatsView `json:"bestAttendance"`
	TopContributor *userStatsView `json:"topContributor"`
}

type statsView struct {
	Statistics leadersView     `json:"statistics"`
	AllStats   []userStatsView `json:"allStats"`
}

func toUserStatsView(s stats.UserStats) userStatsView {
	return userStatsView(s)
}

func leaderView(s *stats.UserStats) *userStatsView {
	if s == nil {
		return nil
	}
	v := toUserStatsView(*s)
	return &v
}

func statsDeps() projections.StatsDeps {
	return projections.StatsDeps{SlotStore: stores.SlotStore, UserStore: stores.UserStore, Retrier: options.Retrier}
}

// handleGetStats handles GET /api/stats
// Returns the global leaders and every active member's statistics.
func handleGetStats(w http.ResponseWriter, r *http.Request) {
	report, err := projections.QueryGetStats(r.Context(), statsDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	view := statsView{
		Statistics: leadersView{
			MostWins:       leaderView(report.Leaders.MostWins),
			BestAttendance: leaderView(report.Leaders.BestAttendance),
			TopContributor: leaderView(report.Leaders.TopContributor),
		},
		AllStats: make([]userStatsView, 0, len(report.All)),
	}
	for _, s := range report.All {
		view.AllStats = append(view.AllStats, toUserStatsView(s))
	}
	writeJSON(w, http.StatusOK, view)
}

// memberNameView is the directory entry shown next to per-user statistics.
type memberNameView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

type userStatsResultView struct {
	User       memberNameView `json:"user"`
	Statistics userStatsView  `json:"statistics"`
}

// handleGetUserStats handles GET /api/stats/user/{id}
// Returns {user, statistics} for one member.
func handleGetUserStats(w http.ResponseWriter, r *http.Request) {
	result, err := projections.QueryGetUserStats(r.Context(), r.PathValue("id"), statsDeps())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userStatsResultView{
		User: memberNameView{
			ID:          result.User.ID,
			DisplayName: result.User.DisplayName,
			FirstName:   result.User.FirstName,
			LastName:    result.User.LastName,
		},
		Statistics: toUserStatsView(result.Stats),
	})
}
