package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"slotmanager/internal/adapters/markdown"
	"slotmanager/internal/domain/slot"
)

// MatchReport is the content of the post-game e-mail.
type MatchReport struct {
	Date       time.Time
	FinalScore string
	TeamA      []string
	TeamB      []string
	Notes      template.HTML
}

var reportTemplate = template.Must(template.New("report").Parse(`<h2>Match of {{.Date.Format "Monday 2 January 2006, 15:04"}}</h2>
{{if .FinalScore}}<p><strong>Final score:</strong> {{.FinalScore}}</p>{{end}}
<table>
<tr><th>Team A</th><th>Team B</th></tr>
<tr><td>{{range .TeamA}}{{.}}<br>{{end}}</td><td>{{range .TeamB}}{{.}}<br>{{end}}</td></tr>
</table>
{{.Notes}}`))

// NewMatchReport builds the report of s, rendering its markdown notes.
func NewMatchReport(s slot.Slot) (MatchReport, error) {
	notes, err := markdown.ToHTML(s.Details.Notes)
	if err != nil {
		return MatchReport{}, fmt.Errorf("render notes: %w", err)
	}
	return MatchReport{
		Date:       s.Date,
		FinalScore: s.Details.FinalScore,
		TeamA:      s.Details.Teams.TeamA,
		TeamB:      s.Details.Teams.TeamB,
		Notes:      notes,
	}, nil
}

// Subject returns the e-mail subject line.
func (r MatchReport) Subject() string {
	if r.FinalScore == "" {
		return "Match report " + r.Date.Format("2 Jan")
	}
	return fmt.Sprintf("Match report %s: %s", r.Date.Format("2 Jan"), r.FinalScore)
}

// HTML renders the e-mail body.
func (r MatchReport) HTML() (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Requests builds one message per recipient so addresses are not disclosed to each other.
func (r MatchReport) Requests(recipients []string, from, replyTo string) ([]SendRequest, error) {
	body, err := r.HTML()
	if err != nil {
		return nil, err
	}
	subject := r.Subject()
	reqs := make([]SendRequest, 0, len(recipients))
	for _, to := range recipients {
		reqs = append(reqs, SendRequest{
			To:      []string{to},
			From:    from,
			Subject: subject,
			HTML:    body,
			ReplyTo: replyTo,
		})
	}
	return reqs, nil
}
