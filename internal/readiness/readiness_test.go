package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"staffline/internal/domain"
)

func heads(statuses ...domain.AssignmentStatus) []domain.Assignment {
	out := make([]domain.Assignment, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, domain.Assignment{Status: s})
	}
	return out
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name    string
		current domain.ProjectStatus
		heads   []domain.Assignment
		want    domain.ProjectStatus
	}{
		{"searching seat forms team", domain.ProjectAwaitingTeam, heads(domain.StatusAccepted, domain.StatusSearching), domain.ProjectFormingTeam},
		{"pending seat forms team", domain.ProjectReady, heads(domain.StatusAccepted, domain.StatusPendingAcceptance), domain.ProjectFormingTeam},
		{"all accepted is ready", domain.ProjectFormingTeam, heads(domain.StatusAccepted, domain.StatusAccepted), domain.ProjectReady},
		{"cancelled ignored", domain.ProjectFormingTeam, heads(domain.StatusAccepted, domain.StatusCancelled), domain.ProjectReady},
		{"completed ignored", domain.ProjectFormingTeam, heads(domain.StatusAccepted, domain.StatusCompleted), domain.ProjectReady},
		{"draft awaits team", domain.ProjectFormingTeam, heads(domain.StatusAccepted, domain.StatusDraft), domain.ProjectAwaitingTeam},
		{"draft only awaits team", domain.ProjectFormingTeam, heads(domain.StatusDraft), domain.ProjectAwaitingTeam},
		{"no live seats keeps status", domain.ProjectReady, heads(domain.StatusCancelled), domain.ProjectReady},
		{"no seats keeps status", domain.ProjectAwaitingTeam, nil, domain.ProjectAwaitingTeam},
		{"in progress is owner driven", domain.ProjectInProgress, heads(domain.StatusSearching), domain.ProjectInProgress},
		{"paused is owner driven", domain.ProjectPaused, heads(domain.StatusAccepted), domain.ProjectPaused},
		{"archived is owner driven", domain.ProjectArchived, heads(domain.StatusDraft), domain.ProjectArchived},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.current, tt.heads))
		})
	}
}

func TestCount(t *testing.T) {
	c := Count(heads(domain.StatusDraft, domain.StatusSearching, domain.StatusSearching, domain.StatusAccepted, domain.StatusCancelled))
	assert.Equal(t, Counts{Draft: 1, Searching: 2, Accepted: 1}, c)
}
