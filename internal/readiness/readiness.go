// Package readiness derives a project's coarse status from the heads of its seat chains.
package readiness

import "staffline/internal/domain"

// Derive returns the status implied by heads. Owner-driven statuses are returned unchanged,
// as is current when no live seat remains.
func Derive(current domain.ProjectStatus, heads []domain.Assignment) domain.ProjectStatus {
	if current.OwnerDriven() {
		return current
	}
	var live, accepted, open, draft int
	for _, a := range heads {
		switch a.Status {
		case domain.StatusCancelled, domain.StatusCompleted:
			continue
		case domain.StatusSearching, domain.StatusPendingAcceptance:
			open++
		case domain.StatusAccepted:
			accepted++
		case domain.StatusDraft:
			draft++
		}
		live++
	}
	switch {
	case live == 0:
		return current
	case open > 0:
		return domain.ProjectFormingTeam
	case accepted == live:
		return domain.ProjectReady
	case draft > 0:
		return domain.ProjectAwaitingTeam
	}
	// Only declined heads remain; they are reopened in the same transaction,
	// so this is transient.
	return domain.ProjectFormingTeam
}

// Counts summarizes a project's live seats for status reports.
type Counts struct {
	Draft     int `json:"draft"`
	Searching int `json:"searching"`
	Pending   int `json:"pending_acceptance"`
	Accepted  int `json:"accepted"`
}

func Count(heads []domain.Assignment) Counts {
	var c Counts
	for _, a := range heads {
		switch a.Status {
		case domain.StatusDraft:
			c.Draft++
		case domain.StatusSearching:
			c.Searching++
		case domain.StatusPendingAcceptance:
			c.Pending++
		case domain.StatusAccepted:
			c.Accepted++
		}
	}
	return c
}
