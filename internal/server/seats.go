package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"staffline/internal/domain"
	"staffline/internal/engine"
)

type seatPath struct {
	RequestID string `path:"request_id"`
}

type assignmentPath struct {
	AssignmentID string `path:"assignment_id"`
}

func (h handlers) registerSeats(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID:   "add-seat",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/seats",
		Summary:       "Add a seat to a project",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Body      AddSeatRequest `json:"body"`
	}) (*bodyOf[ResultResponse], error) {
		principal, err := h.authorizeProject(ctx, input.ProjectID, "seat.create")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.AddSeat(ctx, engine.AddSeatOptions{
			ID:           input.Body.ID,
			ProjectID:    input.ProjectID,
			Requirements: input.Body.Requirements,
			ActorID:      principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-seats",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/seats",
		Summary:     "List seats with their current assignment",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*bodyOf[[]SeatResponse], error) {
		if _, err := h.authorizeProjectRead(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		rep, err := e.ProjectReport(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		requests, err := e.Repo.ListRequests(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		heads := make(map[string]domain.Assignment, len(rep.Heads))
		for _, a := range rep.Heads {
			heads[a.RequestID] = a
		}
		out := make([]SeatResponse, 0, len(requests))
		for _, rr := range requests {
			seat := SeatResponse{Request: rr}
			if head, ok := heads[rr.ID]; ok {
				seat.Head = &head
			}
			out = append(out, seat)
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-search",
		Method:      http.MethodPost,
		Path:        "/seats/{request_id}/search",
		Summary:     "Open the search for a draft seat",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *seatPath) (*bodyOf[ResultResponse], error) {
		principal, err := h.authorizeSeat(ctx, input.RequestID, "seat.search")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.OpenSearch(ctx, input.RequestID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		res.Eligible = nonNilSlice(res.Eligible)
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "seat-history",
		Method:      http.MethodGet,
		Path:        "/seats/{request_id}/history",
		Summary:     "Assignment chain of a seat, oldest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *seatPath) (*bodyOf[[]domain.Assignment], error) {
		rr, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			if _, authErr := h.authorize(ctx, "project.read"); authErr != nil {
				return nil, handleError(authErr)
			}
			return nil, handleError(err)
		}
		if _, err := h.authorizeProjectRead(ctx, rr.ProjectID); err != nil {
			return nil, handleError(err)
		}
		chain, err := e.History(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(nonNilSlice(chain)), nil
	})
}

func (h handlers) authorizeSeat(ctx context.Context, requestID, perm string) (Principal, error) {
	rr, err := h.engine.Repo.GetRequest(ctx, requestID)
	if err != nil {
		if _, authErr := h.authorize(ctx, perm); authErr != nil {
			return Principal{}, authErr
		}
		return Principal{}, err
	}
	return h.authorizeProject(ctx, rr.ProjectID, perm)
}

func (h handlers) registerAssignments(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}",
		Summary:     "Get assignment",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *assignmentPath) (*bodyOf[domain.Assignment], error) {
		a, err := e.Repo.GetAssignment(ctx, input.AssignmentID)
		if err != nil {
			if _, authErr := h.authorize(ctx, "project.read"); authErr != nil {
				return nil, handleError(authErr)
			}
			return nil, handleError(err)
		}
		if _, err := h.authorizeProjectRead(ctx, a.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return respond(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "eligible-candidates",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}/eligible",
		Summary:     "Candidates eligible for an assignment right now",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *assignmentPath) (*bodyOf[EligibleResponse], error) {
		if _, err := h.authorizeAssignment(ctx, input.AssignmentID, "seat.offer"); err != nil {
			return nil, handleError(err)
		}
		ids, err := e.Eligible(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(EligibleResponse{AssignmentID: input.AssignmentID, Candidates: nonNilSlice(ids)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "offer-seat",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/offer",
		Summary:     "Offer a searching seat to a candidate",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		AssignmentID string       `path:"assignment_id"`
		Body         OfferRequest `json:"body"`
	}) (*bodyOf[ResultResponse], error) {
		principal, err := h.authorizeAssignment(ctx, input.AssignmentID, "seat.offer")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Offer(ctx, input.AssignmentID, input.Body.CandidateID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-offer",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/accept",
		Summary:     "Accept a pending offer",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		AssignmentID string        `path:"assignment_id"`
		Body         AcceptRequest `json:"body" required:"false"`
	}) (*bodyOf[ResultResponse], error) {
		principal, _, err := h.authorizeOffer(ctx, input.AssignmentID, "seat.accept")
		if err != nil {
			return nil, handleError(err)
		}
		candidate := strings.TrimSpace(input.Body.CandidateID)
		if candidate == "" {
			candidate = principal.ActorID
		}
		res, err := e.Accept(ctx, input.AssignmentID, candidate, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decline-offer",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/decline",
		Summary:     "Decline a pending offer and reopen the seat",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		AssignmentID string        `path:"assignment_id"`
		Body         ReasonRequest `json:"body" required:"false"`
	}) (*bodyOf[ResultResponse], error) {
		principal, _, err := h.authorizeOffer(ctx, input.AssignmentID, "seat.decline")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Decline(ctx, input.AssignmentID, input.Body.Reason, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/cancel",
		Summary:     "Cancel an assignment",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		AssignmentID string        `path:"assignment_id"`
		Body         ReasonRequest `json:"body" required:"false"`
	}) (*bodyOf[ResultResponse], error) {
		principal, err := h.authorizeAssignment(ctx, input.AssignmentID, "seat.cancel")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Cancel(ctx, input.AssignmentID, input.Body.Reason, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/complete",
		Summary:     "Complete an accepted assignment, optionally opening a replacement",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		AssignmentID string          `path:"assignment_id"`
		Body         CompleteRequest `json:"body" required:"false"`
	}) (*bodyOf[ResultResponse], error) {
		principal, err := h.authorizeAssignment(ctx, input.AssignmentID, "seat.complete")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Complete(ctx, engine.CompleteOptions{
			AssignmentID: input.AssignmentID,
			Reason:       input.Body.Reason,
			Replacement:  input.Body.Replacement,
			ActorID:      principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-assignment",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/reopen",
		Summary:     "Open a searching successor for a retired assignment",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *struct {
		AssignmentID string        `path:"assignment_id"`
		Body         ReopenRequest `json:"body" required:"false"`
	}) (*bodyOf[ResultResponse], error) {
		principal, err := h.authorizeAssignment(ctx, input.AssignmentID, "seat.reopen")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Reopen(ctx, engine.ReopenOptions{
			AssignmentID: input.AssignmentID,
			Replacement:  input.Body.Replacement,
			ActorID:      principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})
}
