package server

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"staffline/internal/domain"
	"staffline/internal/engine"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type ownerAction struct {
	name    string
	method  string
	summary string
	run     func(ctx context.Context, projectID, actorID string) (domain.Project, error)
}

func (h handlers) registerProjects(api huma.API) {
	e := h.engine
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        standardErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*bodyOf[domain.Project], error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, err := h.authorize(ctx, "project.manage")
		if err != nil {
			return nil, handleError(err)
		}
		owner := strings.TrimSpace(input.Body.OwnerID)
		if owner == "" {
			owner = principal.ActorID
		}
		if owner != principal.ActorID && !h.policy.IsAdmin(principal.Roles) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins may create projects for another owner", map[string]any{"owner_id": owner})
		}
		p, err := e.CreateProject(ctx, engine.CreateProjectOptions{
			ID:      input.Body.ID,
			Name:    input.Body.Name,
			OwnerID: owner,
			ActorID: principal.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OwnerID string `query:"owner_id"`
		Status  string `query:"status"`
	}) (*bodyOf[[]domain.Project], error) {
		principal, err := h.authorize(ctx, "project.read")
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		visible := func(domain.Project) bool { return true }
		if !h.policy.IsAdmin(principal.Roles) {
			offered, err := e.Repo.CandidateProjectIDs(ctx, principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			visible = func(p domain.Project) bool {
				return p.OwnerID == principal.ActorID || slices.Contains(offered, p.ID)
			}
		}
		out := []domain.Project{}
		for _, p := range items {
			if !visible(p) {
				continue
			}
			if input.OwnerID != "" && p.OwnerID != input.OwnerID {
				continue
			}
			if input.Status != "" && string(p.Status) != input.Status {
				continue
			}
			out = append(out, p)
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Project status with seat counts and heads",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*bodyOf[ProjectReportResponse], error) {
		if _, err := h.authorizeProjectRead(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		rep, err := e.ProjectReport(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		rep.Heads = nonNilSlice(rep.Heads)
		return respond(rep), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recompute-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/recompute",
		Summary:     "Re-derive project status from its seats",
		Errors:      standardErrors,
	}, func(ctx context.Context, input *projectPath) (*bodyOf[map[string]domain.ProjectStatus], error) {
		principal, err := h.authorizeProject(ctx, input.ProjectID, "project.manage")
		if err != nil {
			return nil, handleError(err)
		}
		status, err := e.Recompute(ctx, input.ProjectID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(map[string]domain.ProjectStatus{"status": status}), nil
	})

	actions := []ownerAction{
		{name: "start", method: http.MethodPost, summary: "Start work on a ready project", run: e.Start},
		{name: "pause", method: http.MethodPost, summary: "Pause project and release open seats", run: e.Pause},
		{name: "resume", method: http.MethodPost, summary: "Resume a paused project", run: e.Resume},
		{name: "finish", method: http.MethodPost, summary: "Complete project and retire its seats", run: e.Finish},
		{name: "archive", method: http.MethodPost, summary: "Archive project", run: e.Archive},
		{name: "delete", method: http.MethodDelete, summary: "Delete project seats and mark it deleted", run: e.Delete},
	}
	for _, action := range actions {
		p := "/projects/{project_id}/" + action.name
		if action.method == http.MethodDelete {
			p = "/projects/{project_id}"
		}
		huma.Register(api, huma.Operation{
			OperationID: action.name + "-project",
			Method:      action.method,
			Path:        p,
			Summary:     action.summary,
			Errors:      standardErrors,
		}, func(ctx context.Context, input *projectPath) (*bodyOf[domain.Project], error) {
			principal, err := h.authorizeProject(ctx, input.ProjectID, "project.manage")
			if err != nil {
				return nil, handleError(err)
			}
			updated, err := action.run(ctx, input.ProjectID, principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			return respond(updated), nil
		})
	}
}
