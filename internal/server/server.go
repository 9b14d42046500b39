package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/engine/auth"
	"staffline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"already_taken"`
	Message string         `json:"message" example:"someone else already took this"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"assignment_id\":\"a-1\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// bodyOf wraps a response payload for huma.
type bodyOf[T any] struct {
	Body T `json:"body"`
}

func respond[T any](v T) *bodyOf[T] {
	return &bodyOf[T]{Body: v}
}

// handlers carries what every route needs.
type handlers struct {
	engine engine.Engine
	policy auth.Policy
	auth   AuthConfig
}

// New returns an HTTP handler exposing the Staffline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	policy := auth.NewPolicy(cfg.Engine.Config)
	if cfg.Auth.AllowLegacyActorHeader && !policy.Known(cfg.Auth.legacyRole()) {
		return nil, fmt.Errorf("legacy actor role %q is not a configured role", cfg.Auth.legacyRole())
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Staffline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := handlers{engine: cfg.Engine, policy: policy, auth: cfg.Auth}
	registerDocs(router, basePath)
	registerHealth(group)
	h.registerProjects(group)
	h.registerSeats(group)
	h.registerAssignments(group)
	h.registerCandidates(group)
	h.registerCatalog(group)
	h.registerEvents(group)
	h.registerAPIKeys(group)
	h.registerMe(group)
	if cfg.Auth.EnableDevLogin {
		h.registerDevAuth(group)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// takenMessage is what callers see when they lose a race for a seat.
const takenMessage = "someone else already took this"

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"permission": fe.Permission})
	}
	var oe auth.NotOwnerError
	if errors.As(err, &oe) {
		return newAPIError(http.StatusForbidden, "not_owner", err.Error(), nil)
	}
	msg := err.Error()
	switch {
	case engine.IsTaken(err):
		return newAPIError(http.StatusConflict, "already_taken", takenMessage, map[string]any{"reason": msg})
	case errors.Is(err, engine.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case errors.Is(err, engine.ErrNotEligible):
		return newAPIError(http.StatusUnprocessableEntity, "not_eligible", msg, nil)
	case errors.Is(err, engine.ErrInvalidRequest):
		return newAPIError(http.StatusBadRequest, "invalid_request", msg, nil)
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, repo.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// authorize checks that the caller holds perm through one of its roles.
func (h handlers) authorize(ctx context.Context, perm string) (Principal, error) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return Principal{}, authErr
	}
	if err := h.policy.Check(principal.Roles, perm); err != nil {
		return principal, err
	}
	return principal, nil
}

// authorizeProject additionally requires the caller to own the project.
func (h handlers) authorizeProject(ctx context.Context, projectID, perm string) (Principal, error) {
	principal, err := h.authorize(ctx, perm)
	if err != nil {
		return principal, err
	}
	if h.policy.IsAdmin(principal.Roles) {
		return principal, nil
	}
	p, err := h.engine.Repo.GetProject(ctx, projectID)
	if err != nil {
		return principal, err
	}
	if p.OwnerID != principal.ActorID {
		return principal, auth.NotOwnerError{ActorID: principal.ActorID, Resource: "project " + projectID}
	}
	return principal, nil
}

// authorizeProjectRead lets the owner, an admin or a candidate offered a seat on the
// project read it.
func (h handlers) authorizeProjectRead(ctx context.Context, projectID string) (Principal, error) {
	principal, err := h.authorize(ctx, "project.read")
	if err != nil {
		return principal, err
	}
	if h.policy.IsAdmin(principal.Roles) {
		return principal, nil
	}
	p, err := h.engine.Repo.GetProject(ctx, projectID)
	if err != nil {
		return principal, err
	}
	if p.OwnerID == principal.ActorID {
		return principal, nil
	}
	ids, err := h.engine.Repo.CandidateProjectIDs(ctx, principal.ActorID)
	if err != nil {
		return principal, err
	}
	if slices.Contains(ids, projectID) {
		return principal, nil
	}
	return principal, auth.NotOwnerError{ActorID: principal.ActorID, Resource: "project " + projectID}
}

// authorizeAssignment resolves the assignment's project and applies authorizeProject.
func (h handlers) authorizeAssignment(ctx context.Context, assignmentID, perm string) (Principal, error) {
	a, err := h.engine.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		if _, authErr := h.authorize(ctx, perm); authErr != nil {
			return Principal{}, authErr
		}
		return Principal{}, err
	}
	return h.authorizeProject(ctx, a.ProjectID, perm)
}

// authorizeOffer lets a candidate answer only the offers addressed to them.
func (h handlers) authorizeOffer(ctx context.Context, assignmentID, perm string) (Principal, domain.Assignment, error) {
	principal, err := h.authorize(ctx, perm)
	if err != nil {
		return principal, domain.Assignment{}, err
	}
	a, err := h.engine.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return principal, a, err
	}
	if h.policy.IsAdmin(principal.Roles) {
		return principal, a, nil
	}
	if a.CandidateID == nil || *a.CandidateID != principal.ActorID {
		return principal, a, auth.NotOwnerError{ActorID: principal.ActorID, Resource: "offer " + assignmentID}
	}
	return principal, a, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	spec := sync.OnceValue(func() []byte {
		oas := api.OpenAPI()
		ensureDefaultErrorResponses(oas)
		applyAuthSecurity(oas, basePath)
		data, _ := json.Marshal(oas)
		return data
	})
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec())
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	devLoginPath := path.Join(basePath, "auth/dev/login")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	if !strings.HasPrefix(devLoginPath, "/") {
		devLoginPath = "/" + devLoginPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			if route == devLoginPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Staffline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*bodyOf[map[string]string], error) {
		return respond(map[string]string{"status": "ok"}), nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

// standardErrors lists the statuses every booking command can answer with.
var standardErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}
