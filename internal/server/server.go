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
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"fundtrail/internal/deadline"
	"fundtrail/internal/domain"
	"fundtrail/internal/engine"
	"fundtrail/internal/engine/authz"
	"fundtrail/internal/export"
	"fundtrail/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"budget_exceeded"`
	Message string         `json:"message" example:"expense exceeds remaining budget"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"remaining\":\"1500\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Fundtrail API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema validation errors report as 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine))
	hcfg := huma.DefaultConfig("Fundtrail API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.Auth)
	registerActors(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerLedger(group, cfg.Engine)
	registerExport(router, basePath, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe authz.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"action": fe.Action})
	}
	var ise engine.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"state": ise.State})
	}
	var dve engine.DuplicateVoteError
	if errors.As(err, &dve) {
		return newAPIError(http.StatusConflict, "duplicate_vote", err.Error(), map[string]any{"request_id": dve.RequestID})
	}
	var bee engine.BudgetExceededError
	if errors.As(err, &bee) {
		return newAPIError(http.StatusUnprocessableEntity, "budget_exceeded", err.Error(), map[string]any{"remaining": bee.Remaining.String()})
	}
	var dee engine.DeadlineExpiredError
	if errors.As(err, &dee) {
		return newAPIError(http.StatusUnprocessableEntity, "deadline_expired", err.Error(), map[string]any{"end_date": dee.EndDate})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid credentials"):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", msg, nil)
	case strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "required") ||
		strings.Contains(lowered, "must") ||
		strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "taken") ||
		strings.Contains(lowered, "cannot"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Fundtrail API Docs</title>
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
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-actor",
		Method:        http.MethodPost,
		Path:          "/actors",
		Summary:       "Create actor",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateActorRequest `json:"body"`
	}) (*struct {
		Body ActorResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateActor(ctx, engine.CreateActorOptions{
			Username: input.Body.Username,
			Name:     input.Body.Name,
			Role:     domain.Role(input.Body.Role),
			Password: input.Body.Password,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorResponse `json:"body"`
		}{Body: actorResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ActorResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListActors(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActorResponse `json:"body"`
		}{Body: mapActors(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-actor",
		Method:      http.MethodGet,
		Path:        "/actors/{id}",
		Summary:     "Get actor",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ActorResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetActor(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorResponse `json:"body"`
		}{Body: actorResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-actor",
		Method:      http.MethodPatch,
		Path:        "/actors/{id}",
		Summary:     "Update actor",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateActorRequest `json:"body"`
	}) (*struct {
		Body ActorResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.UpdateActorOptions{
			Name:     input.Body.Name,
			Password: input.Body.Password,
			ActorID:  actorID,
		}
		if input.Body.Role != nil {
			role := domain.Role(*input.Body.Role)
			opts.Role = &role
		}
		a, err := e.UpdateActor(ctx, input.ID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorResponse `json:"body"`
		}{Body: actorResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-actor",
		Method:      http.MethodPost,
		Path:        "/actors/{id}/deactivate",
		Summary:     "Deactivate actor",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ActorResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.DeactivateActor(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorResponse `json:"body"`
		}{Body: actorResponse(a)}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Submit funding request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitRequestRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fr, err := e.SubmitRequest(ctx, engine.SubmitRequestOptions{
			Title:     input.Body.Title,
			Reason:    input.Body.Reason,
			Amount:    input.Body.Amount,
			Site:      input.Body.Site,
			Partners:  input.Body.Partners,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(fr)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List funding requests",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status" enum:"Pending,Approved,Rejected,"`
		SubmittedBy string `query:"submitted_by"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body []RequestResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListRequests(ctx, repo.RequestFilters{
			Status:      domain.RequestStatus(input.Status),
			SubmittedBy: input.SubmittedBy,
			Limit:       input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RequestResponse `json:"body"`
		}{Body: mapRequests(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{id}",
		Summary:     "Get funding request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body struct {
			Request RequestResponse `json:"request"`
			Tally   TallyResponse   `json:"tally"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		fr, err := e.Repo.GetRequest(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		tally, err := e.Repo.TallyVotes(ctx, fr.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Request RequestResponse `json:"request"`
				Tally   TallyResponse   `json:"tally"`
			} `json:"body"`
		}{}
		out.Body.Request = requestResponse(fr)
		out.Body.Tally = tallyResponse(tally)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cast-vote",
		Method:        http.MethodPost,
		Path:          "/requests/{id}/votes",
		Summary:       "Cast advisory vote",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body CastVoteRequest `json:"body"`
	}) (*struct {
		Body VoteResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		choice, ok := domain.ParseVoteChoice(input.Body.Choice)
		if !ok {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown vote choice %q", input.Body.Choice), nil)
		}
		v, err := e.CastVote(ctx, engine.CastVoteOptions{
			RequestID: input.ID,
			Choice:    choice,
			Remarks:   input.Body.Remarks,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VoteResponse `json:"body"`
		}{Body: voteResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-votes",
		Method:      http.MethodGet,
		Path:        "/requests/{id}/votes",
		Summary:     "List votes on a request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []VoteResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetRequest(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		votes, err := e.Repo.ListVotes(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]VoteResponse, 0, len(votes))
		for _, v := range votes {
			res = append(res, voteResponse(v))
		}
		return &struct {
			Body []VoteResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tally",
		Method:      http.MethodGet,
		Path:        "/requests/{id}/tally",
		Summary:     "Vote tally for a request",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TallyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetRequest(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		tally, err := e.Repo.TallyVotes(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TallyResponse `json:"body"`
		}{Body: tallyResponse(tally)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/decision",
		Summary:     "Decide a request directly",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body DecisionRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fr, err := e.Decide(ctx, engine.DecisionOptions{
			RequestID: input.ID,
			Approve:   input.Body.Approve,
			Remarks:   input.Body.Remarks,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(fr)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finalize-request",
		Method:      http.MethodPost,
		Path:        "/requests/{id}/finalize",
		Summary:     "Finalize a request after voting",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body DecisionRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		fr, err := e.Finalize(ctx, engine.DecisionOptions{
			RequestID: input.ID,
			Approve:   input.Body.Approve,
			Remarks:   input.Body.Remarks,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(fr)}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Sort   string `query:"sort" enum:"recent,fund," default:"recent"`
		Urgent bool   `query:"urgent"`
	}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx, repo.ProjectSort(input.Sort))
		if err != nil {
			return nil, handleError(err)
		}
		window := urgentWindow(e)
		now := e.Now()
		res := make([]ProjectResponse, 0, len(items))
		for _, pr := range items {
			days, err := deadline.DaysRemaining(pr.Request.EndDate, now)
			if err != nil {
				return nil, handleError(err)
			}
			urgent, _ := deadline.IsUrgent(pr.Project.Status, pr.Request.EndDate, now, window)
			overdue, _ := deadline.IsOverdue(pr.Project.Status, pr.Request.EndDate, now)
			if input.Urgent && !urgent {
				continue
			}
			d := days
			u := urgent
			o := overdue
			res = append(res, projectWithRequestResponse(pr, &d, &u, &o))
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project with remaining budget",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body struct {
			Project   ProjectResponse `json:"project"`
			Request   RequestResponse `json:"request"`
			Remaining string          `json:"remaining"`
		} `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		fr, err := e.Repo.GetRequest(ctx, p.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		remaining, err := e.RemainingBalance(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		now := e.Now()
		days, err := deadline.DaysRemaining(fr.EndDate, now)
		if err != nil {
			return nil, handleError(err)
		}
		urgent, _ := deadline.IsUrgent(p.Status, fr.EndDate, now, urgentWindow(e))
		overdue, _ := deadline.IsOverdue(p.Status, fr.EndDate, now)
		out := &struct {
			Body struct {
				Project   ProjectResponse `json:"project"`
				Request   RequestResponse `json:"request"`
				Remaining string          `json:"remaining"`
			} `json:"body"`
		}{}
		out.Body.Project = projectWithRequestResponse(repo.ProjectWithRequest{Project: p, Request: fr}, &days, &urgent, &overdue)
		out.Body.Request = requestResponse(fr)
		out.Body.Remaining = remaining.String()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}/status",
		Summary:     "Close or cancel a project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body SetProjectStatusRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetProjectStatus(ctx, input.ID, domain.ProjectStatus(input.Body.Status), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-update",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/updates",
		Summary:       "Post an expense or progress update",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body PostUpdateRequest `json:"body"`
	}) (*struct {
		Body UpdateResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.PostUpdateOptions{
			ProjectID:   input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Amount:      input.Body.Amount,
			ReceiptPath: input.Body.ReceiptPath,
			SitePath:    input.Body.SitePath,
			ActorID:     actorID,
		}
		var u domain.ProjectUpdate
		var err error
		switch input.Body.Kind {
		case string(domain.UpdateExpense):
			u, err = e.PostExpense(ctx, opts)
		case string(domain.UpdateProgress):
			u, err = e.PostProgress(ctx, opts)
		default:
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "kind must be expense or progress", nil)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UpdateResponse `json:"body"`
		}{Body: updateResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-updates",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/updates",
		Summary:     "List project updates",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []UpdateResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListUpdates(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UpdateResponse `json:"body"`
		}{Body: mapUpdates(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/projects/{id}/comments",
		Summary:       "Comment on a project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body AddCommentRequest `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, engine.AddCommentOptions{
			ProjectID: input.ID,
			Content:   input.Body.Content,
			Anonymous: input.Body.Anonymous,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: commentResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/comments",
		Summary:     "List project comments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []CommentResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetProject(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListComments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CommentResponse `json:"body"`
		}{Body: mapComments(items)}, nil
	})
}

func registerLedger(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ledger",
		Method:      http.MethodGet,
		Path:        "/ledger",
		Summary:     "List audit ledger entries",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Action  []string `query:"action,explode"`
		ActorID string   `query:"actor_id"`
		Limit   int      `query:"limit" default:"50"`
		Cursor  int64    `query:"cursor"`
	}) (*struct {
		Body []LedgerEntryResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		// Repeated action params and comma-separated lists both work.
		var actions []domain.ActionKind
		for _, raw := range input.Action {
			for _, s := range strings.Split(raw, ",") {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				kind := domain.ActionKind(s)
				if !kind.Valid() {
					return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown action kind", map[string]any{"action": s})
				}
				actions = append(actions, kind)
			}
		}
		items, err := e.Repo.ListLedger(ctx, repo.LedgerFilters{
			Actions: actions,
			ActorID: input.ActorID,
			Limit:   input.Limit,
			Cursor:  input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []LedgerEntryResponse `json:"body"`
		}{Body: mapLedger(items)}, nil
	})
}

func urgentWindow(e engine.Engine) int {
	if e.Config != nil && e.Config.Workflow.UrgentWindowDays > 0 {
		return e.Config.Workflow.UrgentWindowDays
	}
	return 7
}

// registerExport serves the CSV download outside huma; CSV is not an OpenAPI
// JSON response.
func registerExport(r chi.Router, basePath string, e engine.Engine) {
	r.Get(path.Join(basePath, "projects/export.csv"), func(w http.ResponseWriter, req *http.Request) {
		if _, authErr := actorIDFromContext(req.Context()); authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		items, err := e.Repo.ListProjects(req.Context(), repo.ProjectSortFund)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		var buf bytes.Buffer
		if err := export.ProjectsCSV(&buf, items); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="projects.csv"`)
		w.Write(buf.Bytes())
	})
}
