package feasibility

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/flare-fhir/flare/internal/domain/query"
	"github.com/flare-fhir/flare/internal/platform/auth"
	"github.com/flare-fhir/flare/internal/platform/fhir"
	"github.com/flare-fhir/flare/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ExecuteResponse is the body returned for a successful count.
type ExecuteResponse struct {
	ID         uuid.UUID `json:"id"`
	Count      int       `json:"count"`
	DurationMS int64     `json:"durationMs"`
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/feasibility", auth.RequireRole("admin", "researcher"))
	g.POST("/execute", h.Execute)
	g.POST("/translate", h.Translate)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
}

func (h *Handler) Execute(c echo.Context) error {
	q, err := query.Decode(c.Request().Body)
	if err != nil {
		return invalidQuery(c, err)
	}
	ctx := c.Request().Context()
	run, err := h.svc.Execute(ctx, q, auth.UserIDFromContext(ctx))
	if err != nil {
		return executionFailed(c, err)
	}
	return c.JSON(http.StatusOK, ExecuteResponse{ID: run.ID, Count: *run.Count, DurationMS: run.DurationMS})
}

func (h *Handler) Translate(c echo.Context) error {
	q, err := query.Decode(c.Request().Body)
	if err != nil {
		return invalidQuery(c, err)
	}
	t, err := h.svc.Translate(q)
	if err != nil {
		var terr *TranslationError
		if errors.As(err, &terr) {
			return c.JSON(http.StatusUnprocessableEntity,
				fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotSupported, err.Error()))
		}
		return invalidQuery(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRuns(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return runStoreError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	run, err := h.svc.GetRun(c.Request().Context(), id)
	if err != nil {
		return runStoreError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func invalidQuery(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest,
		fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error()))
}

func executionFailed(c echo.Context, err error) error {
	var verr *query.ValidationError
	switch {
	case errors.As(err, &verr):
		return invalidQuery(c, err)
	case IsInterrupted(err):
		return c.JSON(http.StatusGatewayTimeout,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTimeout, err.Error()))
	default:
		return c.JSON(http.StatusBadGateway,
			fhir.NewOperationOutcome(fhir.IssueSeverityError, upstreamIssueType(err), err.Error()))
	}
}

// upstreamIssueType classifies a failed FHIR server response.
func upstreamIssueType(err error) string {
	var herr *fhir.HTTPError
	if !errors.As(err, &herr) {
		return fhir.IssueTypeException
	}
	switch herr.StatusCode {
	case http.StatusUnauthorized:
		return fhir.IssueTypeLogin
	case http.StatusForbidden:
		return fhir.IssueTypeSecurity
	case http.StatusTooManyRequests:
		return fhir.IssueTypeThrottled
	default:
		return fhir.IssueTypeException
	}
}

func runStoreError(err error) error {
	switch {
	case errors.Is(err, ErrRunStoreMissing):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case errors.Is(err, ErrRunNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
