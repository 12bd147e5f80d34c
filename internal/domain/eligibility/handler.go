package eligibility

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nuvia/clearance/internal/platform/auth"
	"github.com/nuvia/clearance/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Care team – reads and case management
	teamGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleSurgeon, auth.RoleCRNA, auth.RoleCoordinator))
	teamGroup.GET("/dashboard", h.GetDashboard)
	teamGroup.GET("/providers", h.ListProviders)
	teamGroup.GET("/providers/:id", h.GetProvider)
	teamGroup.POST("/providers", h.CreateProvider)
	teamGroup.GET("/patients", h.ListPatients)
	teamGroup.GET("/patients/export.xlsx", h.ExportPatients)
	teamGroup.POST("/patients", h.CreatePatient)
	teamGroup.GET("/patients/:id", h.GetPatient)
	teamGroup.PUT("/patients/:id/providers", h.AssignProviders)
	teamGroup.PUT("/patients/:id/vitals", h.RecordVitals)
	teamGroup.PUT("/patients/:id/category", h.Categorize)
	teamGroup.POST("/patients/:id/review", h.MarkInReview)
	teamGroup.GET("/patients/:id/documents", h.ListDocuments)
	teamGroup.POST("/patients/:id/documents", h.AddDocumentRequest)
	teamGroup.PUT("/documents/:id/availability", h.SetAvailability)
	teamGroup.PUT("/documents/:id/approval", h.SetApproval)
	teamGroup.PUT("/documents/:id/clearance", h.SetCleared)
	teamGroup.GET("/patients/:id/clearances", h.ListClearances)
	teamGroup.GET("/patients/:id/disqualifications", h.ListDisqualifications)
	teamGroup.GET("/patients/:id/comments", h.ListComments)
	teamGroup.POST("/patients/:id/comments", h.AddComment)
	teamGroup.GET("/patients/:id/audit", h.ListAudit)
	teamGroup.GET("/patients/:id/recommendations", h.GetRecommendations)

	// Clinical decisions – clinicians and staff acting for them
	decideGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleSurgeon, auth.RoleCRNA))
	decideGroup.POST("/patients/:id/transitions", h.RequestTransition)
	decideGroup.POST("/patients/:id/clear", h.ClearPatient)
	decideGroup.POST("/patients/:id/disqualify", h.DisqualifyPatient)
	decideGroup.POST("/patients/:id/clearances", h.RecordClearance)
	decideGroup.POST("/patients/:id/disqualifications", h.RecordDisqualification)

	// Scheduling system signal
	scheduleGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleCoordinator))
	scheduleGroup.POST("/patients/:id/surgery-performed", h.MarkSurgeryPerformed)

	// Analysis service intake
	intakeGroup := api.Group("", auth.RequireRole(auth.RoleAnalysis))
	intakeGroup.PUT("/patients/:id/recommendations", h.IngestRecommendations)
}

// -- error mapping --

type guardFailedResponse struct {
	Message string           `json:"message"`
	From    Status           `json:"from"`
	To      Status           `json:"to"`
	Unmet   []UnmetCondition `json:"unmet"`
}

// fail maps domain errors onto HTTP responses.
func fail(c echo.Context, err error) error {
	var ge *GuardError
	switch {
	case errors.As(err, &ge):
		return c.JSON(http.StatusUnprocessableEntity, guardFailedResponse{
			Message: ge.Error(), From: ge.From, To: ge.To, Unmet: ge.Unmet,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidArgument):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func actor(c echo.Context) string {
	return auth.ActorFromContext(c.Request().Context())
}

// -- Providers --

type createProviderRequest struct {
	ID     string       `json:"id" validate:"required"`
	Name   string       `json:"name" validate:"required"`
	Type   ProviderType `json:"type" validate:"required"`
	Center string       `json:"center"`
	Email  string       `json:"email" validate:"omitempty,email"`
	Phone  string       `json:"phone"`
}

func (h *Handler) CreateProvider(c echo.Context) error {
	var req createProviderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p := &Provider{ID: req.ID, Name: req.Name, Type: req.Type, Center: req.Center, Email: req.Email, Phone: req.Phone}
	if err := h.svc.CreateProvider(c.Request().Context(), p); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProvider(c echo.Context) error {
	p, err := h.svc.GetProvider(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListProviders(c echo.Context) error {
	items, err := h.svc.ListProviders(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Patients --

type providerRefRequest struct {
	ProviderID string       `json:"provider_id" validate:"required"`
	Name       string       `json:"name"`
	Role       ProviderType `json:"role" validate:"required"`
}

func toRefs(in []providerRefRequest) []ProviderRef {
	out := make([]ProviderRef, 0, len(in))
	for _, r := range in {
		out = append(out, ProviderRef{ProviderID: r.ProviderID, Name: r.Name, Role: r.Role})
	}
	return out
}

type vitalsRequest struct {
	HeightCm      float64    `json:"height_cm" validate:"required,gt=0"`
	WeightKg      float64    `json:"weight_kg" validate:"required,gt=0"`
	BloodPressure string     `json:"blood_pressure" validate:"required"`
	HeartRate     int        `json:"heart_rate" validate:"gte=0"`
	SpO2          int        `json:"spo2" validate:"gte=0,lte=100"`
	Date          *time.Time `json:"date"`
	// BMI is derived and may not be supplied.
	BMI *float64 `json:"bmi,omitempty"`
}

func (r *vitalsRequest) toInput(now time.Time) (VitalsInput, error) {
	if r.BMI != nil {
		return VitalsInput{}, invalidArg("bmi is computed from height and weight and cannot be set")
	}
	in := VitalsInput{
		HeightCm:      r.HeightCm,
		WeightKg:      r.WeightKg,
		BloodPressure: r.BloodPressure,
		HeartRate:     r.HeartRate,
		SpO2:          r.SpO2,
		Date:          now,
	}
	if r.Date != nil {
		in.Date = *r.Date
	}
	return in, nil
}

type createPatientRequest struct {
	Name              string               `json:"name" validate:"required"`
	Age               int                  `json:"age" validate:"gte=0,lte=150"`
	Sex               Sex                  `json:"sex" validate:"required"`
	Category          Category             `json:"category"`
	SurgeryDate       *time.Time           `json:"surgery_date"`
	ProposedTreatment Treatment            `json:"proposed_treatment" validate:"required"`
	Center            string               `json:"center"`
	AssignedProviders []providerRefRequest `json:"assigned_providers" validate:"dive"`
	Vitals            *vitalsRequest       `json:"vitals"`
	// Status is never accepted from clients; every case starts Pending.
	Status *string `json:"status,omitempty"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Status != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "status cannot be set directly; use the workflow endpoints")
	}
	in := NewPatient{
		Name:              req.Name,
		Age:               req.Age,
		Sex:               req.Sex,
		Category:          req.Category,
		SurgeryDate:       req.SurgeryDate,
		ProposedTreatment: req.ProposedTreatment,
		Center:            req.Center,
		AssignedProviders: toRefs(req.AssignedProviders),
	}
	if req.Vitals != nil {
		v, err := req.Vitals.toInput(time.Now())
		if err != nil {
			return fail(c, err)
		}
		in.Vitals = &v
	}
	cs, err := h.svc.CreatePatient(c.Request().Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cs)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.GetCase(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cs)
}

func filterFromQuery(c echo.Context) (PatientFilter, error) {
	f := PatientFilter{Center: c.QueryParam("center"), Query: c.QueryParam("q")}
	var err error
	if v := c.QueryParam("status"); v != "" {
		if f.Status, err = ParseStatus(v); err != nil {
			return f, err
		}
	}
	if v := c.QueryParam("category"); v != "" {
		if f.Category, err = ParseCategory(v); err != nil {
			return f, err
		}
	}
	if v := c.QueryParam("treatment"); v != "" {
		if f.Treatment, err = ParseTreatment(v); err != nil {
			return f, err
		}
	}
	if v := c.QueryParam("sex"); v != "" {
		if f.Sex, err = ParseSex(v); err != nil {
			return f, err
		}
	}
	return f, nil
}

func (h *Handler) ListPatients(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return fail(c, err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return fail(c, err)
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ExportPatients(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return fail(c, err)
	}
	data, err := h.svc.ExportRoster(c.Request().Context(), f)
	if err != nil {
		return fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="patients-%s.xlsx"`, time.Now().UTC().Format("20060102")))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}

type assignProvidersRequest struct {
	Providers []providerRefRequest `json:"providers" validate:"dive"`
}

func (h *Handler) AssignProviders(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req assignProvidersRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.AssignProviders(c.Request().Context(), id, toRefs(req.Providers))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RecordVitals(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req vitalsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	in, err := req.toInput(time.Now())
	if err != nil {
		return fail(c, err)
	}
	p, err := h.svc.RecordVitals(c.Request().Context(), id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Workflow --

type transitionRequest struct {
	Target Status `json:"target" validate:"required"`
}

func (h *Handler) RequestTransition(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return h.transition(c, id, req.Target)
}

func (h *Handler) MarkInReview(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	return h.transition(c, id, StatusInReview)
}

func (h *Handler) ClearPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	return h.transition(c, id, StatusCleared)
}

func (h *Handler) transition(c echo.Context, id uuid.UUID, target Status) error {
	p, err := h.svc.RequestTransition(c.Request().Context(), id, target, actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type disqualificationRequest struct {
	ProviderID   string     `json:"provider_id" validate:"required"`
	ProviderName string     `json:"provider_name" validate:"required"`
	Reason       string     `json:"reason" validate:"required"`
	Date         *time.Time `json:"date"`
}

func (r *disqualificationRequest) toInput(now time.Time) DisqualificationInput {
	in := DisqualificationInput{ProviderID: r.ProviderID, ProviderName: r.ProviderName, Reason: r.Reason, Date: now}
	if r.Date != nil {
		in.Date = *r.Date
	}
	return in
}

func (h *Handler) DisqualifyPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req disqualificationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, rec, err := h.svc.DisqualifyPatient(c.Request().Context(), id, req.toInput(time.Now()), actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient":          p,
		"disqualification": rec,
	})
}

type surgeryPerformedRequest struct {
	PerformedAt *time.Time `json:"performed_at"`
}

func (h *Handler) MarkSurgeryPerformed(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req surgeryPerformedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var at time.Time
	if req.PerformedAt != nil {
		at = *req.PerformedAt
	}
	p, err := h.svc.MarkSurgeryPerformed(c.Request().Context(), id, at, actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type categorizeRequest struct {
	Category Category `json:"category" validate:"required"`
}

func (h *Handler) Categorize(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req categorizeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.svc.Categorize(c.Request().Context(), id, req.Category, actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// -- Documents --

type documentRequest struct {
	Name   string `json:"name" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) AddDocumentRequest(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req documentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	doc, err := h.svc.AddDocumentRequest(c.Request().Context(), id, req.Name, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	docs, err := h.svc.ListDocuments(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(docs))
}

type flagRequest struct {
	Value *bool `json:"value" validate:"required"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	return h.setFlag(c, h.svc.SetAvailability)
}

func (h *Handler) SetApproval(c echo.Context) error {
	return h.setFlag(c, h.svc.SetApproval)
}

func (h *Handler) SetCleared(c echo.Context) error {
	return h.setFlag(c, h.svc.SetCleared)
}

func (h *Handler) setFlag(c echo.Context, set func(ctx context.Context, id uuid.UUID, v bool) (*RequestedDocument, error)) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req flagRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	doc, err := set(c.Request().Context(), id, *req.Value)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

// -- Ledger --

type clearanceRequest struct {
	ProviderID   string       `json:"provider_id" validate:"required"`
	ProviderName string       `json:"provider_name"`
	ProviderType ProviderType `json:"provider_type" validate:"required"`
	Cleared      *bool        `json:"cleared" validate:"required"`
	Date         *time.Time   `json:"date"`
}

func (h *Handler) RecordClearance(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req clearanceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	in := ClearanceInput{
		ProviderID:   req.ProviderID,
		ProviderName: req.ProviderName,
		ProviderType: req.ProviderType,
		Cleared:      *req.Cleared,
		Date:         time.Now(),
	}
	if req.Date != nil {
		in.Date = *req.Date
	}
	rec, err := h.svc.RecordClearance(c.Request().Context(), id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListClearances(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListClearances(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) RecordDisqualification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req disqualificationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.RecordDisqualification(c.Request().Context(), id, req.toInput(time.Now()))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListDisqualifications(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListDisqualifications(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

// -- Annotations --

type commentRequest struct {
	Commenter string `json:"commenter"`
	Text      string `json:"text" validate:"required"`
}

func (h *Handler) AddComment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req commentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	commenter := req.Commenter
	if commenter == "" {
		commenter = actor(c)
	}
	cm, err := h.svc.AddComment(c.Request().Context(), id, commenter, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cm)
}

func (h *Handler) ListComments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListComments(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

func (h *Handler) ListAudit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAudit(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, nonNil(items))
}

// -- Recommendations --

func (h *Handler) IngestRecommendations(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var snap RecommendationSnapshot
	if err := c.Bind(&snap); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stored, err := h.svc.IngestSnapshot(c.Request().Context(), id, snap)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusAccepted, stored)
}

func (h *Handler) GetRecommendations(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	snap, err := h.svc.GetSnapshot(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// -- Dashboard --

func (h *Handler) GetDashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}
