package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"seqnum/internal/core/id"
	"seqnum/internal/core/numerator"
	"seqnum/internal/infrastructure/http/v1/dto"
)

// SequenceService is what the handler needs from the sequence domain.
type SequenceService interface {
	numerator.Generator
	Create(ctx context.Context, seq *numerator.Sequence) error
	Get(ctx context.Context, seqID id.ID) (*numerator.Sequence, error)
	List(ctx context.Context, filter numerator.ListFilter) ([]*numerator.Sequence, error)
	SetNextNumber(ctx context.Context, seqID id.ID, value int64) error
	UpdateReset(ctx context.Context, seqID id.ID, settings numerator.ResetSettings) (*numerator.Sequence, error)
}

// SequenceHandler serves /sequences.
type SequenceHandler struct {
	*BaseHandler
	service SequenceService
}

// NewSequenceHandler creates a new sequence handler.
func NewSequenceHandler(base *BaseHandler, service SequenceService) *SequenceHandler {
	return &SequenceHandler{BaseHandler: base, service: service}
}

// RegisterRoutes mounts the read and "next value" routes on rg and the
// management routes on manage.
func (h *SequenceHandler) RegisterRoutes(rg, manage *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/next", h.NextByID)
	rg.POST("/code/:code/next", h.NextByCode)

	manage.POST("", h.Create)
	manage.PUT("/:id/next-number", h.SetNextNumber)
	manage.PUT("/:id/reset", h.UpdateReset)
}

// Create handles POST /sequences.
func (h *SequenceHandler) Create(c *gin.Context) {
	var req dto.CreateSequenceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	seq, err := req.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := h.service.Create(c.Request.Context(), seq); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, seq.ID.String())
}

// Get handles GET /sequences/:id.
func (h *SequenceHandler) Get(c *gin.Context) {
	seqID, ok := h.ParseID(c)
	if !ok {
		return
	}

	seq, err := h.service.Get(c.Request.Context(), seqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSequence(seq))
}

// List handles GET /sequences?code=&includeInactive=.
func (h *SequenceHandler) List(c *gin.Context) {
	filter := numerator.ListFilter{
		Code:            c.Query("code"),
		IncludeInactive: c.Query("includeInactive") == "true",
	}

	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := dto.SequenceListResponse{
		Items:      make([]dto.SequenceResponse, 0, len(items)),
		TotalCount: len(items),
	}
	for _, seq := range items {
		resp.Items = append(resp.Items, dto.FromSequence(seq))
	}
	h.OK(c, resp)
}

// NextByCode handles POST /sequences/code/:code/next.
// An unknown code answers 200 with found=false.
func (h *SequenceHandler) NextByCode(c *gin.Context) {
	call, ok := h.callContext(c)
	if !ok {
		return
	}

	value, found, err := h.service.NextByCode(c.Request.Context(), call, c.Param("code"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NextValueResponse{Value: value, Found: found})
}

// NextByID handles POST /sequences/:id/next.
func (h *SequenceHandler) NextByID(c *gin.Context) {
	seqID, ok := h.ParseID(c)
	if !ok {
		return
	}
	call, ok := h.callContext(c)
	if !ok {
		return
	}

	value, err := h.service.NextByID(c.Request.Context(), call, seqID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NextValueResponse{Value: value, Found: true})
}

// SetNextNumber handles PUT /sequences/:id/next-number.
func (h *SequenceHandler) SetNextNumber(c *gin.Context) {
	seqID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.SetNextNumberRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.service.SetNextNumber(c.Request.Context(), seqID, req.Value); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "next number updated")
}

// UpdateReset handles PUT /sequences/:id/reset.
func (h *SequenceHandler) UpdateReset(c *gin.Context) {
	seqID, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.UpdateResetRequest
	if !h.BindJSON(c, &req) {
		return
	}
	settings, err := req.ToSettings()
	if err != nil {
		h.Error(c, err)
		return
	}

	seq, err := h.service.UpdateReset(c.Request.Context(), seqID, settings)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSequence(seq))
}

func (h *SequenceHandler) callContext(c *gin.Context) (numerator.CallContext, bool) {
	var req dto.NextValueRequest
	if !h.BindQuery(c, &req) || !h.BindOptionalJSON(c, &req) {
		return numerator.CallContext{}, false
	}
	call, err := req.ToCallContext(h.Caller(c))
	if err != nil {
		h.Error(c, err)
		return numerator.CallContext{}, false
	}
	return call, true
}
