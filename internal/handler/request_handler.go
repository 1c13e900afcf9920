package handler

import (
	"net/http"
	"slices"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RequestHandler struct {
	ledger service.LedgerService
	audit  service.AuditService
}

func NewRequestHandler(ledger service.LedgerService, audit service.AuditService) *RequestHandler {
	return &RequestHandler{ledger: ledger, audit: audit}
}

// RegisterRoutes expects an authenticated group.
func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/requests")
	{
		requests.POST("", h.Submit)
		requests.GET("/mine", h.ListMine)
		requests.GET("/:id", h.Get)
		requests.GET("/:id/audit", h.AuditTrail)
	}
}

// Submit handles POST /api/requests
// @Summary      Submit a request
// @Description  Records a purchase or inventory change and builds its approval chain
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SubmitRequestDTO  true  "Request Payload"
// @Success      201      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      503      {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)

	var req service.SubmitRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	id, err := h.ledger.Submit(c.Request.Context(), user.UserID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	created, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, created))
}

// ListMine handles GET /api/requests/mine
// @Summary      List my requests
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.RequestResponse}
// @Router       /api/requests/mine [get]
func (h *RequestHandler) ListMine(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	p := pagination.Parse(c)

	requests, total, err := h.ledger.ListByRequester(c.Request.Context(), user.UserID, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, requests, p.Page, p.Limit, total))
}

// Get handles GET /api/requests/:id
// @Summary      Get request detail
// @Description  Returns the request, its approval chain and any executed effects
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	req, ok := h.visible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// AuditTrail handles GET /api/requests/:id/audit
// @Summary      Request audit trail
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]service.AuditEntryResponse}
// @Router       /api/requests/{id}/audit [get]
func (h *RequestHandler) AuditTrail(c *gin.Context) {
	req, ok := h.visible(c)
	if !ok {
		return
	}
	entries, err := h.audit.ListForRequest(c.Request.Context(), uuid.MustParse(req.ID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entries))
}

// visible loads the request and answers 404 unless the caller is its requester,
// an approver on its chain, or an admin.
func (h *RequestHandler) visible(c *gin.Context) (service.RequestResponse, bool) {
	id, ok := pathID(c)
	if !ok {
		return service.RequestResponse{}, false
	}
	req, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return service.RequestResponse{}, false
	}

	user, _ := middleware.CurrentUser(c)
	if !canView(req, user) {
		writeError(c, service.ErrNotFound)
		return service.RequestResponse{}, false
	}
	return req, true
}

func canView(req service.RequestResponse, user middleware.Claims) bool {
	if user.Role == model.RoleAdmin || req.RequesterID == user.UserID.String() {
		return true
	}
	return slices.ContainsFunc(req.Steps, func(s service.StepResponse) bool { return s.Role == user.Role })
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}
