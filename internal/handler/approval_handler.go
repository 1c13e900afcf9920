package handler

import (
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvals service.ApprovalService
	ledger    service.LedgerService
}

func NewApprovalHandler(approvals service.ApprovalService, ledger service.LedgerService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals, ledger: ledger}
}

// RegisterRoutes expects an authenticated group.
func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	approvals := router.Group("/approvals")
	approvals.Use(middleware.RequireRole(model.RoleManager, model.RoleProjectManager, model.RoleAdmin))
	{
		approvals.GET("/pending", h.ListPending)
		approvals.POST("/:id/decide", h.Decide)
	}
}

// ListPending handles GET /api/approvals/pending
// @Summary      Requests awaiting my role
// @Description  Pending requests whose next undecided step belongs to the caller's role, oldest first
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.RequestResponse}
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	p := pagination.Parse(c)

	requests, total, err := h.ledger.ListPendingForRole(c.Request.Context(), user.Role, user.UserID, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, requests, p.Page, p.Limit, total))
}

// Decide handles POST /api/approvals/:id/decide
// @Summary      Approve or reject
// @Description  Records the caller's role decision; the final approval runs the downstream effect
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string             true  "Request ID"
// @Param        payload  body      service.DecideDTO  true  "Decision"
// @Success      200      {object}  response.Response{data=service.DecisionResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/approvals/{id}/decide [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.DecideDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	user, _ := middleware.CurrentUser(c)
	result, err := h.approvals.Decide(c.Request.Context(), service.DecideInput{
		RequestID:  id,
		Role:       user.Role,
		ApproverID: user.UserID,
		Decision:   req.Decision,
		Comments:   req.Comments,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
