package handler

import (
	"net/http"

	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	inventory service.InventoryService
}

func NewInventoryHandler(inventory service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// RegisterRoutes expects an authenticated group.
func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/inventory/:sku", h.GetBySKU)
}

// GetBySKU handles GET /api/inventory/:sku
// @Summary      Inventory item by SKU
// @Description  Current quantity, activation status and stock movements
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        sku  path      string  true  "SKU"
// @Success      200  {object}  response.Response{data=service.InventoryItemResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/inventory/{sku} [get]
func (h *InventoryHandler) GetBySKU(c *gin.Context) {
	item, err := h.inventory.GetBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}
