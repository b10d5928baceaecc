package cart

import (
	"net/http"
	"strconv"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/cart"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc cart.Service
}

func NewHandler(svc cart.Service) *Handler {
	return &Handler{svc: svc}
}

type addInput struct {
	ItemID   uint `json:"item_id" binding:"required"`
	Quantity *int `json:"quantity"`
}

type quantityInput struct {
	Quantity int `json:"quantity"`
}

type discountInput struct {
	Code string `json:"code"`
}

func respond(c *gin.Context, crt *cart.Cart, err error) {
	if err != nil {
		apperr.Respond(c, err, "Failed to update cart")
		return
	}
	c.JSON(http.StatusOK, crt)
}

func lineID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cart item id"})
		return 0, false
	}
	return uint(id), true
}

// GET /cart
func (h *Handler) Get(c *gin.Context) {
	crt, err := h.svc.Get(c.Request.Context(), middleware.UserID(c))
	respond(c, crt, err)
}

// POST /cart/items
func (h *Handler) Add(c *gin.Context) {
	var input addInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	qty := 1
	if input.Quantity != nil {
		qty = *input.Quantity
	}
	crt, err := h.svc.AddItem(c.Request.Context(), middleware.UserID(c), input.ItemID, qty)
	respond(c, crt, err)
}

// PUT /cart/items/:id
func (h *Handler) UpdateQuantity(c *gin.Context) {
	id, ok := lineID(c)
	if !ok {
		return
	}
	var input quantityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	crt, err := h.svc.UpdateQuantity(c.Request.Context(), middleware.UserID(c), id, input.Quantity)
	respond(c, crt, err)
}

// DELETE /cart/items/:id
func (h *Handler) Remove(c *gin.Context) {
	id, ok := lineID(c)
	if !ok {
		return
	}
	crt, err := h.svc.RemoveItem(c.Request.Context(), middleware.UserID(c), id)
	respond(c, crt, err)
}

// DELETE /cart
func (h *Handler) Clear(c *gin.Context) {
	crt, err := h.svc.Clear(c.Request.Context(), middleware.UserID(c))
	respond(c, crt, err)
}

// POST /cart/discount
func (h *Handler) ApplyDiscount(c *gin.Context) {
	var input discountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	crt, err := h.svc.ApplyDiscount(c.Request.Context(), middleware.UserID(c), input.Code)
	respond(c, crt, err)
}

// DELETE /cart/discount
func (h *Handler) RemoveDiscount(c *gin.Context) {
	crt, err := h.svc.RemoveDiscount(c.Request.Context(), middleware.UserID(c))
	respond(c, crt, err)
}
