package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/model"
	"storefront/internal/order"
)

type statusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

// orderResponse 返回 {order, product}，订单本身不再内嵌商品。
func (h *handlers) orderResponse(o *model.Order) gin.H {
	cp := *o
	cp.Product = nil
	return gin.H{"order": cp, "product": h.view(o.Product)}
}

func (h *handlers) createOrder(c *gin.Context) {
	var in order.CreateInput
	if err := bindJSON(c, &in); err != nil {
		h.writeError(c, err)
		return
	}
	o, err := h.orders.Create(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.orderResponse(o))
}

func (h *handlers) showOrder(c *gin.Context) {
	o, err := h.orders.Lookup(c.Request.Context(), c.Param("unique_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.orderResponse(o))
}

func (h *handlers) updateOrderStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "order")
	if !ok {
		return
	}
	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	o, err := h.orders.Transition(c.Request.Context(), id, req.Status, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.orderResponse(o))
}
