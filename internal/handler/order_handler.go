package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, logger: logger}
}

// PlaceOrder answers 201 only after the order, its items and every stock
// decrement have been committed together.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req domain.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	items, err := req.LineItems()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), req.UserID, items)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, domain.NewOrderResponse(*order))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, domain.NewOrderResponse(*order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	res, err := h.orderService.ListOrders(c.Request.Context(), domain.OrderFilter{
		UserID: c.Query("userId"),
		Page:   page,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := domain.OrderPageResponse{
		Items:      make([]domain.OrderResponse, 0, len(res.Items)),
		NextCursor: res.NextCursor,
	}
	for _, o := range res.Items {
		out.Items = append(out.Items, domain.NewOrderResponse(o))
	}
	c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var req domain.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, h.logger, err)
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, domain.NewOrderResponse(*order))
}
