package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/restobook/orders-api/internal/cart"
	"github.com/restobook/orders-api/internal/catalog"
	"github.com/restobook/orders-api/internal/httpx"
	"github.com/restobook/orders-api/internal/order"
	"github.com/restobook/orders-api/internal/payment"
)

func actor(c *gin.Context) order.Actor {
	return order.Actor{ID: httpx.UserID(c), Role: order.Role(httpx.Role(c))}
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	var (
		ve *order.ValidationError
		ge *payment.GatewayError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": ve.Fields})
	case errors.Is(err, cart.ErrQuantityTooLow):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": gin.H{"quantity": cart.ErrQuantityTooLow.Error()}})
	case errors.Is(err, order.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
	case errors.Is(err, order.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrReferenceConflict),
		errors.Is(err, order.ErrCartChanged),
		errors.Is(err, order.ErrCheckoutConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount mismatch, contact support"})
	case errors.As(err, &ge):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unreachable, try again"})
	default:
		rid, _ := c.Get("rid")
		log.Printf("[http] rid=%v unexpected error: %v", rid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ----- catalog -----

func listMenuItemsHandler(cat catalog.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		items, err := cat.List(c.Request.Context(), catalog.Query{Q: c.Query("q"), Limit: limit, Offset: offset})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func getMenuItemHandler(cat catalog.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		m, err := cat.GetByID(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, m)
	}
}

// ----- cart -----

type addToCartRequest struct {
	MenuItem int64 `json:"menuitem" binding:"required"`
	Quantity int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func getCartHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := carts.Get(c.Request.Context(), httpx.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

func addToCartHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addToCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}
		it, err := carts.Add(c.Request.Context(), httpx.UserID(c), req.MenuItem, req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, it)
	}
}

func updateCartItemHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		it, err := carts.UpdateQuantity(c.Request.Context(), httpx.UserID(c), id, req.Quantity)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, it)
	}
}

func removeCartItemHandler(carts *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := carts.Remove(c.Request.Context(), httpx.UserID(c), id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"detail": "item removed from cart"})
	}
}

// ----- orders -----

func createOrderHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := orders.Checkout(c.Request.Context(), httpx.UserID(c), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

func listOrdersHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		out, err := orders.List(c.Request.Context(), actor(c), limit, offset)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": out})
	}
}

func getOrderHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		d, err := orders.Get(c.Request.Context(), actor(c), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

func updateOrderHandler(orders *order.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req order.UpdateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		o, err := orders.Update(c.Request.Context(), actor(c), id, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

// ----- payments -----

type verifyPaymentRequest struct {
	PaystackRef string `json:"paystackRef" binding:"required"`
}

func verifyPaymentHandler(payments *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "order_id")
		if !ok {
			return
		}
		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := payments.Verify(c.Request.Context(), actor(c), id, req.PaystackRef)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
