package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restobook/orders-api/internal/cart"
	"github.com/restobook/orders-api/internal/catalog"
	"github.com/restobook/orders-api/internal/config"
	"github.com/restobook/orders-api/internal/httpx"
	"github.com/restobook/orders-api/internal/order"
	"github.com/restobook/orders-api/internal/payment"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("[db] connect: %v", err)
	}
	defer pool.Close()

	catalogRepo := catalog.NewPGRepo(pool)
	cartRepo := cart.NewPGRepo(pool)
	orderRepo := order.NewPGRepo(pool)

	carts := cart.NewService(cartRepo, catalogRepo)
	orders := order.NewService(orderRepo, cartRepo, order.Pricing{
		TaxRate:     cfg.TaxRate,
		DeliveryFee: cfg.DeliveryFee,
	})
	payments := payment.NewService(orderRepo, payment.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecret))

	r := newRouter(cfg.JWTSecret, catalogRepo, carts, orders, payments)

	log.Printf("orders-api listening on %s", cfg.HTTPAddr)
	log.Fatal(r.Run(cfg.HTTPAddr))
}

func newRouter(jwtSecret string, catalogRepo catalog.Repository, carts *cart.Service, orders *order.Service, payments *payment.Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })
	r.GET("/menu-items/", listMenuItemsHandler(catalogRepo))
	r.GET("/menu-items/:id/", getMenuItemHandler(catalogRepo))

	auth := r.Group("/", httpx.Auth(jwtSecret))
	auth.GET("/cart/", getCartHandler(carts))
	auth.POST("/cart/", addToCartHandler(carts))
	auth.PATCH("/cart/:id/", updateCartItemHandler(carts))
	auth.DELETE("/cart/:id/", removeCartItemHandler(carts))

	auth.GET("/orders/", listOrdersHandler(orders))
	auth.POST("/orders/", createOrderHandler(orders))
	auth.GET("/orders/:id/", getOrderHandler(orders))
	auth.PATCH("/orders/:id/", updateOrderHandler(orders))

	auth.POST("/payments/verify/:order_id/", verifyPaymentHandler(payments))
	return r
}
