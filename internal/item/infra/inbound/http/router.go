package http

import "github.com/gin-gonic/gin"

func RegisterItemRoutes(r *gin.Engine, handler *ItemHandler) {
	items := r.Group("/items")
	{
		items.POST("/", handler.InitializeItem)
		items.POST("/:id/buy", handler.BuyItem)
		items.POST("/:id/pay", handler.PayItem)
		items.POST("/:id/payment-missing", handler.MarkPaymentMissing)
		items.GET("/:id", handler.GetItem)
		items.GET("/:id/history", handler.GetItemHistory)
	}
}
