package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradehook/internal/handler/status"
	"tradehook/internal/handler/webhook"
	"tradehook/internal/middleware"
)

type ApiRouter struct {
	webhookHandler *webhook.Handler
	statusHandler  *status.Handler
}

func NewApiRouter(wh *webhook.Handler, sh *status.Handler) *ApiRouter {
	return &ApiRouter{webhookHandler: wh, statusHandler: sh}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	// 健康检查，启动自检也打这个接口
	g.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	// TradingView的alert地址只能配一个裸路径，webhook不放进/api/v1
	// 不挂AntiDuplicate：信号重投由幂等账本兜底
	g.POST("/webhook", api.webhookHandler.HandlerWebhook())

	base := g.Group("/api/v1")

	q := base.Group("", middleware.AntiDuplicate())
	{
		q.GET("/status", api.statusHandler.Status())
		q.GET("/positions", api.statusHandler.Positions())
	}
}
