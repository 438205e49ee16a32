package router

import (
	"fmt"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/cache"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	adminhandlers "github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/handlers/admin"
	publichandlers "github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/handlers/public"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "payeng"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "登录尝试过于频繁",
	}
	callbackRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:callback", redisPrefix),
		WindowSeconds: cfg.Security.CallbackRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.CallbackRateLimit.MaxAttempts,
		Message:       "回调请求过于频繁",
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 业务方接口
		payments := apiV1.Group("/payments")
		{
			payments.POST("", publicHandler.CreatePayment)
			payments.GET("/:order_no", publicHandler.GetPayment)
			payments.POST("/:order_no/initiate", publicHandler.InitiatePayment)
			payments.POST("/:order_no/sync", publicHandler.SyncPaymentStatus)
			payments.POST("/:order_no/cancel", publicHandler.CancelPayment)
		}

		refunds := apiV1.Group("/refunds")
		{
			refunds.POST("", publicHandler.CreateRefund)
			refunds.GET("/:refund_no", publicHandler.GetRefund)
			refunds.POST("/:refund_no/sync", publicHandler.SyncRefundStatus)
			refunds.POST("/:refund_no/cancel", publicHandler.CancelRefund)
		}

		// 渠道异步回调
		apiV1.POST("/callbacks/:channel",
			RateLimitMiddleware(redisClient, callbackRule, KeyByIP),
			publicHandler.ChannelCallback,
		)

		// 操作员认证
		apiV1.GET("/admin/captcha", adminHandler.GetImageCaptcha)
		apiV1.POST("/admin/login",
			RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("username")),
			adminHandler.Login,
		)

		// 管理端接口（需鉴权）
		admin := apiV1.Group("/admin")
		admin.Use(JWTAuthMiddleware(cfg.JWT.SecretKey, c.OperatorRepo))
		admin.Use(OperatorRBACMiddleware(c.AuthzService))
		{
			admin.GET("/me", adminHandler.GetProfile)

			admin.GET("/operators", adminHandler.ListOperators)
			admin.POST("/operators", adminHandler.CreateOperator)
			admin.DELETE("/operators/:id", adminHandler.DeleteOperator)
			admin.PUT("/operators/:id/roles", adminHandler.SetOperatorRoles)

			admin.GET("/payments", adminHandler.ListPayments)
			admin.GET("/payments/:order_no", adminHandler.GetPayment)
			admin.GET("/payments/:order_no/records", adminHandler.ListPaymentRecords)
			admin.POST("/payments/:order_no/cancel", adminHandler.CancelPayment)
			admin.POST("/payments/:order_no/sync", adminHandler.SyncPayment)

			admin.GET("/refunds", adminHandler.ListRefunds)
			admin.GET("/refunds/:refund_no", adminHandler.GetRefund)
			admin.GET("/refunds/:refund_no/records", adminHandler.ListRefundRecords)
			admin.POST("/refunds/:refund_no/audit", adminHandler.AuditRefund)
			admin.POST("/refunds/:refund_no/retry", adminHandler.RetryRefund)
			admin.POST("/refunds/batch", adminHandler.BatchProcessRefunds)
			admin.GET("/refunds/statistics", adminHandler.RefundStatistics)

			admin.GET("/risk/records", adminHandler.ListRiskRecords)
			admin.GET("/risk/records/pending", adminHandler.ListPendingRiskReviews)
			admin.GET("/risk/records/:id", adminHandler.GetRiskRecord)
			admin.POST("/risk/records/:id/review", adminHandler.ReviewRiskRecord)
			admin.POST("/risk/records/:id/false-positive", adminHandler.MarkRiskFalsePositive)
			admin.GET("/risk/statistics", adminHandler.RiskStatistics)

			admin.GET("/risk/rules", adminHandler.ListRiskRules)
			admin.POST("/risk/rules", adminHandler.CreateRiskRule)
			admin.GET("/risk/rules/:id", adminHandler.GetRiskRule)
			admin.PUT("/risk/rules/:id", adminHandler.UpdateRiskRule)
			admin.POST("/risk/rules/:id/toggle", adminHandler.ToggleRiskRule)
			admin.DELETE("/risk/rules/:id", adminHandler.DeleteRiskRule)

			admin.GET("/channels", adminHandler.ListChannels)
			admin.POST("/channels", adminHandler.CreateChannel)
			admin.PUT("/channels/:id", adminHandler.UpdateChannel)
			admin.DELETE("/channels/:id", adminHandler.DeleteChannel)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
