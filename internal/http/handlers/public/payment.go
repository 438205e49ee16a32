package public

import (
	"errors"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// CreatePaymentRequest 创建支付订单请求
type CreatePaymentRequest struct {
	BusinessOrderID string       `json:"business_order_id" binding:"required"`
	UserID          string       `json:"user_id" binding:"required"`
	Method          string       `json:"method" binding:"required"`
	Amount          models.Money `json:"amount" binding:"required"`
	Currency        string       `json:"currency"`
	Subject         string       `json:"subject"`
	DeviceID        string       `json:"device_id"`
}

// CreatePayment 创建支付订单
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	result, err := h.PaymentService.CreatePayment(service.CreatePaymentInput{
		BusinessOrderID: strings.TrimSpace(req.BusinessOrderID),
		UserID:          strings.TrimSpace(req.UserID),
		Method:          strings.TrimSpace(req.Method),
		Amount:          req.Amount,
		Currency:        strings.TrimSpace(req.Currency),
		Subject:         strings.TrimSpace(req.Subject),
		ClientIP:        c.ClientIP(),
		DeviceID:        strings.TrimSpace(req.DeviceID),
		Context:         c.Request.Context(),
	})
	if err != nil {
		if errors.Is(err, service.ErrRiskDenied) && result != nil && result.Order != nil {
			response.ErrorWithData(c, response.CodeForbidden, service.ErrRiskDenied.Error(), gin.H{
				"order":       result.Order,
				"risk_record": result.RiskRecord,
			})
			return
		}
		respondWithMappedError(c, err, paymentCommonErrorRules, response.CodeInternal, "创建支付订单失败")
		return
	}
	response.Success(c, gin.H{
		"order":       result.Order,
		"risk_record": result.RiskRecord,
	})
}

// InitiatePaymentRequest 发起渠道支付请求
type InitiatePaymentRequest struct {
	ReturnURL string `json:"return_url"`
	NotifyURL string `json:"notify_url"`
	Mode      string `json:"mode"`
}

// InitiatePayment 向渠道发起支付
func (h *Handler) InitiatePayment(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "支付单号无效", nil)
		return
	}
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	result, err := h.PaymentService.InitiatePayment(service.InitiatePaymentInput{
		OrderNo:   orderNo,
		ReturnURL: strings.TrimSpace(req.ReturnURL),
		NotifyURL: strings.TrimSpace(req.NotifyURL),
		Mode:      strings.TrimSpace(req.Mode),
		Context:   c.Request.Context(),
	})
	if err != nil {
		respondWithMappedError(c, err, paymentCommonErrorRules, response.CodeInternal, "发起支付失败")
		return
	}
	response.Success(c, gin.H{
		"order":   result.Order,
		"pay_url": result.PayURL,
		"qr_code": result.QRCode,
	})
}

// GetPayment 查询支付订单
func (h *Handler) GetPayment(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "支付单号无效", nil)
		return
	}
	order, err := h.PaymentService.GetPayment(orderNo)
	if err != nil {
		respondWithMappedError(c, err, paymentCommonErrorRules, response.CodeInternal, "查询支付订单失败")
		return
	}
	response.Success(c, order)
}

// SyncPaymentStatus 主动向渠道同步支付订单状态
func (h *Handler) SyncPaymentStatus(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "支付单号无效", nil)
		return
	}
	order, err := h.PaymentService.QueryStatus(c.Request.Context(), orderNo)
	if err != nil {
		respondWithMappedError(c, err, paymentCommonErrorRules, response.CodeInternal, "同步支付状态失败")
		return
	}
	response.Success(c, order)
}

// CancelPaymentRequest 取消支付订单请求
type CancelPaymentRequest struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason"`
}

// CancelPayment 取消支付订单
func (h *Handler) CancelPayment(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	if orderNo == "" {
		respondError(c, response.CodeBadRequest, "支付单号无效", nil)
		return
	}
	var req CancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	operator := strings.TrimSpace(req.Operator)
	if operator == "" {
		operator = "BUSINESS"
	}
	order, err := h.PaymentService.CancelPayment(orderNo, operator, strings.TrimSpace(req.Reason))
	if err != nil {
		respondWithMappedError(c, err, paymentCommonErrorRules, response.CodeInternal, "取消支付订单失败")
		return
	}
	response.Success(c, order)
}
