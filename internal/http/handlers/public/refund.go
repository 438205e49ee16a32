package public

import (
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateRefundRequest 创建退款订单请求
type CreateRefundRequest struct {
	PaymentOrderNo string       `json:"payment_order_no" binding:"required"`
	UserID         string       `json:"user_id"`
	Amount         models.Money `json:"amount" binding:"required"`
	Reason         string       `json:"reason"`
}

// CreateRefund 创建退款订单
func (h *Handler) CreateRefund(c *gin.Context) {
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	refund, err := h.RefundService.CreateRefund(service.CreateRefundInput{
		PaymentOrderNo: strings.TrimSpace(req.PaymentOrderNo),
		UserID:         strings.TrimSpace(req.UserID),
		Amount:         req.Amount,
		Reason:         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		respondWithMappedError(c, err, refundCommonErrorRules, response.CodeInternal, "创建退款订单失败")
		return
	}
	response.Success(c, refund)
}

// GetRefund 查询退款订单
func (h *Handler) GetRefund(c *gin.Context) {
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	if refundNo == "" {
		respondError(c, response.CodeBadRequest, "退款单号无效", nil)
		return
	}
	refund, err := h.RefundService.GetRefund(refundNo)
	if err != nil {
		respondWithMappedError(c, err, refundCommonErrorRules, response.CodeInternal, "查询退款订单失败")
		return
	}
	response.Success(c, refund)
}

// SyncRefundStatus 主动向渠道同步退款状态
func (h *Handler) SyncRefundStatus(c *gin.Context) {
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	if refundNo == "" {
		respondError(c, response.CodeBadRequest, "退款单号无效", nil)
		return
	}
	refund, err := h.RefundService.QueryRefundStatus(c.Request.Context(), refundNo)
	if err != nil {
		respondWithMappedError(c, err, refundCommonErrorRules, response.CodeInternal, "同步退款状态失败")
		return
	}
	response.Success(c, refund)
}

// CancelRefund 取消退款订单
func (h *Handler) CancelRefund(c *gin.Context) {
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	if refundNo == "" {
		respondError(c, response.CodeBadRequest, "退款单号无效", nil)
		return
	}
	var req CancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	operator := strings.TrimSpace(req.Operator)
	if operator == "" {
		operator = "BUSINESS"
	}
	refund, err := h.RefundService.CancelRefund(refundNo, operator)
	if err != nil {
		respondWithMappedError(c, err, refundCommonErrorRules, response.CodeInternal, "取消退款订单失败")
		return
	}
	response.Success(c, refund)
}
