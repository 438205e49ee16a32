package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/handlers/shared"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/gin-gonic/gin"
)

func parseTimeQuery(c *gin.Context, key string) *time.Time {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.Unix(ts, 0)
		return &t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	return nil
}

// ListPayments 支付订单列表
func (h *Handler) ListPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	filter := repository.PaymentOrderListFilter{
		Page:            page,
		PageSize:        pageSize,
		UserID:          strings.TrimSpace(c.Query("user_id")),
		BusinessOrderID: strings.TrimSpace(c.Query("business_order_id")),
		OrderNo:         strings.TrimSpace(c.Query("order_no")),
		Method:          strings.TrimSpace(c.Query("method")),
		Status:          strings.TrimSpace(c.Query("status")),
		CreatedFrom:     parseTimeQuery(c, "created_from"),
		CreatedTo:       parseTimeQuery(c, "created_to"),
	}

	orders, total, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "查询支付订单列表失败", err)
		return
	}
	response.SuccessWithPage(c, orders, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// GetPayment 支付订单详情
func (h *Handler) GetPayment(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	order, err := h.PaymentService.GetPayment(orderNo)
	if err != nil {
		respondWithMappedError(c, err, adminPaymentErrorRules, response.CodeInternal, "查询支付订单失败")
		return
	}
	response.Success(c, order)
}

// ListPaymentRecords 支付订单流水
func (h *Handler) ListPaymentRecords(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	records, err := h.PaymentService.ListPaymentRecords(orderNo)
	if err != nil {
		respondWithMappedError(c, err, adminPaymentErrorRules, response.CodeInternal, "查询支付流水失败")
		return
	}
	response.Success(c, records)
}

// CancelPaymentRequest 后台取消支付订单请求
type CancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// CancelPayment 后台取消支付订单
func (h *Handler) CancelPayment(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	var req CancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	operator := getOperatorName(c)
	if operator == "" {
		operator = "ADMIN"
	}
	order, err := h.PaymentService.CancelPayment(orderNo, operator, strings.TrimSpace(req.Reason))
	if err != nil {
		respondWithMappedError(c, err, adminPaymentErrorRules, response.CodeInternal, "取消支付订单失败")
		return
	}
	requestLog(c).Infow("admin_payment_cancelled",
		"order_no", orderNo,
		"operator", operator,
		"reason", req.Reason,
	)
	response.Success(c, order)
}

// SyncPayment 后台主动同步渠道支付状态
func (h *Handler) SyncPayment(c *gin.Context) {
	orderNo := strings.TrimSpace(c.Param("order_no"))
	order, err := h.PaymentService.QueryStatus(c.Request.Context(), orderNo)
	if err != nil {
		respondWithMappedError(c, err, adminPaymentErrorRules, response.CodeInternal, "同步支付状态失败")
		return
	}
	response.Success(c, order)
}
