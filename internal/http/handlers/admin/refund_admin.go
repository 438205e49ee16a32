package admin

import (
	"strconv"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/handlers/shared"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// ListRefunds 退款订单列表
func (h *Handler) ListRefunds(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	paymentOrderID, _ := strconv.ParseUint(c.Query("payment_order_id"), 10, 64)
	filter := repository.RefundOrderListFilter{
		Page:           page,
		PageSize:       pageSize,
		UserID:         strings.TrimSpace(c.Query("user_id")),
		PaymentOrderID: uint(paymentOrderID),
		RefundNo:       strings.TrimSpace(c.Query("refund_no")),
		Status:         strings.TrimSpace(c.Query("status")),
		CreatedFrom:    parseTimeQuery(c, "created_from"),
		CreatedTo:      parseTimeQuery(c, "created_to"),
	}

	refunds, total, err := h.RefundService.ListRefunds(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "查询退款订单列表失败", err)
		return
	}
	response.SuccessWithPage(c, refunds, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// GetRefund 退款订单详情
func (h *Handler) GetRefund(c *gin.Context) {
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	refund, err := h.RefundService.GetRefund(refundNo)
	if err != nil {
		respondWithMappedError(c, err, adminRefundErrorRules, response.CodeInternal, "查询退款订单失败")
		return
	}
	response.Success(c, refund)
}

// ListRefundRecords 退款订单流水
func (h *Handler) ListRefundRecords(c *gin.Context) {
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	records, err := h.RefundService.ListRefundRecords(refundNo)
	if err != nil {
		respondWithMappedError(c, err, adminRefundErrorRules, response.CodeInternal, "查询退款流水失败")
		return
	}
	response.Success(c, records)
}

// AuditRefundRequest 退款人工审核请求
type AuditRefundRequest struct {
	Approve bool   `json:"approve"`
	Remark  string `json:"remark"`
}

// AuditRefund 退款人工审核
func (h *Handler) AuditRefund(c *gin.Context) {
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	var req AuditRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	reviewer := getOperatorName(c)
	if reviewer == "" {
		reviewer = "ADMIN"
	}
	refund, err := h.RefundService.AuditRefund(service.AuditRefundInput{
		RefundNo: refundNo,
		Reviewer: reviewer,
		Approve:  req.Approve,
		Remark:   strings.TrimSpace(req.Remark),
	})
	if err != nil {
		respondWithMappedError(c, err, adminRefundErrorRules, response.CodeInternal, "退款审核失败")
		return
	}
	requestLog(c).Infow("admin_refund_audited",
		"refund_no", refundNo,
		"reviewer", reviewer,
		"approve", req.Approve,
	)
	response.Success(c, refund)
}

// RetryRefund 失败退款人工重试
func (h *Handler) RetryRefund(c *gin.Context) {
	refundNo := strings.TrimSpace(c.Param("refund_no"))
	operator := getOperatorName(c)
	if operator == "" {
		operator = "ADMIN"
	}
	refund, err := h.RefundService.Retry(refundNo, operator)
	if err != nil {
		respondWithMappedError(c, err, adminRefundErrorRules, response.CodeInternal, "退款重试失败")
		return
	}
	requestLog(c).Infow("admin_refund_retried", "refund_no", refundNo, "operator", operator)
	response.Success(c, refund)
}

// BatchProcessRefundsRequest 批量处理待审核退款请求
type BatchProcessRefundsRequest struct {
	Limit int `json:"limit"`
}

// BatchProcessRefunds 批量处理待审核退款
func (h *Handler) BatchProcessRefunds(c *gin.Context) {
	var req BatchProcessRefundsRequest
	_ = c.ShouldBindJSON(&req)
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}

	result := h.RefundService.BatchProcessPending(req.Limit)
	requestLog(c).Infow("admin_refund_batch_processed",
		"operator", getOperatorName(c),
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	response.Success(c, result)
}

// RefundStatistics 退款统计
func (h *Handler) RefundStatistics(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if t := parseTimeQuery(c, "from"); t != nil {
		from = *t
	}
	if t := parseTimeQuery(c, "to"); t != nil {
		to = *t
	}

	stats, err := h.RefundService.Statistics(from, to)
	if err != nil {
		respondError(c, response.CodeInternal, "查询退款统计失败", err)
		return
	}
	response.Success(c, stats)
}
