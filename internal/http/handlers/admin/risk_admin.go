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

// ListRiskRecords 风控记录列表
func (h *Handler) ListRiskRecords(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	minScore, _ := strconv.Atoi(c.Query("min_score"))
	filter := repository.RiskRecordListFilter{
		Page:         page,
		PageSize:     pageSize,
		UserID:       strings.TrimSpace(c.Query("user_id")),
		Result:       strings.TrimSpace(c.Query("result")),
		ReviewStatus: strings.TrimSpace(c.Query("review_status")),
		MinScore:     minScore,
		CreatedFrom:  parseTimeQuery(c, "created_from"),
		CreatedTo:    parseTimeQuery(c, "created_to"),
	}

	records, total, err := h.RiskService.ListRecords(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "查询风控记录失败", err)
		return
	}
	response.SuccessWithPage(c, records, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// GetRiskRecord 风控记录详情
func (h *Handler) GetRiskRecord(c *gin.Context) {
	record, err := h.RiskService.GetRecord(strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "查询风控记录失败")
		return
	}
	response.Success(c, record)
}

// ListPendingRiskReviews 待人工审核的风控记录
func (h *Handler) ListPendingRiskReviews(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	records, err := h.RiskService.ListPendingReview(limit)
	if err != nil {
		respondError(c, response.CodeInternal, "查询待审核风控记录失败", err)
		return
	}
	response.Success(c, records)
}

// ReviewRiskRecordRequest 风控人工审核请求
type ReviewRiskRecordRequest struct {
	Approve bool   `json:"approve"`
	Remark  string `json:"remark"`
}

// ReviewRiskRecord 风控人工审核
func (h *Handler) ReviewRiskRecord(c *gin.Context) {
	recordID := strings.TrimSpace(c.Param("id"))
	var req ReviewRiskRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	reviewer := getOperatorName(c)
	if reviewer == "" {
		reviewer = "ADMIN"
	}
	record, err := h.RiskService.Review(service.RiskReviewInput{
		RecordID: recordID,
		Reviewer: reviewer,
		Approve:  req.Approve,
		Remark:   strings.TrimSpace(req.Remark),
	})
	if err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "风控审核失败")
		return
	}
	requestLog(c).Infow("admin_risk_reviewed",
		"record_id", recordID,
		"reviewer", reviewer,
		"approve", req.Approve,
	)
	response.Success(c, record)
}

// MarkFalsePositiveRequest 标记误判请求
type MarkFalsePositiveRequest struct {
	Remark string `json:"remark"`
}

// MarkRiskFalsePositive 标记风控误判
func (h *Handler) MarkRiskFalsePositive(c *gin.Context) {
	recordID := strings.TrimSpace(c.Param("id"))
	var req MarkFalsePositiveRequest
	_ = c.ShouldBindJSON(&req)

	operator := getOperatorName(c)
	if operator == "" {
		operator = "ADMIN"
	}
	record, err := h.RiskService.MarkFalsePositive(recordID, operator, strings.TrimSpace(req.Remark))
	if err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "标记误判失败")
		return
	}
	response.Success(c, record)
}

// RiskStatistics 风控统计
func (h *Handler) RiskStatistics(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if t := parseTimeQuery(c, "from"); t != nil {
		from = *t
	}
	if t := parseTimeQuery(c, "to"); t != nil {
		to = *t
	}

	stats, err := h.RiskService.Statistics(from, to)
	if err != nil {
		respondError(c, response.CodeInternal, "查询风控统计失败", err)
		return
	}
	response.Success(c, stats)
}
