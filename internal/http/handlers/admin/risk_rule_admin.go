package admin

import (
	"strconv"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/handlers/shared"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// RiskRuleRequest 风控规则创建/更新请求
type RiskRuleRequest struct {
	Name          string       `json:"name" binding:"required"`
	Type          string       `json:"type" binding:"required"`
	Method        string       `json:"method"`
	Threshold     models.Money `json:"threshold"`
	WindowSeconds int          `json:"window_seconds"`
	Weight        int          `json:"weight"`
	Level         string       `json:"level" binding:"required"`
	Action        string       `json:"action" binding:"required"`
	Priority      *int         `json:"priority"`
	Enabled       *bool        `json:"enabled"`
	Config        string       `json:"config"`
	Description   string       `json:"description"`
}

func (r RiskRuleRequest) toInput() service.RiskRuleInput {
	return service.RiskRuleInput{
		Name:          strings.TrimSpace(r.Name),
		Type:          strings.TrimSpace(r.Type),
		Method:        strings.TrimSpace(r.Method),
		Threshold:     r.Threshold,
		WindowSeconds: r.WindowSeconds,
		Weight:        r.Weight,
		Level:         strings.TrimSpace(r.Level),
		Action:        strings.TrimSpace(r.Action),
		Priority:      r.Priority,
		Enabled:       r.Enabled,
		Config:        strings.TrimSpace(r.Config),
		Description:   strings.TrimSpace(r.Description),
	}
}

// ListRiskRules 风控规则列表
func (h *Handler) ListRiskRules(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	filter := repository.RiskRuleListFilter{
		Page:        page,
		PageSize:    pageSize,
		Type:        strings.TrimSpace(c.Query("type")),
		Method:      strings.TrimSpace(c.Query("method")),
		EnabledOnly: c.Query("enabled_only") == "true",
	}
	rules, total, err := h.RiskService.ListRules(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "查询风控规则失败", err)
		return
	}
	response.SuccessWithPage(c, rules, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// GetRiskRule 风控规则详情
func (h *Handler) GetRiskRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "规则 ID 无效", err)
		return
	}
	rule, err := h.RiskService.GetRule(uint(id))
	if err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "查询风控规则失败")
		return
	}
	response.Success(c, rule)
}

// CreateRiskRule 创建风控规则
func (h *Handler) CreateRiskRule(c *gin.Context) {
	var req RiskRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	rule, err := h.RiskService.CreateRule(req.toInput())
	if err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "创建风控规则失败")
		return
	}
	requestLog(c).Infow("admin_risk_rule_created",
		"rule_id", rule.RuleID,
		"name", rule.Name,
		"operator", getOperatorName(c),
	)
	response.Success(c, rule)
}

// UpdateRiskRule 更新风控规则
func (h *Handler) UpdateRiskRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "规则 ID 无效", err)
		return
	}
	var req RiskRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	rule, err := h.RiskService.UpdateRule(uint(id), req.toInput())
	if err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "更新风控规则失败")
		return
	}
	requestLog(c).Infow("admin_risk_rule_updated",
		"rule_id", rule.RuleID,
		"name", rule.Name,
		"operator", getOperatorName(c),
	)
	response.Success(c, rule)
}

// ToggleRiskRuleRequest 风控规则启停请求
type ToggleRiskRuleRequest struct {
	Enabled bool `json:"enabled"`
}

// ToggleRiskRule 启用/停用风控规则
func (h *Handler) ToggleRiskRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "规则 ID 无效", err)
		return
	}
	var req ToggleRiskRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	rule, err := h.RiskService.ToggleRule(uint(id), req.Enabled)
	if err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "切换风控规则失败")
		return
	}
	response.Success(c, rule)
}

// DeleteRiskRule 删除风控规则
func (h *Handler) DeleteRiskRule(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "规则 ID 无效", err)
		return
	}
	if err := h.RiskService.DeleteRule(uint(id)); err != nil {
		respondWithMappedError(c, err, adminRiskErrorRules, response.CodeInternal, "删除风控规则失败")
		return
	}
	requestLog(c).Infow("admin_risk_rule_deleted", "id", id, "operator", getOperatorName(c))
	response.SuccessWithMsg(c, "删除成功", nil)
}
