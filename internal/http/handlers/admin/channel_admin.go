package admin

import (
	"strconv"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/handlers/shared"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListChannels 支付渠道列表
func (h *Handler) ListChannels(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = shared.NormalizePagination(page, pageSize)

	channels, total, err := h.PaymentChannelRepo.List(repository.PaymentChannelListFilter{
		Page:       page,
		PageSize:   pageSize,
		Code:       strings.TrimSpace(c.Query("code")),
		ActiveOnly: c.Query("active_only") == "true",
	})
	if err != nil {
		respondError(c, response.CodeInternal, "查询支付渠道失败", err)
		return
	}
	response.SuccessWithPage(c, channels, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// ChannelRequest 支付渠道创建/更新请求
type ChannelRequest struct {
	Code       string       `json:"code" binding:"required"`
	Name       string       `json:"name" binding:"required"`
	FeeRate    models.Money `json:"fee_rate"`
	ConfigJSON models.JSON  `json:"config_json"`
	IsActive   *bool        `json:"is_active"`
	SortOrder  int          `json:"sort_order"`
}

// CreateChannel 创建支付渠道
func (h *Handler) CreateChannel(c *gin.Context) {
	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	code := strings.ToLower(strings.TrimSpace(req.Code))
	if existing, err := h.PaymentChannelRepo.GetByCode(code); err != nil {
		respondError(c, response.CodeInternal, "查询支付渠道失败", err)
		return
	} else if existing != nil {
		respondError(c, response.CodeConflict, "渠道编码已存在", nil)
		return
	}

	channel := &models.PaymentChannel{
		Code:       code,
		Name:       strings.TrimSpace(req.Name),
		FeeRate:    req.FeeRate,
		ConfigJSON: req.ConfigJSON,
		IsActive:   req.IsActive == nil || *req.IsActive,
		SortOrder:  req.SortOrder,
	}
	if err := h.PaymentChannelRepo.Create(channel); err != nil {
		respondError(c, response.CodeInternal, "创建支付渠道失败", err)
		return
	}
	h.reconfigureChannel(c, channel)
	response.Success(c, channel)
}

// UpdateChannel 更新支付渠道
func (h *Handler) UpdateChannel(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "渠道 ID 无效", err)
		return
	}
	channel, err := h.PaymentChannelRepo.GetByID(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "查询支付渠道失败", err)
		return
	}
	if channel == nil {
		respondError(c, response.CodeNotFound, "支付渠道不存在", nil)
		return
	}

	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	channel.Name = strings.TrimSpace(req.Name)
	channel.FeeRate = req.FeeRate
	if req.ConfigJSON != nil {
		channel.ConfigJSON = req.ConfigJSON
	}
	if req.IsActive != nil {
		channel.IsActive = *req.IsActive
	}
	channel.SortOrder = req.SortOrder

	if err := h.PaymentChannelRepo.Update(channel); err != nil {
		respondError(c, response.CodeInternal, "更新支付渠道失败", err)
		return
	}
	h.reconfigureChannel(c, channel)
	response.Success(c, channel)
}

// DeleteChannel 删除支付渠道
func (h *Handler) DeleteChannel(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "渠道 ID 无效", err)
		return
	}
	if err := h.PaymentChannelRepo.Delete(uint(id)); err != nil {
		respondError(c, response.CodeInternal, "删除支付渠道失败", err)
		return
	}
	requestLog(c).Infow("admin_channel_deleted", "id", id, "operator", getOperatorName(c))
	response.SuccessWithMsg(c, "删除成功", nil)
}

// reconfigureChannel 渠道变更后立即重建适配器实例，保证新配置即时生效。
func (h *Handler) reconfigureChannel(c *gin.Context, channel *models.PaymentChannel) {
	if !channel.IsActive {
		return
	}
	if err := h.PaymentRegistry.Configure(channel); err != nil {
		requestLog(c).Warnw("admin_channel_configure_failed",
			"channel", channel.Code,
			"error", err,
		)
	}
}
