package admin

import (
	"strconv"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

// GetImageCaptcha 获取登录图形验证码
func (h *Handler) GetImageCaptcha(c *gin.Context) {
	if h.CaptchaService == nil || !h.CaptchaService.Enabled() {
		response.Success(c, gin.H{"enabled": false})
		return
	}
	challenge, err := h.CaptchaService.GenerateImageChallenge()
	if err != nil {
		respondError(c, response.CodeInternal, "生成验证码失败", err)
		return
	}
	response.Success(c, gin.H{
		"enabled":      true,
		"captcha_id":   challenge.CaptchaID,
		"image_base64": challenge.ImageBase64,
	})
}

// LoginRequest 操作员登录请求
type LoginRequest struct {
	Username      string `json:"username" binding:"required"`
	Password      string `json:"password" binding:"required"`
	CaptchaID     string `json:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer"`
}

// Login 操作员登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}

	operator, token, expiresAt, err := h.AuthService.Login(service.LoginInput{
		Username:      strings.TrimSpace(req.Username),
		Password:      req.Password,
		CaptchaID:     strings.TrimSpace(req.CaptchaID),
		CaptchaAnswer: strings.TrimSpace(req.CaptchaAnswer),
	})
	if err != nil {
		requestLog(c).Warnw("operator_login_failed",
			"username", req.Username,
			"client_ip", c.ClientIP(),
			"error", err,
		)
		respondWithMappedError(c, err, adminAuthErrorRules, response.CodeInternal, "登录失败")
		return
	}
	requestLog(c).Infow("operator_login_success",
		"operator_id", operator.ID,
		"username", operator.Username,
		"client_ip", c.ClientIP(),
	)
	response.Success(c, gin.H{
		"token":      token,
		"expires_at": expiresAt.Unix(),
		"operator":   operator,
	})
}

// GetProfile 当前操作员信息
func (h *Handler) GetProfile(c *gin.Context) {
	operatorID, ok := getOperatorID(c)
	if !ok {
		return
	}
	operator, err := h.OperatorRepo.GetByID(operatorID)
	if err != nil || operator == nil {
		respondError(c, response.CodeNotFound, "操作员不存在", err)
		return
	}
	roles, err := h.AuthzService.GetOperatorRoles(operatorID)
	if err != nil {
		requestLog(c).Warnw("operator_roles_query_failed", "operator_id", operatorID, "error", err)
	}
	response.Success(c, gin.H{
		"operator": operator,
		"roles":    roles,
	})
}

// ListOperators 操作员列表
func (h *Handler) ListOperators(c *gin.Context) {
	operators, err := h.AuthService.ListOperators()
	if err != nil {
		respondError(c, response.CodeInternal, "查询操作员列表失败", err)
		return
	}
	response.Success(c, operators)
}

// CreateOperatorRequest 创建操作员请求
type CreateOperatorRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// CreateOperator 创建操作员并绑定角色
func (h *Handler) CreateOperator(c *gin.Context) {
	var req CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	operator, err := h.AuthService.CreateOperator(service.CreateOperatorInput{
		Username: strings.TrimSpace(req.Username),
		Password: req.Password,
		Role:     strings.TrimSpace(req.Role),
	})
	if err != nil {
		respondWithMappedError(c, err, adminAuthErrorRules, response.CodeInternal, "创建操作员失败")
		return
	}
	if err := h.AuthzService.SetOperatorRoles(operator.ID, []string{operator.Role}); err != nil {
		requestLog(c).Warnw("operator_role_bind_failed",
			"operator_id", operator.ID,
			"role", operator.Role,
			"error", err,
		)
	}
	response.Success(c, operator)
}

// DeleteOperator 删除操作员
func (h *Handler) DeleteOperator(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "操作员 ID 无效", err)
		return
	}
	if operatorID, ok := getOperatorID(c); ok && operatorID == uint(id) {
		respondError(c, response.CodeBadRequest, "不能删除当前登录账号", nil)
		return
	}
	if err := h.AuthService.DeleteOperator(uint(id)); err != nil {
		respondWithMappedError(c, err, adminAuthErrorRules, response.CodeInternal, "删除操作员失败")
		return
	}
	if err := h.AuthzService.SetOperatorRoles(uint(id), nil); err != nil {
		requestLog(c).Warnw("operator_role_clear_failed", "operator_id", id, "error", err)
	}
	response.SuccessWithMsg(c, "删除成功", nil)
}

// SetOperatorRolesRequest 设置操作员角色请求
type SetOperatorRolesRequest struct {
	Roles []string `json:"roles" binding:"required"`
}

// SetOperatorRoles 覆盖设置操作员角色
func (h *Handler) SetOperatorRoles(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "操作员 ID 无效", err)
		return
	}
	var req SetOperatorRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "请求参数无效", err)
		return
	}
	if err := h.AuthzService.SetOperatorRoles(uint(id), req.Roles); err != nil {
		respondError(c, response.CodeInternal, "设置角色失败", err)
		return
	}
	roles, err := h.AuthzService.GetOperatorRoles(uint(id))
	if err != nil {
		respondError(c, response.CodeInternal, "查询角色失败", err)
		return
	}
	response.Success(c, gin.H{"roles": roles})
}
