package admin

import (
	"errors"
	"strings"

	handlershared "github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/handlers/shared"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/provider"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 后台管理接口处理器入口
// 说明：该处理器仅用于操作员侧 API。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func getOperatorID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, "operator_id")
}

func getOperatorName(c *gin.Context) string {
	return strings.TrimSpace(handlershared.GetContextString(c, "username"))
}

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.target.Error(), nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var adminPaymentErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound},
	{target: service.ErrPaymentStatusInvalid, code: response.CodeBadRequest},
	{target: service.ErrInvalidStateForCancel, code: response.CodeBadRequest},
}

var adminRefundErrorRules = []mappedHandlerError{
	{target: service.ErrRefundNotFound, code: response.CodeNotFound},
	{target: service.ErrRefundStatusInvalid, code: response.CodeBadRequest},
	{target: service.ErrAlreadyReviewed, code: response.CodeConflict},
	{target: service.ErrRetryLimitReached, code: response.CodeBadRequest},
}

var adminRiskErrorRules = []mappedHandlerError{
	{target: service.ErrRiskRecordNotFound, code: response.CodeNotFound},
	{target: service.ErrAlreadyReviewed, code: response.CodeConflict},
	{target: service.ErrRiskRuleNotFound, code: response.CodeNotFound},
	{target: service.ErrRiskRuleNameTaken, code: response.CodeConflict},
	{target: service.ErrRiskRuleInvalid, code: response.CodeBadRequest},
}

var adminAuthErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidCredentials, code: response.CodeUnauthorized},
	{target: service.ErrCaptchaInvalid, code: response.CodeBadRequest},
	{target: service.ErrOperatorNotFound, code: response.CodeNotFound},
	{target: service.ErrOperatorUsernameTaken, code: response.CodeConflict},
	{target: service.ErrOperatorPasswordWeak, code: response.CodeBadRequest},
}
