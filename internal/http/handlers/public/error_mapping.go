package public

import (
	"errors"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/http/response"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

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

var paymentCommonErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentInvalid, code: response.CodeBadRequest},
	{target: service.ErrBusinessOrderInvalid, code: response.CodeBadRequest},
	{target: service.ErrDuplicateBusinessOrder, code: response.CodeConflict},
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound},
	{target: service.ErrPaymentStatusInvalid, code: response.CodeBadRequest},
	{target: service.ErrInvalidStateForCancel, code: response.CodeBadRequest},
	{target: service.ErrPaymentExpired, code: response.CodeBadRequest},
	{target: service.ErrPaymentChannelNotFound, code: response.CodeBadRequest},
	{target: service.ErrPaymentChannelInactive, code: response.CodeBadRequest},
	{target: service.ErrPaymentChannelConfigInvalid, code: response.CodeInternal},
	{target: service.ErrRiskDenied, code: response.CodeForbidden},
}

var refundCommonErrorRules = []mappedHandlerError{
	{target: service.ErrRefundInvalid, code: response.CodeBadRequest},
	{target: service.ErrRefundNotFound, code: response.CodeNotFound},
	{target: service.ErrRefundStatusInvalid, code: response.CodeBadRequest},
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound},
	{target: service.ErrPaymentNotSettled, code: response.CodeBadRequest},
	{target: service.ErrExceedsRefundable, code: response.CodeBadRequest},
}
