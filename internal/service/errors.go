package service

import "errors"

// 支付订单相关错误
var (
	ErrPaymentInvalid              = errors.New("支付请求参数无效")
	ErrPaymentNotFound             = errors.New("支付订单不存在")
	ErrPaymentCreateFailed         = errors.New("支付订单创建失败")
	ErrPaymentUpdateFailed         = errors.New("支付订单更新失败")
	ErrPaymentStatusInvalid        = errors.New("支付订单状态不允许该操作")
	ErrDuplicateBusinessOrder      = errors.New("业务订单已存在存活的支付订单")
	ErrInvalidStateForCancel       = errors.New("当前状态不允许取消")
	ErrAlreadySettled              = errors.New("订单已结算")
	ErrAmountMismatch              = errors.New("回调金额与订单金额不一致")
	ErrThirdPartyRefConflict       = errors.New("第三方流水号与已记录值冲突")
	ErrPaymentExpired              = errors.New("支付订单已过期")
	ErrRetryLimitReached           = errors.New("已达到失败重试上限")
	ErrPaymentChannelNotFound      = errors.New("支付渠道不存在")
	ErrPaymentChannelInactive      = errors.New("支付渠道未启用")
	ErrPaymentChannelConfigInvalid = errors.New("支付渠道配置无效")
	ErrBusinessOrderInvalid        = errors.New("业务订单校验未通过")
)

// 退款订单相关错误
var (
	ErrRefundInvalid       = errors.New("退款请求参数无效")
	ErrRefundNotFound      = errors.New("退款订单不存在")
	ErrRefundCreateFailed  = errors.New("退款订单创建失败")
	ErrRefundUpdateFailed  = errors.New("退款订单更新失败")
	ErrRefundStatusInvalid = errors.New("退款订单状态不允许该操作")
	ErrPaymentNotSettled   = errors.New("原支付订单未结算")
	ErrExceedsRefundable   = errors.New("退款金额超出可退余额")
	ErrAlreadyReviewed     = errors.New("已完成审核，不可重复操作")
)

// 风控相关错误
var (
	ErrRiskRecordNotFound = errors.New("风控记录不存在")
	ErrRiskRuleNotFound   = errors.New("风控规则不存在")
	ErrRiskRuleNameTaken  = errors.New("风控规则名称已存在")
	ErrRiskRuleInvalid    = errors.New("风控规则参数无效")
	ErrRiskDenied         = errors.New("交易被风控拦截")
)

// 操作员认证相关错误
var (
	ErrOperatorNotFound      = errors.New("操作员不存在")
	ErrInvalidCredentials    = errors.New("账号或密码错误")
	ErrCaptchaInvalid        = errors.New("验证码错误或已过期")
	ErrOperatorUsernameTaken = errors.New("操作员用户名已存在")
	ErrOperatorPasswordWeak  = errors.New("密码强度不足")
)
