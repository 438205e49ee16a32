package constants

// 支付订单状态常量
const (
	PaymentStatusCreated        = "created"
	PaymentStatusPendingRisk    = "pending_risk"
	PaymentStatusDenied         = "denied"
	PaymentStatusPendingPayment = "pending_payment"
	PaymentStatusProcessing     = "processing"
	PaymentStatusSuccess        = "success"
	PaymentStatusFailed         = "failed"
	PaymentStatusExpired        = "expired"
	PaymentStatusCancelled      = "cancelled"
)

// 退款订单状态常量
const (
	RefundStatusCreated      = "created"
	RefundStatusPendingAudit = "pending_audit"
	RefundStatusRejected     = "rejected"
	RefundStatusApproved     = "approved"
	RefundStatusProcessing   = "processing"
	RefundStatusSuccess      = "success"
	RefundStatusFailed       = "failed"
	RefundStatusCancelled    = "cancelled"
)

// 支付渠道类型常量
const (
	ChannelAlipay = "alipay"
	ChannelWechat = "wechat"
	ChannelBank   = "bank"
)

// 支付交互方式常量
const (
	PaymentInteractionQR       = "qr"
	PaymentInteractionRedirect = "redirect"
	PaymentInteractionPage     = "page"
)

// 风控规则类型常量
const (
	RiskRuleTypeAmountLimit    = "amount_limit"
	RiskRuleTypeFrequencyLimit = "frequency_limit"
	RiskRuleTypeVelocity       = "velocity"
	RiskRuleTypeIPBlacklist    = "ip_blacklist"
	RiskRuleTypeDeviceLimit    = "device_limit"
	RiskRuleTypeTimeLimit      = "time_limit"
)

// 风控等级常量
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// 风控处理动作常量（优先级 deny > manual_review > warn > allow）
const (
	RiskActionAllow        = "allow"
	RiskActionWarn         = "warn"
	RiskActionManualReview = "manual_review"
	RiskActionDeny         = "deny"
)

// 风控检查结果常量
const (
	RiskResultPassed       = "passed"
	RiskResultWarning      = "warning"
	RiskResultManualReview = "manual_review"
	RiskResultBlocked      = "blocked"
)

// 风控人工审核状态常量
const (
	RiskReviewNone     = "none"
	RiskReviewPending  = "pending"
	RiskReviewApproved = "approved"
	RiskReviewRejected = "rejected"
)

// 系统审核人标识
const SystemReviewer = "SYSTEM"

// 支付流水动作常量
const (
	RecordActionCreated         = "created"
	RecordActionRiskDenied      = "risk_denied"
	RecordActionRiskHold        = "risk_hold"
	RecordActionInitiated       = "initiated"
	RecordActionCallbackSuccess = "callback_success"
	RecordActionCallbackFailed  = "callback_failed"
	RecordActionAmountMismatch  = "amount_mismatch"
	RecordActionCancelled       = "cancelled"
	RecordActionExpired         = "expired"
	RecordActionRetried         = "retried"
	RecordActionSynced          = "synced"
	RecordActionAudited         = "audited"
	RecordActionSubmitted       = "submitted"
)

// 支付宝回调常量
const (
	AlipayTradeStatusSuccess      = "TRADE_SUCCESS"
	AlipayTradeStatusFinished     = "TRADE_FINISHED"
	AlipayTradeStatusClosed       = "TRADE_CLOSED"
	AlipayTradeStatusWaitBuyerPay = "WAIT_BUYER_PAY"
	AlipayCallbackSuccess         = "success"
	AlipayCallbackFail            = "fail"
)

// 微信支付回调常量
const (
	WechatTradeStateSuccess  = "SUCCESS"
	WechatTradeStateClosed   = "CLOSED"
	WechatTradeStatePayError = "PAYERROR"
	WechatCallbackSuccess    = `{"code":"SUCCESS","message":"成功"}`
	WechatCallbackFail       = `{"code":"FAIL","message":"失败"}`
)

// 银行网关回调常量
const (
	BankTradeStatusSuccess = "SETTLED"
	BankTradeStatusFailed  = "FAILED"
	BankCallbackSuccess    = "OK"
	BankCallbackFail       = "ERROR"
)

// 队列常量
const (
	QueueDefault      = "default"
	TaskRefundSubmit  = "refund:channel_submit"
	TaskPaymentNotify = "payment:result_notify"
	TaskRefundNotify  = "refund:result_notify"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "payeng"
)

// 操作员角色常量
const (
	OperatorRoleAdmin    = "admin"
	OperatorRoleReviewer = "reviewer"
)

// 币种常量
const SiteCurrencyDefault = "CNY"
