package models

import (
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"

	"gorm.io/gorm"
)

// PaymentOrder 支付订单
type PaymentOrder struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                       // 主键
	OrderNo         string         `gorm:"uniqueIndex;not null" json:"order_no"`                       // 支付单号
	BusinessOrderID string         `gorm:"index;not null" json:"business_order_id"`                    // 业务订单号（存活订单内唯一）
	UserID          string         `gorm:"index;not null" json:"user_id"`                              // 用户ID
	Method          string         `gorm:"index;not null" json:"method"`                               // 支付渠道（alipay/wechat/bank）
	Amount          Money          `gorm:"type:decimal(20,2);not null" json:"amount"`                  // 应付金额（创建后不可变）
	ActualAmount    Money          `gorm:"type:decimal(20,2);not null;default:0" json:"actual_amount"` // 渠道实际结算金额
	FeeAmount       Money          `gorm:"type:decimal(20,2);not null;default:0" json:"fee_amount"`    // 渠道手续费
	Currency        string         `gorm:"not null" json:"currency"`                                   // 币种
	Status          string         `gorm:"index;not null" json:"status"`                               // 订单状态
	ThirdPartyRef   string         `gorm:"index" json:"third_party_ref"`                               // 第三方流水号（一经写入不可变更）
	RetryCount      int            `gorm:"not null;default:0" json:"retry_count"`                      // 失败重试次数
	ClientIP        string         `json:"client_ip"`                                                  // 下单客户端IP
	DeviceID        string         `json:"device_id"`                                                  // 设备指纹
	Subject         string         `json:"subject"`                                                    // 订单标题
	PayURL          string         `gorm:"type:text" json:"pay_url"`                                   // 跳转链接
	QRCode          string         `gorm:"type:text" json:"qr_code"`                                   // 二维码内容
	FailureReason   string         `json:"failure_reason"`                                             // 最近一次失败原因
	CallbackPayload JSON           `gorm:"type:json" json:"callback_payload"`                          // 最近一次回调原文
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                    // 更新时间
	ExpiresAt       *time.Time     `gorm:"index" json:"expires_at"`                                    // 过期时间
	SettledAt       *time.Time     `gorm:"index" json:"settled_at"`                                    // 结算时间
	CallbackAt      *time.Time     `gorm:"index" json:"callback_at"`                                   // 最近回调时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                             // 软删除时间
}

// TableName 指定表名
func (PaymentOrder) TableName() string {
	return "payment_orders"
}

// paymentTransitions 支付状态机转移表（唯一的合法转移来源）
var paymentTransitions = map[string][]string{
	constants.PaymentStatusCreated: {
		constants.PaymentStatusPendingRisk,
		constants.PaymentStatusCancelled,
	},
	constants.PaymentStatusPendingRisk: {
		constants.PaymentStatusDenied,
		constants.PaymentStatusPendingPayment,
		constants.PaymentStatusCancelled,
	},
	constants.PaymentStatusPendingPayment: {
		constants.PaymentStatusProcessing,
		constants.PaymentStatusSuccess, // 回调先于发起响应到达的竞态
		constants.PaymentStatusFailed,
		constants.PaymentStatusCancelled,
		constants.PaymentStatusExpired,
	},
	constants.PaymentStatusProcessing: {
		constants.PaymentStatusSuccess,
		constants.PaymentStatusPendingPayment, // 失败且未达重试上限时回退
		constants.PaymentStatusFailed,
		constants.PaymentStatusExpired,
	},
}

// paymentTerminalStatuses 支付终态集合
var paymentTerminalStatuses = map[string]bool{
	constants.PaymentStatusSuccess:   true,
	constants.PaymentStatusFailed:    true,
	constants.PaymentStatusDenied:    true,
	constants.PaymentStatusExpired:   true,
	constants.PaymentStatusCancelled: true,
}

// PaymentCanTransition 判断支付状态转移是否合法
func PaymentCanTransition(from, to string) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentStatusTerminal 判断支付状态是否为终态
func PaymentStatusTerminal(status string) bool {
	return paymentTerminalStatuses[status]
}

// CanCancel 是否允许取消（PROCESSING 起不可取消，须等待终态回调或过期）
func (p *PaymentOrder) CanCancel() bool {
	switch p.Status {
	case constants.PaymentStatusCreated,
		constants.PaymentStatusPendingRisk,
		constants.PaymentStatusPendingPayment:
		return true
	}
	return false
}

// IsExpired 是否已超过有效期
func (p *PaymentOrder) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Settled 是否已结算
func (p *PaymentOrder) Settled() bool {
	return p.Status == constants.PaymentStatusSuccess
}
