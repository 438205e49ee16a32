package models

import (
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"

	"gorm.io/gorm"
)

// RefundOrder 退款订单（一笔支付可对应多笔退款）
type RefundOrder struct {
	ID                  uint           `gorm:"primarykey" json:"id"`                                       // 主键
	RefundNo            string         `gorm:"uniqueIndex;not null" json:"refund_no"`                      // 退款单号
	PaymentOrderID      uint           `gorm:"index;not null" json:"payment_order_id"`                     // 原支付订单ID
	UserID              string         `gorm:"index;not null" json:"user_id"`                              // 用户ID
	Amount              Money          `gorm:"type:decimal(20,2);not null" json:"amount"`                  // 申请退款金额
	ActualAmount        Money          `gorm:"type:decimal(20,2);not null;default:0" json:"actual_amount"` // 渠道实际退款金额
	Reason              string         `gorm:"not null" json:"reason"`                                     // 退款原因
	Status              string         `gorm:"index;not null" json:"status"`                               // 退款状态
	ThirdPartyRefundRef string         `gorm:"index" json:"third_party_refund_ref"`                        // 第三方退款流水号（一经写入不可变更）
	RetryCount          int            `gorm:"not null;default:0" json:"retry_count"`                      // 失败重试次数
	ReviewerID          string         `json:"reviewer_id"`                                                // 审核人
	ReviewRemark        string         `json:"review_remark"`                                              // 审核备注
	FailureReason       string         `json:"failure_reason"`                                             // 最近一次失败原因
	CallbackPayload     JSON           `gorm:"type:json" json:"callback_payload"`                          // 最近一次回调原文
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`                                    // 创建时间
	UpdatedAt           time.Time      `gorm:"index" json:"updated_at"`                                    // 更新时间
	ReviewedAt          *time.Time     `json:"reviewed_at"`                                                // 审核时间
	ProcessedAt         *time.Time     `json:"processed_at"`                                               // 发起渠道退款时间
	RefundedAt          *time.Time     `gorm:"index" json:"refunded_at"`                                   // 退款完成时间
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`                                             // 软删除时间
}

// TableName 指定表名
func (RefundOrder) TableName() string {
	return "refund_orders"
}

// refundTransitions 退款状态机转移表
var refundTransitions = map[string][]string{
	constants.RefundStatusCreated: {
		constants.RefundStatusPendingAudit,
		constants.RefundStatusCancelled,
	},
	constants.RefundStatusPendingAudit: {
		constants.RefundStatusApproved,
		constants.RefundStatusRejected,
		constants.RefundStatusCancelled,
	},
	constants.RefundStatusApproved: {
		constants.RefundStatusProcessing,
		constants.RefundStatusCancelled,
	},
	constants.RefundStatusProcessing: {
		constants.RefundStatusSuccess,
		constants.RefundStatusApproved, // 失败且未达重试上限时回退等待重试
		constants.RefundStatusFailed,
	},
	constants.RefundStatusFailed: {
		constants.RefundStatusApproved, // 人工重试重新进入渠道提交
	},
}

// refundTerminalStatuses 退款终态集合
var refundTerminalStatuses = map[string]bool{
	constants.RefundStatusSuccess:   true,
	constants.RefundStatusFailed:    true,
	constants.RefundStatusRejected:  true,
	constants.RefundStatusCancelled: true,
}

// RefundCanTransition 判断退款状态转移是否合法
func RefundCanTransition(from, to string) bool {
	for _, next := range refundTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RefundStatusTerminal 判断退款状态是否为终态
func RefundStatusTerminal(status string) bool {
	return refundTerminalStatuses[status]
}

// CanCancel 是否允许取消（渠道处理中不可取消）
func (r *RefundOrder) CanCancel() bool {
	switch r.Status {
	case constants.RefundStatusCreated,
		constants.RefundStatusPendingAudit,
		constants.RefundStatusApproved:
		return true
	}
	return false
}
