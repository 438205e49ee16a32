package models

import (
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
)

// RiskRecord 风控检查记录（每次交易评估一条，仅审核动作可修改）
type RiskRecord struct {
	ID              uint       `gorm:"primarykey" json:"id"`                         // 主键
	RecordID        string     `gorm:"uniqueIndex;not null" json:"record_id"`        // 记录编号
	PaymentOrderID  uint       `gorm:"index;not null" json:"payment_order_id"`       // 支付订单ID
	BusinessOrderID string     `gorm:"index" json:"business_order_id"`               // 业务订单号
	UserID          string     `gorm:"index;not null" json:"user_id"`                // 用户ID
	Method          string     `json:"method"`                                       // 支付渠道
	Amount          Money      `gorm:"type:decimal(20,2)" json:"amount"`             // 交易金额
	ClientIP        string     `gorm:"index" json:"client_ip"`                       // 客户端IP
	DeviceID        string     `gorm:"index" json:"device_id"`                       // 设备指纹
	TriggeredRules  string     `gorm:"type:text" json:"triggered_rules"`             // 命中规则编号（按优先级序，逗号分隔）
	Score           int        `gorm:"not null;default:0" json:"score"`              // 累计风险评分
	Level           string     `json:"level"`                                        // 最高风险等级
	Action          string     `json:"action"`                                       // 最终处理动作
	Result          string     `gorm:"index;not null" json:"result"`                 // 检查结果（passed/warning/manual_review/blocked）
	Reason          string     `json:"reason"`                                       // 命中原因汇总
	ReviewStatus    string     `gorm:"index;not null" json:"review_status"`          // 人工审核状态（none/pending/approved/rejected）
	Reviewer        string     `json:"reviewer"`                                     // 审核人
	ReviewRemark    string     `json:"review_remark"`                                // 审核备注
	FalsePositive   bool       `gorm:"not null;default:false" json:"false_positive"` // 是否标记为误报
	ElapsedMS       int64      `json:"elapsed_ms"`                                   // 评估耗时（毫秒）
	Detail          JSON       `gorm:"type:json" json:"detail"`                      // 评估明细
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                      // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                   // 更新时间
	ReviewedAt      *time.Time `json:"reviewed_at"`                                  // 审核时间
}

// TableName 指定表名
func (RiskRecord) TableName() string {
	return "risk_records"
}

// NeedsReview 是否等待人工审核
func (r *RiskRecord) NeedsReview() bool {
	return r.ReviewStatus == constants.RiskReviewPending
}

// ReviewDone 是否已完成审核
func (r *RiskRecord) ReviewDone() bool {
	return r.ReviewStatus == constants.RiskReviewApproved || r.ReviewStatus == constants.RiskReviewRejected
}
