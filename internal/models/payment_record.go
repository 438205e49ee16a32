package models

import "time"

// PaymentRecord 支付流水（每次引擎动作追加一条，只增不改）
type PaymentRecord struct {
	ID             uint      `gorm:"primarykey" json:"id"`                   // 主键
	PaymentOrderID uint      `gorm:"index;not null" json:"payment_order_id"` // 支付订单ID
	Action         string    `gorm:"index;not null" json:"action"`           // 动作（created/initiated/callback_success/...）
	Status         string    `gorm:"not null" json:"status"`                 // 动作后订单状态
	Amount         Money     `gorm:"type:decimal(20,2)" json:"amount"`       // 涉及金额
	Remark         string    `gorm:"type:text" json:"remark"`                // 备注
	RawPayload     JSON      `gorm:"type:json" json:"raw_payload"`           // 渠道原始数据
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                // 创建时间
}

// TableName 指定表名
func (PaymentRecord) TableName() string {
	return "payment_records"
}

// RefundRecord 退款流水（每次引擎动作追加一条，只增不改）
type RefundRecord struct {
	ID            uint      `gorm:"primarykey" json:"id"`                  // 主键
	RefundOrderID uint      `gorm:"index;not null" json:"refund_order_id"` // 退款订单ID
	Action        string    `gorm:"index;not null" json:"action"`          // 动作（created/audited/submitted/...）
	Status        string    `gorm:"not null" json:"status"`                // 动作后订单状态
	Amount        Money     `gorm:"type:decimal(20,2)" json:"amount"`      // 涉及金额
	Remark        string    `gorm:"type:text" json:"remark"`               // 备注
	RawPayload    JSON      `gorm:"type:json" json:"raw_payload"`          // 渠道原始数据
	CreatedAt     time.Time `gorm:"index" json:"created_at"`               // 创建时间
}

// TableName 指定表名
func (RefundRecord) TableName() string {
	return "refund_records"
}
