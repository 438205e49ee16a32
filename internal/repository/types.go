package repository

import "time"

// PaymentOrderListFilter 查询支付订单列表的过滤条件
type PaymentOrderListFilter struct {
	Page            int
	PageSize        int
	UserID          string
	BusinessOrderID string
	OrderNo         string
	Method          string
	Status          string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// RefundOrderListFilter 查询退款订单列表的过滤条件
type RefundOrderListFilter struct {
	Page           int
	PageSize       int
	UserID         string
	PaymentOrderID uint
	RefundNo       string
	Status         string
	CreatedFrom    *time.Time
	CreatedTo      *time.Time
}

// RiskRecordListFilter 查询风控记录列表的过滤条件
type RiskRecordListFilter struct {
	Page         int
	PageSize     int
	UserID       string
	Result       string
	ReviewStatus string
	MinScore     int
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// RiskRuleListFilter 查询风控规则列表的过滤条件
type RiskRuleListFilter struct {
	Page        int
	PageSize    int
	Type        string
	Method      string
	EnabledOnly bool
}

// PaymentChannelListFilter 查询支付渠道列表的过滤条件
type PaymentChannelListFilter struct {
	Page       int
	PageSize   int
	Code       string
	ActiveOnly bool
}
