package models

import (
	"time"

	"gorm.io/gorm"
)

// RiskRule 风控规则
type RiskRule struct {
	ID            uint           `gorm:"primarykey" json:"id"`                       // 主键
	RuleID        string         `gorm:"uniqueIndex;not null" json:"rule_id"`        // 规则编号
	Name          string         `gorm:"uniqueIndex;not null" json:"name"`           // 规则名称
	Type          string         `gorm:"index;not null" json:"type"`                 // 规则类型（amount_limit/frequency_limit/velocity/ip_blacklist/device_limit/time_limit）
	Method        string         `gorm:"index" json:"method"`                        // 适用支付渠道（空=全部）
	Threshold     Money          `gorm:"type:decimal(20,2)" json:"threshold"`        // 阈值（金额或次数）
	WindowSeconds int            `json:"window_seconds"`                             // 统计时间窗口
	Weight        int            `gorm:"not null;default:10" json:"weight"`          // 风险评分权重
	Level         string         `gorm:"not null" json:"level"`                      // 风险等级（low/medium/high/critical）
	Action        string         `gorm:"not null" json:"action"`                     // 触发动作（allow/warn/manual_review/deny）
	Priority      int            `gorm:"index;not null;default:0" json:"priority"`   // 评估优先级（小者先评估）
	Enabled       bool           `gorm:"index;not null;default:true" json:"enabled"` // 是否启用
	Config        string         `gorm:"type:text" json:"config"`                    // 规则附加配置（黑名单IP列表、时段区间等）
	Description   string         `json:"description"`                                // 规则说明
	CreatedAt     time.Time      `json:"created_at"`                                 // 创建时间
	UpdatedAt     time.Time      `json:"updated_at"`                                 // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (RiskRule) TableName() string {
	return "risk_rules"
}
