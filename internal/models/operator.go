package models

import (
	"time"

	"gorm.io/gorm"
)

// Operator 运营操作员（审核、规则管理等后台动作的主体）
type Operator struct {
	ID           uint           `gorm:"primarykey" json:"id"`                 // 主键
	Username     string         `gorm:"uniqueIndex;not null" json:"username"` // 操作员账号
	PasswordHash string         `gorm:"not null" json:"-"`                    // 密码哈希（不返回给前端）
	Role         string         `gorm:"index;not null" json:"role"`           // 角色（admin/reviewer）
	LastLoginAt  *time.Time     `json:"last_login_at"`                        // 最后登录时间
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`              // 创建时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                       // 软删除时间
}

// TableName 指定表名
func (Operator) TableName() string {
	return "operators"
}
