package models

import (
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"

	"golang.org/x/crypto/bcrypt"
)

// InitDefaultOperator 初始化默认操作员账号
func InitDefaultOperator(username, password string) error {
	var count int64
	DB.Model(&Operator{}).Count(&count)
	if count > 0 {
		return nil
	}

	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = "admin123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	op := Operator{
		Username:     username,
		PasswordHash: string(hash),
		Role:         constants.OperatorRoleAdmin,
	}
	if err := DB.Create(&op).Error; err != nil {
		return err
	}

	if password == "admin123" {
		logger.Warnw("default_operator_created_with_default_password", "username", username)
		logger.Warnw("default_operator_password_change_required", "username", username)
	} else {
		logger.Warnw("default_operator_created", "username", username, "password_hidden", true)
	}
	return nil
}
