package repository

import (
	"errors"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"

	"gorm.io/gorm"
)

// RiskRuleRepository 风控规则数据访问接口
type RiskRuleRepository interface {
	Create(rule *models.RiskRule) error
	Update(rule *models.RiskRule) error
	Delete(id uint) error
	GetByID(id uint) (*models.RiskRule, error)
	GetByRuleID(ruleID string) (*models.RiskRule, error)
	ExistsByName(name string, excludeID uint) (bool, error)
	MaxPriority() (int, error)
	ListEnabledByMethod(method string) ([]models.RiskRule, error)
	ListAdmin(filter RiskRuleListFilter) ([]models.RiskRule, int64, error)
}

// GormRiskRuleRepository GORM 实现
type GormRiskRuleRepository struct {
	db *gorm.DB
}

// NewRiskRuleRepository 创建风控规则仓库
func NewRiskRuleRepository(db *gorm.DB) *GormRiskRuleRepository {
	return &GormRiskRuleRepository{db: db}
}

// Create 创建风控规则
func (r *GormRiskRuleRepository) Create(rule *models.RiskRule) error {
	return r.db.Create(rule).Error
}

// Update 更新风控规则
func (r *GormRiskRuleRepository) Update(rule *models.RiskRule) error {
	return r.db.Save(rule).Error
}

// Delete 删除风控规则
func (r *GormRiskRuleRepository) Delete(id uint) error {
	return r.db.Delete(&models.RiskRule{}, id).Error
}

// GetByID 根据 ID 获取风控规则
func (r *GormRiskRuleRepository) GetByID(id uint) (*models.RiskRule, error) {
	var rule models.RiskRule
	if err := r.db.First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// GetByRuleID 根据规则编号获取风控规则
func (r *GormRiskRuleRepository) GetByRuleID(ruleID string) (*models.RiskRule, error) {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return nil, nil
	}
	var rule models.RiskRule
	result := r.db.Where("rule_id = ?", ruleID).Limit(1).Find(&rule)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &rule, nil
}

// ExistsByName 检查规则名称是否已被占用
func (r *GormRiskRuleRepository) ExistsByName(name string, excludeID uint) (bool, error) {
	query := r.db.Model(&models.RiskRule{}).Where("name = ?", name)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MaxPriority 获取当前最大优先级
func (r *GormRiskRuleRepository) MaxPriority() (int, error) {
	var max *int
	if err := r.db.Model(&models.RiskRule{}).Select("MAX(priority)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// ListEnabledByMethod 获取适用于指定支付渠道的启用规则。
// 渠道专属规则优先于通用规则，同组内按优先级升序。
func (r *GormRiskRuleRepository) ListEnabledByMethod(method string) ([]models.RiskRule, error) {
	var rules []models.RiskRule
	err := r.db.Where("enabled = ? AND (method = ? OR method = '')", true, method).
		Order("CASE WHEN method = '' THEN 1 ELSE 0 END ASC").
		Order("priority asc").
		Order("id asc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// ListAdmin 管理端风控规则列表
func (r *GormRiskRuleRepository) ListAdmin(filter RiskRuleListFilter) ([]models.RiskRule, int64, error) {
	query := r.db.Model(&models.RiskRule{})

	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Method != "" {
		query = query.Where("method = ?", filter.Method)
	}
	if filter.EnabledOnly {
		query = query.Where("enabled = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rules []models.RiskRule
	if err := applyPagination(query.Order("priority asc, id asc"), filter.Page, filter.PageSize).Find(&rules).Error; err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}
