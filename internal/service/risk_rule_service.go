package service

import (
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/shopspring/decimal"
)

// RiskRuleInput 风控规则创建/更新输入
type RiskRuleInput struct {
	Name          string
	Type          string
	Method        string
	Threshold     models.Money
	WindowSeconds int
	Weight        int
	Level         string
	Action        string
	Priority      *int
	Enabled       *bool
	Config        string
	Description   string
}

var riskRuleTypes = map[string]bool{
	constants.RiskRuleTypeAmountLimit:    true,
	constants.RiskRuleTypeFrequencyLimit: true,
	constants.RiskRuleTypeVelocity:       true,
	constants.RiskRuleTypeIPBlacklist:    true,
	constants.RiskRuleTypeDeviceLimit:    true,
	constants.RiskRuleTypeTimeLimit:      true,
}

func validateRuleInput(input RiskRuleInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return ErrRiskRuleInvalid
	}
	if !riskRuleTypes[input.Type] {
		return ErrRiskRuleInvalid
	}
	if _, ok := riskLevelRank[input.Level]; !ok {
		return ErrRiskRuleInvalid
	}
	if _, ok := riskActionRank[input.Action]; !ok {
		return ErrRiskRuleInvalid
	}
	switch input.Type {
	case constants.RiskRuleTypeAmountLimit,
		constants.RiskRuleTypeFrequencyLimit,
		constants.RiskRuleTypeVelocity,
		constants.RiskRuleTypeDeviceLimit:
		if input.Threshold.Decimal.LessThanOrEqual(decimal.Zero) {
			return ErrRiskRuleInvalid
		}
	case constants.RiskRuleTypeTimeLimit:
		if _, _, err := parseRuleTimeWindow(input.Config); err != nil {
			return ErrRiskRuleInvalid
		}
	case constants.RiskRuleTypeIPBlacklist:
		ips, err := parseRuleStringList(input.Config, "ips")
		if err != nil || len(ips) == 0 {
			return ErrRiskRuleInvalid
		}
	}
	return nil
}

// CreateRule 创建风控规则。名称唯一，未指定优先级时排到当前最大值 +10。
func (s *RiskService) CreateRule(input RiskRuleInput) (*models.RiskRule, error) {
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	taken, err := s.ruleRepo.ExistsByName(name, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrRiskRuleNameTaken
	}

	priority := 0
	if input.Priority != nil {
		priority = *input.Priority
	} else {
		max, err := s.ruleRepo.MaxPriority()
		if err != nil {
			return nil, err
		}
		priority = max + 10
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	weight := input.Weight
	if weight <= 0 {
		weight = 10
	}

	now := time.Now()
	rule := &models.RiskRule{
		RuleID:        generateRiskRuleID(),
		Name:          name,
		Type:          input.Type,
		Method:        strings.ToLower(strings.TrimSpace(input.Method)),
		Threshold:     input.Threshold,
		WindowSeconds: input.WindowSeconds,
		Weight:        weight,
		Level:         input.Level,
		Action:        input.Action,
		Priority:      priority,
		Enabled:       enabled,
		Config:        strings.TrimSpace(input.Config),
		Description:   strings.TrimSpace(input.Description),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.ruleRepo.Create(rule); err != nil {
		return nil, err
	}
	riskLogger("rule_id", rule.RuleID, "name", rule.Name, "type", rule.Type).Infow("risk_rule_created")
	return rule, nil
}

// UpdateRule 更新风控规则
func (s *RiskService) UpdateRule(id uint, input RiskRuleInput) (*models.RiskRule, error) {
	if id == 0 {
		return nil, ErrRiskRuleInvalid
	}
	if err := validateRuleInput(input); err != nil {
		return nil, err
	}
	rule, err := s.ruleRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRiskRuleNotFound
	}

	name := strings.TrimSpace(input.Name)
	taken, err := s.ruleRepo.ExistsByName(name, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrRiskRuleNameTaken
	}

	rule.Name = name
	rule.Type = input.Type
	rule.Method = strings.ToLower(strings.TrimSpace(input.Method))
	rule.Threshold = input.Threshold
	rule.WindowSeconds = input.WindowSeconds
	if input.Weight > 0 {
		rule.Weight = input.Weight
	}
	rule.Level = input.Level
	rule.Action = input.Action
	if input.Priority != nil {
		rule.Priority = *input.Priority
	}
	if input.Enabled != nil {
		rule.Enabled = *input.Enabled
	}
	rule.Config = strings.TrimSpace(input.Config)
	rule.Description = strings.TrimSpace(input.Description)
	rule.UpdatedAt = time.Now()
	if err := s.ruleRepo.Update(rule); err != nil {
		return nil, err
	}
	riskLogger("rule_id", rule.RuleID).Infow("risk_rule_updated")
	return rule, nil
}

// ToggleRule 启用/禁用风控规则
func (s *RiskService) ToggleRule(id uint, enabled bool) (*models.RiskRule, error) {
	rule, err := s.ruleRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRiskRuleNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now()
	if err := s.ruleRepo.Update(rule); err != nil {
		return nil, err
	}
	riskLogger("rule_id", rule.RuleID, "enabled", enabled).Infow("risk_rule_toggled")
	return rule, nil
}

// DeleteRule 删除风控规则
func (s *RiskService) DeleteRule(id uint) error {
	rule, err := s.ruleRepo.GetByID(id)
	if err != nil {
		return err
	}
	if rule == nil {
		return ErrRiskRuleNotFound
	}
	if err := s.ruleRepo.Delete(id); err != nil {
		return err
	}
	riskLogger("rule_id", rule.RuleID).Infow("risk_rule_deleted")
	return nil
}

// GetRule 获取风控规则
func (s *RiskService) GetRule(id uint) (*models.RiskRule, error) {
	rule, err := s.ruleRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRiskRuleNotFound
	}
	return rule, nil
}

// ListRules 管理端风控规则列表
func (s *RiskService) ListRules(filter repository.RiskRuleListFilter) ([]models.RiskRule, int64, error) {
	return s.ruleRepo.ListAdmin(filter)
}
