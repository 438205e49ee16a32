package main

import (
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	seedChannels(stdLog)
	seedRiskRules(stdLog)
	seedOperators(stdLog)

	stdLog.Printf("Seed finished")
}

type stdLogger interface {
	Printf(format string, args ...interface{})
}

// seedChannels 初始化三个支付渠道（参数为占位配置，上线前需替换为真实密钥）
func seedChannels(stdLog stdLogger) {
	channels := []models.PaymentChannel{
		{
			Code:    constants.ChannelAlipay,
			Name:    "支付宝",
			FeeRate: models.NewMoneyFromDecimal(decimal.NewFromFloat(0.6)),
			ConfigJSON: models.JSON(map[string]interface{}{
				"app_id":      "2021000000000000",
				"gateway_url": "https://openapi.alipay.com/gateway.do",
				"private_key": "REPLACE_ME",
				"public_key":  "REPLACE_ME",
			}),
			IsActive:  true,
			SortOrder: 1,
		},
		{
			Code:    constants.ChannelWechat,
			Name:    "微信支付",
			FeeRate: models.NewMoneyFromDecimal(decimal.NewFromFloat(0.6)),
			ConfigJSON: models.JSON(map[string]interface{}{
				"mch_id":       "1900000000",
				"app_id":       "wx0000000000000000",
				"api_v3_key":   "REPLACE_ME",
				"serial_no":    "REPLACE_ME",
				"private_key":  "REPLACE_ME",
				"callback_tag": "payeng",
			}),
			IsActive:  true,
			SortOrder: 2,
		},
		{
			Code:    constants.ChannelBank,
			Name:    "网银直连",
			FeeRate: models.NewMoneyFromDecimal(decimal.NewFromFloat(0.3)),
			ConfigJSON: models.JSON(map[string]interface{}{
				"merchant_no": "000000000000000",
				"gateway_url": "https://gateway.example-bank.com/pay",
				"sign_key":    "REPLACE_ME",
			}),
			IsActive:  true,
			SortOrder: 3,
		},
	}

	for _, ch := range channels {
		var existing models.PaymentChannel
		if err := models.DB.Where("code = ?", ch.Code).First(&existing).Error; err != nil {
			if err := models.DB.Create(&ch).Error; err != nil {
				stdLog.Printf("Failed to create channel %s: %v", ch.Code, err)
			} else {
				stdLog.Printf("Created channel: %s", ch.Code)
			}
		} else {
			stdLog.Printf("Channel already exists: %s", ch.Code)
		}
	}
}

// seedRiskRules 初始化一套起步风控规则，覆盖全部内置规则类型
func seedRiskRules(stdLog stdLogger) {
	rules := []models.RiskRule{
		{
			RuleID:      "RR-SEED-001",
			Name:        "单笔大额人工审核",
			Type:        constants.RiskRuleTypeAmountLimit,
			Threshold:   models.NewMoneyFromDecimal(decimal.NewFromInt(50000)),
			Weight:      40,
			Level:       constants.RiskLevelHigh,
			Action:      constants.RiskActionManualReview,
			Priority:    10,
			Enabled:     true,
			Description: "单笔金额超过 5 万转人工审核",
		},
		{
			RuleID:        "RR-SEED-002",
			Name:          "高频下单预警",
			Type:          constants.RiskRuleTypeFrequencyLimit,
			Threshold:     models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
			WindowSeconds: 60,
			Weight:        20,
			Level:         constants.RiskLevelMedium,
			Action:        constants.RiskActionWarn,
			Priority:      20,
			Enabled:       true,
			Description:   "同一用户 1 分钟内下单超过 10 笔仅预警",
		},
		{
			RuleID:        "RR-SEED-003",
			Name:          "累计金额流速拦截",
			Type:          constants.RiskRuleTypeVelocity,
			Threshold:     models.NewMoneyFromDecimal(decimal.NewFromInt(200000)),
			WindowSeconds: 3600,
			Weight:        60,
			Level:         constants.RiskLevelCritical,
			Action:        constants.RiskActionDeny,
			Priority:      5,
			Enabled:       true,
			Description:   "同一用户 1 小时累计超过 20 万直接拒绝",
		},
		{
			RuleID:      "RR-SEED-004",
			Name:        "IP 黑名单拦截",
			Type:        constants.RiskRuleTypeIPBlacklist,
			Weight:      80,
			Level:       constants.RiskLevelCritical,
			Action:      constants.RiskActionDeny,
			Priority:    1,
			Enabled:     true,
			Config:      `{"ips":["198.51.100.1"]}`,
			Description: "命中黑名单 IP 直接拒绝，名单在 config 中维护",
		},
		{
			RuleID:        "RR-SEED-005",
			Name:          "同设备多账号审核",
			Type:          constants.RiskRuleTypeDeviceLimit,
			Threshold:     models.NewMoneyFromDecimal(decimal.NewFromInt(3)),
			WindowSeconds: 86400,
			Weight:        30,
			Level:         constants.RiskLevelHigh,
			Action:        constants.RiskActionManualReview,
			Priority:      15,
			Enabled:       true,
			Description:   "24 小时内同一设备出现 3 个以上账号转人工审核",
		},
		{
			RuleID:      "RR-SEED-006",
			Name:        "凌晨交易预警",
			Type:        constants.RiskRuleTypeTimeLimit,
			Weight:      10,
			Level:       constants.RiskLevelLow,
			Action:      constants.RiskActionWarn,
			Priority:    30,
			Enabled:     false,
			Config:      `{"start":"02:00","end":"05:00"}`,
			Description: "凌晨 2-5 点交易预警，默认关闭",
		},
	}

	for _, rule := range rules {
		var existing models.RiskRule
		if err := models.DB.Where("rule_id = ?", rule.RuleID).First(&existing).Error; err != nil {
			if err := models.DB.Create(&rule).Error; err != nil {
				stdLog.Printf("Failed to create risk rule %s: %v", rule.RuleID, err)
			} else {
				stdLog.Printf("Created risk rule: %s (%s)", rule.RuleID, rule.Name)
			}
		} else {
			stdLog.Printf("Risk rule already exists: %s", rule.RuleID)
		}
	}
}

// seedOperators 初始化默认管理员操作员
func seedOperators(stdLog stdLogger) {
	if err := models.InitDefaultOperator("", ""); err != nil {
		stdLog.Printf("Failed to init default operator: %v", err)
		return
	}
	var count int64
	models.DB.Model(&models.Operator{}).Count(&count)
	stdLog.Printf("Operators ready: %d", count)
}
