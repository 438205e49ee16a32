package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RiskService 风控服务
type RiskService struct {
	ruleRepo    repository.RiskRuleRepository
	recordRepo  repository.RiskRecordRepository
	orderRepo   repository.PaymentOrderRepository
	recordsRepo repository.RecordRepository
	cfg         config.RiskConfig
}

// NewRiskService 创建风控服务
func NewRiskService(ruleRepo repository.RiskRuleRepository, recordRepo repository.RiskRecordRepository, orderRepo repository.PaymentOrderRepository, recordsRepo repository.RecordRepository, cfg config.RiskConfig) *RiskService {
	return &RiskService{
		ruleRepo:    ruleRepo,
		recordRepo:  recordRepo,
		orderRepo:   orderRepo,
		recordsRepo: recordsRepo,
		cfg:         cfg,
	}
}

// RiskEvaluateInput 风控评估输入
type RiskEvaluateInput struct {
	PaymentOrderID  uint
	BusinessOrderID string
	UserID          string
	Method          string
	Amount          models.Money
	ClientIP        string
	DeviceID        string
}

// ruleHit 单条规则命中明细
type ruleHit struct {
	RuleID string `json:"rule_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Level  string `json:"level"`
	Action string `json:"action"`
	Weight int    `json:"weight"`
	Reason string `json:"reason"`
}

func riskLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// riskLevelRank 风险等级排序
var riskLevelRank = map[string]int{
	constants.RiskLevelLow:      1,
	constants.RiskLevelMedium:   2,
	constants.RiskLevelHigh:     3,
	constants.RiskLevelCritical: 4,
}

// riskActionRank 处理动作优先级（deny 最高）
var riskActionRank = map[string]int{
	constants.RiskActionAllow:        1,
	constants.RiskActionWarn:         2,
	constants.RiskActionManualReview: 3,
	constants.RiskActionDeny:         4,
}

// Evaluate 对一笔支付执行风控评估并持久化风控记录。
// 单条规则查询失败记日志后跳过；规则集加载失败整体失败关闭，转人工审核。
// 返回的动作决定支付订单落点。
func (s *RiskService) Evaluate(input RiskEvaluateInput) (*models.RiskRecord, string) {
	started := time.Now()
	log := riskLogger(
		"payment_order_id", input.PaymentOrderID,
		"user_id", input.UserID,
		"method", input.Method,
	)

	record := &models.RiskRecord{
		RecordID:        generateRiskRecordID(),
		PaymentOrderID:  input.PaymentOrderID,
		BusinessOrderID: input.BusinessOrderID,
		UserID:          input.UserID,
		Method:          input.Method,
		Amount:          input.Amount,
		ClientIP:        input.ClientIP,
		DeviceID:        input.DeviceID,
		ReviewStatus:    constants.RiskReviewNone,
		CreatedAt:       started,
		UpdatedAt:       started,
	}

	rules, err := s.ruleRepo.ListEnabledByMethod(input.Method)
	if err != nil {
		log.Errorw("risk_rules_load_failed", "error", err)
		return s.finishEvaluate(record, nil, constants.RiskActionManualReview, "规则集加载失败，失败关闭", started, log)
	}

	hits := make([]ruleHit, 0, 4)
	action := constants.RiskActionAllow
	for i := range rules {
		rule := rules[i]
		hit, reason, err := s.evaluateRule(&rule, input)
		if err != nil {
			log.Warnw("risk_rule_evaluate_failed",
				"rule_id", rule.RuleID,
				"rule_type", rule.Type,
				"error", err,
			)
			continue
		}
		if !hit {
			continue
		}
		hits = append(hits, ruleHit{
			RuleID: rule.RuleID,
			Name:   rule.Name,
			Type:   rule.Type,
			Level:  rule.Level,
			Action: rule.Action,
			Weight: rule.Weight,
			Reason: reason,
		})
		record.Score += rule.Weight
		if riskLevelRank[rule.Level] > riskLevelRank[record.Level] {
			record.Level = rule.Level
		}
		if riskActionRank[rule.Action] > riskActionRank[action] {
			action = rule.Action
		}
	}

	reason := ""
	if len(hits) > 0 {
		parts := make([]string, 0, len(hits))
		for _, h := range hits {
			parts = append(parts, h.Reason)
		}
		reason = strings.Join(parts, "; ")
	}
	return s.finishEvaluate(record, hits, action, reason, started, log)
}

func (s *RiskService) finishEvaluate(record *models.RiskRecord, hits []ruleHit, action, reason string, started time.Time, log *zap.SugaredLogger) (*models.RiskRecord, string) {
	record.Action = action
	record.Reason = reason
	record.ElapsedMS = time.Since(started).Milliseconds()

	ruleIDs := make([]string, 0, len(hits))
	detail := make(models.JSON)
	for _, h := range hits {
		ruleIDs = append(ruleIDs, h.RuleID)
	}
	record.TriggeredRules = strings.Join(ruleIDs, ",")
	if len(hits) > 0 {
		raw, err := json.Marshal(hits)
		if err == nil {
			var items []interface{}
			if json.Unmarshal(raw, &items) == nil {
				detail["hits"] = items
			}
		}
		record.Detail = detail
	}

	switch action {
	case constants.RiskActionDeny:
		record.Result = constants.RiskResultBlocked
	case constants.RiskActionManualReview:
		record.Result = constants.RiskResultManualReview
		record.ReviewStatus = constants.RiskReviewPending
	case constants.RiskActionWarn:
		record.Result = constants.RiskResultWarning
	default:
		record.Result = constants.RiskResultPassed
	}

	if err := s.recordRepo.Create(record); err != nil {
		log.Errorw("risk_record_persist_failed", "error", err)
	}
	log.Infow("risk_evaluate_done",
		"record_id", record.RecordID,
		"result", record.Result,
		"action", action,
		"score", record.Score,
		"triggered_rules", record.TriggeredRules,
		"elapsed_ms", record.ElapsedMS,
	)
	return record, action
}

func (s *RiskService) evaluateRule(rule *models.RiskRule, input RiskEvaluateInput) (bool, string, error) {
	window := time.Duration(rule.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Duration(s.defaultWindowSeconds()) * time.Second
	}
	since := time.Now().Add(-window)

	switch rule.Type {
	case constants.RiskRuleTypeAmountLimit:
		if input.Amount.Decimal.GreaterThan(rule.Threshold.Decimal) {
			return true, fmt.Sprintf("单笔金额 %s 超过限额 %s", input.Amount.String(), rule.Threshold.String()), nil
		}
		return false, "", nil

	case constants.RiskRuleTypeFrequencyLimit:
		count, err := s.orderRepo.CountByUserSince(input.UserID, since)
		if err != nil {
			return false, "", err
		}
		if decimal.NewFromInt(count).GreaterThanOrEqual(rule.Threshold.Decimal) {
			return true, fmt.Sprintf("窗口内下单 %d 次达到限制 %s", count, rule.Threshold.Decimal.StringFixed(0)), nil
		}
		return false, "", nil

	case constants.RiskRuleTypeVelocity:
		sum, err := s.orderRepo.SumAmountByUserSince(input.UserID, since)
		if err != nil {
			return false, "", err
		}
		total := sum.Add(input.Amount.Decimal)
		if total.GreaterThan(rule.Threshold.Decimal) {
			return true, fmt.Sprintf("窗口内累计金额 %s 超过限额 %s", total.StringFixed(2), rule.Threshold.String()), nil
		}
		return false, "", nil

	case constants.RiskRuleTypeIPBlacklist:
		ips, err := parseRuleStringList(rule.Config, "ips")
		if err != nil {
			return false, "", err
		}
		for _, ip := range ips {
			if strings.TrimSpace(ip) == input.ClientIP && input.ClientIP != "" {
				return true, "客户端IP命中黑名单: " + input.ClientIP, nil
			}
		}
		return false, "", nil

	case constants.RiskRuleTypeDeviceLimit:
		if strings.TrimSpace(input.DeviceID) == "" {
			return false, "", nil
		}
		count, err := s.orderRepo.CountByDeviceSince(input.DeviceID, since)
		if err != nil {
			return false, "", err
		}
		if decimal.NewFromInt(count).GreaterThanOrEqual(rule.Threshold.Decimal) {
			return true, fmt.Sprintf("窗口内设备下单 %d 次达到限制 %s", count, rule.Threshold.Decimal.StringFixed(0)), nil
		}
		return false, "", nil

	case constants.RiskRuleTypeTimeLimit:
		start, end, err := parseRuleTimeWindow(rule.Config)
		if err != nil {
			return false, "", err
		}
		if inTimeWindow(time.Now(), start, end) {
			return true, fmt.Sprintf("交易时间处于限制时段 %s-%s", start, end), nil
		}
		return false, "", nil
	}
	return false, "", fmt.Errorf("未知规则类型: %s", rule.Type)
}

// RiskReviewInput 人工审核输入
type RiskReviewInput struct {
	RecordID string
	Reviewer string
	Approve  bool
	Remark   string
}

// Review 人工审核风控记录，并驱动关联支付订单。
// 通过进入 pending_payment，拒绝落 denied。重复审核返回 ErrAlreadyReviewed。
func (s *RiskService) Review(input RiskReviewInput) (*models.RiskRecord, error) {
	recordID := strings.TrimSpace(input.RecordID)
	reviewer := strings.TrimSpace(input.Reviewer)
	if recordID == "" || reviewer == "" {
		return nil, ErrRiskRuleInvalid
	}

	var record *models.RiskRecord
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		recordRepo := s.recordRepo.WithTx(tx)
		locked, err := lockRiskRecord(tx, recordID)
		if err != nil {
			return err
		}
		if locked.ReviewDone() {
			return ErrAlreadyReviewed
		}
		if locked.ReviewStatus != constants.RiskReviewPending {
			return ErrRiskRuleInvalid
		}

		now := time.Now()
		locked.Reviewer = reviewer
		locked.ReviewRemark = strings.TrimSpace(input.Remark)
		locked.ReviewedAt = &now
		locked.UpdatedAt = now
		if input.Approve {
			locked.ReviewStatus = constants.RiskReviewApproved
		} else {
			locked.ReviewStatus = constants.RiskReviewRejected
		}
		if err := recordRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		record = locked
		return s.applyReviewToOrder(tx, locked, input.Approve, reviewer)
	})
	if err != nil {
		return nil, err
	}

	riskLogger(
		"record_id", recordID,
		"reviewer", reviewer,
		"approved", input.Approve,
	).Infow("risk_review_done")
	return record, nil
}

// applyReviewToOrder 审核结论驱动支付订单状态
func (s *RiskService) applyReviewToOrder(tx *gorm.DB, record *models.RiskRecord, approve bool, reviewer string) error {
	if record.PaymentOrderID == 0 {
		return nil
	}
	locked, err := lockPaymentOrder(tx, record.PaymentOrderID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil
		}
		return err
	}
	if locked.Status != constants.PaymentStatusPendingRisk {
		return nil
	}

	target := constants.PaymentStatusPendingPayment
	action := constants.RecordActionAudited
	remark := "人工审核通过 (" + reviewer + ")"
	if !approve {
		target = constants.PaymentStatusDenied
		remark = "人工审核拒绝 (" + reviewer + ")"
	}
	if err := transitionPayment(locked, target); err != nil {
		return err
	}
	locked.UpdatedAt = time.Now()
	if err := s.orderRepo.WithTx(tx).Update(locked); err != nil {
		return ErrPaymentUpdateFailed
	}
	recordRepo := s.recordsRepo.WithTx(tx)
	return recordRepo.AppendPayment(&models.PaymentRecord{
		PaymentOrderID: locked.ID,
		Action:         action,
		Status:         locked.Status,
		Amount:         locked.Amount,
		Remark:         remark,
		CreatedAt:      time.Now(),
	})
}

// MarkFalsePositive 标记误报，仅做标注，不回放订单状态。
func (s *RiskService) MarkFalsePositive(recordID, operator, remark string) (*models.RiskRecord, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, ErrRiskRuleInvalid
	}
	record, err := s.recordRepo.GetByRecordID(recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRiskRecordNotFound
	}
	record.FalsePositive = true
	if strings.TrimSpace(remark) != "" {
		record.ReviewRemark = strings.TrimSpace(remark)
	}
	record.UpdatedAt = time.Now()
	if err := s.recordRepo.Update(record); err != nil {
		return nil, err
	}
	riskLogger("record_id", recordID, "operator", operator).Infow("risk_marked_false_positive")
	return record, nil
}

// ReviewTimeoutSweep 超时未审核的记录自动处置：critical 自动拒绝，其余自动通过。
func (s *RiskService) ReviewTimeoutSweep(now time.Time, limit int) int {
	cutoff := now.Add(-time.Duration(s.reviewTimeoutHours()) * time.Hour)
	records, err := s.recordRepo.ListPendingReviewBefore(cutoff, limit)
	if err != nil {
		riskLogger().Errorw("risk_review_timeout_list_failed", "error", err)
		return 0
	}
	handled := 0
	for i := range records {
		record := records[i]
		approve := record.Level != constants.RiskLevelCritical
		_, err := s.Review(RiskReviewInput{
			RecordID: record.RecordID,
			Reviewer: constants.SystemReviewer,
			Approve:  approve,
			Remark:   "审核超时自动处置",
		})
		if err != nil {
			riskLogger("record_id", record.RecordID).Warnw("risk_review_timeout_apply_failed", "error", err)
			continue
		}
		handled++
	}
	if handled > 0 {
		riskLogger().Infow("risk_review_timeout_sweep_done", "handled", handled)
	}
	return handled
}

// GetRecord 获取风控记录
func (s *RiskService) GetRecord(recordID string) (*models.RiskRecord, error) {
	record, err := s.recordRepo.GetByRecordID(strings.TrimSpace(recordID))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRiskRecordNotFound
	}
	return record, nil
}

// ListRecords 管理端风控记录列表
func (s *RiskService) ListRecords(filter repository.RiskRecordListFilter) ([]models.RiskRecord, int64, error) {
	return s.recordRepo.ListAdmin(filter)
}

// ListPendingReview 待人工审核记录列表
func (s *RiskService) ListPendingReview(limit int) ([]models.RiskRecord, error) {
	return s.recordRepo.ListPendingReview(limit)
}

// RiskStatistics 风控统计
type RiskStatistics struct {
	Total             int64   `json:"total"`
	Passed            int64   `json:"passed"`
	Warning           int64   `json:"warning"`
	ManualReview      int64   `json:"manual_review"`
	Blocked           int64   `json:"blocked"`
	FalsePositives    int64   `json:"false_positives"`
	BlockRate         float64 `json:"block_rate"`
	ReviewRate        float64 `json:"review_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
	AvgScore          float64 `json:"avg_score"`
	MaxScore          int     `json:"max_score"`
}

// Statistics 区间风控统计
func (s *RiskService) Statistics(from, to time.Time) (*RiskStatistics, error) {
	counts, err := s.recordRepo.CountsBetween(from, to)
	if err != nil {
		return nil, err
	}
	avg, max, err := s.recordRepo.ScoreStatsBetween(from, to)
	if err != nil {
		return nil, err
	}
	stats := &RiskStatistics{
		Total:          counts.Total,
		Passed:         counts.Passed,
		Warning:        counts.Warning,
		ManualReview:   counts.ManualReview,
		Blocked:        counts.Blocked,
		FalsePositives: counts.FalsePositives,
		AvgScore:       avg,
		MaxScore:       max,
	}
	if counts.Total > 0 {
		stats.BlockRate = float64(counts.Blocked) / float64(counts.Total)
		stats.ReviewRate = float64(counts.ManualReview) / float64(counts.Total)
		stats.FalsePositiveRate = float64(counts.FalsePositives) / float64(counts.Total)
	}
	return stats, nil
}

func (s *RiskService) defaultWindowSeconds() int {
	if s.cfg.DefaultWindowSeconds > 0 {
		return s.cfg.DefaultWindowSeconds
	}
	return 3600
}

func (s *RiskService) reviewTimeoutHours() int {
	if s.cfg.ReviewTimeoutHours > 0 {
		return s.cfg.ReviewTimeoutHours
	}
	return 24
}

func lockRiskRecord(tx *gorm.DB, recordID string) (*models.RiskRecord, error) {
	var record models.RiskRecord
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("record_id = ?", recordID).Limit(1).Find(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRiskRecordNotFound
	}
	return &record, nil
}

func parseRuleStringList(raw, key string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	items, ok := cfg[key].([]interface{})
	if !ok {
		return nil, nil
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			values = append(values, s)
		}
	}
	return values, nil
}

func parseRuleTimeWindow(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("时段规则缺少配置")
	}
	var cfg struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return "", "", err
	}
	if cfg.Start == "" || cfg.End == "" {
		return "", "", errors.New("时段规则缺少起止时间")
	}
	return cfg.Start, cfg.End, nil
}

// inTimeWindow 判断当前时刻是否处于 HH:MM 表示的时段内，支持跨午夜。
func inTimeWindow(now time.Time, start, end string) bool {
	parse := func(v string) (int, bool) {
		t, err := time.Parse("15:04", strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return t.Hour()*60 + t.Minute(), true
	}
	startMin, ok := parse(start)
	if !ok {
		return false
	}
	endMin, ok := parse(end)
	if !ok {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute()
	if startMin <= endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}
