package repository

import (
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"

	"gorm.io/gorm"
)

// RiskResultCounts 风控结果分布统计
type RiskResultCounts struct {
	Total          int64
	Passed         int64
	Warning        int64
	ManualReview   int64
	Blocked        int64
	FalsePositives int64
}

// RiskRecordRepository 风控记录数据访问接口
type RiskRecordRepository interface {
	Create(record *models.RiskRecord) error
	Update(record *models.RiskRecord) error
	GetByRecordID(recordID string) (*models.RiskRecord, error)
	GetByPaymentOrderID(paymentOrderID uint) (*models.RiskRecord, error)
	ListPendingReview(limit int) ([]models.RiskRecord, error)
	ListPendingReviewBefore(cutoff time.Time, limit int) ([]models.RiskRecord, error)
	CountByUserSince(userID string, since time.Time) (int64, error)
	CountsBetween(from, to time.Time) (*RiskResultCounts, error)
	ScoreStatsBetween(from, to time.Time) (avg float64, max int, err error)
	ListAdmin(filter RiskRecordListFilter) ([]models.RiskRecord, int64, error)
	WithTx(tx *gorm.DB) *GormRiskRecordRepository
}

// GormRiskRecordRepository GORM 实现
type GormRiskRecordRepository struct {
	db *gorm.DB
}

// NewRiskRecordRepository 创建风控记录仓库
func NewRiskRecordRepository(db *gorm.DB) *GormRiskRecordRepository {
	return &GormRiskRecordRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRiskRecordRepository) WithTx(tx *gorm.DB) *GormRiskRecordRepository {
	if tx == nil {
		return r
	}
	return &GormRiskRecordRepository{db: tx}
}

// Create 创建风控记录
func (r *GormRiskRecordRepository) Create(record *models.RiskRecord) error {
	return r.db.Create(record).Error
}

// Update 更新风控记录
func (r *GormRiskRecordRepository) Update(record *models.RiskRecord) error {
	return r.db.Save(record).Error
}

// GetByRecordID 根据记录编号获取风控记录
func (r *GormRiskRecordRepository) GetByRecordID(recordID string) (*models.RiskRecord, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, nil
	}
	var record models.RiskRecord
	result := r.db.Where("record_id = ?", recordID).Limit(1).Find(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}

// GetByPaymentOrderID 根据支付订单获取风控记录
func (r *GormRiskRecordRepository) GetByPaymentOrderID(paymentOrderID uint) (*models.RiskRecord, error) {
	var record models.RiskRecord
	result := r.db.Where("payment_order_id = ?", paymentOrderID).Order("id desc").Limit(1).Find(&record)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &record, nil
}

// ListPendingReview 获取等待人工审核的风控记录
func (r *GormRiskRecordRepository) ListPendingReview(limit int) ([]models.RiskRecord, error) {
	var records []models.RiskRecord
	query := r.db.Where("review_status = ?", constants.RiskReviewPending).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListPendingReviewBefore 获取超时未审核的风控记录
func (r *GormRiskRecordRepository) ListPendingReviewBefore(cutoff time.Time, limit int) ([]models.RiskRecord, error) {
	var records []models.RiskRecord
	query := r.db.Where("review_status = ? AND created_at < ?", constants.RiskReviewPending, cutoff).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByUserSince 统计用户窗口内的评估次数
func (r *GormRiskRecordRepository) CountByUserSince(userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.RiskRecord{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// CountsBetween 统计区间内的风控结果分布
func (r *GormRiskRecordRepository) CountsBetween(from, to time.Time) (*RiskResultCounts, error) {
	counts := &RiskResultCounts{}
	base := func() *gorm.DB {
		return r.db.Model(&models.RiskRecord{}).Where("created_at >= ? AND created_at <= ?", from, to)
	}

	if err := base().Count(&counts.Total).Error; err != nil {
		return nil, err
	}
	byResult := map[string]*int64{
		constants.RiskResultPassed:       &counts.Passed,
		constants.RiskResultWarning:      &counts.Warning,
		constants.RiskResultManualReview: &counts.ManualReview,
		constants.RiskResultBlocked:      &counts.Blocked,
	}
	for result, target := range byResult {
		if err := base().Where("result = ?", result).Count(target).Error; err != nil {
			return nil, err
		}
	}
	if err := base().Where("false_positive = ?", true).Count(&counts.FalsePositives).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// ScoreStatsBetween 统计区间内的风险评分均值与最大值
func (r *GormRiskRecordRepository) ScoreStatsBetween(from, to time.Time) (float64, int, error) {
	type scoreRow struct {
		Avg *float64
		Max *int
	}
	var row scoreRow
	err := r.db.Model(&models.RiskRecord{}).
		Select("AVG(score) as avg, MAX(score) as max").
		Where("created_at >= ? AND created_at <= ?", from, to).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	avg := 0.0
	if row.Avg != nil {
		avg = *row.Avg
	}
	max := 0
	if row.Max != nil {
		max = *row.Max
	}
	return avg, max, nil
}

// ListAdmin 管理端风控记录列表
func (r *GormRiskRecordRepository) ListAdmin(filter RiskRecordListFilter) ([]models.RiskRecord, int64, error) {
	query := r.db.Model(&models.RiskRecord{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Result != "" {
		query = query.Where("result = ?", filter.Result)
	}
	if filter.ReviewStatus != "" {
		query = query.Where("review_status = ?", filter.ReviewStatus)
	}
	if filter.MinScore > 0 {
		query = query.Where("score >= ?", filter.MinScore)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.RiskRecord
	if err := applyPagination(query.Order("id desc"), filter.Page, filter.PageSize).Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
