package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentOrderRepository 支付订单数据访问接口
type PaymentOrderRepository interface {
	Create(order *models.PaymentOrder) error
	Update(order *models.PaymentOrder) error
	GetByID(id uint) (*models.PaymentOrder, error)
	GetByOrderNo(orderNo string) (*models.PaymentOrder, error)
	GetByThirdPartyRef(ref string) (*models.PaymentOrder, error)
	GetLiveByBusinessOrderID(businessOrderID string) (*models.PaymentOrder, error)
	ListExpired(now time.Time, limit int) ([]models.PaymentOrder, error)
	ListProcessingForSync(cutoff time.Time, limit int) ([]models.PaymentOrder, error)
	ListRetryable(cutoff time.Time, maxRetry int, limit int) ([]models.PaymentOrder, error)
	ListTerminalBefore(cutoff time.Time, limit int) ([]models.PaymentOrder, error)
	CountByUserSince(userID string, since time.Time) (int64, error)
	SumAmountByUserSince(userID string, since time.Time) (decimal.Decimal, error)
	CountByIPSince(clientIP string, since time.Time) (int64, error)
	CountByDeviceSince(deviceID string, since time.Time) (int64, error)
	ListAdmin(filter PaymentOrderListFilter) ([]models.PaymentOrder, int64, error)
	WithTx(tx *gorm.DB) *GormPaymentOrderRepository
}

// GormPaymentOrderRepository GORM 实现
type GormPaymentOrderRepository struct {
	db *gorm.DB
}

// NewPaymentOrderRepository 创建支付订单仓库
func NewPaymentOrderRepository(db *gorm.DB) *GormPaymentOrderRepository {
	return &GormPaymentOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentOrderRepository) WithTx(tx *gorm.DB) *GormPaymentOrderRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentOrderRepository{db: tx}
}

// Create 创建支付订单
func (r *GormPaymentOrderRepository) Create(order *models.PaymentOrder) error {
	return r.db.Create(order).Error
}

// Update 更新支付订单
func (r *GormPaymentOrderRepository) Update(order *models.PaymentOrder) error {
	return r.db.Save(order).Error
}

// GetByID 根据 ID 获取支付订单
func (r *GormPaymentOrderRepository) GetByID(id uint) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := r.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByOrderNo 根据支付单号获取支付订单
func (r *GormPaymentOrderRepository) GetByOrderNo(orderNo string) (*models.PaymentOrder, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	var order models.PaymentOrder
	result := r.db.Where("order_no = ?", orderNo).Limit(1).Find(&order)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &order, nil
}

// GetByThirdPartyRef 根据第三方流水号获取支付订单
func (r *GormPaymentOrderRepository) GetByThirdPartyRef(ref string) (*models.PaymentOrder, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	var order models.PaymentOrder
	result := r.db.Where("third_party_ref = ?", ref).Order("id desc").Limit(1).Find(&order)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &order, nil
}

// GetLiveByBusinessOrderID 获取业务订单下仍存活（非取消/非过期/非拒绝）的支付订单
func (r *GormPaymentOrderRepository) GetLiveByBusinessOrderID(businessOrderID string) (*models.PaymentOrder, error) {
	businessOrderID = strings.TrimSpace(businessOrderID)
	if businessOrderID == "" {
		return nil, nil
	}
	var order models.PaymentOrder
	result := r.db.Where("business_order_id = ? AND status NOT IN ?",
		businessOrderID,
		[]string{
			constants.PaymentStatusCancelled,
			constants.PaymentStatusExpired,
			constants.PaymentStatusDenied,
		},
	).Order("id desc").Limit(1).Find(&order)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &order, nil
}

// ListExpired 获取已超过有效期且未到终态的支付订单
func (r *GormPaymentOrderRepository) ListExpired(now time.Time, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	query := r.db.Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
		[]string{constants.PaymentStatusPendingPayment, constants.PaymentStatusProcessing},
		now,
	).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListProcessingForSync 获取需要主动对账的处理中订单（已有第三方流水号）
func (r *GormPaymentOrderRepository) ListProcessingForSync(cutoff time.Time, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	query := r.db.Where("status = ? AND third_party_ref <> '' AND created_at >= ?",
		constants.PaymentStatusProcessing, cutoff,
	).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListRetryable 获取失败后回退待支付、未达重试上限的订单
func (r *GormPaymentOrderRepository) ListRetryable(cutoff time.Time, maxRetry int, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	query := r.db.Where("status = ? AND retry_count > 0 AND retry_count < ? AND created_at >= ?",
		constants.PaymentStatusPendingPayment, maxRetry, cutoff,
	).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListTerminalBefore 获取超过保留期的终态订单（用于保留期清理）
func (r *GormPaymentOrderRepository) ListTerminalBefore(cutoff time.Time, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	query := r.db.Where("status IN ? AND created_at < ?",
		[]string{
			constants.PaymentStatusSuccess,
			constants.PaymentStatusFailed,
			constants.PaymentStatusDenied,
			constants.PaymentStatusExpired,
			constants.PaymentStatusCancelled,
		},
		cutoff,
	).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// CountByUserSince 统计用户窗口内的支付订单数（风控频率计数）
func (r *GormPaymentOrderRepository) CountByUserSince(userID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentOrder{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// SumAmountByUserSince 统计用户窗口内的支付金额合计（风控限速计数）
func (r *GormPaymentOrderRepository) SumAmountByUserSince(userID string, since time.Time) (decimal.Decimal, error) {
	var raw *string
	err := r.db.Model(&models.PaymentOrder{}).
		Select("SUM(amount)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&raw).Error
	if err != nil {
		return decimal.Zero, err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return decimal.Zero, nil
	}
	sum, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// CountByIPSince 统计来源 IP 窗口内的支付订单数
func (r *GormPaymentOrderRepository) CountByIPSince(clientIP string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentOrder{}).
		Where("client_ip = ? AND client_ip <> '' AND created_at >= ?", clientIP, since).
		Count(&count).Error
	return count, err
}

// CountByDeviceSince 统计设备指纹窗口内的支付订单数
func (r *GormPaymentOrderRepository) CountByDeviceSince(deviceID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.PaymentOrder{}).
		Where("device_id = ? AND device_id <> '' AND created_at >= ?", deviceID, since).
		Count(&count).Error
	return count, err
}

// ListAdmin 管理端支付订单列表
func (r *GormPaymentOrderRepository) ListAdmin(filter PaymentOrderListFilter) ([]models.PaymentOrder, int64, error) {
	query := r.db.Model(&models.PaymentOrder{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.BusinessOrderID != "" {
		query = query.Where("business_order_id = ?", filter.BusinessOrderID)
	}
	if filter.OrderNo != "" {
		query = query.Where("order_no = ?", filter.OrderNo)
	}
	if filter.Method != "" {
		query = query.Where("method = ?", filter.Method)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
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

	var orders []models.PaymentOrder
	if err := applyPagination(query.Order("id desc"), filter.Page, filter.PageSize).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
