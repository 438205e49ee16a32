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

// RefundOrderRepository 退款订单数据访问接口
type RefundOrderRepository interface {
	Create(order *models.RefundOrder) error
	Update(order *models.RefundOrder) error
	GetByID(id uint) (*models.RefundOrder, error)
	GetByRefundNo(refundNo string) (*models.RefundOrder, error)
	GetByThirdPartyRefundRef(ref string) (*models.RefundOrder, error)
	ListByPaymentOrderID(paymentOrderID uint) ([]models.RefundOrder, error)
	SumLiveAmountByPaymentOrder(paymentOrderID uint) (decimal.Decimal, error)
	ListPendingAudit(limit int) ([]models.RefundOrder, error)
	ListApprovedForSubmit(limit int) ([]models.RefundOrder, error)
	ListFailedForRetry(cutoff time.Time, maxRetry int, limit int) ([]models.RefundOrder, error)
	ListProcessingForSync(cutoff time.Time, limit int) ([]models.RefundOrder, error)
	ListTerminalBefore(cutoff time.Time, limit int) ([]models.RefundOrder, error)
	ListAdmin(filter RefundOrderListFilter) ([]models.RefundOrder, int64, error)
	StatsBetween(from, to time.Time) (*RefundStatusCounts, error)
	WithTx(tx *gorm.DB) *GormRefundOrderRepository
}

// RefundStatusCounts 退款状态分布与金额统计
type RefundStatusCounts struct {
	Total          int64
	PendingAudit   int64
	Approved       int64
	Rejected       int64
	Processing     int64
	Success        int64
	Failed         int64
	Cancelled      int64
	RequestedTotal decimal.Decimal
	RefundedTotal  decimal.Decimal
}

// GormRefundOrderRepository GORM 实现
type GormRefundOrderRepository struct {
	db *gorm.DB
}

// NewRefundOrderRepository 创建退款订单仓库
func NewRefundOrderRepository(db *gorm.DB) *GormRefundOrderRepository {
	return &GormRefundOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefundOrderRepository) WithTx(tx *gorm.DB) *GormRefundOrderRepository {
	if tx == nil {
		return r
	}
	return &GormRefundOrderRepository{db: tx}
}

// Create 创建退款订单
func (r *GormRefundOrderRepository) Create(order *models.RefundOrder) error {
	return r.db.Create(order).Error
}

// Update 更新退款订单
func (r *GormRefundOrderRepository) Update(order *models.RefundOrder) error {
	return r.db.Save(order).Error
}

// GetByID 根据 ID 获取退款订单
func (r *GormRefundOrderRepository) GetByID(id uint) (*models.RefundOrder, error) {
	var order models.RefundOrder
	if err := r.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByRefundNo 根据退款单号获取退款订单
func (r *GormRefundOrderRepository) GetByRefundNo(refundNo string) (*models.RefundOrder, error) {
	refundNo = strings.TrimSpace(refundNo)
	if refundNo == "" {
		return nil, nil
	}
	var order models.RefundOrder
	result := r.db.Where("refund_no = ?", refundNo).Limit(1).Find(&order)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &order, nil
}

// GetByThirdPartyRefundRef 根据第三方退款流水号获取退款订单
func (r *GormRefundOrderRepository) GetByThirdPartyRefundRef(ref string) (*models.RefundOrder, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	var order models.RefundOrder
	result := r.db.Where("third_party_refund_ref = ?", ref).Order("id desc").Limit(1).Find(&order)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &order, nil
}

// ListByPaymentOrderID 获取支付订单名下全部退款订单
func (r *GormRefundOrderRepository) ListByPaymentOrderID(paymentOrderID uint) ([]models.RefundOrder, error) {
	var orders []models.RefundOrder
	if err := r.db.Where("payment_order_id = ?", paymentOrderID).Order("id desc").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// SumLiveAmountByPaymentOrder 统计存活退款（非失败/拒绝/取消）占用的金额。
// 成功订单按实际退款金额计，其余在途订单按申请金额计。
func (r *GormRefundOrderRepository) SumLiveAmountByPaymentOrder(paymentOrderID uint) (decimal.Decimal, error) {
	var orders []models.RefundOrder
	err := r.db.Where("payment_order_id = ? AND status NOT IN ?",
		paymentOrderID,
		[]string{
			constants.RefundStatusFailed,
			constants.RefundStatusRejected,
			constants.RefundStatusCancelled,
		},
	).Find(&orders).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, order := range orders {
		if order.Status == constants.RefundStatusSuccess {
			sum = sum.Add(order.ActualAmount.Decimal)
			continue
		}
		sum = sum.Add(order.Amount.Decimal)
	}
	return sum, nil
}

// ListPendingAudit 获取待审核的退款订单
func (r *GormRefundOrderRepository) ListPendingAudit(limit int) ([]models.RefundOrder, error) {
	var orders []models.RefundOrder
	query := r.db.Where("status = ?", constants.RefundStatusPendingAudit).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListApprovedForSubmit 获取等待提交渠道的已审批退款订单
func (r *GormRefundOrderRepository) ListApprovedForSubmit(limit int) ([]models.RefundOrder, error) {
	var orders []models.RefundOrder
	query := r.db.Where("status = ?", constants.RefundStatusApproved).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListFailedForRetry 获取失败且未达重试上限、仍在重试窗口内的退款订单
func (r *GormRefundOrderRepository) ListFailedForRetry(cutoff time.Time, maxRetry int, limit int) ([]models.RefundOrder, error) {
	var orders []models.RefundOrder
	query := r.db.Where("status = ? AND retry_count < ? AND created_at >= ?",
		constants.RefundStatusFailed, maxRetry, cutoff,
	).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListProcessingForSync 获取需要主动对账的处理中退款订单
func (r *GormRefundOrderRepository) ListProcessingForSync(cutoff time.Time, limit int) ([]models.RefundOrder, error) {
	var orders []models.RefundOrder
	query := r.db.Where("status = ? AND third_party_refund_ref <> '' AND created_at >= ?",
		constants.RefundStatusProcessing, cutoff,
	).Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListTerminalBefore 获取超过保留期的终态退款订单
func (r *GormRefundOrderRepository) ListTerminalBefore(cutoff time.Time, limit int) ([]models.RefundOrder, error) {
	var orders []models.RefundOrder
	query := r.db.Where("status IN ? AND created_at < ?",
		[]string{
			constants.RefundStatusSuccess,
			constants.RefundStatusFailed,
			constants.RefundStatusRejected,
			constants.RefundStatusCancelled,
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

// ListAdmin 管理端退款订单列表
func (r *GormRefundOrderRepository) ListAdmin(filter RefundOrderListFilter) ([]models.RefundOrder, int64, error) {
	query := r.db.Model(&models.RefundOrder{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.PaymentOrderID > 0 {
		query = query.Where("payment_order_id = ?", filter.PaymentOrderID)
	}
	if filter.RefundNo != "" {
		query = query.Where("refund_no = ?", filter.RefundNo)
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

	var orders []models.RefundOrder
	if err := applyPagination(query.Order("id desc"), filter.Page, filter.PageSize).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// StatsBetween 统计时间区间内的退款状态分布与金额合计
func (r *GormRefundOrderRepository) StatsBetween(from, to time.Time) (*RefundStatusCounts, error) {
	counts := &RefundStatusCounts{
		RequestedTotal: decimal.Zero,
		RefundedTotal:  decimal.Zero,
	}
	base := func() *gorm.DB {
		return r.db.Model(&models.RefundOrder{}).Where("created_at >= ? AND created_at <= ?", from, to)
	}

	if err := base().Count(&counts.Total).Error; err != nil {
		return nil, err
	}
	byStatus := map[string]*int64{
		constants.RefundStatusPendingAudit: &counts.PendingAudit,
		constants.RefundStatusApproved:     &counts.Approved,
		constants.RefundStatusRejected:     &counts.Rejected,
		constants.RefundStatusProcessing:   &counts.Processing,
		constants.RefundStatusSuccess:      &counts.Success,
		constants.RefundStatusFailed:       &counts.Failed,
		constants.RefundStatusCancelled:    &counts.Cancelled,
	}
	for status, target := range byStatus {
		if err := base().Where("status = ?", status).Count(target).Error; err != nil {
			return nil, err
		}
	}

	sumColumn := func(query *gorm.DB, column string) (decimal.Decimal, error) {
		var raw *string
		if err := query.Select("SUM(" + column + ")").Scan(&raw).Error; err != nil {
			return decimal.Zero, err
		}
		if raw == nil || strings.TrimSpace(*raw) == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(strings.TrimSpace(*raw))
	}

	requested, err := sumColumn(base(), "amount")
	if err != nil {
		return nil, err
	}
	counts.RequestedTotal = requested

	refunded, err := sumColumn(base().Where("status = ?", constants.RefundStatusSuccess), "actual_amount")
	if err != nil {
		return nil, err
	}
	counts.RefundedTotal = refunded
	return counts, nil
}
