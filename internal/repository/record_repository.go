package repository

import (
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"

	"gorm.io/gorm"
)

// RecordRepository 支付/退款流水数据访问接口（只追加）
type RecordRepository interface {
	AppendPayment(record *models.PaymentRecord) error
	AppendRefund(record *models.RefundRecord) error
	ListByPaymentOrderID(paymentOrderID uint) ([]models.PaymentRecord, error)
	ListByRefundOrderID(refundOrderID uint) ([]models.RefundRecord, error)
	DeleteByPaymentOrderIDs(ids []uint) error
	DeleteByRefundOrderIDs(ids []uint) error
	WithTx(tx *gorm.DB) *GormRecordRepository
}

// GormRecordRepository GORM 实现
type GormRecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository 创建流水仓库
func NewRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRecordRepository) WithTx(tx *gorm.DB) *GormRecordRepository {
	if tx == nil {
		return r
	}
	return &GormRecordRepository{db: tx}
}

// AppendPayment 追加支付流水
func (r *GormRecordRepository) AppendPayment(record *models.PaymentRecord) error {
	return r.db.Create(record).Error
}

// AppendRefund 追加退款流水
func (r *GormRecordRepository) AppendRefund(record *models.RefundRecord) error {
	return r.db.Create(record).Error
}

// ListByPaymentOrderID 获取支付订单流水
func (r *GormRecordRepository) ListByPaymentOrderID(paymentOrderID uint) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := r.db.Where("payment_order_id = ?", paymentOrderID).Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListByRefundOrderID 获取退款订单流水
func (r *GormRecordRepository) ListByRefundOrderID(refundOrderID uint) ([]models.RefundRecord, error) {
	var records []models.RefundRecord
	if err := r.db.Where("refund_order_id = ?", refundOrderID).Order("id asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteByPaymentOrderIDs 删除支付订单名下流水（保留期清理）
func (r *GormRecordRepository) DeleteByPaymentOrderIDs(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("payment_order_id IN ?", ids).Delete(&models.PaymentRecord{}).Error
}

// DeleteByRefundOrderIDs 删除退款订单名下流水（保留期清理）
func (r *GormRecordRepository) DeleteByRefundOrderIDs(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Where("refund_order_id IN ?", ids).Delete(&models.RefundRecord{}).Error
}
