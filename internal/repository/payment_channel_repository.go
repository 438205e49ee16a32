package repository

import (
	"errors"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"

	"gorm.io/gorm"
)

// PaymentChannelRepository 支付渠道数据访问接口
type PaymentChannelRepository interface {
	Create(channel *models.PaymentChannel) error
	Update(channel *models.PaymentChannel) error
	Delete(id uint) error
	GetByID(id uint) (*models.PaymentChannel, error)
	GetByCode(code string) (*models.PaymentChannel, error)
	List(filter PaymentChannelListFilter) ([]models.PaymentChannel, int64, error)
}

// GormPaymentChannelRepository GORM 实现
type GormPaymentChannelRepository struct {
	db *gorm.DB
}

// NewPaymentChannelRepository 创建支付渠道仓库
func NewPaymentChannelRepository(db *gorm.DB) *GormPaymentChannelRepository {
	return &GormPaymentChannelRepository{db: db}
}

// Create 创建支付渠道
func (r *GormPaymentChannelRepository) Create(channel *models.PaymentChannel) error {
	return r.db.Create(channel).Error
}

// Update 更新支付渠道
func (r *GormPaymentChannelRepository) Update(channel *models.PaymentChannel) error {
	return r.db.Save(channel).Error
}

// Delete 删除支付渠道
func (r *GormPaymentChannelRepository) Delete(id uint) error {
	return r.db.Delete(&models.PaymentChannel{}, id).Error
}

// GetByID 根据 ID 获取支付渠道
func (r *GormPaymentChannelRepository) GetByID(id uint) (*models.PaymentChannel, error) {
	var channel models.PaymentChannel
	if err := r.db.First(&channel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// GetByCode 根据渠道编码获取支付渠道
func (r *GormPaymentChannelRepository) GetByCode(code string) (*models.PaymentChannel, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var channel models.PaymentChannel
	result := r.db.Where("code = ?", code).Limit(1).Find(&channel)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &channel, nil
}

// List 支付渠道列表
func (r *GormPaymentChannelRepository) List(filter PaymentChannelListFilter) ([]models.PaymentChannel, int64, error) {
	query := r.db.Model(&models.PaymentChannel{})

	if filter.Code != "" {
		query = query.Where("code = ?", filter.Code)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var channels []models.PaymentChannel
	if err := applyPagination(query.Order("sort_order asc, id asc"), filter.Page, filter.PageSize).Find(&channels).Error; err != nil {
		return nil, 0, err
	}
	return channels, total, nil
}
