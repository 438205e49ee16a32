package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/cache"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/queue"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RefundService 退款订单服务
type RefundService struct {
	refundRepo  repository.RefundOrderRepository
	orderRepo   repository.PaymentOrderRepository
	recordRepo  repository.RecordRepository
	registry    *payment.Registry
	queueClient *queue.Client
	cfg         config.PaymentConfig
	riskCfg     config.RiskConfig
}

// NewRefundService 创建退款订单服务
func NewRefundService(refundRepo repository.RefundOrderRepository, orderRepo repository.PaymentOrderRepository, recordRepo repository.RecordRepository, registry *payment.Registry, queueClient *queue.Client, cfg config.PaymentConfig, riskCfg config.RiskConfig) *RefundService {
	return &RefundService{
		refundRepo:  refundRepo,
		orderRepo:   orderRepo,
		recordRepo:  recordRepo,
		registry:    registry,
		queueClient: queueClient,
		cfg:         cfg,
		riskCfg:     riskCfg,
	}
}

// CreateRefundInput 创建退款订单请求
type CreateRefundInput struct {
	PaymentOrderNo string
	UserID         string
	Amount         models.Money
	Reason         string
}

// AuditRefundInput 退款审核请求
type AuditRefundInput struct {
	RefundNo string
	Reviewer string
	Approve  bool
	Remark   string
}

func refundLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreateRefund 创建退款订单并进入待审核。
// 可退余额 = 原单实际结算金额 − 存活退款（成功按实退、在途按申请）合计。
// 申请金额不超过免审阈值时由系统自动审批通过。
func (s *RefundService) CreateRefund(input CreateRefundInput) (*models.RefundOrder, error) {
	orderNo := strings.TrimSpace(input.PaymentOrderNo)
	userID := strings.TrimSpace(input.UserID)
	reason := strings.TrimSpace(input.Reason)
	if orderNo == "" || userID == "" || reason == "" {
		return nil, ErrRefundInvalid
	}
	amount := input.Amount.Decimal.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrRefundInvalid
	}

	log := refundLogger(
		"payment_order_no", orderNo,
		"user_id", userID,
		"amount", amount.StringFixed(2),
	)

	var refund *models.RefundOrder
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		order, err := lockPaymentOrderByNo(tx, orderNo)
		if err != nil {
			return err
		}
		if !order.Settled() {
			return ErrPaymentNotSettled
		}

		refundRepo := s.refundRepo.WithTx(tx)
		used, err := refundRepo.SumLiveAmountByPaymentOrder(order.ID)
		if err != nil {
			return ErrRefundCreateFailed
		}
		settled := order.ActualAmount.Decimal
		if settled.LessThanOrEqual(decimal.Zero) {
			settled = order.Amount.Decimal
		}
		refundable := settled.Sub(used)
		if amount.GreaterThan(refundable) {
			log.Warnw("refund_create_exceeds_refundable",
				"refundable", refundable.StringFixed(2),
			)
			return ErrExceedsRefundable
		}

		now := time.Now()
		refund = &models.RefundOrder{
			RefundNo:       generateRefundOrderNo(),
			PaymentOrderID: order.ID,
			UserID:         userID,
			Amount:         models.NewMoneyFromDecimal(amount),
			Reason:         reason,
			Status:         constants.RefundStatusCreated,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := refundRepo.Create(refund); err != nil {
			return ErrRefundCreateFailed
		}
		if err := s.appendRefundRecord(tx, refund, constants.RecordActionCreated, "退款订单创建", nil); err != nil {
			return err
		}
		if err := transitionRefund(refund, constants.RefundStatusPendingAudit); err != nil {
			return err
		}
		refund.UpdatedAt = time.Now()
		return refundRepo.Update(refund)
	})
	if err != nil {
		return nil, err
	}

	log.Infow("refund_created", "refund_no", refund.RefundNo)

	if amount.LessThanOrEqual(s.autoApproveAmount()) {
		audited, err := s.AuditRefund(AuditRefundInput{
			RefundNo: refund.RefundNo,
			Reviewer: constants.SystemReviewer,
			Approve:  true,
			Remark:   "小额退款自动审批",
		})
		if err != nil {
			log.Warnw("refund_auto_approve_failed", "refund_no", refund.RefundNo, "error", err)
			return refund, nil
		}
		return audited, nil
	}
	return refund, nil
}

// AuditRefund 审核退款订单。通过后推送渠道提交任务，拒绝为终态。
func (s *RefundService) AuditRefund(input AuditRefundInput) (*models.RefundOrder, error) {
	refundNo := strings.TrimSpace(input.RefundNo)
	reviewer := strings.TrimSpace(input.Reviewer)
	if refundNo == "" || reviewer == "" {
		return nil, ErrRefundInvalid
	}

	var refund *models.RefundOrder
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := lockRefundOrderByNo(tx, refundNo)
		if err != nil {
			return err
		}
		if locked.ReviewedAt != nil {
			return ErrAlreadyReviewed
		}
		if locked.Status != constants.RefundStatusPendingAudit {
			return ErrRefundStatusInvalid
		}

		target := constants.RefundStatusApproved
		remark := "审核通过 (" + reviewer + ")"
		if !input.Approve {
			target = constants.RefundStatusRejected
			remark = "审核拒绝 (" + reviewer + ")"
		}
		if err := transitionRefund(locked, target); err != nil {
			return err
		}
		now := time.Now()
		locked.ReviewerID = reviewer
		locked.ReviewRemark = strings.TrimSpace(input.Remark)
		locked.ReviewedAt = &now
		locked.UpdatedAt = now
		if err := refundRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		refund = locked
		return s.appendRefundRecord(tx, locked, constants.RecordActionAudited, remark, nil)
	})
	if err != nil {
		return nil, err
	}

	refundLogger(
		"refund_no", refundNo,
		"reviewer", reviewer,
		"approved", input.Approve,
	).Infow("refund_audited")

	if refund.Status == constants.RefundStatusApproved {
		s.enqueueSubmit(refund.RefundNo)
	} else {
		s.enqueueRefundNotify(refund)
	}
	return refund, nil
}

// CancelRefund 取消退款订单。渠道处理中不可取消。
func (s *RefundService) CancelRefund(refundNo, operator string) (*models.RefundOrder, error) {
	refundNo = strings.TrimSpace(refundNo)
	if refundNo == "" {
		return nil, ErrRefundInvalid
	}
	var refund *models.RefundOrder
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := lockRefundOrderByNo(tx, refundNo)
		if err != nil {
			return err
		}
		if !locked.CanCancel() {
			return ErrInvalidStateForCancel
		}
		if err := transitionRefund(locked, constants.RefundStatusCancelled); err != nil {
			return err
		}
		locked.UpdatedAt = time.Now()
		if err := refundRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		refund = locked
		remark := "退款取消"
		if strings.TrimSpace(operator) != "" {
			remark = remark + " (" + strings.TrimSpace(operator) + ")"
		}
		return s.appendRefundRecord(tx, locked, constants.RecordActionCancelled, remark, nil)
	})
	if err != nil {
		return nil, err
	}
	refundLogger("refund_no", refundNo).Infow("refund_cancelled", "operator", operator)
	return refund, nil
}

// SubmitToChannel 将已审批退款提交到渠道。
// 受理后进入 processing；渠道同步确认退款完成时直接落 success。
// 提交失败累加重试计数，达到上限落终态 failed。
func (s *RefundService) SubmitToChannel(ctx context.Context, refundNo string) (*models.RefundOrder, error) {
	refundNo = strings.TrimSpace(refundNo)
	if refundNo == "" {
		return nil, ErrRefundInvalid
	}
	if ctx == nil {
		ctx = context.Background()
	}

	refund, err := s.refundRepo.GetByRefundNo(refundNo)
	if err != nil {
		return nil, ErrRefundUpdateFailed
	}
	if refund == nil {
		return nil, ErrRefundNotFound
	}
	if refund.Status != constants.RefundStatusApproved {
		return nil, ErrRefundStatusInvalid
	}
	order, err := s.orderRepo.GetByID(refund.PaymentOrderID)
	if err != nil || order == nil {
		return nil, ErrPaymentNotFound
	}

	adapter, err := s.registry.Get(order.Method)
	if err != nil {
		return nil, ErrPaymentChannelNotFound
	}

	log := refundLogger(
		"refund_no", refundNo,
		"order_no", order.OrderNo,
		"method", order.Method,
		"amount", refund.Amount.String(),
	)

	lock, acquired, err := cache.AcquireRefundLock(ctx, refundNo, orderLockTTL)
	if err != nil || !acquired {
		log.Warnw("refund_submit_lock_unavailable", "error", err)
		return nil, ErrRefundUpdateFailed
	}
	defer func() { _ = lock.Release(ctx) }()

	result, channelErr := adapter.CreateRefund(ctx, payment.RefundRequest{
		RefundNo:      refund.RefundNo,
		OrderNo:       order.OrderNo,
		ThirdPartyRef: order.ThirdPartyRef,
		Amount:        refund.Amount.String(),
		TotalAmount:   order.ActualAmount.String(),
		Reason:        refund.Reason,
	})
	if channelErr != nil {
		log.Errorw("refund_submit_channel_failed", "error", channelErr)
		if err := s.applySubmitFailure(refund.ID, channelErr.Error()); err != nil {
			return nil, err
		}
		return nil, channelErr
	}

	var updated *models.RefundOrder
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := lockRefundOrder(tx, refund.ID)
		if err != nil {
			return err
		}
		if locked.Status != constants.RefundStatusApproved {
			updated = locked
			return nil
		}
		if err := transitionRefund(locked, constants.RefundStatusProcessing); err != nil {
			return err
		}
		now := time.Now()
		if locked.ThirdPartyRefundRef == "" {
			locked.ThirdPartyRefundRef = result.ThirdPartyRefundRef
		}
		locked.ProcessedAt = &now
		locked.UpdatedAt = now
		if err := refundRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		if err := s.appendRefundRecord(tx, locked, constants.RecordActionSubmitted, "渠道退款受理", models.JSON(result.Raw)); err != nil {
			return err
		}
		updated = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infow("refund_submitted",
		"status", updated.Status,
		"third_party_refund_ref", updated.ThirdPartyRefundRef,
		"settled", result.Settled,
	)
	if result.Settled {
		return s.ApplyRefundCallbackSuccess(RefundCallbackApplyInput{
			RefundNo:            updated.RefundNo,
			ThirdPartyRefundRef: result.ThirdPartyRefundRef,
			Amount:              updated.Amount.String(),
			Raw:                 result.Raw,
			Source:              "submit",
		})
	}
	return updated, nil
}

// applySubmitFailure 渠道提交失败：未达上限回到 approved 等待重试，否则终态 failed。
func (s *RefundService) applySubmitFailure(refundID uint, reason string) error {
	return models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := lockRefundOrder(tx, refundID)
		if err != nil {
			return err
		}
		if locked.Status != constants.RefundStatusApproved {
			return nil
		}
		now := time.Now()
		locked.RetryCount++
		locked.FailureReason = reason
		if locked.RetryCount >= s.maxRetry() {
			// 两跳过状态机：approved → processing → failed
			if err := transitionRefund(locked, constants.RefundStatusProcessing); err != nil {
				return err
			}
			if err := transitionRefund(locked, constants.RefundStatusFailed); err != nil {
				return err
			}
		}
		locked.UpdatedAt = now
		if err := refundRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		if err := s.appendRefundRecord(tx, locked, constants.RecordActionCallbackFailed, "渠道提交失败: "+reason, nil); err != nil {
			return err
		}
		if locked.Status == constants.RefundStatusFailed {
			s.enqueueRefundNotify(locked)
		}
		return nil
	})
}

// Retry 人工重试失败退款，重新进入渠道提交。
func (s *RefundService) Retry(refundNo, operator string) (*models.RefundOrder, error) {
	refundNo = strings.TrimSpace(refundNo)
	if refundNo == "" {
		return nil, ErrRefundInvalid
	}
	var refund *models.RefundOrder
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := lockRefundOrderByNo(tx, refundNo)
		if err != nil {
			return err
		}
		if locked.Status != constants.RefundStatusFailed {
			return ErrRefundStatusInvalid
		}
		if locked.RetryCount >= s.maxRetry() {
			return ErrRetryLimitReached
		}
		if err := transitionRefund(locked, constants.RefundStatusApproved); err != nil {
			return err
		}
		locked.UpdatedAt = time.Now()
		if err := refundRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		refund = locked
		return s.appendRefundRecord(tx, locked, constants.RecordActionRetried, "人工重试 ("+strings.TrimSpace(operator)+")", nil)
	})
	if err != nil {
		return nil, err
	}
	s.enqueueSubmit(refund.RefundNo)
	refundLogger("refund_no", refundNo).Infow("refund_manual_retry", "operator", operator)
	return refund, nil
}

// GetRefund 根据退款单号获取退款订单
func (s *RefundService) GetRefund(refundNo string) (*models.RefundOrder, error) {
	refund, err := s.refundRepo.GetByRefundNo(strings.TrimSpace(refundNo))
	if err != nil {
		return nil, ErrRefundUpdateFailed
	}
	if refund == nil {
		return nil, ErrRefundNotFound
	}
	return refund, nil
}

// ListRefunds 管理端退款订单列表
func (s *RefundService) ListRefunds(filter repository.RefundOrderListFilter) ([]models.RefundOrder, int64, error) {
	return s.refundRepo.ListAdmin(filter)
}

// RefundStatistics 退款统计
type RefundStatistics struct {
	Total          int64  `json:"total"`
	PendingAudit   int64  `json:"pending_audit"`
	Approved       int64  `json:"approved"`
	Rejected       int64  `json:"rejected"`
	Processing     int64  `json:"processing"`
	Success        int64  `json:"success"`
	Failed         int64  `json:"failed"`
	Cancelled      int64  `json:"cancelled"`
	RequestedTotal string `json:"requested_total"`
	RefundedTotal  string `json:"refunded_total"`
}

// Statistics 统计时间区间内的退款分布与金额
func (s *RefundService) Statistics(from, to time.Time) (*RefundStatistics, error) {
	counts, err := s.refundRepo.StatsBetween(from, to)
	if err != nil {
		return nil, err
	}
	return &RefundStatistics{
		Total:          counts.Total,
		PendingAudit:   counts.PendingAudit,
		Approved:       counts.Approved,
		Rejected:       counts.Rejected,
		Processing:     counts.Processing,
		Success:        counts.Success,
		Failed:         counts.Failed,
		Cancelled:      counts.Cancelled,
		RequestedTotal: counts.RequestedTotal.StringFixed(2),
		RefundedTotal:  counts.RefundedTotal.StringFixed(2),
	}, nil
}

// ListRefundRecords 退款订单流水
func (s *RefundService) ListRefundRecords(refundNo string) ([]models.RefundRecord, error) {
	refund, err := s.GetRefund(refundNo)
	if err != nil {
		return nil, err
	}
	return s.recordRepo.ListByRefundOrderID(refund.ID)
}

func (s *RefundService) enqueueSubmit(refundNo string) {
	if s.queueClient == nil {
		return
	}
	if err := s.queueClient.EnqueueRefundSubmit(queue.RefundSubmitPayload{RefundNo: refundNo}); err != nil {
		refundLogger("refund_no", refundNo).Warnw("refund_submit_enqueue_failed", "error", err)
	}
}

func (s *RefundService) enqueueRefundNotify(refund *models.RefundOrder) {
	if s.queueClient == nil || refund == nil {
		return
	}
	order, err := s.orderRepo.GetByID(refund.PaymentOrderID)
	orderNo := ""
	if err == nil && order != nil {
		orderNo = order.OrderNo
	}
	err = s.queueClient.EnqueueRefundNotify(queue.RefundNotifyPayload{
		RefundNo: refund.RefundNo,
		OrderNo:  orderNo,
		Status:   refund.Status,
	}, 0)
	if err != nil {
		refundLogger("refund_no", refund.RefundNo).Warnw("refund_notify_enqueue_failed", "error", err)
	}
}

func (s *RefundService) appendRefundRecord(tx *gorm.DB, refund *models.RefundOrder, action, remark string, raw models.JSON) error {
	recordRepo := s.recordRepo.WithTx(tx)
	return recordRepo.AppendRefund(&models.RefundRecord{
		RefundOrderID: refund.ID,
		Action:        action,
		Status:        refund.Status,
		Amount:        refund.Amount,
		Remark:        remark,
		RawPayload:    raw,
		CreatedAt:     time.Now(),
	})
}

func (s *RefundService) autoApproveAmount() decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(s.riskCfg.AutoApproveAmount))
	if err != nil || amount.LessThan(decimal.Zero) {
		return decimal.NewFromInt(100)
	}
	return amount
}

func (s *RefundService) maxRetry() int {
	if s.cfg.MaxRetry > 0 {
		return s.cfg.MaxRetry
	}
	return 3
}

func transitionRefund(refund *models.RefundOrder, target string) error {
	if !models.RefundCanTransition(refund.Status, target) {
		return ErrRefundStatusInvalid
	}
	refund.Status = target
	return nil
}

func lockRefundOrder(tx *gorm.DB, id uint) (*models.RefundOrder, error) {
	var refund models.RefundOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&refund, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, ErrRefundUpdateFailed
	}
	return &refund, nil
}

func lockRefundOrderByNo(tx *gorm.DB, refundNo string) (*models.RefundOrder, error) {
	var refund models.RefundOrder
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("refund_no = ?", refundNo).Limit(1).Find(&refund)
	if result.Error != nil {
		return nil, ErrRefundUpdateFailed
	}
	if result.RowsAffected == 0 {
		return nil, ErrRefundNotFound
	}
	return &refund, nil
}
