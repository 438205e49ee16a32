package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/cache"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"

	"gorm.io/gorm"
)

// RefundCallbackApplyInput 退款渠道回调落库输入
type RefundCallbackApplyInput struct {
	RefundNo            string
	ThirdPartyRefundRef string
	Amount              string
	Reason              string
	OccurredAt          *time.Time
	Raw                 map[string]interface{}
	Source              string
}

// ResolveRefundByChannelRef 依次按第三方退款流水号、退款单号定位退款订单。
func (s *RefundService) ResolveRefundByChannelRef(thirdPartyRefundRef, refundNo string) (*models.RefundOrder, error) {
	if ref := strings.TrimSpace(thirdPartyRefundRef); ref != "" {
		refund, err := s.refundRepo.GetByThirdPartyRefundRef(ref)
		if err != nil {
			return nil, ErrRefundUpdateFailed
		}
		if refund != nil {
			return refund, nil
		}
	}
	refund, err := s.refundRepo.GetByRefundNo(strings.TrimSpace(refundNo))
	if err != nil {
		return nil, ErrRefundUpdateFailed
	}
	if refund == nil {
		return nil, ErrRefundNotFound
	}
	return refund, nil
}

// ApplyRefundCallbackSuccess 应用渠道退款成功回调。重复成功回调幂等返回 ErrAlreadySettled。
func (s *RefundService) ApplyRefundCallbackSuccess(input RefundCallbackApplyInput) (*models.RefundOrder, error) {
	refund, err := s.ResolveRefundByChannelRef(input.ThirdPartyRefundRef, input.RefundNo)
	if err != nil {
		return nil, err
	}

	log := refundLogger(
		"refund_no", refund.RefundNo,
		"third_party_refund_ref", strings.TrimSpace(input.ThirdPartyRefundRef),
		"source", input.Source,
	)

	lock, acquired, err := cache.AcquireRefundLock(context.Background(), refund.RefundNo, orderLockTTL)
	if err != nil || !acquired {
		log.Warnw("refund_callback_lock_unavailable", "error", err)
		return nil, ErrRefundUpdateFailed
	}
	defer func() { _ = lock.Release(context.Background()) }()

	var updated *models.RefundOrder
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := lockRefundOrder(tx, refund.ID)
		if err != nil {
			return err
		}

		ref := strings.TrimSpace(input.ThirdPartyRefundRef)
		if locked.ThirdPartyRefundRef != "" && ref != "" && locked.ThirdPartyRefundRef != ref {
			log.Warnw("refund_callback_ref_conflict", "stored_ref", locked.ThirdPartyRefundRef)
			return ErrThirdPartyRefConflict
		}
		if locked.Status == constants.RefundStatusSuccess {
			updated = locked
			return ErrAlreadySettled
		}
		if models.RefundStatusTerminal(locked.Status) && locked.Status != constants.RefundStatusFailed {
			return ErrRefundStatusInvalid
		}

		// 迟到的成功回调：failed 订单经重试边回到 approved 再继续
		if locked.Status == constants.RefundStatusFailed {
			if err := transitionRefund(locked, constants.RefundStatusApproved); err != nil {
				return err
			}
		}
		// 审批后回调先于提交响应到达时补一跳 processing
		if locked.Status == constants.RefundStatusApproved {
			if err := transitionRefund(locked, constants.RefundStatusProcessing); err != nil {
				return err
			}
		}
		if err := transitionRefund(locked, constants.RefundStatusSuccess); err != nil {
			return err
		}

		now := time.Now()
		refundedAt := now
		if input.OccurredAt != nil {
			refundedAt = *input.OccurredAt
		}
		actualAmount, ok := parseCallbackAmount(input.Amount)
		if !ok {
			actualAmount = locked.Amount.Decimal
		}
		if locked.ThirdPartyRefundRef == "" {
			locked.ThirdPartyRefundRef = ref
		}
		locked.ActualAmount = models.NewMoneyFromDecimal(actualAmount)
		locked.RefundedAt = &refundedAt
		locked.CallbackPayload = models.JSON(input.Raw)
		locked.FailureReason = ""
		locked.UpdatedAt = now
		if err := refundRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		updated = locked
		return s.appendRefundRecord(tx, locked, constants.RecordActionCallbackSuccess, "渠道退款成功", models.JSON(input.Raw))
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			log.Infow("refund_callback_idempotent_success")
			return updated, err
		}
		return nil, err
	}

	log.Infow("refund_callback_settled", "actual_amount", updated.ActualAmount.String())
	s.enqueueRefundNotify(updated)
	return updated, nil
}

// ApplyRefundCallbackFailure 应用渠道退款失败回调。
// 未达重试上限回到 approved 等待重试，否则落终态 failed。
func (s *RefundService) ApplyRefundCallbackFailure(input RefundCallbackApplyInput) (*models.RefundOrder, error) {
	refund, err := s.ResolveRefundByChannelRef(input.ThirdPartyRefundRef, input.RefundNo)
	if err != nil {
		return nil, err
	}

	log := refundLogger("refund_no", refund.RefundNo, "source", input.Source)

	lock, acquired, err := cache.AcquireRefundLock(context.Background(), refund.RefundNo, orderLockTTL)
	if err != nil || !acquired {
		log.Warnw("refund_callback_lock_unavailable", "error", err)
		return nil, ErrRefundUpdateFailed
	}
	defer func() { _ = lock.Release(context.Background()) }()

	var updated *models.RefundOrder
	notifyFailed := false
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		refundRepo := s.refundRepo.WithTx(tx)
		locked, err := lockRefundOrder(tx, refund.ID)
		if err != nil {
			return err
		}
		if locked.Status == constants.RefundStatusSuccess {
			updated = locked
			return ErrAlreadySettled
		}
		if locked.Status != constants.RefundStatusProcessing {
			// 终态或未提交订单上的失败回调按无操作处理
			updated = locked
			return nil
		}

		now := time.Now()
		locked.RetryCount++
		locked.FailureReason = strings.TrimSpace(input.Reason)
		locked.CallbackPayload = models.JSON(input.Raw)
		target := constants.RefundStatusApproved
		if locked.RetryCount >= s.maxRetry() {
			target = constants.RefundStatusFailed
			notifyFailed = true
		}
		if err := transitionRefund(locked, target); err != nil {
			return err
		}
		locked.UpdatedAt = now
		if err := refundRepo.Update(locked); err != nil {
			return ErrRefundUpdateFailed
		}
		updated = locked
		remark := "渠道退款失败"
		if locked.FailureReason != "" {
			remark = remark + ": " + locked.FailureReason
		}
		return s.appendRefundRecord(tx, locked, constants.RecordActionCallbackFailed, remark, models.JSON(input.Raw))
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			log.Infow("refund_callback_failure_after_success_ignored")
			return updated, err
		}
		return nil, err
	}

	log.Infow("refund_callback_failed_applied",
		"status", updated.Status,
		"retry_count", updated.RetryCount,
	)
	if notifyFailed {
		s.enqueueRefundNotify(updated)
	} else if updated.Status == constants.RefundStatusApproved {
		s.enqueueSubmit(updated.RefundNo)
	}
	return updated, nil
}

// QueryRefundStatus 主动向渠道查询退款状态，processing 订单查到终态时落库。
func (s *RefundService) QueryRefundStatus(ctx context.Context, refundNo string) (*models.RefundOrder, error) {
	refund, err := s.GetRefund(refundNo)
	if err != nil {
		return nil, err
	}
	if refund.Status != constants.RefundStatusProcessing {
		return refund, nil
	}
	order, err := s.orderRepo.GetByID(refund.PaymentOrderID)
	if err != nil || order == nil {
		return refund, nil
	}
	adapter, err := s.registry.Get(order.Method)
	if err != nil {
		return refund, nil
	}

	result, err := adapter.QueryRefund(ctx, order.OrderNo, refund.RefundNo)
	if err != nil {
		refundLogger("refund_no", refundNo).Warnw("refund_sync_query_failed", "error", err)
		return refund, nil
	}

	switch result.Status {
	case payment.EventStatusSuccess:
		updated, err := s.ApplyRefundCallbackSuccess(RefundCallbackApplyInput{
			RefundNo:            refund.RefundNo,
			ThirdPartyRefundRef: result.ThirdPartyRef,
			Amount:              result.Amount,
			OccurredAt:          result.SettledAt,
			Raw:                 result.Raw,
			Source:              "sync",
		})
		if err != nil && !errors.Is(err, ErrAlreadySettled) {
			return refund, err
		}
		return updated, nil
	case payment.EventStatusFailed:
		updated, err := s.ApplyRefundCallbackFailure(RefundCallbackApplyInput{
			RefundNo: refund.RefundNo,
			Raw:      result.Raw,
			Reason:   "渠道查询返回失败",
			Source:   "sync",
		})
		if err != nil {
			return refund, err
		}
		return updated, nil
	}
	return refund, nil
}

// BatchProcessResult 批量处理结果
type BatchProcessResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchProcessPending 批量处理待审核退款：小额自动通过并提交渠道，其余保留人工。
// 单笔失败不影响其余处理。
func (s *RefundService) BatchProcessPending(limit int) *BatchProcessResult {
	result := &BatchProcessResult{}
	refunds, err := s.refundRepo.ListPendingAudit(limit)
	if err != nil {
		refundLogger().Errorw("refund_batch_list_failed", "error", err)
		return result
	}
	threshold := s.autoApproveAmount()
	for i := range refunds {
		refund := refunds[i]
		if refund.Amount.Decimal.GreaterThan(threshold) {
			continue
		}
		result.Processed++
		_, err := s.AuditRefund(AuditRefundInput{
			RefundNo: refund.RefundNo,
			Reviewer: constants.SystemReviewer,
			Approve:  true,
			Remark:   "批量小额自动审批",
		})
		if err != nil {
			refundLogger("refund_no", refund.RefundNo).Warnw("refund_batch_audit_failed", "error", err)
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	if result.Processed > 0 {
		refundLogger().Infow("refund_batch_done",
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
		)
	}
	return result
}

// SubmitSweep 扫描已审批待提交的退款并推送提交任务，按重试次数退避。
func (s *RefundService) SubmitSweep(ctx context.Context, now time.Time, limit int) int {
	refunds, err := s.refundRepo.ListApprovedForSubmit(limit)
	if err != nil {
		refundLogger().Errorw("refund_submit_sweep_list_failed", "error", err)
		return 0
	}
	submitted := 0
	for i := range refunds {
		refund := refunds[i]
		if refund.RetryCount > 0 {
			backoff := retryBackoff(s.cfg.RetryBackoffSeconds, refund.RetryCount)
			if now.Sub(refund.UpdatedAt) < backoff {
				continue
			}
		}
		if _, err := s.SubmitToChannel(ctx, refund.RefundNo); err != nil {
			refundLogger("refund_no", refund.RefundNo).Warnw("refund_submit_sweep_failed", "error", err)
			continue
		}
		submitted++
	}
	return submitted
}

// RetrySweep 将回溯窗口内未达重试上限的失败退款拉回 approved 重新提交。
func (s *RefundService) RetrySweep(now time.Time, limit int) int {
	cutoff := now.Add(-time.Duration(s.retryCutoffHours()) * time.Hour)
	refunds, err := s.refundRepo.ListFailedForRetry(cutoff, s.maxRetry(), limit)
	if err != nil {
		refundLogger().Errorw("refund_retry_sweep_list_failed", "error", err)
		return 0
	}
	retried := 0
	for i := range refunds {
		refund := refunds[i]
		if _, err := s.Retry(refund.RefundNo, constants.SystemReviewer); err != nil {
			refundLogger("refund_no", refund.RefundNo).Warnw("refund_retry_sweep_failed", "error", err)
			continue
		}
		retried++
	}
	return retried
}

// SyncSweep 对处理中的退款批量执行渠道状态查询。
func (s *RefundService) SyncSweep(ctx context.Context, now time.Time, limit int) int {
	cutoff := now.Add(-time.Duration(s.syncCutoffHours()) * time.Hour)
	refunds, err := s.refundRepo.ListProcessingForSync(cutoff, limit)
	if err != nil {
		refundLogger().Errorw("refund_sync_sweep_list_failed", "error", err)
		return 0
	}
	synced := 0
	for i := range refunds {
		if _, err := s.QueryRefundStatus(ctx, refunds[i].RefundNo); err != nil {
			refundLogger("refund_no", refunds[i].RefundNo).Warnw("refund_sync_apply_failed", "error", err)
			continue
		}
		synced++
	}
	return synced
}

// CleanupRetention 清理超过保留期的终态退款及其流水。
func (s *RefundService) CleanupRetention(now time.Time, limit int) int {
	cutoff := now.AddDate(0, 0, -s.retentionDays())
	refunds, err := s.refundRepo.ListTerminalBefore(cutoff, limit)
	if err != nil {
		refundLogger().Errorw("refund_cleanup_list_failed", "error", err)
		return 0
	}
	if len(refunds) == 0 {
		return 0
	}
	ids := make([]uint, 0, len(refunds))
	for i := range refunds {
		ids = append(ids, refunds[i].ID)
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		recordRepo := s.recordRepo.WithTx(tx)
		if err := recordRepo.DeleteByRefundOrderIDs(ids); err != nil {
			return err
		}
		return tx.Delete(&models.RefundOrder{}, ids).Error
	})
	if err != nil {
		refundLogger().Errorw("refund_cleanup_failed", "error", err)
		return 0
	}
	refundLogger().Infow("refund_cleanup_done", "cleaned", len(ids))
	return len(ids)
}

func (s *RefundService) retryCutoffHours() int {
	if s.cfg.RetryCutoffHours > 0 {
		return s.cfg.RetryCutoffHours
	}
	return 24
}

func (s *RefundService) syncCutoffHours() int {
	if s.cfg.SyncCutoffHours > 0 {
		return s.cfg.SyncCutoffHours
	}
	return 48
}

func (s *RefundService) retentionDays() int {
	if s.cfg.RetentionDays > 0 {
		return s.cfg.RetentionDays
	}
	return 90
}
