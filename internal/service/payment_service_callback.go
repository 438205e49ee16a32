package service

import (
	"context"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/cache"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/queue"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CallbackApplyInput 渠道回调落库输入。来源可以是异步通知，也可以是主动查询。
type CallbackApplyInput struct {
	OrderNo       string
	ThirdPartyRef string
	Amount        string
	Reason        string
	OccurredAt    *time.Time
	Raw           map[string]interface{}
	Source        string
}

const orderLockTTL = 30 * time.Second

// ResolveByChannelRef 依次按第三方流水号、支付单号定位订单。
func (s *PaymentService) ResolveByChannelRef(thirdPartyRef, orderNo string) (*models.PaymentOrder, error) {
	if ref := strings.TrimSpace(thirdPartyRef); ref != "" {
		order, err := s.orderRepo.GetByThirdPartyRef(ref)
		if err != nil {
			return nil, ErrPaymentUpdateFailed
		}
		if order != nil {
			return order, nil
		}
	}
	order, err := s.orderRepo.GetByOrderNo(strings.TrimSpace(orderNo))
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if order == nil {
		return nil, ErrPaymentNotFound
	}
	return order, nil
}

// ApplyCallbackSuccess 应用渠道成功回调。
// 幂等：同一流水号重复成功回调返回 ErrAlreadySettled；流水号冲突拒绝；
// 金额超出容差时订单保持原状态并记录异常。
func (s *PaymentService) ApplyCallbackSuccess(input CallbackApplyInput) (*models.PaymentOrder, error) {
	order, err := s.ResolveByChannelRef(input.ThirdPartyRef, input.OrderNo)
	if err != nil {
		return nil, err
	}

	log := paymentLogger(
		"order_no", order.OrderNo,
		"method", order.Method,
		"third_party_ref", strings.TrimSpace(input.ThirdPartyRef),
		"source", input.Source,
	)

	lock, acquired, err := cache.AcquirePaymentLock(context.Background(), order.OrderNo, orderLockTTL)
	if err != nil || !acquired {
		log.Warnw("payment_callback_lock_unavailable", "error", err)
		return nil, ErrPaymentUpdateFailed
	}
	defer func() { _ = lock.Release(context.Background()) }()

	var updated *models.PaymentOrder
	mismatch := false
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := lockPaymentOrder(tx, order.ID)
		if err != nil {
			return err
		}

		ref := strings.TrimSpace(input.ThirdPartyRef)
		if locked.ThirdPartyRef != "" && ref != "" && locked.ThirdPartyRef != ref {
			log.Warnw("payment_callback_ref_conflict", "stored_ref", locked.ThirdPartyRef)
			return ErrThirdPartyRefConflict
		}

		if locked.Status == constants.PaymentStatusSuccess {
			updated = locked
			return ErrAlreadySettled
		}
		if models.PaymentStatusTerminal(locked.Status) {
			log.Warnw("payment_callback_on_terminal", "status", locked.Status)
			return ErrPaymentStatusInvalid
		}

		actualAmount, ok := parseCallbackAmount(input.Amount)
		if !ok {
			actualAmount = locked.Amount.Decimal
		}
		if actualAmount.Sub(locked.Amount.Decimal).Abs().GreaterThan(s.amountTolerance()) {
			log.Errorw("payment_callback_amount_mismatch",
				"expected", locked.Amount.String(),
				"actual", actualAmount.StringFixed(2),
			)
			// 订单保持原状态挂起，异常流水必须落库供人工处理，事务正常提交
			mismatch = true
			return s.appendPaymentRecord(tx, locked, constants.RecordActionAmountMismatch,
				"回调金额超出容差: "+actualAmount.StringFixed(2), models.JSON(input.Raw))
		}

		if err := transitionPayment(locked, constants.PaymentStatusSuccess); err != nil {
			return err
		}
		now := time.Now()
		settledAt := now
		if input.OccurredAt != nil {
			settledAt = *input.OccurredAt
		}
		if locked.ThirdPartyRef == "" {
			locked.ThirdPartyRef = ref
		}
		feeAmount := actualAmount.Mul(s.feeRateFor(locked.Method)).Div(decimal.NewFromInt(100)).Round(2)
		locked.ActualAmount = models.NewMoneyFromDecimal(actualAmount)
		locked.FeeAmount = models.NewMoneyFromDecimal(feeAmount)
		locked.SettledAt = &settledAt
		locked.CallbackAt = &now
		locked.CallbackPayload = models.JSON(input.Raw)
		locked.FailureReason = ""
		locked.UpdatedAt = now
		if err := orderRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		updated = locked
		return s.appendPaymentRecord(tx, locked, constants.RecordActionCallbackSuccess, "渠道回调成功", models.JSON(input.Raw))
	})
	if err != nil {
		if err == ErrAlreadySettled {
			log.Infow("payment_callback_idempotent_success")
			return updated, err
		}
		return nil, err
	}
	if mismatch {
		return nil, ErrAmountMismatch
	}

	log.Infow("payment_callback_settled",
		"actual_amount", updated.ActualAmount.String(),
		"fee_amount", updated.FeeAmount.String(),
	)
	s.enqueuePaymentNotify(updated)
	return updated, nil
}

// ApplyCallbackFailure 应用渠道失败回调。
// 未达重试上限回退 pending_payment 等待重试，否则落终态 failed。
func (s *PaymentService) ApplyCallbackFailure(input CallbackApplyInput) (*models.PaymentOrder, error) {
	order, err := s.ResolveByChannelRef(input.ThirdPartyRef, input.OrderNo)
	if err != nil {
		return nil, err
	}

	log := paymentLogger(
		"order_no", order.OrderNo,
		"method", order.Method,
		"source", input.Source,
	)

	lock, acquired, err := cache.AcquirePaymentLock(context.Background(), order.OrderNo, orderLockTTL)
	if err != nil || !acquired {
		log.Warnw("payment_callback_lock_unavailable", "error", err)
		return nil, ErrPaymentUpdateFailed
	}
	defer func() { _ = lock.Release(context.Background()) }()

	var updated *models.PaymentOrder
	notifyFailed := false
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := lockPaymentOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status == constants.PaymentStatusSuccess {
			updated = locked
			return ErrAlreadySettled
		}
		if models.PaymentStatusTerminal(locked.Status) {
			// 终态订单上的重复失败回调按无操作处理
			updated = locked
			return nil
		}
		if locked.Status != constants.PaymentStatusProcessing {
			// 渠道失败只消费 processing 中的订单；
			// 回退 pending_payment 之后重复投递的失败回调按无操作处理，不吃重试预算
			log.Infow("payment_callback_failure_redelivery_ignored", "status", locked.Status)
			updated = locked
			return nil
		}

		now := time.Now()
		locked.RetryCount++
		locked.FailureReason = strings.TrimSpace(input.Reason)
		locked.CallbackAt = &now
		locked.CallbackPayload = models.JSON(input.Raw)
		target := constants.PaymentStatusPendingPayment
		if locked.RetryCount >= s.maxRetry() {
			target = constants.PaymentStatusFailed
			notifyFailed = true
		}
		if err := transitionPayment(locked, target); err != nil {
			return err
		}
		locked.UpdatedAt = now
		if err := orderRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		updated = locked
		remark := "渠道回调失败"
		if locked.FailureReason != "" {
			remark = remark + ": " + locked.FailureReason
		}
		return s.appendPaymentRecord(tx, locked, constants.RecordActionCallbackFailed, remark, models.JSON(input.Raw))
	})
	if err != nil {
		if err == ErrAlreadySettled {
			log.Infow("payment_callback_failure_after_success_ignored")
			return updated, err
		}
		return nil, err
	}

	log.Infow("payment_callback_failed_applied",
		"status", updated.Status,
		"retry_count", updated.RetryCount,
	)
	if notifyFailed {
		s.enqueuePaymentNotify(updated)
	}
	return updated, nil
}

func (s *PaymentService) enqueuePaymentNotify(order *models.PaymentOrder) {
	if s.queueClient == nil || order == nil {
		return
	}
	err := s.queueClient.EnqueuePaymentNotify(queue.PaymentNotifyPayload{
		OrderNo:         order.OrderNo,
		BusinessOrderID: order.BusinessOrderID,
		Status:          order.Status,
	})
	if err != nil {
		paymentLogger("order_no", order.OrderNo).Warnw("payment_notify_enqueue_failed", "error", err)
	}
}

// feeRateFor 读取渠道费率，读取失败回落配置兜底费率。
func (s *PaymentService) feeRateFor(method string) decimal.Decimal {
	channel, err := s.channelRepo.GetByCode(method)
	if err == nil && channel != nil {
		rate := channel.FeeRate.Decimal
		if rate.GreaterThanOrEqual(decimal.Zero) && rate.LessThanOrEqual(decimal.NewFromInt(100)) {
			return rate
		}
	}
	return decimal.NewFromFloat(s.cfg.DefaultFeePercent)
}

func parseCallbackAmount(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return amount.Round(2), true
}
