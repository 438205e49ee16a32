package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/provider"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/queue"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskRefundSubmit, c.handleRefundSubmit)
	mux.HandleFunc(queue.TaskPaymentNotify, c.handlePaymentNotify)
	mux.HandleFunc(queue.TaskRefundNotify, c.handleRefundNotify)
}

func (c *Consumer) handleRefundSubmit(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_refund_submit_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RefundSubmitPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_refund_submit_unmarshal_failed", "error", err)
		return err
	}
	if payload.RefundNo == "" {
		logger.Debugw("worker_refund_submit_skip_invalid_payload")
		return nil
	}
	if c.RefundService == nil {
		logger.Warnw("worker_refund_submit_skip_service_nil", "refund_no", payload.RefundNo)
		return nil
	}
	_, err := c.RefundService.SubmitToChannel(ctx, payload.RefundNo)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefundNotFound):
			logger.Debugw("worker_refund_submit_skip_not_found", "refund_no", payload.RefundNo)
			return nil
		case errors.Is(err, service.ErrRefundStatusInvalid):
			// 已被回调或人工处置推进，不再重复提交
			logger.Debugw("worker_refund_submit_skip_status_moved", "refund_no", payload.RefundNo)
			return nil
		case errors.Is(err, service.ErrAlreadySettled):
			logger.Debugw("worker_refund_submit_skip_settled", "refund_no", payload.RefundNo)
			return nil
		default:
			logger.Warnw("worker_refund_submit_failed", "refund_no", payload.RefundNo, "error", err)
			return err
		}
	}
	return nil
}

func (c *Consumer) handlePaymentNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderNo == "" {
		logger.Debugw("worker_payment_notify_skip_invalid_payload")
		return nil
	}
	if c.NotificationService == nil || !c.NotificationService.Enabled() {
		logger.Debugw("worker_payment_notify_skip_disabled", "order_no", payload.OrderNo)
		return nil
	}
	order, err := c.PaymentOrderRepo.GetByOrderNo(payload.OrderNo)
	if err != nil {
		logger.Warnw("worker_payment_notify_fetch_order_failed", "order_no", payload.OrderNo, "error", err)
		return err
	}
	if order == nil {
		logger.Debugw("worker_payment_notify_skip_order_not_found", "order_no", payload.OrderNo)
		return nil
	}
	if err := c.NotificationService.NotifyPaymentResult(ctx, order); err != nil {
		logger.Warnw("worker_payment_notify_failed",
			"order_no", order.OrderNo,
			"business_order_id", order.BusinessOrderID,
			"status", order.Status,
			"error", err,
		)
		return err
	}
	return nil
}

func (c *Consumer) handleRefundNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_refund_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.RefundNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_refund_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.RefundNo == "" {
		logger.Debugw("worker_refund_notify_skip_invalid_payload")
		return nil
	}
	if c.NotificationService == nil || !c.NotificationService.Enabled() {
		logger.Debugw("worker_refund_notify_skip_disabled", "refund_no", payload.RefundNo)
		return nil
	}
	refund, err := c.RefundOrderRepo.GetByRefundNo(payload.RefundNo)
	if err != nil {
		logger.Warnw("worker_refund_notify_fetch_refund_failed", "refund_no", payload.RefundNo, "error", err)
		return err
	}
	if refund == nil {
		logger.Debugw("worker_refund_notify_skip_refund_not_found", "refund_no", payload.RefundNo)
		return nil
	}
	orderNo := payload.OrderNo
	if orderNo == "" {
		order, err := c.PaymentOrderRepo.GetByID(refund.PaymentOrderID)
		if err != nil {
			logger.Warnw("worker_refund_notify_fetch_order_failed", "refund_no", payload.RefundNo, "error", err)
			return err
		}
		if order != nil {
			orderNo = order.OrderNo
		}
	}
	if err := c.NotificationService.NotifyRefundResult(ctx, refund, orderNo); err != nil {
		logger.Warnw("worker_refund_notify_failed",
			"refund_no", refund.RefundNo,
			"order_no", orderNo,
			"status", refund.Status,
			"error", err,
		)
		return err
	}
	return nil
}
