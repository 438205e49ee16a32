package queue

import (
	"encoding/json"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskRefundSubmit 退款渠道提交任务
	TaskRefundSubmit = constants.TaskRefundSubmit
	// TaskPaymentNotify 支付结果通知任务
	TaskPaymentNotify = constants.TaskPaymentNotify
	// TaskRefundNotify 退款结果通知任务
	TaskRefundNotify = constants.TaskRefundNotify
)

// RefundSubmitPayload 退款渠道提交任务载荷
type RefundSubmitPayload struct {
	RefundNo string `json:"refund_no"`
}

// PaymentNotifyPayload 支付结果通知任务载荷
type PaymentNotifyPayload struct {
	OrderNo         string `json:"order_no"`
	BusinessOrderID string `json:"business_order_id"`
	Status          string `json:"status"`
}

// RefundNotifyPayload 退款结果通知任务载荷
type RefundNotifyPayload struct {
	RefundNo string `json:"refund_no"`
	OrderNo  string `json:"order_no"`
	Status   string `json:"status"`
}

// NewRefundSubmitTask 创建退款渠道提交任务
func NewRefundSubmitTask(payload RefundSubmitPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefundSubmit, body), nil
}

// NewPaymentNotifyTask 创建支付结果通知任务
func NewPaymentNotifyTask(payload PaymentNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentNotify, body), nil
}

// NewRefundNotifyTask 创建退款结果通知任务
func NewRefundNotifyTask(payload RefundNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRefundNotify, body), nil
}
