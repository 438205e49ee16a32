package public

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const callbackLogValueLimit = 4096

// ChannelCallback 渠道异步回调统一入口。
// 验签失败与无法定位订单一律返回渠道失败应答，幂等重复与金额偏差挂起返回成功应答，
// 由渠道停止重推，差异在内部流水与日志中留痕。
func (h *Handler) ChannelCallback(c *gin.Context) {
	channel := strings.ToLower(strings.TrimSpace(c.Param("channel")))
	log := requestLog(c).With("channel", channel, "client_ip", c.ClientIP())

	adapter, err := h.PaymentRegistry.Get(channel)
	if err != nil {
		log.Warnw("callback_channel_unknown", "error", err)
		c.String(http.StatusNotFound, "unknown channel")
		return
	}

	req, err := buildCallbackRequest(c)
	if err != nil {
		log.Warnw("callback_payload_read_failed", "error", err)
		c.String(adapter.FailAckStatus(), adapter.FailAck())
		return
	}

	ctx := c.Request.Context()
	if err := adapter.VerifyCallback(ctx, req); err != nil {
		log.Warnw("callback_verify_failed", "error", err)
		c.String(adapter.FailAckStatus(), adapter.FailAck())
		return
	}

	event, err := adapter.ParseCallback(ctx, req)
	if err != nil {
		log.Warnw("callback_parse_failed",
			"error", err,
			"raw_body", callbackRawBodyForLog(req.Body),
		)
		c.String(adapter.FailAckStatus(), adapter.FailAck())
		return
	}

	log.Infow("callback_received",
		"order_no", event.OrderNo,
		"refund_no", event.RefundNo,
		"third_party_ref", event.ThirdPartyRef,
		"status", event.Status,
		"amount", event.Amount,
	)

	if event.IsRefund() {
		h.applyRefundCallback(c, adapter, event, log)
		return
	}
	h.applyPaymentCallback(c, adapter, event, log)
}

func (h *Handler) applyPaymentCallback(c *gin.Context, adapter payment.Adapter, event *payment.ChannelEvent, log *zap.SugaredLogger) {
	input := service.CallbackApplyInput{
		OrderNo:       event.OrderNo,
		ThirdPartyRef: event.ThirdPartyRef,
		Amount:        event.Amount,
		OccurredAt:    event.OccurredAt,
		Raw:           event.Raw,
		Source:        "callback",
	}

	var err error
	switch event.Status {
	case payment.EventStatusSuccess:
		_, err = h.PaymentService.ApplyCallbackSuccess(input)
	case payment.EventStatusFailed:
		input.Reason = failureReason(event.Raw)
		_, err = h.PaymentService.ApplyCallbackFailure(input)
	default:
		// 渠道中间态不推进状态机，应答成功避免重推
		log.Infow("callback_pending_ignored", "order_no", event.OrderNo)
		c.String(http.StatusOK, adapter.SuccessAck())
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadySettled), errors.Is(err, service.ErrPaymentStatusInvalid):
			log.Infow("callback_duplicate_ignored", "order_no", event.OrderNo, "reason", err.Error())
			c.String(http.StatusOK, adapter.SuccessAck())
		case errors.Is(err, service.ErrAmountMismatch):
			log.Warnw("callback_amount_mismatch_held", "order_no", event.OrderNo, "amount", event.Amount)
			c.String(http.StatusOK, adapter.SuccessAck())
		default:
			log.Warnw("callback_apply_failed", "order_no", event.OrderNo, "error", err)
			c.String(adapter.FailAckStatus(), adapter.FailAck())
		}
		return
	}
	c.String(http.StatusOK, adapter.SuccessAck())
}

func (h *Handler) applyRefundCallback(c *gin.Context, adapter payment.Adapter, event *payment.ChannelEvent, log *zap.SugaredLogger) {
	input := service.RefundCallbackApplyInput{
		RefundNo:            event.RefundNo,
		ThirdPartyRefundRef: event.ThirdPartyRef,
		Amount:              event.Amount,
		OccurredAt:          event.OccurredAt,
		Raw:                 event.Raw,
		Source:              "callback",
	}

	var err error
	switch event.Status {
	case payment.EventStatusSuccess:
		_, err = h.RefundService.ApplyRefundCallbackSuccess(input)
	case payment.EventStatusFailed:
		input.Reason = failureReason(event.Raw)
		_, err = h.RefundService.ApplyRefundCallbackFailure(input)
	default:
		log.Infow("refund_callback_pending_ignored", "refund_no", event.RefundNo)
		c.String(http.StatusOK, adapter.SuccessAck())
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadySettled), errors.Is(err, service.ErrRefundStatusInvalid):
			log.Infow("refund_callback_duplicate_ignored", "refund_no", event.RefundNo, "reason", err.Error())
			c.String(http.StatusOK, adapter.SuccessAck())
		default:
			log.Warnw("refund_callback_apply_failed", "refund_no", event.RefundNo, "error", err)
			c.String(adapter.FailAckStatus(), adapter.FailAck())
		}
		return
	}
	c.String(http.StatusOK, adapter.SuccessAck())
}

func buildCallbackRequest(c *gin.Context) (payment.CallbackRequest, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return payment.CallbackRequest{}, err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	form := map[string][]string{}
	if err := c.Request.ParseForm(); err == nil {
		if len(c.Request.PostForm) > 0 {
			form = c.Request.PostForm
		} else if len(c.Request.Form) > 0 {
			form = c.Request.Form
		}
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	headers := make(map[string]string, len(c.Request.Header))
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}

	return payment.CallbackRequest{
		Form:    form,
		Headers: headers,
		Body:    body,
	}, nil
}

func failureReason(raw map[string]interface{}) string {
	for _, key := range []string{"fail_reason", "trade_msg", "message", "sub_msg"} {
		if value, ok := raw[key]; ok {
			if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return "渠道回调失败"
}

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}

func callbackRawBodyForLog(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return truncateCallbackLogValue(string(body))
}
