package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment/alipay"
)

// AlipayAdapter 支付宝渠道适配器。
type AlipayAdapter struct {
	cfg *alipay.Config
}

// NewAlipayAdapter 由渠道配置构建支付宝适配器。
func NewAlipayAdapter(channel *models.PaymentChannel) (Adapter, error) {
	cfg, err := alipay.ParseConfig(channel.ConfigJSON)
	if err != nil {
		return nil, err
	}
	return &AlipayAdapter{cfg: cfg}, nil
}

func (a *AlipayAdapter) Channel() string {
	return constants.ChannelAlipay
}

func (a *AlipayAdapter) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	mode := strings.TrimSpace(req.InteractionMode)
	if mode == "" {
		mode = constants.PaymentInteractionPage
	}
	result, err := alipay.CreatePayment(ctx, a.cfg, alipay.CreateInput{
		OrderNo:   req.OrderNo,
		Amount:    req.Amount,
		Subject:   req.Subject,
		NotifyURL: req.NotifyURL,
		ReturnURL: req.ReturnURL,
	}, mode)
	if err != nil {
		return nil, err
	}
	return &CreateResult{
		PayURL:        result.PayURL,
		QRCode:        result.QRCode,
		ThirdPartyRef: result.TradeNo,
		Raw:           result.Raw,
	}, nil
}

func (a *AlipayAdapter) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	result, err := alipay.CreateRefund(ctx, a.cfg, alipay.RefundInput{
		OrderNo:      req.OrderNo,
		TradeNo:      req.ThirdPartyRef,
		RefundNo:     req.RefundNo,
		RefundAmount: req.Amount,
		Reason:       req.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		Submitted:           true,
		Settled:             result.FundChanged,
		ThirdPartyRefundRef: result.TradeNo,
		Raw:                 result.Raw,
	}, nil
}

func (a *AlipayAdapter) QueryPayment(ctx context.Context, orderNo string) (*StatusResult, error) {
	result, err := alipay.QueryTrade(ctx, a.cfg, orderNo)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Status:        alipayTradeStatusToEvent(result.TradeStatus),
		ThirdPartyRef: result.TradeNo,
		Amount:        result.TotalAmount,
		SettledAt:     result.SendPayDate,
		Raw:           result.Raw,
	}, nil
}

func (a *AlipayAdapter) QueryRefund(ctx context.Context, orderNo, refundNo string) (*StatusResult, error) {
	result, err := alipay.QueryRefund(ctx, a.cfg, orderNo, refundNo)
	if err != nil {
		return nil, err
	}
	status := EventStatusPending
	if result.RefundSettled {
		status = EventStatusSuccess
	}
	return &StatusResult{
		Status:        status,
		ThirdPartyRef: result.TradeNo,
		Amount:        result.RefundAmount,
		SettledAt:     result.GmtRefundPay,
		Raw:           result.Raw,
	}, nil
}

func (a *AlipayAdapter) VerifyCallback(ctx context.Context, req CallbackRequest) error {
	return alipay.VerifyCallback(a.cfg, req.Form)
}

func (a *AlipayAdapter) ParseCallback(ctx context.Context, req CallbackRequest) (*ChannelEvent, error) {
	notification, err := alipay.ParseCallback(req.Form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackUnmatched, err)
	}
	event := &ChannelEvent{
		Channel:       constants.ChannelAlipay,
		OrderNo:       notification.OutTradeNo,
		ThirdPartyRef: notification.TradeNo,
		Raw:           notification.Raw,
	}
	if notification.IsRefundPush {
		event.RefundNo = notification.OutBizNo
		event.Amount = notification.RefundFee
		event.OccurredAt = notification.GmtRefund
		// 支付宝退款通知仅在退款成功时推送
		event.Status = EventStatusSuccess
		return event, nil
	}
	event.Amount = notification.TotalAmount
	event.OccurredAt = notification.GmtPayment
	event.Status = alipayTradeStatusToEvent(notification.TradeStatus)
	return event, nil
}

func (a *AlipayAdapter) SuccessAck() string {
	return constants.AlipayCallbackSuccess
}

func (a *AlipayAdapter) FailAck() string {
	return constants.AlipayCallbackFail
}

// 支付宝协议以应答体 "fail" 标记失败，HTTP 状态码保持 200。
func (a *AlipayAdapter) FailAckStatus() int {
	return http.StatusOK
}

func alipayTradeStatusToEvent(tradeStatus string) string {
	switch strings.ToUpper(strings.TrimSpace(tradeStatus)) {
	case constants.AlipayTradeStatusSuccess, constants.AlipayTradeStatusFinished:
		return EventStatusSuccess
	case constants.AlipayTradeStatusClosed:
		return EventStatusFailed
	default:
		return EventStatusPending
	}
}
