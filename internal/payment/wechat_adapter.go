package payment

import (
	"context"
	"net/http"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment/wechatpay"
)

// WechatAdapter 微信支付渠道适配器。
type WechatAdapter struct {
	cfg *wechatpay.Config
}

// NewWechatAdapter 由渠道配置构建微信适配器。
func NewWechatAdapter(channel *models.PaymentChannel) (Adapter, error) {
	cfg, err := wechatpay.ParseConfig(channel.ConfigJSON)
	if err != nil {
		return nil, err
	}
	return &WechatAdapter{cfg: cfg}, nil
}

func (a *WechatAdapter) Channel() string {
	return constants.ChannelWechat
}

func (a *WechatAdapter) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	result, err := wechatpay.CreatePayment(ctx, a.cfg, wechatpay.CreateInput{
		OrderNo:     req.OrderNo,
		Amount:      req.Amount,
		Description: req.Subject,
		ClientIP:    req.ClientIP,
		NotifyURL:   req.NotifyURL,
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{
		QRCode:        result.QRCode,
		ThirdPartyRef: result.PrepayID,
		Raw:           result.Raw,
	}, nil
}

func (a *WechatAdapter) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	result, err := wechatpay.CreateRefund(ctx, a.cfg, wechatpay.RefundInput{
		OrderNo:      req.OrderNo,
		RefundNo:     req.RefundNo,
		RefundAmount: req.Amount,
		TotalAmount:  req.TotalAmount,
		Reason:       req.Reason,
		NotifyURL:    req.NotifyURL,
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		Submitted:           true,
		Settled:             result.Status == constants.WechatTradeStateSuccess,
		ThirdPartyRefundRef: result.RefundID,
		Raw:                 result.Raw,
	}, nil
}

func (a *WechatAdapter) QueryPayment(ctx context.Context, orderNo string) (*StatusResult, error) {
	result, err := wechatpay.QueryOrderByOutTradeNo(ctx, a.cfg, orderNo)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Status:        wechatTradeStateToEvent(result.TradeState),
		ThirdPartyRef: result.TransactionID,
		Amount:        result.Amount,
		SettledAt:     result.PaidAt,
		Raw:           result.Raw,
	}, nil
}

func (a *WechatAdapter) QueryRefund(ctx context.Context, orderNo, refundNo string) (*StatusResult, error) {
	result, err := wechatpay.QueryRefundByOutRefundNo(ctx, a.cfg, refundNo)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Status:        wechatRefundStatusToEvent(result.Status),
		ThirdPartyRef: result.RefundID,
		Amount:        result.Amount,
		SettledAt:     result.SuccessTime,
		Raw:           result.Raw,
	}, nil
}

func (a *WechatAdapter) VerifyCallback(ctx context.Context, req CallbackRequest) error {
	_, err := wechatpay.VerifyAndDecodeWebhook(ctx, a.cfg, req.Headers, req.Body)
	return err
}

func (a *WechatAdapter) ParseCallback(ctx context.Context, req CallbackRequest) (*ChannelEvent, error) {
	result, err := wechatpay.VerifyAndDecodeWebhook(ctx, a.cfg, req.Headers, req.Body)
	if err != nil {
		return nil, err
	}
	event := &ChannelEvent{
		Channel:    constants.ChannelWechat,
		OrderNo:    result.OrderNo,
		Amount:     result.Amount,
		OccurredAt: result.SucceededAt,
		Raw:        result.Raw,
	}
	if result.IsRefund() {
		event.RefundNo = result.RefundNo
		event.ThirdPartyRef = result.RefundID
		event.Status = wechatRefundStatusToEvent(result.TradeState)
	} else {
		event.ThirdPartyRef = result.TransactionID
		event.Status = wechatTradeStateToEvent(result.TradeState)
	}
	return event, nil
}

func (a *WechatAdapter) SuccessAck() string {
	return constants.WechatCallbackSuccess
}

func (a *WechatAdapter) FailAck() string {
	return constants.WechatCallbackFail
}

// 微信 v3 将任意 2xx 应答视为受理成功，失败必须返回非 2xx 才会触发重推。
func (a *WechatAdapter) FailAckStatus() int {
	return http.StatusBadRequest
}

func wechatTradeStateToEvent(tradeState string) string {
	switch {
	case wechatpay.TradeStateSettled(tradeState):
		return EventStatusSuccess
	case wechatpay.TradeStateFailed(tradeState):
		return EventStatusFailed
	default:
		return EventStatusPending
	}
}

func wechatRefundStatusToEvent(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case constants.WechatTradeStateSuccess:
		return EventStatusSuccess
	case "ABNORMAL", constants.WechatTradeStateClosed:
		return EventStatusFailed
	default:
		return EventStatusPending
	}
}
