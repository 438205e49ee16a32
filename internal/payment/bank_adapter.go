package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment/bank"
)

// BankAdapter 银行卡网关渠道适配器。
type BankAdapter struct {
	cfg *bank.Config
}

// NewBankAdapter 由渠道配置构建银行网关适配器。
func NewBankAdapter(channel *models.PaymentChannel) (Adapter, error) {
	cfg, err := bank.ParseConfig(channel.ConfigJSON)
	if err != nil {
		return nil, err
	}
	return &BankAdapter{cfg: cfg}, nil
}

func (a *BankAdapter) Channel() string {
	return constants.ChannelBank
}

func (a *BankAdapter) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	result, err := bank.CreatePayment(ctx, a.cfg, bank.CreateInput{
		OrderNo:   req.OrderNo,
		Amount:    req.Amount,
		Subject:   req.Subject,
		ClientIP:  req.ClientIP,
		NotifyURL: req.NotifyURL,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{
		PayURL: result.PayURL,
		Raw:    result.Raw,
	}, nil
}

func (a *BankAdapter) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	result, err := bank.CreateRefund(ctx, a.cfg, bank.RefundInput{
		OrderNo:      req.OrderNo,
		RefundNo:     req.RefundNo,
		RefundAmount: req.Amount,
		Reason:       req.Reason,
		NotifyURL:    req.NotifyURL,
	})
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		Submitted:           true,
		Settled:             result.Status == constants.BankTradeStatusSuccess,
		ThirdPartyRefundRef: result.BankRefundRef,
		Raw:                 result.Raw,
	}, nil
}

func (a *BankAdapter) QueryPayment(ctx context.Context, orderNo string) (*StatusResult, error) {
	result, err := bank.QueryPayment(ctx, a.cfg, orderNo)
	if err != nil {
		return nil, err
	}
	return bankStatusResult(result), nil
}

func (a *BankAdapter) QueryRefund(ctx context.Context, orderNo, refundNo string) (*StatusResult, error) {
	result, err := bank.QueryRefund(ctx, a.cfg, refundNo)
	if err != nil {
		return nil, err
	}
	return bankStatusResult(result), nil
}

func (a *BankAdapter) VerifyCallback(ctx context.Context, req CallbackRequest) error {
	return bank.VerifyCallback(a.cfg, req.Form)
}

func (a *BankAdapter) ParseCallback(ctx context.Context, req CallbackRequest) (*ChannelEvent, error) {
	notification, err := bank.ParseCallback(req.Form)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallbackUnmatched, err)
	}
	return &ChannelEvent{
		Channel:       constants.ChannelBank,
		OrderNo:       notification.OrderNo,
		RefundNo:      notification.RefundNo,
		ThirdPartyRef: notification.BankRef,
		Status:        bankTradeStatusToEvent(notification.TradeStatus),
		Amount:        notification.Amount,
		OccurredAt:    notification.SettledAt,
		Raw:           notification.Raw,
	}, nil
}

func (a *BankAdapter) SuccessAck() string {
	return constants.BankCallbackSuccess
}

func (a *BankAdapter) FailAck() string {
	return constants.BankCallbackFail
}

// 银行网关以应答体 "ERROR" 标记失败，HTTP 状态码保持 200。
func (a *BankAdapter) FailAckStatus() int {
	return http.StatusOK
}

func bankStatusResult(result *bank.QueryResult) *StatusResult {
	return &StatusResult{
		Status:        bankTradeStatusToEvent(result.TradeStatus),
		ThirdPartyRef: result.BankRef,
		Amount:        result.Amount,
		SettledAt:     result.SettledAt,
		Raw:           result.Raw,
	}
}

func bankTradeStatusToEvent(tradeStatus string) string {
	switch strings.ToUpper(strings.TrimSpace(tradeStatus)) {
	case constants.BankTradeStatusSuccess:
		return EventStatusSuccess
	case constants.BankTradeStatusFailed:
		return EventStatusFailed
	default:
		return EventStatusPending
	}
}
