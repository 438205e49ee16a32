package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
)

var (
	ErrChannelNotFound   = errors.New("payment channel not found")
	ErrChannelDisabled   = errors.New("payment channel disabled")
	ErrCallbackUnmatched = errors.New("payment callback unmatched")
)

// EventStatus 渠道回调归一化后的交易状态。
const (
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
	EventStatusPending = "pending"
)

// CreateRequest 渠道下单输入。
type CreateRequest struct {
	OrderNo         string
	PaymentID       uint
	Amount          string
	Currency        string
	Subject         string
	ClientIP        string
	NotifyURL       string
	ReturnURL       string
	InteractionMode string
}

// CreateResult 渠道下单结果。
type CreateResult struct {
	PayURL        string
	QRCode        string
	ThirdPartyRef string
	Raw           map[string]interface{}
}

// RefundRequest 渠道退款输入。
type RefundRequest struct {
	RefundNo      string
	OrderNo       string
	ThirdPartyRef string
	Amount        string
	TotalAmount   string
	Reason        string
	NotifyURL     string
}

// RefundResult 渠道退款结果。submitted=true 表示受理成功、结果待回调或查询确认。
type RefundResult struct {
	Submitted           bool
	Settled             bool
	ThirdPartyRefundRef string
	Raw                 map[string]interface{}
}

// StatusResult 渠道侧订单/退款状态查询结果。
type StatusResult struct {
	Status        string
	ThirdPartyRef string
	Amount        string
	SettledAt     *time.Time
	Raw           map[string]interface{}
}

// ChannelEvent 渠道回调经验签、解析后的统一事件。
type ChannelEvent struct {
	Channel       string
	OrderNo       string
	RefundNo      string
	ThirdPartyRef string
	Status        string
	Amount        string
	OccurredAt    *time.Time
	Raw           map[string]interface{}
}

// IsRefund 回调是否属于退款单。
func (e *ChannelEvent) IsRefund() bool {
	return strings.TrimSpace(e.RefundNo) != ""
}

// CallbackRequest 渠道回调原始载荷。支付宝/银行走表单，微信走 JSON body + 签名头。
type CallbackRequest struct {
	Form    map[string][]string
	Headers map[string]string
	Body    []byte
}

// Adapter 渠道适配器统一接口。
type Adapter interface {
	Channel() string
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	QueryPayment(ctx context.Context, orderNo string) (*StatusResult, error)
	QueryRefund(ctx context.Context, orderNo, refundNo string) (*StatusResult, error)
	VerifyCallback(ctx context.Context, req CallbackRequest) error
	ParseCallback(ctx context.Context, req CallbackRequest) (*ChannelEvent, error)
	SuccessAck() string
	FailAck() string
	// FailAckStatus 失败应答的 HTTP 状态码。微信 v3 将任意 2xx 视为受理成功，
	// 失败应答必须携带非 2xx 状态码才能触发渠道重推。
	FailAckStatus() int
}

// Factory 由渠道配置构建适配器。
type Factory func(channel *models.PaymentChannel) (Adapter, error)

// Registry 渠道注册表，按渠道编码分发。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	adapters  map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		adapters:  make(map[string]Adapter),
	}
}

// RegisterFactory 注册渠道工厂。
func (r *Registry) RegisterFactory(code string, factory Factory) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || factory == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[code] = factory
}

// Configure 用数据库渠道配置实例化适配器，重复调用覆盖旧实例。
func (r *Registry) Configure(channel *models.PaymentChannel) error {
	if channel == nil {
		return ErrChannelNotFound
	}
	code := strings.ToLower(strings.TrimSpace(channel.Code))
	r.mu.Lock()
	defer r.mu.Unlock()
	factory, ok := r.factories[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, code)
	}
	adapter, err := factory(channel)
	if err != nil {
		return err
	}
	r.adapters[code] = adapter
	return nil
}

// Get 获取渠道适配器。
func (r *Registry) Get(code string) (Adapter, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, code)
	}
	return adapter, nil
}

// Codes 已配置的渠道编码。
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	return codes
}
