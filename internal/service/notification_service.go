package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
)

// NotificationService 业务方通知服务。
// 支付/退款到达终态后回调业务订单服务；未配置地址时全部跳过。
type NotificationService struct {
	baseURL string
	client  *http.Client
}

// NewNotificationService 创建业务方通知服务
func NewNotificationService(cfg config.NotifyConfig) *NotificationService {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationService{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BusinessOrderBaseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled 是否配置了业务订单服务地址
func (s *NotificationService) Enabled() bool {
	return s != nil && s.baseURL != ""
}

// ValidateBusinessOrder 校验业务订单是否存在且可支付。未配置地址时跳过。
func (s *NotificationService) ValidateBusinessOrder(ctx context.Context, businessOrderID string) error {
	if !s.Enabled() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	url := fmt.Sprintf("%s/api/orders/%s", s.baseURL, businessOrderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("业务订单服务返回 %d", resp.StatusCode)
	}
	return nil
}

// NotifyPaymentResult 通知支付结果
func (s *NotificationService) NotifyPaymentResult(ctx context.Context, order *models.PaymentOrder) error {
	if !s.Enabled() || order == nil {
		return nil
	}
	payload := map[string]interface{}{
		"order_no":          order.OrderNo,
		"business_order_id": order.BusinessOrderID,
		"status":            order.Status,
		"amount":            order.Amount.String(),
		"actual_amount":     order.ActualAmount.String(),
		"third_party_ref":   order.ThirdPartyRef,
	}
	if order.SettledAt != nil {
		payload["settled_at"] = order.SettledAt.Unix()
	}
	return s.post(ctx, "/api/payment-results", payload, "order_no", order.OrderNo)
}

// NotifyRefundResult 通知退款结果
func (s *NotificationService) NotifyRefundResult(ctx context.Context, refund *models.RefundOrder, orderNo string) error {
	if !s.Enabled() || refund == nil {
		return nil
	}
	payload := map[string]interface{}{
		"refund_no":              refund.RefundNo,
		"order_no":               orderNo,
		"status":                 refund.Status,
		"amount":                 refund.Amount.String(),
		"actual_amount":          refund.ActualAmount.String(),
		"third_party_refund_ref": refund.ThirdPartyRefundRef,
	}
	if refund.RefundedAt != nil {
		payload["refunded_at"] = refund.RefundedAt.Unix()
	}
	return s.post(ctx, "/api/refund-results", payload, "refund_no", refund.RefundNo)
}

func (s *NotificationService) post(ctx context.Context, path string, payload map[string]interface{}, logKey, logValue string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		logger.SW(logKey, logValue).Warnw("business_notify_request_failed", "error", err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("业务订单服务返回 %d", resp.StatusCode)
		logger.SW(logKey, logValue).Warnw("business_notify_rejected", "status_code", resp.StatusCode)
		return err
	}
	logger.SW(logKey, logValue).Infow("business_notify_sent", "path", path)
	return nil
}
