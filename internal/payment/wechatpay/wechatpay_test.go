package wechatpay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
)

func TestParseAndValidateConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"appid":                "wx1234567890",
		"mchid":                "1900000109",
		"merchant_serial_no":   "ABC123456789",
		"merchant_private_key": buildTestPrivateKey(),
		"api_v3_key":           "12345678901234567890123456789012",
		"notify_url":           "https://example.com/api/v1/callbacks/wechat",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("base url should fallback to default, got: %s", cfg.BaseURL)
	}
	if cfg.RefundNotifyURL != cfg.NotifyURL {
		t.Fatalf("refund notify url should fallback to notify url")
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestValidateConfigInvalidAPIV3KeyLength(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"appid":                "wx1234567890",
		"mchid":                "1900000109",
		"merchant_serial_no":   "ABC123456789",
		"merchant_private_key": buildTestPrivateKey(),
		"api_v3_key":           "short-key",
		"notify_url":           "https://example.com/api/v1/callbacks/wechat",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if err := ValidateConfig(cfg); err == nil {
		t.Fatalf("expected invalid api_v3_key length error")
	}
}

func TestCreatePaymentNativeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/v3/pay/transactions/native" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body failed: %v", err)
		}
		if payload["out_trade_no"] != "PAY-1001" {
			t.Fatalf("unexpected out_trade_no: %v", payload["out_trade_no"])
		}
		amount, ok := payload["amount"].(map[string]interface{})
		if !ok {
			t.Fatalf("amount payload missing")
		}
		if amount["total"] != float64(1050) {
			t.Fatalf("unexpected amount total: %v", amount["total"])
		}
		if amount["currency"] != "CNY" {
			t.Fatalf("unexpected amount currency: %v", amount["currency"])
		}
		sceneInfo, ok := payload["scene_info"].(map[string]interface{})
		if !ok {
			t.Fatalf("scene_info missing")
		}
		if sceneInfo["payer_client_ip"] != "127.0.0.1" {
			t.Fatalf("unexpected payer_client_ip: %v", sceneInfo["payer_client_ip"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code_url":"weixin://wxpay/bizpayurl?pr=mocked","prepay_id":"wx123"}`))
	}))
	defer server.Close()

	cfg := buildTestConfig(t, server.URL)
	result, err := CreatePayment(context.Background(), cfg, CreateInput{
		OrderNo:     "PAY-1001",
		Amount:      "10.50",
		Description: "测试订单",
		ClientIP:    "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if result.QRCode != "weixin://wxpay/bizpayurl?pr=mocked" {
		t.Fatalf("unexpected qrcode: %s", result.QRCode)
	}
	if result.PrepayID != "wx123" {
		t.Fatalf("unexpected prepay_id: %s", result.PrepayID)
	}
}

func TestCreatePaymentResponseInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"INVALID_REQUEST"}`))
	}))
	defer server.Close()

	cfg := buildTestConfig(t, server.URL)
	_, err := CreatePayment(context.Background(), cfg, CreateInput{
		OrderNo:  "PAY-1003",
		Amount:   "2.00",
		ClientIP: "127.0.0.1",
	})
	if !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("expected ErrResponseInvalid, got: %v", err)
	}
}

func TestCreateRefundSubmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/refund/domestic/refunds" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body failed: %v", err)
		}
		if payload["out_refund_no"] != "REF-2001" {
			t.Fatalf("unexpected out_refund_no: %v", payload["out_refund_no"])
		}
		amount, ok := payload["amount"].(map[string]interface{})
		if !ok {
			t.Fatalf("amount payload missing")
		}
		if amount["refund"] != float64(500) {
			t.Fatalf("unexpected refund amount: %v", amount["refund"])
		}
		if amount["total"] != float64(1000) {
			t.Fatalf("unexpected total amount: %v", amount["total"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"refund_id":"50300000001","status":"PROCESSING","out_refund_no":"REF-2001"}`))
	}))
	defer server.Close()

	cfg := buildTestConfig(t, server.URL)
	result, err := CreateRefund(context.Background(), cfg, RefundInput{
		OrderNo:      "PAY-2001",
		RefundNo:     "REF-2001",
		RefundAmount: "5.00",
		TotalAmount:  "10.00",
		Reason:       "用户申请退款",
	})
	if err != nil {
		t.Fatalf("create refund failed: %v", err)
	}
	if result.RefundID != "50300000001" {
		t.Fatalf("unexpected refund_id: %s", result.RefundID)
	}
	if result.Status != "PROCESSING" {
		t.Fatalf("unexpected status: %s", result.Status)
	}
}

func TestCreateRefundExceedsTotal(t *testing.T) {
	cfg := buildTestConfig(t, defaultBaseURL)
	_, err := CreateRefund(context.Background(), cfg, RefundInput{
		OrderNo:      "PAY-2002",
		RefundNo:     "REF-2002",
		RefundAmount: "20.00",
		TotalAmount:  "10.00",
	})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got: %v", err)
	}
}

func TestQueryOrderByOutTradeNoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/v3/pay/transactions/out-trade-no/PAY-3001" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("mchid") != "1900000109" {
			t.Fatalf("unexpected mchid: %s", r.URL.Query().Get("mchid"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"out_trade_no":"PAY-3001",
			"transaction_id":"4200002001202608290000001",
			"trade_state":"SUCCESS",
			"success_time":"2026-08-29T10:00:00+08:00",
			"amount":{"total":1234,"currency":"CNY"}
		}`))
	}))
	defer server.Close()

	cfg := buildTestConfig(t, server.URL)
	result, err := QueryOrderByOutTradeNo(context.Background(), cfg, "PAY-3001")
	if err != nil {
		t.Fatalf("query order failed: %v", err)
	}
	if result.TradeState != constants.WechatTradeStateSuccess {
		t.Fatalf("unexpected trade_state: %s", result.TradeState)
	}
	if result.Amount != "12.34" {
		t.Fatalf("unexpected amount: %s", result.Amount)
	}
	if result.PaidAt == nil {
		t.Fatalf("expected success_time parsed")
	}
}

func TestQueryRefundByOutRefundNoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/refund/domestic/refunds/REF-3001" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"out_refund_no":"REF-3001",
			"out_trade_no":"PAY-3001",
			"refund_id":"50300000002",
			"status":"SUCCESS",
			"success_time":"2026-08-29T11:00:00+08:00",
			"amount":{"refund":500,"total":1234}
		}`))
	}))
	defer server.Close()

	cfg := buildTestConfig(t, server.URL)
	result, err := QueryRefundByOutRefundNo(context.Background(), cfg, "REF-3001")
	if err != nil {
		t.Fatalf("query refund failed: %v", err)
	}
	if result.Status != "SUCCESS" {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.Amount != "5.00" {
		t.Fatalf("unexpected amount: %s", result.Amount)
	}
}

func TestTradeStateMapping(t *testing.T) {
	if !TradeStateSettled("SUCCESS") {
		t.Fatalf("SUCCESS should be settled")
	}
	if TradeStateSettled("NOTPAY") {
		t.Fatalf("NOTPAY should not be settled")
	}
	if !TradeStateFailed("PAYERROR") {
		t.Fatalf("PAYERROR should be failed")
	}
	if TradeStateFailed("USERPAYING") {
		t.Fatalf("USERPAYING should not be failed")
	}
}

func buildTestConfig(t *testing.T, baseURL string) *Config {
	t.Helper()
	cfg, err := ParseConfig(map[string]interface{}{
		"appid":                "wx1234567890",
		"mchid":                "1900000109",
		"merchant_serial_no":   "ABC123456789",
		"merchant_private_key": buildTestPrivateKey(),
		"api_v3_key":           "12345678901234567890123456789012",
		"notify_url":           "https://example.com/api/v1/callbacks/wechat",
		"base_url":             baseURL,
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	return cfg
}

func buildTestPrivateKey() string {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	privateKeyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		panic(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyDER}))
}
