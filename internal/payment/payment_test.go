package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
)

func buildBankChannel() *models.PaymentChannel {
	return &models.PaymentChannel{
		Code: constants.ChannelBank,
		Name: "银行卡",
		ConfigJSON: models.JSON{
			"gateway_url":  "https://bank.example.com",
			"merchant_id":  "BANK-8001",
			"merchant_key": "test-merchant-key",
			"notify_url":   "https://example.com/api/v1/callbacks/bank",
		},
		IsActive: true,
	}
}

func TestRegistryConfigureAndGet(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFactory(constants.ChannelBank, NewBankAdapter)

	if err := registry.Configure(buildBankChannel()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	adapter, err := registry.Get(constants.ChannelBank)
	if err != nil {
		t.Fatalf("get adapter failed: %v", err)
	}
	if adapter.Channel() != constants.ChannelBank {
		t.Fatalf("unexpected channel: %s", adapter.Channel())
	}
	if adapter.SuccessAck() != constants.BankCallbackSuccess {
		t.Fatalf("unexpected success ack: %s", adapter.SuccessAck())
	}
	codes := registry.Codes()
	if len(codes) != 1 || codes[0] != constants.ChannelBank {
		t.Fatalf("unexpected codes: %v", codes)
	}
}

func TestRegistryUnknownChannel(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Get("unknown"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got: %v", err)
	}
	if err := registry.Configure(&models.PaymentChannel{Code: "unknown"}); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound for missing factory, got: %v", err)
	}
}

func TestRegistryConfigureInvalidConfig(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFactory(constants.ChannelBank, NewBankAdapter)
	channel := buildBankChannel()
	channel.ConfigJSON = nil
	if err := registry.Configure(channel); err == nil {
		t.Fatalf("expected config parse error")
	}
}

func TestBankAdapterParseCallback(t *testing.T) {
	adapter, err := NewBankAdapter(buildBankChannel())
	if err != nil {
		t.Fatalf("build adapter failed: %v", err)
	}
	event, err := adapter.ParseCallback(context.Background(), CallbackRequest{
		Form: map[string][]string{
			"out_trade_no": {"PAY-1"},
			"trade_status": {"SETTLED"},
			"amount":       {"10.00"},
			"bank_ref":     {"BK-1"},
		},
	})
	if err != nil {
		t.Fatalf("parse callback failed: %v", err)
	}
	if event.Status != EventStatusSuccess {
		t.Fatalf("unexpected status: %s", event.Status)
	}
	if event.IsRefund() {
		t.Fatalf("expected payment event")
	}
}
