package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/provider"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// fakeChannelAdapter 回调入口测试用适配器，验签与解析结果由字段控制。
type fakeChannelAdapter struct {
	channel    string
	verifyErr  error
	parseEvent *payment.ChannelEvent
	parseErr   error
	failStatus int
}

func (a *fakeChannelAdapter) Channel() string { return a.channel }

func (a *fakeChannelAdapter) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	return &payment.CreateResult{PayURL: "https://pay.example.com/" + req.OrderNo}, nil
}

func (a *fakeChannelAdapter) CreateRefund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	return &payment.RefundResult{Submitted: true}, nil
}

func (a *fakeChannelAdapter) QueryPayment(ctx context.Context, orderNo string) (*payment.StatusResult, error) {
	return nil, errors.New("not supported")
}

func (a *fakeChannelAdapter) QueryRefund(ctx context.Context, orderNo, refundNo string) (*payment.StatusResult, error) {
	return nil, errors.New("not supported")
}

func (a *fakeChannelAdapter) VerifyCallback(ctx context.Context, req payment.CallbackRequest) error {
	return a.verifyErr
}

func (a *fakeChannelAdapter) ParseCallback(ctx context.Context, req payment.CallbackRequest) (*payment.ChannelEvent, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return a.parseEvent, nil
}

func (a *fakeChannelAdapter) SuccessAck() string { return "success" }
func (a *fakeChannelAdapter) FailAck() string    { return "fail" }
func (a *fakeChannelAdapter) FailAckStatus() int { return a.failStatus }

func setupCallbackTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Operator{},
		&models.PaymentChannel{},
		&models.PaymentOrder{},
		&models.PaymentRecord{},
		&models.RefundOrder{},
		&models.RefundRecord{},
		&models.RiskRule{},
		&models.RiskRecord{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db
	return db
}

func setupCallbackHandlerTest(t *testing.T, name string, adapter *fakeChannelAdapter) (*Handler, *service.PaymentService) {
	t.Helper()
	db := setupCallbackTestDB(t, name)

	channel := &models.PaymentChannel{
		Code:     adapter.channel,
		Name:     "测试渠道",
		FeeRate:  models.NewMoneyFromDecimal(decimal.NewFromFloat(0.6)),
		IsActive: true,
	}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("create channel failed: %v", err)
	}
	registry := payment.NewRegistry()
	registry.RegisterFactory(adapter.channel, func(ch *models.PaymentChannel) (payment.Adapter, error) {
		return adapter, nil
	})
	if err := registry.Configure(channel); err != nil {
		t.Fatalf("configure registry failed: %v", err)
	}

	orderRepo := repository.NewPaymentOrderRepository(db)
	channelRepo := repository.NewPaymentChannelRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	ruleRepo := repository.NewRiskRuleRepository(db)
	riskRecordRepo := repository.NewRiskRecordRepository(db)
	refundRepo := repository.NewRefundOrderRepository(db)

	paymentCfg := config.PaymentConfig{
		ExpireMinutes:   30,
		MaxRetry:        2,
		AmountTolerance: "0.01",
	}
	riskSvc := service.NewRiskService(ruleRepo, riskRecordRepo, orderRepo, recordRepo, config.RiskConfig{})
	paymentSvc := service.NewPaymentService(orderRepo, channelRepo, recordRepo, registry, nil, riskSvc, nil, paymentCfg)
	refundSvc := service.NewRefundService(refundRepo, orderRepo, recordRepo, registry, nil, paymentCfg, config.RiskConfig{})

	h := New(&provider.Container{
		PaymentRegistry: registry,
		PaymentService:  paymentSvc,
		RefundService:   refundSvc,
	})
	return h, paymentSvc
}

func invokeChannelCallback(t *testing.T, h *Handler, channel, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/callbacks/"+channel, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Request = req
	c.Params = gin.Params{{Key: "channel", Value: channel}}
	h.ChannelCallback(c)
	return w
}

func createCallbackProcessingOrder(t *testing.T, svc *service.PaymentService, adapter *fakeChannelAdapter, bizID string, amount int64) *models.PaymentOrder {
	t.Helper()
	created, err := svc.CreatePayment(service.CreatePaymentInput{
		BusinessOrderID: bizID,
		UserID:          "u-cb-handler",
		Method:          adapter.channel,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	result, err := svc.InitiatePayment(service.InitiatePaymentInput{OrderNo: created.Order.OrderNo})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	return result.Order
}

func TestChannelCallbackUnknownChannel(t *testing.T) {
	adapter := &fakeChannelAdapter{channel: constants.ChannelAlipay, failStatus: http.StatusOK}
	h, _ := setupCallbackHandlerTest(t, "cb_handler_unknown", adapter)

	w := invokeChannelCallback(t, h, "nonexistent", "out_trade_no=PAY-1")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestChannelCallbackBadSignature(t *testing.T) {
	adapter := &fakeChannelAdapter{
		channel:    constants.ChannelWechat,
		verifyErr:  errors.New("signature mismatch"),
		failStatus: http.StatusBadRequest,
	}
	h, _ := setupCallbackHandlerTest(t, "cb_handler_badsign", adapter)

	w := invokeChannelCallback(t, h, adapter.channel, `{"id":"EV-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != adapter.FailAck() {
		t.Fatalf("expected body %q, got %q", adapter.FailAck(), got)
	}
}

func TestChannelCallbackParseFailure(t *testing.T) {
	adapter := &fakeChannelAdapter{
		channel:    constants.ChannelAlipay,
		parseErr:   errors.New("malformed payload"),
		failStatus: http.StatusOK,
	}
	h, _ := setupCallbackHandlerTest(t, "cb_handler_parse", adapter)

	w := invokeChannelCallback(t, h, adapter.channel, "not-a-form")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != adapter.FailAck() {
		t.Fatalf("expected body %q, got %q", adapter.FailAck(), got)
	}
}

func TestChannelCallbackUnresolvedOrder(t *testing.T) {
	adapter := &fakeChannelAdapter{
		channel: constants.ChannelWechat,
		parseEvent: &payment.ChannelEvent{
			Channel:       constants.ChannelWechat,
			OrderNo:       "PAY-NO-SUCH-ORDER",
			ThirdPartyRef: "TP-1",
			Status:        payment.EventStatusSuccess,
			Amount:        "100.00",
		},
		failStatus: http.StatusBadRequest,
	}
	h, _ := setupCallbackHandlerTest(t, "cb_handler_unresolved", adapter)

	w := invokeChannelCallback(t, h, adapter.channel, `{"id":"EV-2"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != adapter.FailAck() {
		t.Fatalf("expected body %q, got %q", adapter.FailAck(), got)
	}
}

func TestChannelCallbackDuplicateSettlement(t *testing.T) {
	adapter := &fakeChannelAdapter{channel: constants.ChannelAlipay, failStatus: http.StatusOK}
	h, svc := setupCallbackHandlerTest(t, "cb_handler_dup", adapter)
	order := createCallbackProcessingOrder(t, svc, adapter, "BIZ-CB-H1", 100)

	adapter.parseEvent = &payment.ChannelEvent{
		Channel:       adapter.channel,
		OrderNo:       order.OrderNo,
		ThirdPartyRef: "TP-DUP-1",
		Status:        payment.EventStatusSuccess,
		Amount:        "100.00",
	}

	w := invokeChannelCallback(t, h, adapter.channel, "out_trade_no="+order.OrderNo)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != adapter.SuccessAck() {
		t.Fatalf("first delivery expected success ack, got %d %q", w.Code, w.Body.String())
	}

	// 重复投递不报错，返回成功应答让渠道停止重推
	w = invokeChannelCallback(t, h, adapter.channel, "out_trade_no="+order.OrderNo)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != adapter.SuccessAck() {
		t.Fatalf("redelivery expected success ack, got %d %q", w.Code, w.Body.String())
	}
}

func TestChannelCallbackAmountMismatchAck(t *testing.T) {
	adapter := &fakeChannelAdapter{channel: constants.ChannelAlipay, failStatus: http.StatusOK}
	h, svc := setupCallbackHandlerTest(t, "cb_handler_mismatch", adapter)
	order := createCallbackProcessingOrder(t, svc, adapter, "BIZ-CB-H2", 100)

	adapter.parseEvent = &payment.ChannelEvent{
		Channel:       adapter.channel,
		OrderNo:       order.OrderNo,
		ThirdPartyRef: "TP-MM-1",
		Status:        payment.EventStatusSuccess,
		Amount:        "90.00",
	}

	// 金额超容差：订单挂起等待人工处理，但应答成功避免渠道重推
	w := invokeChannelCallback(t, h, adapter.channel, "out_trade_no="+order.OrderNo)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != adapter.SuccessAck() {
		t.Fatalf("mismatch expected success ack, got %d %q", w.Code, w.Body.String())
	}

	held, err := svc.GetPayment(order.OrderNo)
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if held.Status != constants.PaymentStatusProcessing {
		t.Fatalf("expected order held in processing, got %s", held.Status)
	}
}
