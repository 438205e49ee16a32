package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// stubAdapter 测试用渠道适配器，行为由字段控制。
type stubAdapter struct {
	channel      string
	createResult *payment.CreateResult
	createErr    error
	refundResult *payment.RefundResult
	refundErr    error
	queryResult  *payment.StatusResult
	queryErr     error
}

func (a *stubAdapter) Channel() string { return a.channel }

func (a *stubAdapter) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.CreateResult, error) {
	if a.createErr != nil {
		return nil, a.createErr
	}
	if a.createResult != nil {
		return a.createResult, nil
	}
	return &payment.CreateResult{
		PayURL:        "https://pay.example.com/" + req.OrderNo,
		ThirdPartyRef: "TP-" + req.OrderNo,
	}, nil
}

func (a *stubAdapter) CreateRefund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	if a.refundErr != nil {
		return nil, a.refundErr
	}
	if a.refundResult != nil {
		return a.refundResult, nil
	}
	return &payment.RefundResult{
		Submitted:           true,
		ThirdPartyRefundRef: "TPR-" + req.RefundNo,
	}, nil
}

func (a *stubAdapter) QueryPayment(ctx context.Context, orderNo string) (*payment.StatusResult, error) {
	if a.queryErr != nil {
		return nil, a.queryErr
	}
	if a.queryResult != nil {
		return a.queryResult, nil
	}
	return &payment.StatusResult{Status: payment.EventStatusPending}, nil
}

func (a *stubAdapter) QueryRefund(ctx context.Context, orderNo, refundNo string) (*payment.StatusResult, error) {
	return a.QueryPayment(ctx, orderNo)
}

func (a *stubAdapter) VerifyCallback(ctx context.Context, req payment.CallbackRequest) error {
	return nil
}

func (a *stubAdapter) ParseCallback(ctx context.Context, req payment.CallbackRequest) (*payment.ChannelEvent, error) {
	return nil, payment.ErrCallbackUnmatched
}

func (a *stubAdapter) SuccessAck() string { return "success" }
func (a *stubAdapter) FailAck() string    { return "fail" }
func (a *stubAdapter) FailAckStatus() int { return http.StatusOK }

func setupServiceTestDB(t *testing.T, name string) *gorm.DB {
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

func setupTestRegistry(t *testing.T, db *gorm.DB, adapter *stubAdapter) *payment.Registry {
	t.Helper()
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
	return registry
}

func setupPaymentServiceTest(t *testing.T, name string) (*PaymentService, *RiskService, *stubAdapter, *gorm.DB) {
	t.Helper()
	db := setupServiceTestDB(t, name)
	adapter := &stubAdapter{channel: constants.ChannelAlipay}
	registry := setupTestRegistry(t, db, adapter)

	orderRepo := repository.NewPaymentOrderRepository(db)
	channelRepo := repository.NewPaymentChannelRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	ruleRepo := repository.NewRiskRuleRepository(db)
	riskRecordRepo := repository.NewRiskRecordRepository(db)

	riskSvc := NewRiskService(ruleRepo, riskRecordRepo, orderRepo, recordRepo, config.RiskConfig{})
	paymentSvc := NewPaymentService(orderRepo, channelRepo, recordRepo, registry, nil, riskSvc, nil, config.PaymentConfig{
		ExpireMinutes:   30,
		MaxRetry:        2,
		AmountTolerance: "0.01",
	})
	return paymentSvc, riskSvc, adapter, db
}

func createDenyRule(t *testing.T, db *gorm.DB, clientIP string) {
	t.Helper()
	rule := models.RiskRule{
		RuleID:  "RULE-TEST-DENY",
		Name:    "黑名单测试规则",
		Type:    constants.RiskRuleTypeIPBlacklist,
		Weight:  80,
		Level:   constants.RiskLevelCritical,
		Action:  constants.RiskActionDeny,
		Enabled: true,
		Config:  fmt.Sprintf(`{"ips":["%s"]}`, clientIP),
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create deny rule failed: %v", err)
	}
}

func createReviewRule(t *testing.T, db *gorm.DB, threshold int64) {
	t.Helper()
	rule := models.RiskRule{
		RuleID:    "RULE-TEST-REVIEW",
		Name:      "大额审核测试规则",
		Type:      constants.RiskRuleTypeAmountLimit,
		Threshold: models.NewMoneyFromDecimal(decimal.NewFromInt(threshold)),
		Weight:    40,
		Level:     constants.RiskLevelHigh,
		Action:    constants.RiskActionManualReview,
		Enabled:   true,
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create review rule failed: %v", err)
	}
}

func TestCreatePaymentRiskAllow(t *testing.T) {
	svc, _, _, db := setupPaymentServiceTest(t, "payment_create_allow")

	result, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-001",
		UserID:          "u-1",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Subject:         "测试订单",
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if result.Order.Status != constants.PaymentStatusPendingPayment {
		t.Fatalf("status = %s, want pending_payment", result.Order.Status)
	}
	if result.Order.Currency != constants.SiteCurrencyDefault {
		t.Fatalf("currency = %s, want default", result.Order.Currency)
	}
	if result.RiskRecord == nil || result.RiskRecord.Result != constants.RiskResultPassed {
		t.Fatalf("risk record = %+v, want passed", result.RiskRecord)
	}

	var records []models.PaymentRecord
	if err := db.Where("payment_order_id = ?", result.Order.ID).Order("id").Find(&records).Error; err != nil {
		t.Fatalf("load records failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	if records[0].Action != constants.RecordActionCreated || records[1].Action != constants.RecordActionInitiated {
		t.Fatalf("record actions = %s/%s", records[0].Action, records[1].Action)
	}
}

func TestCreatePaymentRiskDenied(t *testing.T) {
	svc, _, _, db := setupPaymentServiceTest(t, "payment_create_denied")
	createDenyRule(t, db, "203.0.113.9")

	result, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-002",
		UserID:          "u-1",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		ClientIP:        "203.0.113.9",
	})
	if !errors.Is(err, ErrRiskDenied) {
		t.Fatalf("err = %v, want ErrRiskDenied", err)
	}
	if result == nil || result.Order.Status != constants.PaymentStatusDenied {
		t.Fatalf("order = %+v, want denied", result)
	}
	if result.RiskRecord.Result != constants.RiskResultBlocked {
		t.Fatalf("risk result = %s, want blocked", result.RiskRecord.Result)
	}
}

func TestCreatePaymentManualReviewThenApprove(t *testing.T) {
	svc, riskSvc, _, _ := setupPaymentServiceTest(t, "payment_create_review")
	createReviewRule(t, models.DB, 500)

	result, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-003",
		UserID:          "u-2",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(800)),
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	if result.Order.Status != constants.PaymentStatusPendingRisk {
		t.Fatalf("status = %s, want pending_risk", result.Order.Status)
	}
	if result.RiskRecord.ReviewStatus != constants.RiskReviewPending {
		t.Fatalf("review status = %s, want pending", result.RiskRecord.ReviewStatus)
	}

	record, err := riskSvc.Review(RiskReviewInput{
		RecordID: result.RiskRecord.RecordID,
		Reviewer: "reviewer-1",
		Approve:  true,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if record.ReviewStatus != constants.RiskReviewApproved {
		t.Fatalf("review status = %s, want approved", record.ReviewStatus)
	}

	order, err := svc.GetPayment(result.Order.OrderNo)
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if order.Status != constants.PaymentStatusPendingPayment {
		t.Fatalf("status after review = %s, want pending_payment", order.Status)
	}

	if _, err := riskSvc.Review(RiskReviewInput{
		RecordID: result.RiskRecord.RecordID,
		Reviewer: "reviewer-2",
		Approve:  false,
	}); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("second review err = %v, want ErrAlreadyReviewed", err)
	}
}

func TestCreatePaymentDuplicateBusinessOrder(t *testing.T) {
	svc, _, _, _ := setupPaymentServiceTest(t, "payment_create_dup")

	input := CreatePaymentInput{
		BusinessOrderID: "BIZ-DUP",
		UserID:          "u-1",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
	}
	if _, err := svc.CreatePayment(input); err != nil {
		t.Fatalf("first CreatePayment failed: %v", err)
	}
	if _, err := svc.CreatePayment(input); !errors.Is(err, ErrDuplicateBusinessOrder) {
		t.Fatalf("err = %v, want ErrDuplicateBusinessOrder", err)
	}
}

func TestCreatePaymentChannelChecks(t *testing.T) {
	svc, _, _, db := setupPaymentServiceTest(t, "payment_create_channel")

	if _, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-010",
		UserID:          "u-1",
		Method:          constants.ChannelBank,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
	}); !errors.Is(err, ErrPaymentChannelNotFound) {
		t.Fatalf("unknown channel err = %v, want ErrPaymentChannelNotFound", err)
	}

	if err := db.Model(&models.PaymentChannel{}).
		Where("code = ?", constants.ChannelAlipay).
		Update("is_active", false).Error; err != nil {
		t.Fatalf("disable channel failed: %v", err)
	}
	if _, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-011",
		UserID:          "u-1",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
	}); !errors.Is(err, ErrPaymentChannelInactive) {
		t.Fatalf("inactive channel err = %v, want ErrPaymentChannelInactive", err)
	}
}

func TestInitiatePayment(t *testing.T) {
	svc, _, adapter, _ := setupPaymentServiceTest(t, "payment_initiate")
	adapter.createResult = &payment.CreateResult{
		PayURL:        "https://pay.example.com/x",
		QRCode:        "qr-data",
		ThirdPartyRef: "TP-XYZ",
		Raw:           map[string]interface{}{"trade_no": "TP-XYZ"},
	}

	created, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-020",
		UserID:          "u-3",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(200)),
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}

	result, err := svc.InitiatePayment(InitiatePaymentInput{OrderNo: created.Order.OrderNo})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	if result.Order.Status != constants.PaymentStatusProcessing {
		t.Fatalf("status = %s, want processing", result.Order.Status)
	}
	if result.PayURL != "https://pay.example.com/x" || result.Order.ThirdPartyRef != "TP-XYZ" {
		t.Fatalf("result = %+v", result)
	}

	// processing 状态不允许重复发起
	if _, err := svc.InitiatePayment(InitiatePaymentInput{OrderNo: created.Order.OrderNo}); !errors.Is(err, ErrPaymentStatusInvalid) {
		t.Fatalf("second initiate err = %v, want ErrPaymentStatusInvalid", err)
	}
}

func createProcessingOrder(t *testing.T, svc *PaymentService, adapter *stubAdapter, bizID string, amount int64) *models.PaymentOrder {
	t.Helper()
	created, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: bizID,
		UserID:          "u-cb",
		Method:          adapter.channel,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	result, err := svc.InitiatePayment(InitiatePaymentInput{OrderNo: created.Order.OrderNo})
	if err != nil {
		t.Fatalf("InitiatePayment failed: %v", err)
	}
	return result.Order
}

func TestApplyCallbackSuccessIdempotent(t *testing.T) {
	svc, _, adapter, _ := setupPaymentServiceTest(t, "payment_cb_success")
	adapter.createResult = &payment.CreateResult{PayURL: "u", ThirdPartyRef: ""}
	order := createProcessingOrder(t, svc, adapter, "BIZ-CB-1", 100)

	updated, err := svc.ApplyCallbackSuccess(CallbackApplyInput{
		OrderNo:       order.OrderNo,
		ThirdPartyRef: "TP-CB-1",
		Amount:        "100.00",
		Raw:           map[string]interface{}{"trade_status": "TRADE_SUCCESS"},
		Source:        "callback",
	})
	if err != nil {
		t.Fatalf("ApplyCallbackSuccess failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusSuccess {
		t.Fatalf("status = %s, want success", updated.Status)
	}
	if updated.ThirdPartyRef != "TP-CB-1" {
		t.Fatalf("third party ref = %s", updated.ThirdPartyRef)
	}
	// 0.6% 费率
	if updated.FeeAmount.Decimal.Cmp(decimal.RequireFromString("0.60")) != 0 {
		t.Fatalf("fee = %s, want 0.60", updated.FeeAmount.String())
	}

	again, err := svc.ApplyCallbackSuccess(CallbackApplyInput{
		OrderNo:       order.OrderNo,
		ThirdPartyRef: "TP-CB-1",
		Amount:        "100.00",
		Source:        "callback",
	})
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("repeat err = %v, want ErrAlreadySettled", err)
	}
	if again == nil || again.Status != constants.PaymentStatusSuccess {
		t.Fatalf("repeat order = %+v", again)
	}
}

func TestApplyCallbackAmountMismatchHeld(t *testing.T) {
	svc, _, adapter, db := setupPaymentServiceTest(t, "payment_cb_amount")
	adapter.createResult = &payment.CreateResult{PayURL: "u"}
	order := createProcessingOrder(t, svc, adapter, "BIZ-CB-2", 100)

	if _, err := svc.ApplyCallbackSuccess(CallbackApplyInput{
		OrderNo: order.OrderNo,
		Amount:  "90.00",
		Source:  "callback",
	}); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("err = %v, want ErrAmountMismatch", err)
	}

	reloaded, err := svc.GetPayment(order.OrderNo)
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if reloaded.Status != constants.PaymentStatusProcessing {
		t.Fatalf("status = %s, want processing kept", reloaded.Status)
	}

	var count int64
	db.Model(&models.PaymentRecord{}).
		Where("payment_order_id = ? AND action = ?", order.ID, constants.RecordActionAmountMismatch).
		Count(&count)
	if count != 1 {
		t.Fatalf("amount mismatch record count = %d, want 1", count)
	}

	// 容差内的偏差正常结算
	updated, err := svc.ApplyCallbackSuccess(CallbackApplyInput{
		OrderNo: order.OrderNo,
		Amount:  "99.99",
		Source:  "callback",
	})
	if err != nil {
		t.Fatalf("within tolerance failed: %v", err)
	}
	if updated.ActualAmount.Decimal.Cmp(decimal.RequireFromString("99.99")) != 0 {
		t.Fatalf("actual amount = %s", updated.ActualAmount.String())
	}
}

func TestApplyCallbackRefConflict(t *testing.T) {
	svc, _, adapter, _ := setupPaymentServiceTest(t, "payment_cb_ref")
	adapter.createResult = &payment.CreateResult{PayURL: "u", ThirdPartyRef: "TP-FIRST"}
	order := createProcessingOrder(t, svc, adapter, "BIZ-CB-3", 100)

	if _, err := svc.ApplyCallbackSuccess(CallbackApplyInput{
		OrderNo:       order.OrderNo,
		ThirdPartyRef: "TP-OTHER",
		Amount:        "100.00",
		Source:        "callback",
	}); !errors.Is(err, ErrThirdPartyRefConflict) {
		t.Fatalf("err = %v, want ErrThirdPartyRefConflict", err)
	}
}

func TestApplyCallbackFailureRetryThenTerminal(t *testing.T) {
	svc, _, adapter, _ := setupPaymentServiceTest(t, "payment_cb_fail")
	adapter.createResult = &payment.CreateResult{PayURL: "u"}
	order := createProcessingOrder(t, svc, adapter, "BIZ-CB-4", 100)

	// MaxRetry=2：第一次失败回退待支付
	updated, err := svc.ApplyCallbackFailure(CallbackApplyInput{
		OrderNo: order.OrderNo,
		Reason:  "余额不足",
		Source:  "callback",
	})
	if err != nil {
		t.Fatalf("first failure apply failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusPendingPayment || updated.RetryCount != 1 {
		t.Fatalf("order = %s/%d, want pending_payment/1", updated.Status, updated.RetryCount)
	}
	if updated.FailureReason != "余额不足" {
		t.Fatalf("failure reason = %s", updated.FailureReason)
	}

	if _, err := svc.InitiatePayment(InitiatePaymentInput{OrderNo: order.OrderNo}); err != nil {
		t.Fatalf("re-initiate failed: %v", err)
	}
	updated, err = svc.ApplyCallbackFailure(CallbackApplyInput{
		OrderNo: order.OrderNo,
		Reason:  "渠道拒绝",
		Source:  "callback",
	})
	if err != nil {
		t.Fatalf("second failure apply failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusFailed || updated.RetryCount != 2 {
		t.Fatalf("order = %s/%d, want failed/2", updated.Status, updated.RetryCount)
	}

	// 终态后的失败回调按无操作处理
	again, err := svc.ApplyCallbackFailure(CallbackApplyInput{OrderNo: order.OrderNo, Source: "callback"})
	if err != nil {
		t.Fatalf("terminal failure apply failed: %v", err)
	}
	if again.Status != constants.PaymentStatusFailed || again.RetryCount != 2 {
		t.Fatalf("terminal order = %s/%d", again.Status, again.RetryCount)
	}
}

func TestApplyCallbackFailureRedeliveryDoesNotEscalate(t *testing.T) {
	db := setupServiceTestDB(t, "payment_cb_fail_redelivery")
	adapter := &stubAdapter{channel: constants.ChannelAlipay}
	registry := setupTestRegistry(t, db, adapter)

	orderRepo := repository.NewPaymentOrderRepository(db)
	channelRepo := repository.NewPaymentChannelRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	riskSvc := NewRiskService(repository.NewRiskRuleRepository(db), repository.NewRiskRecordRepository(db), orderRepo, recordRepo, config.RiskConfig{})
	svc := NewPaymentService(orderRepo, channelRepo, recordRepo, registry, nil, riskSvc, nil, config.PaymentConfig{
		ExpireMinutes: 30,
		MaxRetry:      3,
	})
	adapter.createResult = &payment.CreateResult{PayURL: "u"}
	order := createProcessingOrder(t, svc, adapter, "BIZ-CB-RD", 100)

	updated, err := svc.ApplyCallbackFailure(CallbackApplyInput{
		OrderNo: order.OrderNo,
		Reason:  "余额不足",
		Source:  "callback",
	})
	if err != nil {
		t.Fatalf("first failure apply failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusPendingPayment || updated.RetryCount != 1 {
		t.Fatalf("order = %s/%d, want pending_payment/1", updated.Status, updated.RetryCount)
	}

	// 未重新发起支付时的重复失败投递：不吃重试预算，不落终态
	updated, err = svc.ApplyCallbackFailure(CallbackApplyInput{
		OrderNo: order.OrderNo,
		Reason:  "余额不足",
		Source:  "callback",
	})
	if err != nil {
		t.Fatalf("redelivered failure apply failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusPendingPayment || updated.RetryCount != 1 {
		t.Fatalf("order = %s/%d, want pending_payment/1 after redelivery", updated.Status, updated.RetryCount)
	}

	// 完整走满 3 次 processing 失败才允许落终态
	for i := 2; i <= 3; i++ {
		if _, err := svc.InitiatePayment(InitiatePaymentInput{OrderNo: order.OrderNo}); err != nil {
			t.Fatalf("re-initiate %d failed: %v", i, err)
		}
		updated, err = svc.ApplyCallbackFailure(CallbackApplyInput{
			OrderNo: order.OrderNo,
			Reason:  "渠道拒绝",
			Source:  "callback",
		})
		if err != nil {
			t.Fatalf("failure apply %d failed: %v", i, err)
		}
	}
	if updated.Status != constants.PaymentStatusFailed || updated.RetryCount != 3 {
		t.Fatalf("order = %s/%d, want failed/3", updated.Status, updated.RetryCount)
	}
}

func TestCancelPayment(t *testing.T) {
	svc, _, adapter, _ := setupPaymentServiceTest(t, "payment_cancel")

	created, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-CANCEL",
		UserID:          "u-1",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	cancelled, err := svc.CancelPayment(created.Order.OrderNo, "ADMIN", "用户放弃")
	if err != nil {
		t.Fatalf("CancelPayment failed: %v", err)
	}
	if cancelled.Status != constants.PaymentStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// processing 之后不可取消
	order := createProcessingOrder(t, svc, adapter, "BIZ-CANCEL-2", 30)
	if _, err := svc.CancelPayment(order.OrderNo, "ADMIN", ""); !errors.Is(err, ErrInvalidStateForCancel) {
		t.Fatalf("err = %v, want ErrInvalidStateForCancel", err)
	}
}

func TestQueryStatusAppliesChannelResult(t *testing.T) {
	svc, _, adapter, _ := setupPaymentServiceTest(t, "payment_query")
	adapter.createResult = &payment.CreateResult{PayURL: "u"}
	order := createProcessingOrder(t, svc, adapter, "BIZ-QUERY", 100)

	adapter.queryResult = &payment.StatusResult{
		Status:        payment.EventStatusSuccess,
		ThirdPartyRef: "TP-QRY",
		Amount:        "100.00",
	}
	updated, err := svc.QueryStatus(context.Background(), order.OrderNo)
	if err != nil {
		t.Fatalf("QueryStatus failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusSuccess {
		t.Fatalf("status = %s, want success", updated.Status)
	}
	if updated.ThirdPartyRef != "TP-QRY" {
		t.Fatalf("third party ref = %s", updated.ThirdPartyRef)
	}
}

func TestExpireSweep(t *testing.T) {
	svc, _, _, db := setupPaymentServiceTest(t, "payment_expire")

	created, err := svc.CreatePayment(CreatePaymentInput{
		BusinessOrderID: "BIZ-EXP",
		UserID:          "u-1",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
	})
	if err != nil {
		t.Fatalf("CreatePayment failed: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	if err := db.Model(&models.PaymentOrder{}).
		Where("id = ?", created.Order.ID).
		Update("expires_at", past).Error; err != nil {
		t.Fatalf("backdate expire failed: %v", err)
	}

	if got := svc.ExpireSweep(time.Now(), 10); got != 1 {
		t.Fatalf("ExpireSweep = %d, want 1", got)
	}
	order, err := svc.GetPayment(created.Order.OrderNo)
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if order.Status != constants.PaymentStatusExpired {
		t.Fatalf("status = %s, want expired", order.Status)
	}

	// 已过期订单上的二次扫描无操作
	if got := svc.ExpireSweep(time.Now(), 10); got != 0 {
		t.Fatalf("second ExpireSweep = %d, want 0", got)
	}
}
