package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupRefundServiceTest(t *testing.T, name string) (*RefundService, *stubAdapter, *gorm.DB) {
	t.Helper()
	db := setupServiceTestDB(t, name)
	adapter := &stubAdapter{channel: constants.ChannelAlipay}
	registry := setupTestRegistry(t, db, adapter)

	refundRepo := repository.NewRefundOrderRepository(db)
	orderRepo := repository.NewPaymentOrderRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	svc := NewRefundService(refundRepo, orderRepo, recordRepo, registry, nil,
		config.PaymentConfig{MaxRetry: 2},
		config.RiskConfig{AutoApproveAmount: "100.00"},
	)
	return svc, adapter, db
}

func createSettledOrder(t *testing.T, db *gorm.DB, orderNo string, amount int64) *models.PaymentOrder {
	t.Helper()
	now := time.Now()
	order := &models.PaymentOrder{
		OrderNo:         orderNo,
		BusinessOrderID: "BIZ-" + orderNo,
		UserID:          "u-refund",
		Method:          constants.ChannelAlipay,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
		ActualAmount:    models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
		Currency:        "CNY",
		Status:          constants.PaymentStatusSuccess,
		ThirdPartyRef:   "TP-" + orderNo,
		SettledAt:       &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create settled order failed: %v", err)
	}
	return order
}

func TestCreateRefundAutoApprove(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_auto_approve")
	createSettledOrder(t, db, "PO-RA-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RA-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
		Reason:         "商品损坏",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	if refund.Status != constants.RefundStatusApproved {
		t.Fatalf("status = %s, want approved (auto)", refund.Status)
	}
	if refund.ReviewerID != constants.SystemReviewer {
		t.Fatalf("reviewer = %s, want SYSTEM", refund.ReviewerID)
	}
}

func TestCreateRefundRequiresManualAudit(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_manual")
	createSettledOrder(t, db, "PO-RM-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RM-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(300)),
		Reason:         "重复支付",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	if refund.Status != constants.RefundStatusPendingAudit {
		t.Fatalf("status = %s, want pending_audit", refund.Status)
	}
}

func TestCreateRefundConservation(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_conservation")
	createSettledOrder(t, db, "PO-RC-1", 500)

	// 300 在途 + 150 在途 = 450，占用后仅剩 50 可退
	for _, amount := range []int64{300, 150} {
		if _, err := svc.CreateRefund(CreateRefundInput{
			PaymentOrderNo: "PO-RC-1",
			UserID:         "u-refund",
			Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
			Reason:         "部分退款",
		}); err != nil {
			t.Fatalf("CreateRefund(%d) failed: %v", amount, err)
		}
	}
	if _, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RC-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(51)),
		Reason:         "超额退款",
	}); !errors.Is(err, ErrExceedsRefundable) {
		t.Fatalf("err = %v, want ErrExceedsRefundable", err)
	}

	// 拒绝一笔后额度释放
	var pending models.RefundOrder
	if err := db.Where("status = ?", constants.RefundStatusPendingAudit).
		Order("id").First(&pending).Error; err != nil {
		t.Fatalf("load pending refund failed: %v", err)
	}
	if _, err := svc.AuditRefund(AuditRefundInput{
		RefundNo: pending.RefundNo,
		Reviewer: "reviewer-1",
		Approve:  false,
		Remark:   "凭证不足",
	}); err != nil {
		t.Fatalf("AuditRefund reject failed: %v", err)
	}
	if _, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RC-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(200)),
		Reason:         "额度释放后再退",
	}); err != nil {
		t.Fatalf("CreateRefund after reject failed: %v", err)
	}
}

func TestCreateRefundOnUnsettledOrder(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_unsettled")
	order := createSettledOrder(t, db, "PO-RU-1", 100)
	if err := db.Model(order).Updates(map[string]interface{}{
		"status":     constants.PaymentStatusProcessing,
		"settled_at": nil,
	}).Error; err != nil {
		t.Fatalf("update order failed: %v", err)
	}

	if _, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RU-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
		Reason:         "未结算退款",
	}); !errors.Is(err, ErrPaymentNotSettled) {
		t.Fatalf("err = %v, want ErrPaymentNotSettled", err)
	}
}

func TestAuditRefundDoubleAudit(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_double_audit")
	createSettledOrder(t, db, "PO-RD-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RD-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(200)),
		Reason:         "需人工审核",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	audited, err := svc.AuditRefund(AuditRefundInput{
		RefundNo: refund.RefundNo,
		Reviewer: "reviewer-1",
		Approve:  true,
	})
	if err != nil {
		t.Fatalf("AuditRefund failed: %v", err)
	}
	if audited.Status != constants.RefundStatusApproved {
		t.Fatalf("status = %s, want approved", audited.Status)
	}

	if _, err := svc.AuditRefund(AuditRefundInput{
		RefundNo: refund.RefundNo,
		Reviewer: "reviewer-2",
		Approve:  false,
	}); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("err = %v, want ErrAlreadyReviewed", err)
	}
}

func TestSubmitToChannel(t *testing.T) {
	svc, adapter, db := setupRefundServiceTest(t, "refund_submit")
	createSettledOrder(t, db, "PO-RS-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RS-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Reason:         "小额自动退款",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	if refund.Status != constants.RefundStatusApproved {
		t.Fatalf("precondition status = %s", refund.Status)
	}

	adapter.refundResult = &payment.RefundResult{
		Submitted:           true,
		ThirdPartyRefundRef: "TPR-001",
	}
	submitted, err := svc.SubmitToChannel(context.Background(), refund.RefundNo)
	if err != nil {
		t.Fatalf("SubmitToChannel failed: %v", err)
	}
	if submitted.Status != constants.RefundStatusProcessing {
		t.Fatalf("status = %s, want processing", submitted.Status)
	}
	if submitted.ThirdPartyRefundRef != "TPR-001" {
		t.Fatalf("third party refund ref = %s", submitted.ThirdPartyRefundRef)
	}
}

func TestSubmitToChannelSettledSynchronously(t *testing.T) {
	svc, adapter, db := setupRefundServiceTest(t, "refund_submit_settled")
	createSettledOrder(t, db, "PO-RSS-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RSS-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(80)),
		Reason:         "同步确认退款",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}

	adapter.refundResult = &payment.RefundResult{
		Submitted:           true,
		Settled:             true,
		ThirdPartyRefundRef: "TPR-SYNC",
	}
	settled, err := svc.SubmitToChannel(context.Background(), refund.RefundNo)
	if err != nil {
		t.Fatalf("SubmitToChannel failed: %v", err)
	}
	if settled.Status != constants.RefundStatusSuccess {
		t.Fatalf("status = %s, want success", settled.Status)
	}
	if settled.RefundedAt == nil {
		t.Fatal("refunded_at not set")
	}
}

func TestSubmitFailureRetryThenTerminal(t *testing.T) {
	svc, adapter, db := setupRefundServiceTest(t, "refund_submit_fail")
	createSettledOrder(t, db, "PO-RSF-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RSF-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(60)),
		Reason:         "渠道故障重试",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}

	adapter.refundErr = errors.New("渠道不可用")
	// MaxRetry=2：第一次失败留在 approved 等待重试
	if _, err := svc.SubmitToChannel(context.Background(), refund.RefundNo); err == nil {
		t.Fatal("expected channel error")
	}
	reloaded, err := svc.GetRefund(refund.RefundNo)
	if err != nil {
		t.Fatalf("GetRefund failed: %v", err)
	}
	if reloaded.Status != constants.RefundStatusApproved || reloaded.RetryCount != 1 {
		t.Fatalf("refund = %s/%d, want approved/1", reloaded.Status, reloaded.RetryCount)
	}

	// 第二次失败达到上限，落终态 failed
	if _, err := svc.SubmitToChannel(context.Background(), refund.RefundNo); err == nil {
		t.Fatal("expected channel error")
	}
	reloaded, err = svc.GetRefund(refund.RefundNo)
	if err != nil {
		t.Fatalf("GetRefund failed: %v", err)
	}
	if reloaded.Status != constants.RefundStatusFailed || reloaded.RetryCount != 2 {
		t.Fatalf("refund = %s/%d, want failed/2", reloaded.Status, reloaded.RetryCount)
	}

	// 人工重试已达上限
	if _, err := svc.Retry(refund.RefundNo, "ADMIN"); !errors.Is(err, ErrRetryLimitReached) {
		t.Fatalf("retry err = %v, want ErrRetryLimitReached", err)
	}
}

func TestManualRetryResubmits(t *testing.T) {
	svc, adapter, db := setupRefundServiceTest(t, "refund_manual_retry")
	createSettledOrder(t, db, "PO-RMR-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RMR-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(70)),
		Reason:         "首次失败后人工重试",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	if err := db.Model(&models.RefundOrder{}).
		Where("refund_no = ?", refund.RefundNo).
		Updates(map[string]interface{}{"status": constants.RefundStatusFailed, "retry_count": 1}).Error; err != nil {
		t.Fatalf("force failed status: %v", err)
	}

	retried, err := svc.Retry(refund.RefundNo, "ADMIN")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Status != constants.RefundStatusApproved {
		t.Fatalf("status = %s, want approved", retried.Status)
	}

	adapter.refundResult = &payment.RefundResult{Submitted: true, ThirdPartyRefundRef: "TPR-RETRY"}
	submitted, err := svc.SubmitToChannel(context.Background(), refund.RefundNo)
	if err != nil {
		t.Fatalf("SubmitToChannel after retry failed: %v", err)
	}
	if submitted.Status != constants.RefundStatusProcessing {
		t.Fatalf("status = %s, want processing", submitted.Status)
	}
}

func TestRefundCallbackSuccessIdempotent(t *testing.T) {
	svc, adapter, db := setupRefundServiceTest(t, "refund_cb_success")
	createSettledOrder(t, db, "PO-RCB-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RCB-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(40)),
		Reason:         "回调幂等",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	adapter.refundResult = &payment.RefundResult{Submitted: true, ThirdPartyRefundRef: "TPR-CB"}
	if _, err := svc.SubmitToChannel(context.Background(), refund.RefundNo); err != nil {
		t.Fatalf("SubmitToChannel failed: %v", err)
	}

	updated, err := svc.ApplyRefundCallbackSuccess(RefundCallbackApplyInput{
		RefundNo:            refund.RefundNo,
		ThirdPartyRefundRef: "TPR-CB",
		Amount:              "40.00",
		Source:              "callback",
	})
	if err != nil {
		t.Fatalf("ApplyRefundCallbackSuccess failed: %v", err)
	}
	if updated.Status != constants.RefundStatusSuccess {
		t.Fatalf("status = %s, want success", updated.Status)
	}

	again, err := svc.ApplyRefundCallbackSuccess(RefundCallbackApplyInput{
		RefundNo:            refund.RefundNo,
		ThirdPartyRefundRef: "TPR-CB",
		Amount:              "40.00",
		Source:              "callback",
	})
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("repeat err = %v, want ErrAlreadySettled", err)
	}
	if again == nil || again.Status != constants.RefundStatusSuccess {
		t.Fatalf("repeat refund = %+v", again)
	}
}

func TestRefundCallbackFailureBackToApproved(t *testing.T) {
	svc, adapter, db := setupRefundServiceTest(t, "refund_cb_fail")
	createSettledOrder(t, db, "PO-RCF-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RCF-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(30)),
		Reason:         "失败回调回退",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	adapter.refundResult = &payment.RefundResult{Submitted: true, ThirdPartyRefundRef: "TPR-CF"}
	if _, err := svc.SubmitToChannel(context.Background(), refund.RefundNo); err != nil {
		t.Fatalf("SubmitToChannel failed: %v", err)
	}

	updated, err := svc.ApplyRefundCallbackFailure(RefundCallbackApplyInput{
		RefundNo: refund.RefundNo,
		Reason:   "余额不足",
		Source:   "callback",
	})
	if err != nil {
		t.Fatalf("ApplyRefundCallbackFailure failed: %v", err)
	}
	if updated.Status != constants.RefundStatusApproved || updated.RetryCount != 1 {
		t.Fatalf("refund = %s/%d, want approved/1", updated.Status, updated.RetryCount)
	}
}

func TestLateSuccessCallbackOnFailedRefund(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_cb_late")
	createSettledOrder(t, db, "PO-RCL-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RCL-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
		Reason:         "迟到成功回调",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	if err := db.Model(&models.RefundOrder{}).
		Where("refund_no = ?", refund.RefundNo).
		Update("status", constants.RefundStatusFailed).Error; err != nil {
		t.Fatalf("force failed status: %v", err)
	}

	updated, err := svc.ApplyRefundCallbackSuccess(RefundCallbackApplyInput{
		RefundNo:            refund.RefundNo,
		ThirdPartyRefundRef: "TPR-LATE",
		Amount:              "20.00",
		Source:              "callback",
	})
	if err != nil {
		t.Fatalf("late success callback failed: %v", err)
	}
	if updated.Status != constants.RefundStatusSuccess {
		t.Fatalf("status = %s, want success", updated.Status)
	}
}

func TestBatchProcessPendingAutoApprovesSmallAmounts(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_batch")
	createSettledOrder(t, db, "PO-RB-1", 1000)

	// 自动审批阈值 100：150 留给人工，两笔小额批量通过
	amounts := []int64{150, 80, 90}
	for _, amount := range amounts {
		refund := &models.RefundOrder{
			RefundNo:       generateRefundOrderNo(),
			PaymentOrderID: 1,
			UserID:         "u-refund",
			Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(amount)),
			Reason:         "批量处理",
			Status:         constants.RefundStatusPendingAudit,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		if err := db.Create(refund).Error; err != nil {
			t.Fatalf("create pending refund failed: %v", err)
		}
	}

	result := svc.BatchProcessPending(10)
	if result.Processed != 2 || result.Succeeded != 2 || result.Failed != 0 {
		t.Fatalf("batch result = %+v, want 2/2/0", result)
	}

	var manual int64
	db.Model(&models.RefundOrder{}).
		Where("status = ?", constants.RefundStatusPendingAudit).
		Count(&manual)
	if manual != 1 {
		t.Fatalf("manual pending = %d, want 1", manual)
	}
}

func TestCancelRefund(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_cancel")
	createSettledOrder(t, db, "PO-RX-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RX-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(200)),
		Reason:         "用户撤回",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	cancelled, err := svc.CancelRefund(refund.RefundNo, "BUSINESS")
	if err != nil {
		t.Fatalf("CancelRefund failed: %v", err)
	}
	if cancelled.Status != constants.RefundStatusCancelled {
		t.Fatalf("status = %s, want cancelled", cancelled.Status)
	}

	// 处理中的退款不可取消
	createSettledOrder(t, db, "PO-RX-2", 500)
	processing, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RX-2",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Reason:         "处理中不可取消",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	if _, err := svc.SubmitToChannel(context.Background(), processing.RefundNo); err != nil {
		t.Fatalf("SubmitToChannel failed: %v", err)
	}
	if _, err := svc.CancelRefund(processing.RefundNo, "BUSINESS"); !errors.Is(err, ErrInvalidStateForCancel) {
		t.Fatalf("err = %v, want ErrInvalidStateForCancel", err)
	}
}

func TestRefundRetrySweep(t *testing.T) {
	svc, _, db := setupRefundServiceTest(t, "refund_retry_sweep")
	createSettledOrder(t, db, "PO-RRS-1", 500)

	refund, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RRS-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(45)),
		Reason:         "扫描重试",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	if err := db.Model(&models.RefundOrder{}).
		Where("refund_no = ?", refund.RefundNo).
		Updates(map[string]interface{}{"status": constants.RefundStatusFailed, "retry_count": 1}).Error; err != nil {
		t.Fatalf("force failed status: %v", err)
	}

	if n := svc.RetrySweep(time.Now(), 100); n != 1 {
		t.Fatalf("retried = %d, want 1", n)
	}
	reloaded, err := svc.GetRefund(refund.RefundNo)
	if err != nil {
		t.Fatalf("GetRefund failed: %v", err)
	}
	if reloaded.Status != constants.RefundStatusApproved {
		t.Fatalf("status = %s, want approved", reloaded.Status)
	}

	// 已达上限的失败退款不再扫描
	if err := db.Model(&models.RefundOrder{}).
		Where("refund_no = ?", refund.RefundNo).
		Updates(map[string]interface{}{"status": constants.RefundStatusFailed, "retry_count": 2}).Error; err != nil {
		t.Fatalf("force terminal status: %v", err)
	}
	if n := svc.RetrySweep(time.Now(), 100); n != 0 {
		t.Fatalf("retried = %d, want 0", n)
	}
}

func TestRefundStatistics(t *testing.T) {
	svc, adapter, db := setupRefundServiceTest(t, "refund_statistics")
	createSettledOrder(t, db, "PO-RST-1", 1000)

	if _, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RST-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(300)),
		Reason:         "待审核样本",
	}); err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}

	settled, err := svc.CreateRefund(CreateRefundInput{
		PaymentOrderNo: "PO-RST-1",
		UserID:         "u-refund",
		Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Reason:         "成功样本",
	})
	if err != nil {
		t.Fatalf("CreateRefund failed: %v", err)
	}
	adapter.refundResult = &payment.RefundResult{Submitted: true, Settled: true, ThirdPartyRefundRef: "TPR-ST"}
	if _, err := svc.SubmitToChannel(context.Background(), settled.RefundNo); err != nil {
		t.Fatalf("SubmitToChannel failed: %v", err)
	}

	stats, err := svc.Statistics(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if stats.Total != 2 || stats.PendingAudit != 1 || stats.Success != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.RefundedTotal != "50.00" {
		t.Fatalf("refunded total = %s, want 50.00", stats.RefundedTotal)
	}
	if stats.RequestedTotal != "350.00" {
		t.Fatalf("requested total = %s, want 350.00", stats.RequestedTotal)
	}
}
