//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.RefundRecord{},
		&models.PaymentRecord{},
		&models.RefundOrder{},
		&models.PaymentOrder{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(
		&models.PaymentOrder{},
		&models.RefundOrder{},
		&models.PaymentRecord{},
		&models.RefundRecord{},
	); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresPaymentOrderSweepQueries(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewPaymentOrderRepository(db)

	now := time.Now()
	expired := now.Add(-time.Minute)
	future := now.Add(30 * time.Minute)

	orders := []*models.PaymentOrder{
		{
			OrderNo:         "PO-PG-001",
			BusinessOrderID: "BIZ-PG-001",
			UserID:          "u-1",
			Method:          constants.ChannelAlipay,
			Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
			Currency:        "CNY",
			Status:          constants.PaymentStatusPendingPayment,
			ExpiresAt:       &expired,
		},
		{
			OrderNo:         "PO-PG-002",
			BusinessOrderID: "BIZ-PG-002",
			UserID:          "u-1",
			Method:          constants.ChannelWechat,
			Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(200)),
			Currency:        "CNY",
			Status:          constants.PaymentStatusPendingPayment,
			ExpiresAt:       &future,
		},
		{
			OrderNo:         "PO-PG-003",
			BusinessOrderID: "BIZ-PG-003",
			UserID:          "u-2",
			Method:          constants.ChannelAlipay,
			Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(300)),
			Currency:        "CNY",
			Status:          constants.PaymentStatusProcessing,
		},
	}
	for _, order := range orders {
		if err := repo.Create(order); err != nil {
			t.Fatalf("create payment order %s failed: %v", order.OrderNo, err)
		}
	}

	expiredList, err := repo.ListExpired(now, 10)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(expiredList) != 1 || expiredList[0].OrderNo != "PO-PG-001" {
		t.Fatalf("ListExpired = %+v, want only PO-PG-001", expiredList)
	}

	count, err := repo.CountByUserSince("u-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountByUserSince failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("CountByUserSince = %d, want 2", count)
	}

	sum, err := repo.SumAmountByUserSince("u-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("SumAmountByUserSince failed: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("SumAmountByUserSince = %s, want 300", sum)
	}

	listed, total, err := repo.ListAdmin(PaymentOrderListFilter{
		UserID:   "u-1",
		Page:     1,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("ListAdmin failed: %v", err)
	}
	if total != 2 || len(listed) != 2 {
		t.Fatalf("ListAdmin total=%d len=%d, want 2/2", total, len(listed))
	}
}

func TestPostgresRefundOrderLiveAmountAndQueues(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	orderRepo := NewPaymentOrderRepository(db)
	refundRepo := NewRefundOrderRepository(db)

	order := &models.PaymentOrder{
		OrderNo:         "PO-PG-100",
		BusinessOrderID: "BIZ-PG-100",
		UserID:          "u-9",
		Method:          constants.ChannelBank,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromInt(500)),
		ActualAmount:    models.NewMoneyFromDecimal(decimal.NewFromInt(500)),
		Currency:        "CNY",
		Status:          constants.PaymentStatusSuccess,
	}
	if err := orderRepo.Create(order); err != nil {
		t.Fatalf("create payment order failed: %v", err)
	}

	refunds := []*models.RefundOrder{
		{
			RefundNo:       "RF-PG-001",
			PaymentOrderID: order.ID,
			UserID:         "u-9",
			Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
			Reason:         "商品损坏",
			Status:         constants.RefundStatusPendingAudit,
		},
		{
			RefundNo:       "RF-PG-002",
			PaymentOrderID: order.ID,
			UserID:         "u-9",
			Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(200)),
			Reason:         "重复支付",
			Status:         constants.RefundStatusApproved,
		},
		{
			RefundNo:       "RF-PG-003",
			PaymentOrderID: order.ID,
			UserID:         "u-9",
			Amount:         models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
			Reason:         "取消订单",
			Status:         constants.RefundStatusRejected,
		},
	}
	for _, refund := range refunds {
		if err := refundRepo.Create(refund); err != nil {
			t.Fatalf("create refund %s failed: %v", refund.RefundNo, err)
		}
	}

	// 已拒绝的退款不计入占用额度
	live, err := refundRepo.SumLiveAmountByPaymentOrder(order.ID)
	if err != nil {
		t.Fatalf("SumLiveAmountByPaymentOrder failed: %v", err)
	}
	if !live.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("SumLiveAmountByPaymentOrder = %s, want 300", live)
	}

	pending, err := refundRepo.ListPendingAudit(10)
	if err != nil {
		t.Fatalf("ListPendingAudit failed: %v", err)
	}
	if len(pending) != 1 || pending[0].RefundNo != "RF-PG-001" {
		t.Fatalf("ListPendingAudit = %+v, want only RF-PG-001", pending)
	}

	approved, err := refundRepo.ListApprovedForSubmit(10)
	if err != nil {
		t.Fatalf("ListApprovedForSubmit failed: %v", err)
	}
	if len(approved) != 1 || approved[0].RefundNo != "RF-PG-002" {
		t.Fatalf("ListApprovedForSubmit = %+v, want only RF-PG-002", approved)
	}
}
