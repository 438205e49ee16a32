package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/queue"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentService 支付订单服务
type PaymentService struct {
	orderRepo   repository.PaymentOrderRepository
	channelRepo repository.PaymentChannelRepository
	recordRepo  repository.RecordRepository
	registry    *payment.Registry
	queueClient *queue.Client
	riskSvc     *RiskService
	notifySvc   *NotificationService
	cfg         config.PaymentConfig
}

// NewPaymentService 创建支付订单服务
func NewPaymentService(orderRepo repository.PaymentOrderRepository, channelRepo repository.PaymentChannelRepository, recordRepo repository.RecordRepository, registry *payment.Registry, queueClient *queue.Client, riskSvc *RiskService, notifySvc *NotificationService, cfg config.PaymentConfig) *PaymentService {
	return &PaymentService{
		orderRepo:   orderRepo,
		channelRepo: channelRepo,
		recordRepo:  recordRepo,
		registry:    registry,
		queueClient: queueClient,
		riskSvc:     riskSvc,
		notifySvc:   notifySvc,
		cfg:         cfg,
	}
}

// CreatePaymentInput 创建支付订单请求
type CreatePaymentInput struct {
	BusinessOrderID string
	UserID          string
	Method          string
	Amount          models.Money
	Currency        string
	Subject         string
	ClientIP        string
	DeviceID        string
	Context         context.Context
}

// CreatePaymentResult 创建支付订单结果
type CreatePaymentResult struct {
	Order      *models.PaymentOrder
	RiskRecord *models.RiskRecord
}

// InitiatePaymentInput 发起渠道支付请求
type InitiatePaymentInput struct {
	OrderNo   string
	ReturnURL string
	NotifyURL string
	Mode      string
	Context   context.Context
}

// InitiatePaymentResult 发起渠道支付结果
type InitiatePaymentResult struct {
	Order  *models.PaymentOrder
	PayURL string
	QRCode string
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreatePayment 创建支付订单并执行风控评估。
// 评估结论决定落点：拒绝为 denied 终态，人工审核停留 pending_risk，放行进入 pending_payment。
func (s *PaymentService) CreatePayment(input CreatePaymentInput) (*CreatePaymentResult, error) {
	businessOrderID := strings.TrimSpace(input.BusinessOrderID)
	userID := strings.TrimSpace(input.UserID)
	method := strings.ToLower(strings.TrimSpace(input.Method))
	if businessOrderID == "" || userID == "" || method == "" {
		return nil, ErrPaymentInvalid
	}
	amount := input.Amount.Decimal.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrPaymentInvalid
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}

	log := paymentLogger(
		"business_order_id", businessOrderID,
		"user_id", userID,
		"method", method,
	)

	channel, err := s.channelRepo.GetByCode(method)
	if err != nil {
		log.Errorw("payment_create_channel_fetch_failed", "error", err)
		return nil, ErrPaymentCreateFailed
	}
	if channel == nil {
		return nil, ErrPaymentChannelNotFound
	}
	if !channel.IsActive {
		return nil, ErrPaymentChannelInactive
	}

	if s.notifySvc != nil {
		if err := s.notifySvc.ValidateBusinessOrder(input.Context, businessOrderID); err != nil {
			log.Warnw("payment_create_business_order_invalid", "error", err)
			return nil, ErrBusinessOrderInvalid
		}
	}

	existing, err := s.orderRepo.GetLiveByBusinessOrderID(businessOrderID)
	if err != nil {
		log.Errorw("payment_create_duplicate_check_failed", "error", err)
		return nil, ErrPaymentCreateFailed
	}
	if existing != nil {
		log.Warnw("payment_create_duplicate_business_order",
			"existing_order_no", existing.OrderNo,
			"existing_status", existing.Status,
		)
		return nil, ErrDuplicateBusinessOrder
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(s.expireMinutes()) * time.Minute)
	order := &models.PaymentOrder{
		OrderNo:         generatePaymentOrderNo(),
		BusinessOrderID: businessOrderID,
		UserID:          userID,
		Method:          method,
		Amount:          models.NewMoneyFromDecimal(amount),
		Currency:        currency,
		Status:          constants.PaymentStatusCreated,
		ClientIP:        strings.TrimSpace(input.ClientIP),
		DeviceID:        strings.TrimSpace(input.DeviceID),
		Subject:         strings.TrimSpace(input.Subject),
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       &expiresAt,
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		if err := orderRepo.Create(order); err != nil {
			return ErrPaymentCreateFailed
		}
		return s.appendPaymentRecord(tx, order, constants.RecordActionCreated, "支付订单创建", nil)
	})
	if err != nil {
		return nil, err
	}

	riskRecord, decision := s.riskSvc.Evaluate(RiskEvaluateInput{
		PaymentOrderID:  order.ID,
		BusinessOrderID: businessOrderID,
		UserID:          userID,
		Method:          method,
		Amount:          order.Amount,
		ClientIP:        order.ClientIP,
		DeviceID:        order.DeviceID,
	})

	targetStatus := constants.PaymentStatusPendingPayment
	recordAction := constants.RecordActionInitiated
	recordRemark := "风控放行，进入待支付"
	switch decision {
	case constants.RiskActionDeny:
		targetStatus = constants.PaymentStatusDenied
		recordAction = constants.RecordActionRiskDenied
		recordRemark = "风控拦截，订单拒绝"
	case constants.RiskActionManualReview:
		targetStatus = constants.PaymentStatusPendingRisk
		recordAction = constants.RecordActionRiskHold
		recordRemark = "风控转人工审核"
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := lockPaymentOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if err := transitionPayment(locked, constants.PaymentStatusPendingRisk); err != nil {
			return err
		}
		if targetStatus != constants.PaymentStatusPendingRisk {
			if err := transitionPayment(locked, targetStatus); err != nil {
				return err
			}
		}
		locked.UpdatedAt = time.Now()
		if err := orderRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		order = locked
		return s.appendPaymentRecord(tx, locked, recordAction, recordRemark, nil)
	})
	if err != nil {
		log.Errorw("payment_create_risk_apply_failed", "order_no", order.OrderNo, "error", err)
		return nil, err
	}

	log.Infow("payment_create_success",
		"order_no", order.OrderNo,
		"status", order.Status,
		"amount", order.Amount.String(),
		"risk_action", decision,
	)
	if order.Status == constants.PaymentStatusDenied {
		return &CreatePaymentResult{Order: order, RiskRecord: riskRecord}, ErrRiskDenied
	}
	return &CreatePaymentResult{Order: order, RiskRecord: riskRecord}, nil
}

// InitiatePayment 调用渠道下单并将订单推进到 processing。
// 渠道请求失败时订单状态保持不变，由调用方或重试扫描再次发起。
func (s *PaymentService) InitiatePayment(input InitiatePaymentInput) (*InitiatePaymentResult, error) {
	orderNo := strings.TrimSpace(input.OrderNo)
	if orderNo == "" {
		return nil, ErrPaymentInvalid
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if order == nil {
		return nil, ErrPaymentNotFound
	}
	if order.Status != constants.PaymentStatusPendingPayment {
		return nil, ErrPaymentStatusInvalid
	}
	if order.IsExpired(time.Now()) {
		return nil, ErrPaymentExpired
	}

	adapter, err := s.registry.Get(order.Method)
	if err != nil {
		return nil, ErrPaymentChannelNotFound
	}

	log := paymentLogger(
		"order_no", order.OrderNo,
		"method", order.Method,
		"amount", order.Amount.String(),
	)

	result, err := adapter.CreatePayment(ctx, payment.CreateRequest{
		OrderNo:         order.OrderNo,
		PaymentID:       order.ID,
		Amount:          order.Amount.String(),
		Currency:        order.Currency,
		Subject:         order.Subject,
		ClientIP:        order.ClientIP,
		NotifyURL:       input.NotifyURL,
		ReturnURL:       input.ReturnURL,
		InteractionMode: input.Mode,
	})
	if err != nil {
		log.Errorw("payment_initiate_channel_failed", "error", err)
		return nil, err
	}

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := lockPaymentOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status == constants.PaymentStatusSuccess {
			// 回调先于发起响应到达，保留回调结果
			order = locked
			return nil
		}
		if err := transitionPayment(locked, constants.PaymentStatusProcessing); err != nil {
			return err
		}
		locked.PayURL = result.PayURL
		locked.QRCode = result.QRCode
		if locked.ThirdPartyRef == "" {
			locked.ThirdPartyRef = result.ThirdPartyRef
		}
		locked.UpdatedAt = time.Now()
		if err := orderRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		order = locked
		return s.appendPaymentRecord(tx, locked, constants.RecordActionInitiated, "渠道下单成功", models.JSON(result.Raw))
	})
	if err != nil {
		log.Errorw("payment_initiate_apply_failed", "error", err)
		return nil, err
	}

	log.Infow("payment_initiate_success",
		"status", order.Status,
		"third_party_ref", order.ThirdPartyRef,
	)
	return &InitiatePaymentResult{
		Order:  order,
		PayURL: result.PayURL,
		QRCode: result.QRCode,
	}, nil
}

// CancelPayment 取消支付订单。processing 之后不可取消，只能等待终态回调或过期。
func (s *PaymentService) CancelPayment(orderNo, operator, reason string) (*models.PaymentOrder, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrPaymentInvalid
	}
	var order *models.PaymentOrder
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := lockPaymentOrderByNo(tx, orderNo)
		if err != nil {
			return err
		}
		if !locked.CanCancel() {
			return ErrInvalidStateForCancel
		}
		if err := transitionPayment(locked, constants.PaymentStatusCancelled); err != nil {
			return err
		}
		locked.UpdatedAt = time.Now()
		if err := orderRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		order = locked
		remark := "订单取消"
		if strings.TrimSpace(reason) != "" {
			remark = remark + ": " + strings.TrimSpace(reason)
		}
		if strings.TrimSpace(operator) != "" {
			remark = remark + " (" + strings.TrimSpace(operator) + ")"
		}
		return s.appendPaymentRecord(tx, locked, constants.RecordActionCancelled, remark, nil)
	})
	if err != nil {
		return nil, err
	}
	paymentLogger("order_no", orderNo).Infow("payment_cancelled", "operator", operator)
	return order, nil
}

// QueryStatus 主动向渠道查询订单状态，processing 订单查到终态时落库。
func (s *PaymentService) QueryStatus(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, ErrPaymentInvalid
	}
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if order == nil {
		return nil, ErrPaymentNotFound
	}
	if order.Status != constants.PaymentStatusProcessing {
		return order, nil
	}

	adapter, err := s.registry.Get(order.Method)
	if err != nil {
		return order, nil
	}
	result, err := adapter.QueryPayment(ctx, order.OrderNo)
	if err != nil {
		paymentLogger("order_no", orderNo).Warnw("payment_sync_query_failed", "error", err)
		return order, nil
	}

	switch result.Status {
	case payment.EventStatusSuccess:
		updated, err := s.ApplyCallbackSuccess(CallbackApplyInput{
			OrderNo:       order.OrderNo,
			ThirdPartyRef: result.ThirdPartyRef,
			Amount:        result.Amount,
			OccurredAt:    result.SettledAt,
			Raw:           result.Raw,
			Source:        "sync",
		})
		if err != nil && !errors.Is(err, ErrAlreadySettled) {
			return order, err
		}
		return updated, nil
	case payment.EventStatusFailed:
		updated, err := s.ApplyCallbackFailure(CallbackApplyInput{
			OrderNo:       order.OrderNo,
			ThirdPartyRef: result.ThirdPartyRef,
			Raw:           result.Raw,
			Reason:        "渠道查询返回失败",
			Source:        "sync",
		})
		if err != nil {
			return order, err
		}
		return updated, nil
	}
	return order, nil
}

// GetPayment 根据支付单号获取支付订单
func (s *PaymentService) GetPayment(orderNo string) (*models.PaymentOrder, error) {
	order, err := s.orderRepo.GetByOrderNo(strings.TrimSpace(orderNo))
	if err != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if order == nil {
		return nil, ErrPaymentNotFound
	}
	return order, nil
}

// ListPayments 管理端支付订单列表
func (s *PaymentService) ListPayments(filter repository.PaymentOrderListFilter) ([]models.PaymentOrder, int64, error) {
	return s.orderRepo.ListAdmin(filter)
}

// ListPaymentRecords 支付订单流水
func (s *PaymentService) ListPaymentRecords(orderNo string) ([]models.PaymentRecord, error) {
	order, err := s.GetPayment(orderNo)
	if err != nil {
		return nil, err
	}
	return s.recordRepo.ListByPaymentOrderID(order.ID)
}

// ExpireSweep 扫描并过期超时订单，返回处理条数。
func (s *PaymentService) ExpireSweep(now time.Time, limit int) int {
	orders, err := s.orderRepo.ListExpired(now, limit)
	if err != nil {
		paymentLogger().Errorw("payment_expire_sweep_list_failed", "error", err)
		return 0
	}
	expired := 0
	for i := range orders {
		if err := s.expireOne(orders[i].ID); err != nil {
			paymentLogger("order_no", orders[i].OrderNo).Warnw("payment_expire_failed", "error", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		paymentLogger().Infow("payment_expire_sweep_done", "expired", expired)
	}
	return expired
}

func (s *PaymentService) expireOne(orderID uint) error {
	return models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		locked, err := lockPaymentOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !locked.IsExpired(time.Now()) {
			return nil
		}
		if models.PaymentStatusTerminal(locked.Status) {
			return nil
		}
		if err := transitionPayment(locked, constants.PaymentStatusExpired); err != nil {
			return err
		}
		locked.UpdatedAt = time.Now()
		if err := orderRepo.Update(locked); err != nil {
			return ErrPaymentUpdateFailed
		}
		return s.appendPaymentRecord(tx, locked, constants.RecordActionExpired, "订单超时过期", nil)
	})
}

// RetrySweep 重新发起失败回退待支付的订单，按重试次数做指数退避。
func (s *PaymentService) RetrySweep(ctx context.Context, now time.Time, limit int) int {
	cutoff := now.Add(-time.Duration(s.retryCutoffHours()) * time.Hour)
	orders, err := s.orderRepo.ListRetryable(cutoff, s.maxRetry(), limit)
	if err != nil {
		paymentLogger().Errorw("payment_retry_sweep_list_failed", "error", err)
		return 0
	}
	retried := 0
	for i := range orders {
		order := orders[i]
		backoff := retryBackoff(s.cfg.RetryBackoffSeconds, order.RetryCount)
		if now.Sub(order.UpdatedAt) < backoff {
			continue
		}
		if _, err := s.InitiatePayment(InitiatePaymentInput{OrderNo: order.OrderNo, Context: ctx}); err != nil {
			paymentLogger("order_no", order.OrderNo).Warnw("payment_retry_initiate_failed", "error", err)
			continue
		}
		s.recordRetry(order.ID)
		retried++
	}
	return retried
}

func (s *PaymentService) recordRetry(orderID uint) {
	_ = models.DB.Transaction(func(tx *gorm.DB) error {
		locked, err := lockPaymentOrder(tx, orderID)
		if err != nil {
			return err
		}
		return s.appendPaymentRecord(tx, locked, constants.RecordActionRetried, "失败重试重新发起", nil)
	})
}

// SyncSweep 对处理中的订单批量执行渠道状态查询。
func (s *PaymentService) SyncSweep(ctx context.Context, now time.Time, limit int) int {
	cutoff := now.Add(-time.Duration(s.syncCutoffHours()) * time.Hour)
	orders, err := s.orderRepo.ListProcessingForSync(cutoff, limit)
	if err != nil {
		paymentLogger().Errorw("payment_sync_sweep_list_failed", "error", err)
		return 0
	}
	synced := 0
	for i := range orders {
		if _, err := s.QueryStatus(ctx, orders[i].OrderNo); err != nil {
			paymentLogger("order_no", orders[i].OrderNo).Warnw("payment_sync_apply_failed", "error", err)
			continue
		}
		synced++
	}
	return synced
}

// CleanupRetention 清理超过保留期的终态订单及其流水。
func (s *PaymentService) CleanupRetention(now time.Time, limit int) int {
	cutoff := now.AddDate(0, 0, -s.retentionDays())
	orders, err := s.orderRepo.ListTerminalBefore(cutoff, limit)
	if err != nil {
		paymentLogger().Errorw("payment_cleanup_list_failed", "error", err)
		return 0
	}
	if len(orders) == 0 {
		return 0
	}
	ids := make([]uint, 0, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
	}
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		recordRepo := s.recordRepo.WithTx(tx)
		if err := recordRepo.DeleteByPaymentOrderIDs(ids); err != nil {
			return err
		}
		return tx.Delete(&models.PaymentOrder{}, ids).Error
	})
	if err != nil {
		paymentLogger().Errorw("payment_cleanup_failed", "error", err)
		return 0
	}
	paymentLogger().Infow("payment_cleanup_done", "cleaned", len(ids))
	return len(ids)
}

func (s *PaymentService) appendPaymentRecord(tx *gorm.DB, order *models.PaymentOrder, action, remark string, raw models.JSON) error {
	recordRepo := s.recordRepo.WithTx(tx)
	return recordRepo.AppendPayment(&models.PaymentRecord{
		PaymentOrderID: order.ID,
		Action:         action,
		Status:         order.Status,
		Amount:         order.Amount,
		Remark:         remark,
		RawPayload:     raw,
		CreatedAt:      time.Now(),
	})
}

func (s *PaymentService) expireMinutes() int {
	if s.cfg.ExpireMinutes > 0 {
		return s.cfg.ExpireMinutes
	}
	return 30
}

func (s *PaymentService) maxRetry() int {
	if s.cfg.MaxRetry > 0 {
		return s.cfg.MaxRetry
	}
	return 3
}

func (s *PaymentService) syncCutoffHours() int {
	if s.cfg.SyncCutoffHours > 0 {
		return s.cfg.SyncCutoffHours
	}
	return 48
}

func (s *PaymentService) retryCutoffHours() int {
	if s.cfg.RetryCutoffHours > 0 {
		return s.cfg.RetryCutoffHours
	}
	return 24
}

func (s *PaymentService) retentionDays() int {
	if s.cfg.RetentionDays > 0 {
		return s.cfg.RetentionDays
	}
	return 90
}

func (s *PaymentService) amountTolerance() decimal.Decimal {
	tolerance, err := decimal.NewFromString(strings.TrimSpace(s.cfg.AmountTolerance))
	if err != nil || tolerance.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return tolerance
}

func retryBackoff(baseSeconds, retryCount int) time.Duration {
	if baseSeconds <= 0 {
		baseSeconds = 60
	}
	backoff := time.Duration(baseSeconds) * time.Second
	for i := 1; i < retryCount; i++ {
		backoff *= 2
		if backoff > time.Hour {
			return time.Hour
		}
	}
	return backoff
}

func transitionPayment(order *models.PaymentOrder, target string) error {
	if !models.PaymentCanTransition(order.Status, target) {
		return ErrPaymentStatusInvalid
	}
	order.Status = target
	return nil
}

func lockPaymentOrder(tx *gorm.DB, id uint) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, ErrPaymentUpdateFailed
	}
	return &order, nil
}

func lockPaymentOrderByNo(tx *gorm.DB, orderNo string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("order_no = ?", orderNo).Limit(1).Find(&order)
	if result.Error != nil {
		return nil, ErrPaymentUpdateFailed
	}
	if result.RowsAffected == 0 {
		return nil, ErrPaymentNotFound
	}
	return &order, nil
}
