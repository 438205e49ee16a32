package provider

import (
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/authz"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/cache"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/payment"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/queue"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config          *config.Config
	QueueClient     *queue.Client
	PaymentRegistry *payment.Registry

	// Repositories
	PaymentOrderRepo   repository.PaymentOrderRepository
	RefundOrderRepo    repository.RefundOrderRepository
	PaymentChannelRepo repository.PaymentChannelRepository
	RiskRuleRepo       repository.RiskRuleRepository
	RiskRecordRepo     repository.RiskRecordRepository
	RecordRepo         repository.RecordRepository
	OperatorRepo       repository.OperatorRepository

	// Services
	AuthzService        *authz.Service
	AuthService         *service.AuthService
	CaptchaService      *service.CaptchaService
	NotificationService *service.NotificationService
	RiskService         *service.RiskService
	PaymentService      *service.PaymentService
	RefundService       *service.RefundService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化渠道适配器注册表
	c.initPaymentRegistry()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.PaymentOrderRepo = repository.NewPaymentOrderRepository(db)
	c.RefundOrderRepo = repository.NewRefundOrderRepository(db)
	c.PaymentChannelRepo = repository.NewPaymentChannelRepository(db)
	c.RiskRuleRepo = repository.NewRiskRuleRepository(db)
	c.RiskRecordRepo = repository.NewRiskRecordRepository(db)
	c.RecordRepo = repository.NewRecordRepository(db)
	c.OperatorRepo = repository.NewOperatorRepository(db)
}

func (c *Container) initPaymentRegistry() {
	registry := payment.NewRegistry()
	registry.RegisterFactory(constants.ChannelAlipay, payment.NewAlipayAdapter)
	registry.RegisterFactory(constants.ChannelWechat, payment.NewWechatAdapter)
	registry.RegisterFactory(constants.ChannelBank, payment.NewBankAdapter)

	channels, _, err := c.PaymentChannelRepo.List(repository.PaymentChannelListFilter{ActiveOnly: true})
	if err != nil {
		logger.Errorw("provider_load_payment_channels_failed", "error", err)
	}
	for i := range channels {
		channel := channels[i]
		if err := registry.Configure(&channel); err != nil {
			logger.Warnw("provider_configure_channel_failed", "channel", channel.Code, "error", err)
		}
	}
	logger.Infow("provider_payment_registry_ready", "channels", registry.Codes())

	c.PaymentRegistry = registry
}

func (c *Container) initServices() {
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		logger.Errorw("provider_init_authz_failed", "error", err)
		panic(err)
	}
	c.AuthzService = authzService
	if err := c.AuthzService.BootstrapBuiltinRoles(); err != nil {
		logger.Errorw("provider_bootstrap_builtin_roles_failed", "error", err)
		panic(err)
	}

	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.AuthService = service.NewAuthService(c.Config, c.OperatorRepo, c.CaptchaService)
	c.NotificationService = service.NewNotificationService(c.Config.Notify)
	c.RiskService = service.NewRiskService(c.RiskRuleRepo, c.RiskRecordRepo, c.PaymentOrderRepo, c.RecordRepo, c.Config.Risk)
	c.PaymentService = service.NewPaymentService(c.PaymentOrderRepo, c.PaymentChannelRepo, c.RecordRepo, c.PaymentRegistry, c.QueueClient, c.RiskService, c.NotificationService, c.Config.Payment)
	c.RefundService = service.NewRefundService(c.RefundOrderRepo, c.PaymentOrderRepo, c.RecordRepo, c.PaymentRegistry, c.QueueClient, c.Config.Payment, c.Config.Risk)
}
