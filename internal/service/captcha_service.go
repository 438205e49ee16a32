package service

import (
	"strings"
	"sync"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"

	"github.com/mojocn/base64Captcha"
)

// CaptchaImageChallenge 图片验证码挑战
type CaptchaImageChallenge struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
}

// CaptchaService 操作员登录图片验证码服务
type CaptchaService struct {
	cfg config.CaptchaConfig

	mu    sync.Mutex
	store base64Captcha.Store
}

// NewCaptchaService 创建验证码服务
func NewCaptchaService(cfg config.CaptchaConfig) *CaptchaService {
	return &CaptchaService{cfg: cfg}
}

// Enabled 验证码是否启用
func (s *CaptchaService) Enabled() bool {
	return s != nil && s.cfg.Enabled
}

// GenerateImageChallenge 生成图片验证码
func (s *CaptchaService) GenerateImageChallenge() (*CaptchaImageChallenge, error) {
	driver := base64Captcha.NewDriverString(
		s.height(),
		s.width(),
		s.cfg.NoiseCount,
		s.cfg.ShowLine,
		s.length(),
		"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		nil,
		base64Captcha.DefaultEmbeddedFonts,
		nil,
	)
	captcha := base64Captcha.NewCaptcha(driver, s.ensureStore())
	id, b64s, _, err := captcha.Generate()
	if err != nil {
		return nil, err
	}
	return &CaptchaImageChallenge{
		CaptchaID:   strings.TrimSpace(id),
		ImageBase64: strings.TrimSpace(b64s),
	}, nil
}

// Verify 校验验证码。未启用时直接放行，校验后即销毁。
func (s *CaptchaService) Verify(captchaID, answer string) error {
	if !s.Enabled() {
		return nil
	}
	captchaID = strings.TrimSpace(captchaID)
	answer = strings.TrimSpace(answer)
	if captchaID == "" || answer == "" {
		return ErrCaptchaInvalid
	}
	if !s.ensureStore().Verify(captchaID, answer, true) {
		return ErrCaptchaInvalid
	}
	return nil
}

func (s *CaptchaService) ensureStore() base64Captcha.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		maxStore := s.cfg.MaxStore
		if maxStore <= 0 {
			maxStore = 10240
		}
		expire := time.Duration(s.cfg.ExpireSeconds) * time.Second
		if expire <= 0 {
			expire = 5 * time.Minute
		}
		s.store = base64Captcha.NewMemoryStore(maxStore, expire)
	}
	return s.store
}

func (s *CaptchaService) length() int {
	if s.cfg.Length > 0 {
		return s.cfg.Length
	}
	return 5
}

func (s *CaptchaService) width() int {
	if s.cfg.Width > 0 {
		return s.cfg.Width
	}
	return 240
}

func (s *CaptchaService) height() int {
	if s.cfg.Height > 0 {
		return s.cfg.Height
	}
	return 80
}
