package service

import (
	"errors"
	"strings"
	"time"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/models"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 操作员认证服务
type AuthService struct {
	cfg          *config.Config
	operatorRepo repository.OperatorRepository
	captchaSvc   *CaptchaService
}

// NewAuthService 创建认证服务
func NewAuthService(cfg *config.Config, operatorRepo repository.OperatorRepository, captchaSvc *CaptchaService) *AuthService {
	return &AuthService{
		cfg:          cfg,
		operatorRepo: operatorRepo,
		captchaSvc:   captchaSvc,
	}
}

// HashPassword 使用 bcrypt 加密密码
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 验证密码
func (s *AuthService) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// JWTClaims 操作员令牌声明
type JWTClaims struct {
	OperatorID uint   `json:"operator_id"`
	Username   string `json:"username"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成操作员令牌
func (s *AuthService) GenerateJWT(operator *models.Operator) (string, time.Time, error) {
	expiresAt := time.Now().Add(time.Duration(s.cfg.JWT.ExpireHours) * time.Hour)

	claims := JWTClaims{
		OperatorID: operator.ID,
		Username:   operator.Username,
		Role:       operator.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析操作员令牌
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("无效的 token")
}

// LoginInput 操作员登录请求
type LoginInput struct {
	Username      string
	Password      string
	CaptchaID     string
	CaptchaAnswer string
}

// Login 操作员登录
func (s *AuthService) Login(input LoginInput) (*models.Operator, string, time.Time, error) {
	if s.captchaSvc != nil {
		if err := s.captchaSvc.Verify(input.CaptchaID, input.CaptchaAnswer); err != nil {
			return nil, "", time.Time{}, err
		}
	}

	username := strings.TrimSpace(input.Username)
	operator, err := s.operatorRepo.GetByUsername(username)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if operator == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err := s.VerifyPassword(operator.PasswordHash, input.Password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.GenerateJWT(operator)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := time.Now()
	operator.LastLoginAt = &now
	if err := s.operatorRepo.Update(operator); err != nil {
		logger.SW("username", username).Warnw("operator_last_login_update_failed", "error", err)
	}

	logger.SW("username", username, "role", operator.Role).Infow("operator_login_success")
	return operator, token, expiresAt, nil
}

// CreateOperatorInput 创建操作员请求
type CreateOperatorInput struct {
	Username string
	Password string
	Role     string
}

// CreateOperator 创建操作员账号
func (s *AuthService) CreateOperator(input CreateOperatorInput) (*models.Operator, error) {
	username := strings.TrimSpace(input.Username)
	role := strings.TrimSpace(input.Role)
	if username == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}
	if role != constants.OperatorRoleAdmin && role != constants.OperatorRoleReviewer {
		role = constants.OperatorRoleReviewer
	}
	if len(input.Password) < 8 {
		return nil, ErrOperatorPasswordWeak
	}

	existing, err := s.operatorRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrOperatorUsernameTaken
	}

	hash, err := s.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	operator := &models.Operator{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	if err := s.operatorRepo.Create(operator); err != nil {
		return nil, err
	}
	logger.SW("username", username, "role", role).Infow("operator_created")
	return operator, nil
}

// ListOperators 操作员列表
func (s *AuthService) ListOperators() ([]models.Operator, error) {
	return s.operatorRepo.List()
}

// DeleteOperator 删除操作员
func (s *AuthService) DeleteOperator(id uint) error {
	if id == 0 {
		return ErrOperatorNotFound
	}
	operator, err := s.operatorRepo.GetByID(id)
	if err != nil {
		return err
	}
	if operator == nil {
		return ErrOperatorNotFound
	}
	return s.operatorRepo.Delete(id)
}
