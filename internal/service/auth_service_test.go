package service

import (
	"errors"
	"testing"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/config"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/constants"
	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/repository"

	"gorm.io/gorm"
)

func setupAuthServiceTest(t *testing.T, name string) (*AuthService, *gorm.DB) {
	t.Helper()
	db := setupServiceTestDB(t, name)
	cfg := &config.Config{
		JWT: config.JWTConfig{
			SecretKey:   "unit-test-secret-key-0123456789abcdef",
			ExpireHours: 2,
		},
	}
	svc := NewAuthService(cfg, repository.NewOperatorRepository(db), nil)
	return svc, db
}

func TestLogin(t *testing.T) {
	svc, _ := setupAuthServiceTest(t, "auth_login")
	if _, err := svc.CreateOperator(CreateOperatorInput{
		Username: "ops-admin",
		Password: "s3cure-pass",
		Role:     constants.OperatorRoleAdmin,
	}); err != nil {
		t.Fatalf("CreateOperator failed: %v", err)
	}

	operator, token, expiresAt, err := svc.Login(LoginInput{
		Username: "ops-admin",
		Password: "s3cure-pass",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if operator.Username != "ops-admin" || operator.Role != constants.OperatorRoleAdmin {
		t.Fatalf("operator = %s/%s", operator.Username, operator.Role)
	}
	if token == "" || expiresAt.IsZero() {
		t.Fatal("token or expiry missing")
	}
	if operator.LastLoginAt == nil {
		t.Fatal("last login not recorded")
	}

	if _, _, _, err := svc.Login(LoginInput{
		Username: "ops-admin",
		Password: "wrong-pass",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, _, err := svc.Login(LoginInput{
		Username: "ghost",
		Password: "whatever",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v, want ErrInvalidCredentials", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	svc, _ := setupAuthServiceTest(t, "auth_jwt")
	operator, err := svc.CreateOperator(CreateOperatorInput{
		Username: "reviewer-1",
		Password: "s3cure-pass",
		Role:     constants.OperatorRoleReviewer,
	})
	if err != nil {
		t.Fatalf("CreateOperator failed: %v", err)
	}

	token, _, err := svc.GenerateJWT(operator)
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}
	claims, err := svc.ParseJWT(token)
	if err != nil {
		t.Fatalf("ParseJWT failed: %v", err)
	}
	if claims.OperatorID != operator.ID || claims.Username != "reviewer-1" || claims.Role != constants.OperatorRoleReviewer {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := svc.ParseJWT(token + "x"); err == nil {
		t.Fatal("tampered token accepted")
	}
}

func TestCreateOperatorValidation(t *testing.T) {
	svc, _ := setupAuthServiceTest(t, "auth_create")

	if _, err := svc.CreateOperator(CreateOperatorInput{
		Username: "weak",
		Password: "short",
	}); !errors.Is(err, ErrOperatorPasswordWeak) {
		t.Fatalf("weak password err = %v, want ErrOperatorPasswordWeak", err)
	}

	// 未知角色归一为 reviewer
	operator, err := svc.CreateOperator(CreateOperatorInput{
		Username: "ops-1",
		Password: "s3cure-pass",
		Role:     "superuser",
	})
	if err != nil {
		t.Fatalf("CreateOperator failed: %v", err)
	}
	if operator.Role != constants.OperatorRoleReviewer {
		t.Fatalf("role = %s, want reviewer", operator.Role)
	}

	if _, err := svc.CreateOperator(CreateOperatorInput{
		Username: "ops-1",
		Password: "another-pass",
	}); !errors.Is(err, ErrOperatorUsernameTaken) {
		t.Fatalf("duplicate err = %v, want ErrOperatorUsernameTaken", err)
	}
}

func TestDeleteOperator(t *testing.T) {
	svc, _ := setupAuthServiceTest(t, "auth_delete")
	operator, err := svc.CreateOperator(CreateOperatorInput{
		Username: "ops-del",
		Password: "s3cure-pass",
	})
	if err != nil {
		t.Fatalf("CreateOperator failed: %v", err)
	}
	if err := svc.DeleteOperator(operator.ID); err != nil {
		t.Fatalf("DeleteOperator failed: %v", err)
	}
	if err := svc.DeleteOperator(operator.ID); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("repeat delete err = %v, want ErrOperatorNotFound", err)
	}
}

func TestCaptchaVerify(t *testing.T) {
	disabled := NewCaptchaService(config.CaptchaConfig{Enabled: false})
	if err := disabled.Verify("any", "any"); err != nil {
		t.Fatalf("disabled captcha should pass, got %v", err)
	}

	enabled := NewCaptchaService(config.CaptchaConfig{
		Enabled: true,
		Length:  4,
		Width:   160,
		Height:  60,
	})
	if err := enabled.Verify("", ""); !errors.Is(err, ErrCaptchaInvalid) {
		t.Fatalf("empty answer err = %v, want ErrCaptchaInvalid", err)
	}
	if err := enabled.Verify("no-such-id", "abcd"); !errors.Is(err, ErrCaptchaInvalid) {
		t.Fatalf("unknown id err = %v, want ErrCaptchaInvalid", err)
	}

	challenge, err := enabled.GenerateImageChallenge()
	if err != nil {
		t.Fatalf("GenerateImageChallenge failed: %v", err)
	}
	if challenge.CaptchaID == "" || challenge.ImageBase64 == "" {
		t.Fatalf("challenge = %+v", challenge)
	}
	if err := enabled.Verify(challenge.CaptchaID, "definitely-wrong"); !errors.Is(err, ErrCaptchaInvalid) {
		t.Fatalf("wrong answer err = %v, want ErrCaptchaInvalid", err)
	}
}
