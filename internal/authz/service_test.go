package authz

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAuthzServiceTest(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	svc, err := NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	return svc
}

func TestEnforceOperatorWithRolePolicy(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("reviewer", "/admin/risk/records/:id/review", "POST"); err != nil {
		t.Fatalf("grant role policy failed: %v", err)
	}
	if err := svc.SetOperatorRoles(1, []string{"reviewer"}); err != nil {
		t.Fatalf("set operator roles failed: %v", err)
	}

	allow, err := svc.EnforceOperator(1, "/api/v1/admin/risk/records/42/review", "post")
	if err != nil {
		t.Fatalf("enforce allow failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected allow=true")
	}

	allow, err = svc.EnforceOperator(1, "/api/v1/admin/risk/rules", "POST")
	if err != nil {
		t.Fatalf("enforce deny failed: %v", err)
	}
	if allow {
		t.Fatalf("expected allow=false")
	}
}

func TestSetOperatorRolesOverride(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.GrantRolePolicy("reviewer", "/admin/refunds/:refund_no/audit", "POST"); err != nil {
		t.Fatalf("grant reviewer policy failed: %v", err)
	}
	if err := svc.GrantRolePolicy("operations", "/admin/risk/rules", "POST"); err != nil {
		t.Fatalf("grant operations policy failed: %v", err)
	}

	if err := svc.SetOperatorRoles(2, []string{"reviewer"}); err != nil {
		t.Fatalf("set first role failed: %v", err)
	}
	roles, err := svc.GetOperatorRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:reviewer" {
		t.Fatalf("roles want [role:reviewer], got=%v", roles)
	}

	if err := svc.SetOperatorRoles(2, []string{"operations"}); err != nil {
		t.Fatalf("set second role failed: %v", err)
	}
	roles, err = svc.GetOperatorRoles(2)
	if err != nil {
		t.Fatalf("get roles failed: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role:operations" {
		t.Fatalf("roles want [role:operations], got=%v", roles)
	}

	allow, err := svc.EnforceOperator(2, "/admin/refunds/RFD123/audit", "POST")
	if err != nil {
		t.Fatalf("enforce old role failed: %v", err)
	}
	if allow {
		t.Fatalf("expected old role permission removed")
	}

	allow, err = svc.EnforceOperator(2, "/admin/risk/rules", "POST")
	if err != nil {
		t.Fatalf("enforce new role failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected new role permission granted")
	}
}

func TestNormalizeObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "/api/v1/admin/refunds/:refund_no", want: "/admin/refunds/:refund_no"},
		{in: "/admin/payments/:order_no", want: "/admin/payments/:order_no"},
		{in: "admin/risk/rules", want: "/admin/risk/rules"},
		{in: "/api/v1", want: "/"},
		{in: "", want: "/"},
	}
	for _, item := range cases {
		got := NormalizeObject(item.in)
		if got != item.want {
			t.Fatalf("normalize object failed, in=%q want=%q got=%q", item.in, item.want, got)
		}
	}
}

func TestBootstrapBuiltinRoles(t *testing.T) {
	svc := setupAuthzServiceTest(t)
	if err := svc.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap builtin roles failed: %v", err)
	}

	roles, err := svc.ListRoles()
	if err != nil {
		t.Fatalf("list roles failed: %v", err)
	}
	wantRoles := map[string]bool{
		"role:readonly_auditor": true,
		"role:reviewer":         true,
		"role:operations":       true,
		"role:admin":            true,
	}
	for _, role := range roles {
		delete(wantRoles, role)
	}
	if len(wantRoles) != 0 {
		t.Fatalf("builtin roles missing: %v", wantRoles)
	}

	if err := svc.SetOperatorRoles(3, []string{"reviewer"}); err != nil {
		t.Fatalf("set operator roles failed: %v", err)
	}

	allow, err := svc.EnforceOperator(3, "/admin/risk/statistics", "GET")
	if err != nil {
		t.Fatalf("enforce inherited readonly failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected inherited readonly permission")
	}

	allow, err = svc.EnforceOperator(3, "/admin/risk/rules", "POST")
	if err != nil {
		t.Fatalf("enforce reviewer write failed: %v", err)
	}
	if allow {
		t.Fatalf("expected reviewer deny rule management")
	}

	allow, err = svc.EnforceOperator(3, "/admin/refunds/RFD20240101/audit", "POST")
	if err != nil {
		t.Fatalf("enforce reviewer audit failed: %v", err)
	}
	if !allow {
		t.Fatalf("expected reviewer allowed to audit refunds")
	}
}
