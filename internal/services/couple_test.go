package services

import (
	"context"
	"errors"
	"testing"

	"pairspace-backend/internal/models"
	"pairspace-backend/internal/security"
)

func TestCoupleService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		in      RegisterInput
		wantErr bool
	}{
		{"valid", RegisterInput{CoupleID: "alice-bob", Password: "123456", PartnerOneName: "Alice", PartnerTwoName: "Bob"}, false},
		{"password too short", RegisterInput{CoupleID: "alice-bob", Password: "12345", PartnerOneName: "Alice", PartnerTwoName: "Bob"}, true},
		{"multibyte password counts runes", RegisterInput{CoupleID: "alice-bob", Password: "ééééé", PartnerOneName: "Alice", PartnerTwoName: "Bob"}, true},
		{"couple id too short", RegisterInput{CoupleID: "ab", Password: "123456", PartnerOneName: "Alice", PartnerTwoName: "Bob"}, true},
		{"couple id with slash", RegisterInput{CoupleID: "../etc", Password: "123456", PartnerOneName: "Alice", PartnerTwoName: "Bob"}, true},
		{"missing partner", RegisterInput{CoupleID: "alice-bob", Password: "123456", PartnerOneName: "Alice"}, true},
		{"partner name is only markup", RegisterInput{CoupleID: "alice-bob", Password: "123456", PartnerOneName: "Alice", PartnerTwoName: "<b></b>"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.coupleSvc.Register(context.Background(), tt.in)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Register() error = %v", err)
				}
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Register() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestCoupleService_RegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice-bob")

	_, err := env.coupleSvc.Register(context.Background(), RegisterInput{
		CoupleID: "alice-bob", Password: "another1", PartnerOneName: "Carol", PartnerTwoName: "Dave",
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("Register() error = %v, want ErrConflict", err)
	}
}

func TestCoupleService_LoginReturnsRegistrationToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.register(t, "alice-bob")

	creds, err := env.coupleSvc.Login(ctx, "alice-bob", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if creds.Token != token {
		t.Errorf("Login() token differs from the one issued at registration")
	}
	if creds.CoupleID != "alice-bob" {
		t.Errorf("CoupleID = %q", creds.CoupleID)
	}

	if _, err := env.coupleSvc.Login(ctx, "alice-bob", "wrong-password"); !errors.Is(err, models.ErrAuth) {
		t.Errorf("Login() with wrong password error = %v, want ErrAuth", err)
	}
	if _, err := env.coupleSvc.Login(ctx, "nobody", "secret123"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Login() for unknown couple error = %v, want ErrNotFound", err)
	}
}

func TestCoupleService_ResolveByToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.register(t, "alice-bob")

	couple, err := env.coupleSvc.ResolveByToken(ctx, token)
	if err != nil {
		t.Fatalf("ResolveByToken() error = %v", err)
	}
	if couple.CoupleID != "alice-bob" || couple.PartnerOne.Name != "Alice" || couple.PartnerTwo.Name != "Bob" {
		t.Errorf("ResolveByToken() = %+v", couple)
	}

	other := NewCoupleService(env.couples, env.devices, security.NewPasswordHasher(security.Argon2Params{}), "other-secret")
	forged, err := other.GenerateToken("alice-bob")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	for name, tok := range map[string]string{"forged": forged, "garbage": "not-a-token", "empty": ""} {
		if _, err := env.coupleSvc.ResolveByToken(ctx, tok); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("%s: ResolveByToken() error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestCoupleService_TokensAreUnique(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.coupleSvc.GenerateToken("alice-bob")
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.coupleSvc.GenerateToken("alice-bob")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two tokens for the same couple are identical")
	}

	id, err := env.coupleSvc.ValidateToken(a)
	if err != nil || id != "alice-bob" {
		t.Errorf("ValidateToken() = %q, %v", id, err)
	}
}

func TestCoupleService_RegisterDevice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token := env.register(t, "alice-bob")
	couple, err := env.coupleSvc.ResolveByToken(ctx, token)
	if err != nil {
		t.Fatal(err)
	}

	var ve *models.ValidationError
	if _, err := env.coupleSvc.RegisterDevice(ctx, couple, "Mallory", "abc"); !errors.As(err, &ve) {
		t.Errorf("unknown partner error = %v, want ValidationError", err)
	}
	if _, err := env.coupleSvc.RegisterDevice(ctx, couple, "Alice", " "); !errors.As(err, &ve) {
		t.Errorf("empty device token error = %v, want ValidationError", err)
	}

	if _, err := env.coupleSvc.RegisterDevice(ctx, couple, "Alice", "device-1"); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}
	if _, err := env.coupleSvc.RegisterDevice(ctx, couple, "Bob", "device-1"); err != nil {
		t.Fatalf("RegisterDevice() error = %v", err)
	}

	devices, _ := env.devices.ListByCoupleID(ctx, "alice-bob")
	if len(devices) != 1 || devices[0].PartnerName != "Bob" {
		t.Errorf("re-registering a device token should move it, got %+v", devices)
	}
}

func TestCoupleService_RegisterDeviceMovesTokenAcrossCouples(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first, _ := env.coupleSvc.ResolveByToken(ctx, env.register(t, "alice-bob"))
	second, _ := env.coupleSvc.ResolveByToken(ctx, env.register(t, "alice-bob-2"))

	if _, err := env.coupleSvc.RegisterDevice(ctx, first, "Alice", "device-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.coupleSvc.RegisterDevice(ctx, second, "Bob", "device-1"); err != nil {
		t.Fatal(err)
	}

	if devices, _ := env.devices.ListByCoupleID(ctx, "alice-bob"); len(devices) != 0 {
		t.Errorf("old couple still has %+v", devices)
	}
	devices, _ := env.devices.ListByCoupleID(ctx, "alice-bob-2")
	if len(devices) != 1 || devices[0].PartnerName != "Bob" {
		t.Errorf("new couple devices = %+v", devices)
	}
}

func TestCoupleService_RegisterDeviceEscapedName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	creds, err := env.coupleSvc.Register(ctx, RegisterInput{
		CoupleID:       "tom-jerry",
		Password:       "secret123",
		PartnerOneName: "Tom & Co",
		PartnerTwoName: "Jerry",
	})
	if err != nil {
		t.Fatal(err)
	}
	couple, _ := env.coupleSvc.ResolveByToken(ctx, creds.Token)
	if couple.PartnerOne.Name != "Tom &amp; Co" {
		t.Errorf("stored name = %q", couple.PartnerOne.Name)
	}
	if _, err := env.coupleSvc.RegisterDevice(ctx, couple, "Tom & Co", "device-1"); err != nil {
		t.Errorf("RegisterDevice() with the raw name error = %v", err)
	}
}
