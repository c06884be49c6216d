package user

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func TestMakeVerifyToken(t *testing.T) {
	timeout := 3 * 24 * time.Hour
	gen := newPasswordResetTokenGenerator("secret", timeout)

	now := time.Now()
	usr := User{
		ID:        1,
		Username:  "t",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: null.TimeFrom(now),
	}
	_ = usr.SetPassword("pwd")

	validToken := gen.makeToken(usr)

	// generate an expired token
	dayLate := timeout + (24 * time.Hour)
	nowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := gen.makeToken(usr)
	nowFunc = time.Now // reset

	// a token is invalidated once the password changes
	changedUsr := usr
	_ = changedUsr.SetPassword("pwd2")

	otherGen := newPasswordResetTokenGenerator("other-secret", timeout)
	emailGen := newEmailVerificationTokenGenerator("secret", timeout)

	tests := []struct {
		name    string
		gen     *tokenGenerator
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", gen: gen, usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", gen: gen, usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", gen: gen, usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", gen: gen, usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", gen: gen, usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", gen: gen, usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "password changed", gen: gen, usr: changedUsr, token: validToken, wantErr: errInvalidToken},
		{name: "other secret", gen: otherGen, usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "other token kind", gen: emailGen, usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", gen: gen, usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.gen.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmailVerificationToken(t *testing.T) {
	gen := newEmailVerificationTokenGenerator("secret", time.Hour)
	usr := User{ID: 42, Email: "a@test.test"}
	token := gen.makeToken(usr)

	if err := gen.verifyToken(usr, token); err != nil {
		t.Errorf("verifyToken() error = %v, want nil", err)
	}

	verified := usr
	verified.EmailVerified = true
	if err := gen.verifyToken(verified, token); err != errInvalidToken {
		t.Errorf("verifyToken() error = %v, want %v", err, errInvalidToken)
	}

	moved := usr
	moved.Email = "b@test.test"
	if err := gen.verifyToken(moved, token); err != errInvalidToken {
		t.Errorf("verifyToken() error = %v, want %v", err, errInvalidToken)
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	uid := EncodeUID(User{ID: 1234})
	id, err := decodeUID(uid)
	if err != nil || id != 1234 {
		t.Errorf("decodeUID() = %v, %v; want 1234, nil", id, err)
	}
	if _, err := decodeUID("!!"); err != errInvalidUID {
		t.Errorf("decodeUID() error = %v, want %v", err, errInvalidUID)
	}
}
