package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	nowFunc = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
	errInvalidUID   = errors.New("invalid uid")

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// tokenGenerator makes & verifies single use HMAC tokens.
// A token is invalidated as soon as any of the values hashed by hashFunc changes.
type tokenGenerator struct {
	salt      []byte
	secretKey []byte
	timeout   time.Duration
	hashFunc  func(usr User, ts int64) []byte
}

func newPasswordResetTokenGenerator(secretKey string, timeout time.Duration) *tokenGenerator {
	return &tokenGenerator{
		salt:      []byte("suprss.core.user.PasswordResetTokenGenerator"),
		secretKey: []byte(secretKey),
		timeout:   timeout,
		hashFunc: func(usr User, ts int64) []byte {
			var val bytes.Buffer
			val.WriteString(strconv.FormatInt(usr.ID, 10))
			val.Write(usr.PasswordHash)
			if usr.LastLogin.Valid {
				val.WriteString(usr.LastLogin.Time.UTC().Format(time.RFC3339Nano))
			}
			val.WriteString(strconv.FormatInt(ts, 10))
			return val.Bytes()
		},
	}
}

func newEmailVerificationTokenGenerator(secretKey string, timeout time.Duration) *tokenGenerator {
	return &tokenGenerator{
		salt:      []byte("suprss.core.user.EmailVerificationTokenGenerator"),
		secretKey: []byte(secretKey),
		timeout:   timeout,
		hashFunc: func(usr User, ts int64) []byte {
			var val bytes.Buffer
			val.WriteString(strconv.FormatInt(usr.ID, 10))
			val.WriteString(usr.Email)
			val.WriteString(strconv.FormatBool(usr.EmailVerified))
			val.WriteString(strconv.FormatInt(ts, 10))
			return val.Bytes()
		},
	}
}

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(usr.ID, 10)))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (int64, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return 0, errInvalidUID
	}
	id, err := strconv.ParseInt(string(idBytes), 10, 64)
	if err != nil {
		return 0, errInvalidUID
	}
	return id, nil
}

// makeToken generates a token for a given User.
func (gen *tokenGenerator) makeToken(usr User) string {
	return gen.makeTokenWithTimestamp(usr, nowFunc().Unix())
}

// verifyToken checks that a token for a given User is valid.
func (gen *tokenGenerator) verifyToken(usr User, token string) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}

	data, err := b32.DecodeString(parts[0])
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken := gen.makeTokenWithTimestamp(usr, ts)
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if time.Since(time.Unix(ts, 0)) > gen.timeout {
		return errTokenExpired
	}
	return nil
}

func (gen *tokenGenerator) makeTokenWithTimestamp(usr User, ts int64) string {
	tsB32 := b32.EncodeToString([]byte(strconv.FormatInt(ts, 10)))
	return fmt.Sprintf("%s-%s", tsB32, gen.sign(gen.hashFunc(usr, ts)))
}

func (gen *tokenGenerator) sign(val []byte) string {
	key := sha256.Sum256(append(append([]byte{}, gen.salt...), gen.secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write(val) //nolint:errcheck // hash.Hash never returns an error
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
