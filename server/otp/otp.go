// Package otp issues & verifies one time login codes. Codes are stored
// bcrypt-hashed with a TTL and a bounded number of verification attempts.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/villagevault/villagevault/server/auth"
)

const (
	DEFAULT_LENGTH       = 6
	DEFAULT_TTL          = 5 * time.Minute
	DEFAULT_MAX_ATTEMPTS = 5
)

var (
	ErrOTPNotFound    = errors.New("OTP expired or not found")
	ErrOTPInvalid     = errors.New("invalid OTP")
	ErrOTPMaxAttempts = errors.New("too many OTP attempts")
)

// Store keeps one pending code per phone number.
type Store interface {
	Save(ctx context.Context, phone, codeHash string, ttl time.Duration) error
	Get(ctx context.Context, phone string) (string, error)
	IncrAttempts(ctx context.Context, phone string) (int64, error)
	Delete(ctx context.Context, phone string) error
}

type Config struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
}

type Manager struct {
	store  Store
	config Config
}

func NewManager(store Store, config Config) *Manager {
	if config.Length <= 0 {
		config.Length = DEFAULT_LENGTH
	}
	if config.TTL <= 0 {
		config.TTL = DEFAULT_TTL
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DEFAULT_MAX_ATTEMPTS
	}
	return &Manager{store: store, config: config}
}

func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue generates a fresh code for 'phone', replacing any pending one.
func (m *Manager) Issue(ctx context.Context, phone string) (string, error) {
	code, err := generateCode(m.config.Length)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP code: %w", err)
	}

	codeHash, err := auth.HashSecret(code)
	if err != nil {
		return "", fmt.Errorf("failed to hash OTP code: %w", err)
	}

	if err := m.store.Save(ctx, phone, codeHash, m.config.TTL); err != nil {
		return "", fmt.Errorf("failed to store OTP: %w", err)
	}

	return code, nil
}

// Verify consumes the pending code for 'phone' on success.
func (m *Manager) Verify(ctx context.Context, phone, code string) error {
	codeHash, err := m.store.Get(ctx, phone)
	if err != nil {
		return err
	}

	attempts, err := m.store.IncrAttempts(ctx, phone)
	if err != nil {
		return fmt.Errorf("failed to increment OTP attempts: %w", err)
	}
	if attempts > int64(m.config.MaxAttempts) {
		m.store.Delete(ctx, phone)
		return ErrOTPMaxAttempts
	}

	if !auth.CheckSecretHash(code, codeHash) {
		return ErrOTPInvalid
	}

	return m.store.Delete(ctx, phone)
}

func generateCode(length int) (string, error) {
	digits := make([]byte, length)

	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + num.Int64())
	}

	return string(digits), nil
}
