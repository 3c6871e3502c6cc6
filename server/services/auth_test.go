package services

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villagevault/villagevault/server/auth/key"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/otp"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/server/store/memstore"
)

var codeRegex = regexp.MustCompile(`code is (\d+)`)

type recordingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *recordingSender) SendMessage(ctx context.Context, to, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if match := codeRegex.FindStringSubmatch(msg); match != nil {
		s.codes[to] = match[1]
	}
	return nil
}

func (s *recordingSender) code(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

func newAuthService(t *testing.T, s *memstore.MemStore) (*AuthService, *recordingSender) {
	t.Helper()

	keyPair, err := key.GenerateKeyPair(2048)
	require.NoError(t, err)

	sender := &recordingSender{codes: map[string]string{}}
	manager := otp.NewManager(otp.NewMemoryStore(), otp.Config{})

	return NewAuthService(s, manager, sender, keyPair, 0), sender
}

func registerInput(phone, role string) RegisterInput {
	return RegisterInput{
		PhoneNumber: phone,
		Name:        "Ramesh",
		Role:        role,
		PinCode:     "522508",
		VillageName: "Test Village",
	}
}

func TestRegisterSecondSarpanch(t *testing.T) {
	ctx := context.Background()
	service, _ := newAuthService(t, memstore.New())

	sarpanch, err := service.Register(ctx, registerInput("9876543210", models.SARPANCH_ROLE))
	require.NoError(t, err)
	assert.False(t, sarpanch.IsVerified)
	assert.NotEmpty(t, sarpanch.VillageID)

	_, err = service.Register(ctx, registerInput("9876543211", models.SARPANCH_ROLE))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "Sarpanch already exists for this village.", validationErr.Message)

	villager, err := service.Register(ctx, registerInput("9876543212", models.VILLAGER_ROLE))
	require.NoError(t, err)
	assert.Equal(t, sarpanch.VillageID, villager.VillageID, "village is looked up by pin code")

	_, err = service.Register(ctx, registerInput("9876543212", models.VILLAGER_ROLE))
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "User with this phone number already exists", validationErr.Message)
}

func TestRegisterValidation(t *testing.T) {
	service, _ := newAuthService(t, memstore.New())

	testCases := []struct {
		name     string
		modify   func(input *RegisterInput)
		expected string
	}{
		{"phone number", func(input *RegisterInput) { input.PhoneNumber = "1234567890" }, `"phoneNumber" with value "1234567890" fails to match the required pattern`},
		{"short name", func(input *RegisterInput) { input.Name = "R" }, `"name" length must be at least 2 characters long`},
		{"role", func(input *RegisterInput) { input.Role = "ADMIN" }, `"role" must be one of [SARPANCH, VILLAGER]`},
		{"pin code", func(input *RegisterInput) { input.PinCode = "52250" }, `"pinCode" length must be 6 characters long`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := registerInput("9876543210", models.VILLAGER_ROLE)
			tc.modify(&input)

			_, err := service.Register(context.Background(), input)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.expected, validationErr.Message)
		})
	}
}

func TestVerifyOTPAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	service, sender := newAuthService(t, s)

	user, err := service.Register(ctx, registerInput("9876543210", models.VILLAGER_ROLE))
	require.NoError(t, err)

	code := sender.code(user.PhoneNumber)
	require.NotEmpty(t, code)

	wrongCode := "000000"
	if code == wrongCode {
		wrongCode = "111111"
	}
	_, err = service.VerifyOTP(ctx, VerifyOTPInput{PhoneNumber: user.PhoneNumber, OTP: wrongCode})
	assert.EqualError(t, err, "Invalid OTP")

	session, err := service.VerifyOTP(ctx, VerifyOTPInput{PhoneNumber: user.PhoneNumber, OTP: code})
	require.NoError(t, err)
	assert.True(t, session.User.IsVerified)
	require.NotNil(t, session.Village)
	assert.Equal(t, "522508", session.Village.PinCode)
	assert.Equal(t, models.DEFAULT_DISTRICT, session.Village.District)

	_, err = service.VerifyOTP(ctx, VerifyOTPInput{PhoneNumber: user.PhoneNumber, OTP: code})
	assert.EqualError(t, err, "OTP not found or expired", "codes are single use")

	authenticated, err := service.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authenticated.ID)

	require.NoError(t, service.Login(ctx, LoginInput{PhoneNumber: user.PhoneNumber}))
	assert.NotEmpty(t, sender.code(user.PhoneNumber))
}

func TestAuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	service, _ := newAuthService(t, s)

	unverified, err := service.Register(ctx, registerInput("9876543210", models.VILLAGER_ROLE))
	require.NoError(t, err)
	unverifiedToken, err := service.IssueToken(unverified)
	require.NoError(t, err)

	ghostToken, err := service.IssueToken(&models.User{BaseModel: models.BaseModel{ID: "ghost"}, Role: models.VILLAGER_ROLE})
	require.NoError(t, err)

	testCases := []struct {
		name     string
		token    string
		expected string
	}{
		{"no token", "", "Access denied. No token provided."},
		{"garbage", "not-a-jwt", "Invalid token."},
		{"unknown user", ghostToken, "Invalid token. User not found."},
		{"unverified user", unverifiedToken, "Account not verified. Please verify your phone number."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Authenticate(ctx, tc.token)
			var unauthorizedErr *UnauthorizedError
			require.ErrorAs(t, err, &unauthorizedErr)
			assert.Equal(t, tc.expected, unauthorizedErr.Message)
		})
	}
}

func TestLoginUnknownPhone(t *testing.T) {
	service, _ := newAuthService(t, memstore.New())

	err := service.Login(context.Background(), LoginInput{PhoneNumber: "9876543210"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.EqualError(t, err, "User not found. Please register first.")
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service, _ := newAuthService(t, f.store)

	_, err := service.UpdateProfile(ctx, f.villager, " a ")
	assert.EqualError(t, err, "Name must be at least 2 characters long")

	updated, err := service.UpdateProfile(ctx, f.villager, "  Gayathri Devi ")
	require.NoError(t, err)
	assert.Equal(t, "Gayathri Devi", updated.Name)

	profile := service.Profile(ctx, updated)
	require.NotNil(t, profile.Village)
	assert.Equal(t, "Test Village", profile.Village.Name)

	jwks, err := service.JWKS()
	require.NoError(t, err)
	assert.Len(t, jwks.Keys, 1)
}
