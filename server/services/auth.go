package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/auth"
	"github.com/villagevault/villagevault/server/auth/key"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/otp"
	"github.com/villagevault/villagevault/server/store"
)

type AuthStore interface {
	store.UserStore
	store.VillageStore
}

// OTPSender delivers login codes, e.g. over SMS.
type OTPSender interface {
	SendMessage(ctx context.Context, to, msg string) error
}

type RegisterInput struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone_number"`
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Role        string `json:"role" validate:"required,oneof=SARPANCH VILLAGER"`
	PinCode     string `json:"pinCode" validate:"required,len=6,pin_code"`
	VillageName string `json:"villageName" validate:"required,min=2,max=100"`
}

type LoginInput struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone_number"`
}

type VerifyOTPInput struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone_number"`
	OTP         string `json:"otp" validate:"required,numeric,min=4,max=10"`
}

// Session is handed out once a phone number is verified.
type Session struct {
	Token   string          `json:"token"`
	User    *models.User    `json:"user"`
	Village *models.Village `json:"village"`
}

type Profile struct {
	User    *models.User    `json:"user"`
	Village *models.Village `json:"village"`
}

type AuthService struct {
	store     AuthStore
	otps      *otp.Manager
	otpSender OTPSender
	keyPair   *key.KeyPair
	tokenTTL  time.Duration
}

func NewAuthService(st AuthStore, otps *otp.Manager, otpSender OTPSender, keyPair *key.KeyPair, tokenTTL time.Duration) *AuthService {
	return &AuthService{store: st, otps: otps, otpSender: otpSender, keyPair: keyPair, tokenTTL: tokenTTL}
}

// Register creates an unverified user, creating the village on first use of its
// pin code, and sends an OTP to the phone number.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	_, err := s.store.GetUserByPhone(ctx, input.PhoneNumber)
	if err == nil {
		return nil, invalid("User with this phone number already exists")
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, pkgerrors.Wrap(err, "failed to look up user")
	}

	village, err := s.findOrCreateVillage(ctx, input.PinCode, input.VillageName)
	if err != nil {
		return nil, err
	}

	if input.Role == models.SARPANCH_ROLE {
		sarpanchCount, err := s.store.CountUsers(ctx, models.UserFilter{VillageID: village.ID, Role: models.SARPANCH_ROLE})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to count sarpanch")
		}
		if sarpanchCount > 0 {
			return nil, invalid("Sarpanch already exists for this village.")
		}
	}

	user := &models.User{
		PhoneNumber: input.PhoneNumber,
		Name:        strings.TrimSpace(input.Name),
		Role:        input.Role,
		VillageID:   village.ID,
		VillageName: input.VillageName,
		PinCode:     input.PinCode,
		IsVerified:  false,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalid("User with this phone number already exists")
		}
		return nil, pkgerrors.Wrap(err, "failed to create user")
	}

	s.sendOTP(ctx, user.PhoneNumber)

	return user, nil
}

func (s *AuthService) findOrCreateVillage(ctx context.Context, pinCode, villageName string) (*models.Village, error) {
	village, err := s.store.GetVillageByPinCode(ctx, pinCode)
	if err == nil {
		return village, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, pkgerrors.Wrap(err, "failed to look up village")
	}

	village = &models.Village{
		Name:     villageName,
		PinCode:  pinCode,
		District: models.DEFAULT_DISTRICT,
		State:    models.DEFAULT_STATE,
	}
	err = s.store.CreateVillage(ctx, village)

	// Another registration created it first
	if errors.Is(err, store.ErrDuplicate) {
		return s.store.GetVillageByPinCode(ctx, pinCode)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create village")
	}

	logg.Infof("%s created village %v (%v)", colors.Blue("[auth]"), village.Name, village.PinCode)
	return village, nil
}

// Login sends a fresh OTP to a registered phone number.
func (s *AuthService) Login(ctx context.Context, input LoginInput) error {
	if err := validateStruct(input); err != nil {
		return err
	}

	_, err := s.store.GetUserByPhone(ctx, input.PhoneNumber)
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Message: "User not found. Please register first."}
	}
	if err != nil {
		return pkgerrors.Wrap(err, "failed to look up user")
	}

	s.sendOTP(ctx, input.PhoneNumber)
	return nil
}

// VerifyOTP consumes the pending OTP, marks the user verified & issues a token.
func (s *AuthService) VerifyOTP(ctx context.Context, input VerifyOTPInput) (*Session, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	err := s.otps.Verify(ctx, input.PhoneNumber, input.OTP)
	switch {
	case errors.Is(err, otp.ErrOTPNotFound):
		return nil, invalid("OTP not found or expired")
	case errors.Is(err, otp.ErrOTPInvalid):
		return nil, invalid("Invalid OTP")
	case errors.Is(err, otp.ErrOTPMaxAttempts):
		return nil, invalid("Too many invalid attempts. Please request a new OTP.")
	case err != nil:
		return nil, pkgerrors.Wrap(err, "failed to verify OTP")
	}

	user, err := s.store.GetUserByPhone(ctx, input.PhoneNumber)
	if err != nil {
		return nil, notFoundOr(err, "User")
	}

	if !user.IsVerified {
		user.IsVerified = true
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to verify user")
		}
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}

	return &Session{Token: token, User: user, Village: s.village(ctx, user)}, nil
}

func (s *AuthService) IssueToken(user *models.User) (string, error) {
	claims := auth.NewClaims(user.ID, user.Role, user.VillageID, user.Name, s.tokenTTL)
	token, err := auth.EncodeJWT(claims, s.keyPair)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to issue token")
	}
	return token, nil
}

// Authenticate resolves a bearer token to a verified user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, unauthorized("Access denied. No token provided.")
	}

	claims, err := auth.DecodeJWT(token, s.keyPair)
	if err != nil {
		return nil, unauthorized("Invalid token.")
	}

	user, err := s.store.GetUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, unauthorized("Invalid token. User not found.")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load user")
	}

	if !user.IsVerified {
		return nil, unauthorized("Account not verified. Please verify your phone number.")
	}

	return user, nil
}

func (s *AuthService) Profile(ctx context.Context, user *models.User) *Profile {
	return &Profile{User: user, Village: s.village(ctx, user)}
}

func (s *AuthService) UpdateProfile(ctx context.Context, user *models.User, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 2 {
		return nil, invalid("Name must be at least 2 characters long")
	}
	if err := validateField("name", name, "max=50"); err != nil {
		return nil, err
	}

	user.Name = name
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, notFoundOr(pkgerrors.Wrap(err, "failed to update profile"), "User")
	}
	return user, nil
}

func (s *AuthService) JWKS() (key.JWKS, error) {
	jwk, err := s.keyPair.JWK()
	if err != nil {
		return key.JWKS{}, err
	}
	return key.ExportJWKAsJWKS(jwk), nil
}

// village returns nil when the user's village can't be loaded.
func (s *AuthService) village(ctx context.Context, user *models.User) *models.Village {
	village, err := s.store.GetVillage(ctx, user.VillageID)
	if err != nil {
		return nil
	}
	return village
}

// sendOTP failures are logged; the user can ask for a new code by logging in again.
func (s *AuthService) sendOTP(ctx context.Context, phoneNumber string) {
	code, err := s.otps.Issue(ctx, phoneNumber)
	if err != nil {
		logg.Errorf("%s unable to issue OTP for %v: %v", colors.Red("[auth]"), phoneNumber, err)
		return
	}

	msg := fmt.Sprintf("Your VillageVault verification code is %s. It expires in %v.", code, s.otps.TTL())
	if err := s.otpSender.SendMessage(ctx, phoneNumber, msg); err != nil {
		logg.Errorf("%s unable to send OTP to %v: %v", colors.Red("[auth]"), phoneNumber, err)
	}
}
