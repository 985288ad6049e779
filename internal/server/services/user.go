// Package services contains server-side business logic. This file implements
// UserService, which handles registration, password and Google login, e-mail
// verification, and issuing/refreshing JWTs plus server-stored refresh tokens.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/cryptox"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/auth"
	"github.com/dmitrijs2005/privylock/internal/server/config"
	"github.com/dmitrijs2005/privylock/internal/server/googleauth"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/notify"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/users"
	"github.com/google/uuid"
)

const (
	passwordHashLength  = 64
	defaultGoogleDevice = "Google Sign-In"

	msgRequired        = "This field is required."
	msgDuplicateEmail  = "A user with this email already exists"
	msgDuplicateMobile = "A user with this mobile number already exists"
	msgMobileFormat    = "Mobile number must be in format: '+999999999'. Up to 15 digits allowed."
)

var (
	hexPattern    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	mobilePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// DeviceInput identifies the client installation a request comes from.
type DeviceInput struct {
	DeviceID   string
	DeviceName string
	DeviceType models.DeviceType
}

type RegisterInput struct {
	Username        string
	Email           string
	MobileNumber    string
	PasswordHash    string
	RecoveryKeyHash string
	Device          DeviceInput
}

type LoginInput struct {
	Username     string
	PasswordHash string
	// Device is optional; when set the device is registered or touched.
	Device *DeviceInput
}

type GoogleLoginInput struct {
	IDToken      string
	MobileNumber string
	DeviceID     string
	DeviceName   string
}

type GoogleLoginResult struct {
	Tokens    *TokenPair
	User      *models.User
	IsNewUser bool
}

// UserService provides authentication-related operations:
// - Register: create users, their first device and default preferences
// - Login / GoogleLogin: verify credentials and mint tokens
// - VerifyEmail / ResendVerification: e-mail ownership checks
// - RefreshToken: rotate refresh tokens and mint new access tokens
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	alerts                       *AlertService
	google                       googleauth.Verifier
	mailer                       notify.Mailer
	logger                       logging.Logger
	frontendURL                  string
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	alerts *AlertService, google googleauth.Verifier, mailer notify.Mailer, logger logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		alerts:                       alerts,
		google:                       google,
		mailer:                       mailer,
		logger:                       logger,
		frontendURL:                  cfg.FrontendURL,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

// NormalizeEmail lowercases and trims an e-mail address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeMobile strips spaces and dashes.
func NormalizeMobile(mobile string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(mobile))
}

// validateMobile checks format and uniqueness of an already normalized number.
func (s *UserService) validateMobile(ctx context.Context, repo users.Repository, v *common.ValidationError, mobile string) error {
	if !mobilePattern.MatchString(mobile) {
		v.Add("mobile_number", msgMobileFormat)
		return nil
	}
	exists, err := repo.Exists(ctx, users.FieldMobile, mobile)
	if err != nil {
		return err
	}
	if exists {
		v.Add("mobile_number", msgDuplicateMobile)
	}
	return nil
}

func (s *UserService) validateRegistration(ctx context.Context, in *RegisterInput) error {
	repo := s.repomanager.Users(s.db)
	v := &common.ValidationError{}

	switch {
	case in.Username == "":
		v.Add("username", msgRequired)
	case len(in.Username) != cryptox.UsernameLength:
		v.Add("username", "Username must be exactly 30 characters")
	case !hexPattern.MatchString(in.Username):
		v.Add("username", "Username must be a valid hexadecimal string")
	default:
		exists, err := repo.Exists(ctx, users.FieldUsername, in.Username)
		if err != nil {
			return err
		}
		if exists {
			v.Add("username", msgDuplicateEmail)
		}
	}

	if in.Email == "" {
		v.Add("email", msgRequired)
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		v.Add("email", "Enter a valid email address.")
	} else {
		exists, err := repo.Exists(ctx, users.FieldEmail, in.Email)
		if err != nil {
			return err
		}
		if exists {
			v.Add("email", msgDuplicateEmail)
		}
	}

	if in.MobileNumber == "" {
		v.Add("mobile_number", msgRequired)
	} else if err := s.validateMobile(ctx, repo, v, in.MobileNumber); err != nil {
		return err
	}

	if in.PasswordHash == "" {
		v.Add("password", msgRequired)
	} else if len(in.PasswordHash) != passwordHashLength {
		v.Add("password", "Password must be SHA-256 hash (64 characters)")
	}
	if in.RecoveryKeyHash == "" {
		v.Add("recovery_key_hash", msgRequired)
	}
	if in.Device.DeviceID == "" {
		v.Add("device_id", msgRequired)
	}
	if in.Device.DeviceName == "" {
		v.Add("device_name", msgRequired)
	}
	if in.Device.DeviceType != "" && !in.Device.DeviceType.Valid() {
		v.Add("device_type", fmt.Sprintf("\"%s\" is not a valid choice.", in.Device.DeviceType))
	}

	return v.OrNil()
}

// Register creates the account, its first trusted device and default
// notification preferences in one transaction, then mails the
// verification link. The user is not logged in.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.MobileNumber = NormalizeMobile(in.MobileNumber)
	if in.Device.DeviceType == "" {
		in.Device.DeviceType = models.DeviceWeb
	}

	if err := s.validateRegistration(ctx, &in); err != nil {
		return nil, err
	}

	tok, err := cryptox.NewSplitToken()
	if err != nil {
		return nil, fmt.Errorf("verification token: %w", err)
	}

	user := &models.User{
		ID:                   uuid.NewString(),
		Username:             in.Username,
		Email:                in.Email,
		MobileNumber:         in.MobileNumber,
		PasswordHash:         in.PasswordHash,
		RecoveryKeyHash:      in.RecoveryKeyHash,
		AuthProvider:         models.AuthProviderLocal,
		SubscriptionTier:     models.TierFree,
		VerificationSelector: &tok.Selector,
		VerificationHash:     &tok.VerifierHash,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return common.NewValidationError("email", msgDuplicateEmail)
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		if _, err := s.repomanager.Devices(tx).Create(ctx, &models.Device{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			DeviceID:   in.Device.DeviceID,
			DeviceName: in.Device.DeviceName,
			DeviceType: in.Device.DeviceType,
			IsTrusted:  true,
		}); err != nil {
			return fmt.Errorf("error creating device: %w", err)
		}
		if _, err := s.repomanager.Preferences(tx).Create(ctx, models.DefaultPreferences(user.ID)); err != nil {
			return fmt.Errorf("error creating preferences: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)

	if err := notify.SendVerification(ctx, s.mailer, s.frontendURL, user.Email, tok.Token); err != nil {
		s.logger.Error(ctx, "verification mail failed", "user_id", user.ID, "error", err)
	}
	return user, nil
}

// Login verifies the client-computed password hash and, on success,
// returns a new TokenPair. Unknown users and wrong hashes both yield
// ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*TokenPair, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	if !cryptox.EqualHashes(user.PasswordHash, in.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}
	if !user.EmailVerified {
		return nil, common.ErrEmailNotVerified
	}

	if err := repo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		return nil, fmt.Errorf("error updating last login: %w", err)
	}

	if in.Device != nil && in.Device.DeviceID != "" {
		if in.Device.DeviceType == "" {
			in.Device.DeviceType = models.DeviceWeb
		}
		if _, err := s.registerDevice(ctx, user.ID, *in.Device, false); err != nil {
			return nil, err
		}
	}

	return s.generateTokenPair(ctx, user.ID, s.db)
}

// registerDevice gets or creates the device. A newly created device on an
// account that already had one raises a security alert.
func (s *UserService) registerDevice(ctx context.Context, userID string, in DeviceInput, trusted bool) (*models.Device, error) {
	repo := s.repomanager.Devices(s.db)

	d, err := repo.GetByDeviceID(ctx, userID, in.DeviceID)
	if err == nil {
		if err := repo.Touch(ctx, d.ID, s.now()); err != nil {
			return nil, fmt.Errorf("error touching device: %w", err)
		}
		return d, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error loading device: %w", err)
	}

	count, err := repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error counting devices: %w", err)
	}

	d, err = repo.Create(ctx, &models.Device{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceID:   in.DeviceID,
		DeviceName: in.DeviceName,
		DeviceType: in.DeviceType,
		IsTrusted:  trusted || count == 0,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return repo.GetByDeviceID(ctx, userID, in.DeviceID)
		}
		return nil, fmt.Errorf("error creating device: %w", err)
	}

	s.logger.Info(ctx, "device registered", "user_id", userID, "device_id", d.ID)
	if count > 0 {
		if _, err := s.alerts.CreateSecurityAlert(ctx, userID, d); err != nil {
			s.logger.Error(ctx, "security alert failed", "user_id", userID, "error", err)
		}
	}
	return d, nil
}

// GoogleLogin verifies a Google ID token, finds the account by Google id
// or e-mail (linking the Google id) or creates one, and mints tokens.
func (s *UserService) GoogleLogin(ctx context.Context, in GoogleLoginInput) (*GoogleLoginResult, error) {
	v := &common.ValidationError{}
	if in.IDToken == "" {
		v.Add("google_token", msgRequired)
	}
	if in.DeviceID == "" {
		v.Add("device_id", msgRequired)
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if in.DeviceName == "" {
		in.DeviceName = defaultGoogleDevice
	}

	identity, err := s.google.Verify(ctx, in.IDToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidGoogleToken) {
			return nil, common.NewValidationError("google_token", "Invalid Google token")
		}
		return nil, fmt.Errorf("google verification: %w", err)
	}

	user, err := s.findGoogleUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	isNew := user == nil
	if isNew {
		user, err = s.createGoogleUser(ctx, identity, NormalizeMobile(in.MobileNumber))
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.registerDevice(ctx, user.ID, DeviceInput{
		DeviceID:   in.DeviceID,
		DeviceName: in.DeviceName,
		DeviceType: models.DeviceWeb,
	}, true); err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		return nil, fmt.Errorf("error updating last login: %w", err)
	}
	user, err = repo.GetByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error reloading user: %w", err)
	}

	tokens, err := s.generateTokenPair(ctx, user.ID, s.db)
	if err != nil {
		return nil, err
	}
	return &GoogleLoginResult{Tokens: tokens, User: user, IsNewUser: isNew}, nil
}

// findGoogleUser returns nil without error when no account matches.
func (s *UserService) findGoogleUser(ctx context.Context, id *googleauth.Identity) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByGoogleID(ctx, id.GoogleID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	user, err = repo.GetByEmail(ctx, id.Email)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	if err := repo.LinkGoogleID(ctx, user.ID, id.GoogleID); err != nil {
		return nil, fmt.Errorf("error linking google account: %w", err)
	}
	if id.EmailVerified && !user.EmailVerified {
		if err := repo.MarkEmailVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("error verifying email: %w", err)
		}
	}
	s.logger.Info(ctx, "google account linked", "user_id", user.ID)
	return user, nil
}

func (s *UserService) createGoogleUser(ctx context.Context, id *googleauth.Identity, mobile string) (*models.User, error) {
	v := &common.ValidationError{}
	if mobile == "" {
		v.Add("mobile_number", "Mobile number is required for new users")
		return nil, v
	}
	if err := s.validateMobile(ctx, s.repomanager.Users(s.db), v, mobile); err != nil {
		return nil, err
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	password, err := cryptox.UnusablePassword()
	if err != nil {
		return nil, fmt.Errorf("unusable password: %w", err)
	}

	googleID := id.GoogleID
	user := &models.User{
		ID:               uuid.NewString(),
		Username:         cryptox.UsernameFromEmail(id.Email),
		Email:            id.Email,
		MobileNumber:     mobile,
		PasswordHash:     password,
		GoogleID:         &googleID,
		AuthProvider:     models.AuthProviderGoogle,
		EmailVerified:    id.EmailVerified,
		SubscriptionTier: models.TierFree,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return common.NewValidationError("email", msgDuplicateEmail)
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		if _, err := s.repomanager.Preferences(tx).Create(ctx, models.DefaultPreferences(user.ID)); err != nil {
			return fmt.Errorf("error creating preferences: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user registered via google", "user_id", user.ID)
	return user, nil
}

// VerifyEmail consumes a verification token. alreadyVerified is true when
// the account had been verified before.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (alreadyVerified bool, err error) {
	selector, verifier, err := cryptox.ParseSplitToken(token)
	if err != nil {
		return false, common.ErrInvalidVerificationToken
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByVerificationSelector(ctx, selector)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, common.ErrInvalidVerificationToken
		}
		return false, fmt.Errorf("error loading user: %w", err)
	}
	if user.EmailVerified {
		return true, nil
	}
	if user.VerificationHash == nil || !cryptox.CheckVerifier(*user.VerificationHash, verifier) {
		return false, common.ErrInvalidVerificationToken
	}

	if err := repo.MarkEmailVerified(ctx, user.ID); err != nil {
		return false, fmt.Errorf("error verifying email: %w", err)
	}
	s.logger.Info(ctx, "email verified", "user_id", user.ID)
	return false, nil
}

// ResendVerification issues a new token for an unverified account and
// mails it. The previous token stops working.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return common.ErrEmailAlreadyVerified
	}

	tok, err := cryptox.NewSplitToken()
	if err != nil {
		return fmt.Errorf("verification token: %w", err)
	}
	if err := repo.SetVerificationToken(ctx, user.ID, tok.Selector, tok.VerifierHash); err != nil {
		return fmt.Errorf("error storing verification token: %w", err)
	}
	if err := notify.SendVerification(ctx, s.mailer, s.frontendURL, user.Email, tok.Token); err != nil {
		return fmt.Errorf("error sending verification mail: %w", err)
	}
	return nil
}

// RefreshToken redeems a refresh token and returns a fresh TokenPair. The
// old token is deleted in the same transaction that stores the new one, so a
// token can be redeemed at most once. Expired tokens yield
// ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}
		if token.Expires.Before(s.now()) {
			return common.ErrRefreshTokenExpired
		}
		pair, err = s.generateTokenPair(ctx, token.UserID, tx)
		return err
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Me returns the caller's account.
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

// --- helpers below ---

func (s *UserService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, userID, refresh, s.now().Add(s.refreshTokenValidityDuration)); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
