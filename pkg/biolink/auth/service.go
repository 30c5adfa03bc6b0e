package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MinPasswordLength is the shortest password accepted at sign-up
const MinPasswordLength = 6

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ErrInvalidCredentials is returned by Authenticate for any bad email or
// password combination.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ProfileProvisioner creates the profile that belongs to a new account.
// Implemented by the profiles service.
type ProfileProvisioner interface {
	ValidateUsername(username string) error
	UsernameTaken(ctx context.Context, username string) (bool, error)
	CreateProfile(tx *gorm.DB, accountID, username, displayName string) error
}

// Service implements sign-up and sign-in against the account table
type Service struct {
	db       *gorm.DB
	profiles ProfileProvisioner
}

// NewService creates a new auth service
func NewService(db *gorm.DB, profiles ProfileProvisioner) *Service {
	return &Service{db: db, profiles: profiles}
}

// SignUpInput carries the sign-up form
type SignUpInput struct {
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
	Username             string `json:"username" form:"username"`
	DisplayName          string `json:"display_name" form:"display_name"`
}

// Normalize trims input and lowercases the email and username
func (in *SignUpInput) Normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.DisplayName = strings.TrimSpace(in.DisplayName)
}

// Validate checks the sign-up form
func (in SignUpInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DisplayName, validation.Required.Error("display name is required")),
		validation.Field(&in.Username,
			validation.Required.Error("username is required"),
			validation.Match(usernamePattern).Error("username may only contain lowercase letters, numbers and underscores"),
		),
		validation.Field(&in.Email, validation.Required.Error("email is required"), is.EmailFormat),
		validation.Field(&in.Password,
			validation.Required.Error("password is required"),
			validation.RuneLength(MinPasswordLength, 0).Error("password must be at least 6 characters"),
		),
		validation.Field(&in.PasswordConfirmation,
			validation.By(func(value interface{}) error {
				if value.(string) != in.Password {
					return errors.New("passwords do not match")
				}
				return nil
			}),
		),
	)
}

// SignUp validates the input, checks the username and email are free and then
// creates the account and its profile in one transaction. No row is written
// when any check fails.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*models.Account, error) {
	in.Normalize()
	if err := apperrors.FromValidation(in.Validate()); err != nil {
		return nil, err
	}
	if err := s.profiles.ValidateUsername(in.Username); err != nil {
		return nil, err
	}

	taken, err := s.profiles.UsernameTaken(ctx, in.Username)
	if err != nil {
		return nil, apperrors.Store("check username", err)
	}
	if taken {
		return nil, apperrors.Conflict("Username is already taken")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, apperrors.Store("check email", err)
	}
	if count > 0 {
		return nil, apperrors.Conflict("Email already registered")
	}

	hashedPassword, err := HashPassword(in.Password)
	if err != nil {
		return nil, apperrors.Store("hash password", err)
	}

	account := models.Account{
		Email:        in.Email,
		PasswordHash: hashedPassword,
		Active:       true,
		SystemRole:   models.SystemRoleUser,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			return err
		}
		return s.profiles.CreateProfile(tx, account.ID, in.Username, in.DisplayName)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race with a concurrent sign-up
		return nil, apperrors.Conflict("Username or email is already taken")
	}
	if err != nil {
		return nil, apperrors.Store("create account", err)
	}

	log.Info().Str("account_id", account.ID).Str("username", in.Username).Msg("account created")
	return &account, nil
}

// Authenticate checks an email and password pair
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var account models.Account
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, apperrors.Store("find account", err)
	}

	if !account.Active || !CheckPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &account, nil
}

// Account loads an account by ID
func (s *Service) Account(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Account")
		}
		return nil, apperrors.Store("find account", err)
	}
	return &account, nil
}

// EnsureAdmin creates an admin account with the given credentials, and its
// profile, unless an admin already exists.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, username string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.Account{
		Email:        strings.ToLower(email),
		PasswordHash: hashedPassword,
		Active:       true,
		SystemRole:   models.SystemRoleAdmin,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		return s.profiles.CreateProfile(tx, admin.ID, username, "Admin")
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Conflict("Admin email or username is already taken")
	}
	if err != nil {
		return err
	}

	log.Info().Str("email", admin.Email).Msg("created default admin account")
	return nil
}
