package profiles

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	hexColorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	handlePattern   = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9][0-9 \-]*$`)
)

// ChangeNotifier is told when an owner's public data has changed
type ChangeNotifier interface {
	OwnerChanged(ctx context.Context, ownerID string)
}

// Service mutates profile rows
type Service struct {
	db       *gorm.DB
	notifier ChangeNotifier
}

// NewService creates a profile service. notifier may be nil.
func NewService(db *gorm.DB, notifier ChangeNotifier) *Service {
	return &Service{db: db, notifier: notifier}
}

func (s *Service) changed(ctx context.Context, ownerID string) {
	if s.notifier != nil {
		s.notifier.OwnerChanged(ctx, ownerID)
	}
}

// ValidateUsername checks a handle's format and reserved names
func (s *Service) ValidateUsername(username string) error {
	return ValidateUsername(username)
}

// UsernameTaken reports whether a profile already holds username
func (s *Service) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Profile{}).
		Where("username = ?", NormalizeUsername(username)).Count(&count).Error
	return count > 0, err
}

// CreateProfile inserts the profile for a new account inside tx
func (s *Service) CreateProfile(tx *gorm.DB, accountID, username, displayName string) error {
	profile := models.Profile{
		ID:          accountID,
		Username:    NormalizeUsername(username),
		DisplayName: models.StringPtr(strings.TrimSpace(displayName)),
	}
	return tx.Create(&profile).Error
}

// AvailableUsername returns base, or base with the smallest numeric suffix
// that no profile holds yet.
func (s *Service) AvailableUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 2; i < 1000; i++ {
		taken, err := s.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix := fmt.Sprintf("%d", i)
		if len(base)+len(suffix) > MaxUsernameLength {
			base = base[:MaxUsernameLength-len(suffix)]
		}
		candidate = base + suffix
	}
	return "", apperrors.Conflict("No available username")
}

// ProvisionInput identifies an account created by an external identity
// provider.
type ProvisionInput struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Validate checks the required identity fields
func (in ProvisionInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ID, validation.Required.Error("id is required")),
		validation.Field(&in.Email, validation.Required.Error("email is required"), is.EmailFormat),
	)
}

// Provision creates the account row, if absent, and its profile. A supplied
// username must be free; a derived one gets a numeric suffix on collision.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*models.Profile, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := apperrors.FromValidation(in.Validate()); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", in.ID).Count(&existing).Error; err != nil {
		return nil, apperrors.Store("check profile", err)
	}
	if existing > 0 {
		return nil, apperrors.Conflict("Profile already exists")
	}

	username := NormalizeUsername(in.Username)
	if username != "" {
		if err := ValidateUsername(username); err != nil {
			return nil, err
		}
		taken, err := s.UsernameTaken(ctx, username)
		if err != nil {
			return nil, apperrors.Store("check username", err)
		}
		if taken {
			return nil, apperrors.Conflict("Username is already taken")
		}
	} else {
		var err error
		username, err = s.AvailableUsername(ctx, UsernameFromEmail(in.Email))
		if err != nil {
			return nil, apperrors.Store("pick username", err)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		err := tx.First(&account, "id = ?", in.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			account = models.Account{ID: in.ID, Email: in.Email, Active: true, SystemRole: models.SystemRoleUser}
			err = tx.Create(&account).Error
		}
		if err != nil {
			return err
		}
		return s.CreateProfile(tx, in.ID, username, in.DisplayName)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperrors.Conflict("Profile or username already exists")
	}
	if err != nil {
		return nil, apperrors.Store("provision profile", err)
	}

	log.Info().Str("account_id", in.ID).Str("username", username).Msg("profile provisioned")
	return s.Get(ctx, in.ID)
}

// Get loads the profile owned by ownerID
func (s *Service) Get(ctx context.Context, ownerID string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).First(&profile, "id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Profile")
		}
		return nil, apperrors.Store("load profile", err)
	}
	return &profile, nil
}

// GetByUsername loads a profile by handle
func (s *Service) GetByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.WithContext(ctx).Where("username = ?", NormalizeUsername(username)).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Profile")
		}
		return nil, apperrors.Store("load profile", err)
	}
	return &profile, nil
}

// UpdateInput is a partial profile edit. A nil field is left unchanged; an
// empty string clears the field. The username cannot be changed.
type UpdateInput struct {
	DisplayName       *string `json:"display_name" form:"display_name"`
	Bio               *string `json:"bio" form:"bio"`
	AvatarURL         *string `json:"avatar_url" form:"avatar_url"`
	BackgroundColor   *string `json:"background_color" form:"background_color"`
	TwitterUsername   *string `json:"twitter_username" form:"twitter_username"`
	InstagramUsername *string `json:"instagram_username" form:"instagram_username"`
	TiktokUsername    *string `json:"tiktok_username" form:"tiktok_username"`
	YoutubeUsername   *string `json:"youtube_username" form:"youtube_username"`
	SnapchatUsername  *string `json:"snapchat_username" form:"snapchat_username"`
	WhatsappNumber    *string `json:"whatsapp_number" form:"whatsapp_number"`
	FacebookUsername  *string `json:"facebook_username" form:"facebook_username"`
	LinkedinUsername  *string `json:"linkedin_username" form:"linkedin_username"`
}

func (in *UpdateInput) normalize() {
	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	handle := func(p *string) {
		if p != nil {
			*p = CleanHandle(*p)
		}
	}
	trim(in.DisplayName)
	trim(in.Bio)
	trim(in.AvatarURL)
	trim(in.BackgroundColor)
	trim(in.WhatsappNumber)
	for _, p := range []*string{in.TwitterUsername, in.InstagramUsername, in.TiktokUsername,
		in.YoutubeUsername, in.SnapchatUsername, in.FacebookUsername, in.LinkedinUsername} {
		handle(p)
	}
}

// Validate checks supplied fields. Empty strings always pass since they clear.
func (in UpdateInput) Validate() error {
	handleRules := []validation.Rule{validation.Length(0, 100), validation.Match(handlePattern).Error("must be a valid handle")}
	return validation.ValidateStruct(&in,
		validation.Field(&in.DisplayName, validation.Length(0, 100)),
		validation.Field(&in.Bio, validation.RuneLength(0, 500)),
		validation.Field(&in.AvatarURL, is.URL, validation.By(httpURL)),
		validation.Field(&in.BackgroundColor, validation.Match(hexColorPattern).Error("must be a hex color like #1a2b3c")),
		validation.Field(&in.TwitterUsername, handleRules...),
		validation.Field(&in.InstagramUsername, handleRules...),
		validation.Field(&in.TiktokUsername, handleRules...),
		validation.Field(&in.YoutubeUsername, handleRules...),
		validation.Field(&in.SnapchatUsername, handleRules...),
		validation.Field(&in.WhatsappNumber, validation.Length(0, 32), validation.Match(phonePattern).Error("must be a phone number")),
		validation.Field(&in.FacebookUsername, handleRules...),
		validation.Field(&in.LinkedinUsername, handleRules...),
	)
}

func httpURL(value interface{}) error {
	s, _ := value.(*string)
	if s == nil || *s == "" {
		return nil
	}
	if !strings.HasPrefix(*s, "http://") && !strings.HasPrefix(*s, "https://") {
		return errors.New("must be an http or https URL")
	}
	return nil
}

// columns maps the supplied fields to column updates
func (in UpdateInput) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	set := func(col string, p *string) {
		if p != nil {
			cols[col] = models.StringPtr(*p)
		}
	}
	set("display_name", in.DisplayName)
	set("bio", in.Bio)
	set("avatar_url", in.AvatarURL)
	set("background_color", in.BackgroundColor)
	set("twitter_username", in.TwitterUsername)
	set("instagram_username", in.InstagramUsername)
	set("tiktok_username", in.TiktokUsername)
	set("youtube_username", in.YoutubeUsername)
	set("snapchat_username", in.SnapchatUsername)
	set("whatsapp_number", in.WhatsappNumber)
	set("facebook_username", in.FacebookUsername)
	set("linkedin_username", in.LinkedinUsername)
	return cols
}

// Update applies a partial edit to the profile owned by ownerID
func (s *Service) Update(ctx context.Context, ownerID string, in UpdateInput) (*models.Profile, error) {
	in.normalize()
	if err := apperrors.FromValidation(in.Validate()); err != nil {
		return nil, err
	}

	profile, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	cols := in.columns()
	if len(cols) == 0 {
		return profile, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", ownerID).Updates(cols).Error; err != nil {
		return nil, apperrors.Store("update profile", err)
	}
	s.changed(ctx, ownerID)

	return s.Get(ctx, ownerID)
}

// SetAvatar stores a new avatar URL for ownerID and returns the one it
// replaced, empty when there was none.
func (s *Service) SetAvatar(ctx context.Context, ownerID, avatarURL string) (string, error) {
	var previous string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		if err := tx.Select("id", "avatar_url").First(&profile, "id = ?", ownerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("Profile")
			}
			return err
		}
		previous = models.StringValue(profile.AvatarURL)
		return tx.Model(&models.Profile{}).Where("id = ?", ownerID).
			Update("avatar_url", models.StringPtr(avatarURL)).Error
	})
	if err != nil {
		return "", apperrors.Store("set avatar", err)
	}
	s.changed(ctx, ownerID)
	return previous, nil
}
