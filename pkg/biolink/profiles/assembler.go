package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/cache"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Assembler builds ProfileViews from stored rows. It performs no writes other
// than to the view cache.
type Assembler struct {
	db    *gorm.DB
	cache cache.Store
	ttl   time.Duration
}

// NewAssembler creates an Assembler. A nil store disables caching.
func NewAssembler(db *gorm.DB, store cache.Store, ttl time.Duration) *Assembler {
	if store == nil {
		store = cache.Noop{}
	}
	return &Assembler{db: db, cache: store, ttl: ttl}
}

// Assemble resolves handle to its profile view. The view is editable only when
// viewerID is the profile's owner; an empty viewerID is an anonymous visitor.
func (a *Assembler) Assemble(ctx context.Context, handle, viewerID string) (*ProfileView, error) {
	handle = NormalizeUsername(handle)
	if !usernamePattern.MatchString(handle) {
		return nil, apperrors.NotFound("Profile")
	}

	if view := a.cached(ctx, handle); view != nil && view.ID != viewerID {
		return view, nil
	}

	loadedAt := time.Now()

	var profile models.Profile
	if err := a.db.WithContext(ctx).Where("username = ?", handle).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Profile")
		}
		return nil, apperrors.Store("load profile", err)
	}

	view, err := a.build(ctx, &profile)
	if err != nil {
		return nil, err
	}
	view.Editable = viewerID != "" && viewerID == profile.ID

	if !view.Editable {
		a.store(ctx, handle, view, loadedAt)
	}
	return view, nil
}

// AssembleOwner builds the editable view of the profile owned by ownerID
func (a *Assembler) AssembleOwner(ctx context.Context, ownerID string) (*ProfileView, error) {
	var profile models.Profile
	if err := a.db.WithContext(ctx).First(&profile, "id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Profile")
		}
		return nil, apperrors.Store("load profile", err)
	}

	view, err := a.build(ctx, &profile)
	if err != nil {
		return nil, err
	}
	view.Editable = true
	return view, nil
}

// OwnerChanged drops the cached public view of ownerID's profile. Failures
// are logged; the entry expires on its own.
func (a *Assembler) OwnerChanged(ctx context.Context, ownerID string) {
	var profile models.Profile
	if err := a.db.WithContext(ctx).Select("id", "username").First(&profile, "id = ?", ownerID).Error; err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Msg("cache invalidation: profile lookup failed")
		return
	}
	// readers that loaded rows before this write must not cache them
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := a.cache.Set(ctx, cache.ProfileChangedKey(profile.Username), stamp, 2*a.ttl); err != nil {
		log.Warn().Err(err).Str("username", profile.Username).Msg("cache invalidation: change mark failed")
	}
	if err := a.cache.Delete(ctx, cache.ProfileViewKey(profile.Username)); err != nil {
		log.Warn().Err(err).Str("username", profile.Username).Msg("cache invalidation failed")
	}
}

// cachedView is the stored form of a visitor view
type cachedView struct {
	LoadedAt time.Time   `json:"loaded_at"`
	View     ProfileView `json:"view"`
}

// changedSince reports whether the owner of handle wrote at or after t
func (a *Assembler) changedSince(ctx context.Context, handle string, t time.Time) bool {
	data, err := a.cache.Get(ctx, cache.ProfileChangedKey(handle))
	if err != nil {
		return false
	}
	changed, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return false
	}
	return !changed.Before(t)
}

func (a *Assembler) build(ctx context.Context, profile *models.Profile) (*ProfileView, error) {
	var links []models.Link
	err := a.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", profile.ID, true).
		Order("order_index ASC").Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, apperrors.Store("load links", err)
	}
	return newProfileView(profile, links), nil
}

func (a *Assembler) cached(ctx context.Context, handle string) *ProfileView {
	data, err := a.cache.Get(ctx, cache.ProfileViewKey(handle))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("username", handle).Msg("cache read failed")
		}
		return nil
	}
	var entry cachedView
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil
	}
	if a.changedSince(ctx, handle, entry.LoadedAt) {
		return nil
	}
	view := entry.View
	view.Editable = false
	return &view
}

func (a *Assembler) store(ctx context.Context, handle string, view *ProfileView, loadedAt time.Time) {
	if a.changedSince(ctx, handle, loadedAt) {
		return
	}
	data, err := json.Marshal(cachedView{LoadedAt: loadedAt, View: *view})
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, cache.ProfileViewKey(handle), data, a.ttl); err != nil {
		log.Warn().Err(err).Str("username", handle).Msg("cache write failed")
	}
}
