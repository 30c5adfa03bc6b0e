package links

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/mikepea/biolink/pkg/biolink/apperrors"
	"github.com/mikepea/biolink/pkg/biolink/models"
	"github.com/mikepea/biolink/pkg/biolink/ordering"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrForeignLink is wrapped by AuthorizationErrors for links owned by
// another account
var ErrForeignLink = apperrors.Forbidden("link belongs to another account")

// ChangeNotifier is told after an owner's links were written
type ChangeNotifier interface {
	OwnerChanged(ctx context.Context, ownerID string)
}

// Service performs owner-scoped link writes. Every query filters by owner.
type Service struct {
	db       *gorm.DB
	notifier ChangeNotifier
}

// NewService creates a link service. notifier may be nil.
func NewService(db *gorm.DB, notifier ChangeNotifier) *Service {
	return &Service{db: db, notifier: notifier}
}

func (s *Service) changed(ctx context.Context, ownerID string) {
	if s.notifier != nil {
		s.notifier.OwnerChanged(ctx, ownerID)
	}
}

// CreateInput describes a new link
type CreateInput struct {
	Title       string `json:"title" form:"title"`
	URL         string `json:"url" form:"url"`
	Description string `json:"description" form:"description"`
}

func (in *CreateInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	in.Description = strings.TrimSpace(in.Description)
}

// Validate checks title and URL
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required.Error("title is required"), validation.RuneLength(0, 200)),
		validation.Field(&in.URL, validation.Required.Error("url is required"), is.URL, validation.By(httpURL)),
		validation.Field(&in.Description, validation.RuneLength(0, 500)),
	)
}

// UpdateInput is a partial link edit. Nil fields are left unchanged; an
// empty description clears it.
type UpdateInput struct {
	Title       *string `json:"title" form:"title"`
	URL         *string `json:"url" form:"url"`
	Description *string `json:"description" form:"description"`
}

func (in *UpdateInput) normalize() {
	for _, p := range []*string{in.Title, in.URL, in.Description} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
}

// Validate rejects supplied-but-empty title or URL
func (in UpdateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.When(in.Title != nil, validation.By(notEmpty("title"))), validation.RuneLength(0, 200)),
		validation.Field(&in.URL, validation.When(in.URL != nil, validation.By(notEmpty("url"))), is.URL, validation.By(httpURL)),
		validation.Field(&in.Description, validation.RuneLength(0, 500)),
	)
}

func notEmpty(name string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(*string); s != nil && *s == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}

func httpURL(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	}
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return errors.New("must be an http or https URL")
	}
	return nil
}

// List returns the owner's active links in display order
func (s *Service) List(ctx context.Context, ownerID string) ([]models.Link, error) {
	links, err := activeLinks(s.db.WithContext(ctx), ownerID)
	if err != nil {
		return nil, apperrors.Store("list links", err)
	}
	return links, nil
}

func activeLinks(db *gorm.DB, ownerID string) ([]models.Link, error) {
	var links []models.Link
	err := db.Where("user_id = ? AND is_active = ?", ownerID, true).
		Order("order_index ASC").Order("created_at DESC").
		Find(&links).Error
	return links, err
}

// Create adds a link at the head of the owner's active list and renumbers
// the list densely, in one transaction.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*models.Link, error) {
	created, err := s.InsertManyAtHead(ctx, ownerID, []CreateInput{in})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// InsertManyAtHead adds links in front of the owner's active list, keeping
// their given order, in one transaction. Nothing is written if any input is
// invalid.
func (s *Service) InsertManyAtHead(ctx context.Context, ownerID string, inputs []CreateInput) ([]models.Link, error) {
	if len(inputs) == 0 {
		return []models.Link{}, nil
	}

	fresh := make([]models.Link, len(inputs))
	for i := range inputs {
		inputs[i].normalize()
		if err := apperrors.FromValidation(inputs[i].Validate()); err != nil {
			if len(inputs) > 1 {
				return nil, fmt.Errorf("link %d: %w", i+1, err)
			}
			return nil, err
		}
		fresh[i] = models.Link{
			ID:          uuid.NewString(),
			UserID:      ownerID,
			Title:       inputs[i].Title,
			URL:         inputs[i].URL,
			Description: models.StringPtr(inputs[i].Description),
			IsActive:    true,
		}
	}

	var created []models.Link
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := activeLinks(tx, ownerID)
		if err != nil {
			return err
		}

		list, ws := ordering.InsertAtHead(current, fresh...)
		created = list[:len(fresh)]
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		return applyWriteSet(tx, ownerID, ws[len(fresh):])
	})
	if err != nil {
		return nil, apperrors.Store("create link", err)
	}

	s.changed(ctx, ownerID)
	return created, nil
}

// load fetches a link the owner may mutate
func (s *Service) load(db *gorm.DB, linkID, ownerID string) (*models.Link, error) {
	var link models.Link
	if err := db.First(&link, "id = ?", linkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Link")
		}
		return nil, apperrors.Store("load link", err)
	}
	if link.UserID != ownerID {
		return nil, ErrForeignLink
	}
	if !link.IsActive {
		return nil, apperrors.NotFound("Link")
	}
	return &link, nil
}

// Update patches a link's title, URL or description
func (s *Service) Update(ctx context.Context, linkID, ownerID string, in UpdateInput) (*models.Link, error) {
	in.normalize()
	if err := apperrors.FromValidation(in.Validate()); err != nil {
		return nil, err
	}

	link, err := s.load(s.db.WithContext(ctx), linkID, ownerID)
	if err != nil {
		return nil, err
	}

	cols := map[string]interface{}{}
	if in.Title != nil {
		cols["title"] = *in.Title
		link.Title = *in.Title
	}
	if in.URL != nil {
		cols["url"] = *in.URL
		link.URL = *in.URL
	}
	if in.Description != nil {
		cols["description"] = models.StringPtr(*in.Description)
		link.Description = models.StringPtr(*in.Description)
	}
	if len(cols) == 0 {
		return link, nil
	}

	res := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ? AND user_id = ? AND is_active = ?", linkID, ownerID, true).
		Updates(cols)
	if res.Error != nil {
		return nil, apperrors.Store("update link", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.NotFound("Link")
	}

	s.changed(ctx, ownerID)
	return s.load(s.db.WithContext(ctx), linkID, ownerID)
}

// SoftDelete hides a link from every read path. Remaining links keep their
// order_index values.
func (s *Service) SoftDelete(ctx context.Context, linkID, ownerID string) error {
	if _, err := s.load(s.db.WithContext(ctx), linkID, ownerID); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&models.Link{}).
		Where("id = ? AND user_id = ?", linkID, ownerID).
		Update("is_active", false)
	if res.Error != nil {
		return apperrors.Store("delete link", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("Link")
	}

	s.changed(ctx, ownerID)
	return nil
}

// Reorder moves the active link at source to destination and persists the
// dense renumbering as one batch. On failure nothing is written and the
// caller keeps its previous list.
func (s *Service) Reorder(ctx context.Context, ownerID string, source int, destination *int) ([]models.Link, ordering.WriteSet, error) {
	var (
		list []models.Link
		ws   ordering.WriteSet
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := activeLinks(tx, ownerID)
		if err != nil {
			return err
		}
		list, ws, err = ordering.Reorder(current, source, destination)
		if err != nil {
			return err
		}
		return applyWriteSet(tx, ownerID, ws)
	})
	if err != nil {
		return nil, nil, apperrors.Store("reorder links", err)
	}

	if len(ws) > 0 {
		s.changed(ctx, ownerID)
	}
	return list, ws, nil
}

// Persist writes a client-computed write-set for ownerID as one batch. The
// write-set must cover every active link of the owner exactly once with the
// indexes 0..N-1, or nothing is written.
func (s *Service) Persist(ctx context.Context, ownerID string, ws ordering.WriteSet) error {
	if len(ws) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := activeLinks(tx, ownerID)
		if err != nil {
			return err
		}
		if err := checkPermutation(current, ws); err != nil {
			return err
		}
		return applyWriteSet(tx, ownerID, ws)
	})
	if err != nil {
		return apperrors.Store("persist order", err)
	}
	s.changed(ctx, ownerID)
	return nil
}

// checkPermutation requires ws to be a dense renumbering of current
func checkPermutation(current []models.Link, ws ordering.WriteSet) error {
	active := make(map[string]bool, len(current))
	for _, l := range current {
		active[l.ID] = true
	}

	seenID := make(map[string]bool, len(ws))
	seenIndex := make([]bool, len(ws))
	for _, p := range ws {
		if !active[p.ID] {
			return apperrors.NotFound("Link")
		}
		if seenID[p.ID] {
			return apperrors.Validation(fmt.Sprintf("link %s appears twice", p.ID))
		}
		seenID[p.ID] = true
		if p.OrderIndex < 0 || p.OrderIndex >= len(ws) || seenIndex[p.OrderIndex] {
			return apperrors.Validation(fmt.Sprintf("order indexes must be 0..%d without repeats", len(ws)-1))
		}
		seenIndex[p.OrderIndex] = true
	}
	if len(ws) != len(current) {
		return apperrors.Validation(fmt.Sprintf("positions must cover all %d active links", len(current)))
	}
	return nil
}

// applyWriteSet updates order_index per row inside tx. Any entry that does
// not match exactly one active row of the owner aborts the batch.
func applyWriteSet(tx *gorm.DB, ownerID string, ws ordering.WriteSet) error {
	for _, p := range ws {
		res := tx.Model(&models.Link{}).
			Where("id = ? AND user_id = ? AND is_active = ?", p.ID, ownerID, true).
			Update("order_index", p.OrderIndex)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			log.Warn().Str("owner_id", ownerID).Str("link_id", p.ID).Msg("write-set entry matched no link")
			return apperrors.NotFound("Link")
		}
	}
	return nil
}
