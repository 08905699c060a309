package credentials

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

// Service answers which credentials may be used and records their failures.
type Service struct {
	repo Repository
	now  func() time.Time
	pick func(n int) int
}

// NewService builds a credentials service.
func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credentials repository required")
	}
	return &Service{repo: repo, now: time.Now, pick: rand.IntN}, nil
}

// Usable loads a credential of the expected type and checks it may run now.
func (s *Service) Usable(ctx context.Context, id int64, credType enums.CredentialType) (*models.APIKey, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("credential %d not found", id))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credential")
	}
	if key.Type != credType {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("credential %d is %s, want %s", id, key.Type, credType))
	}
	if !key.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeBadCredential, fmt.Sprintf("credential %d is deactivated", id))
	}
	if key.IsCoolingDown(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeRateLimited, fmt.Sprintf("credential %d cooling down until %s", id, key.DisabledUntil.UTC().Format(time.RFC3339))).
			WithDetails(map[string]any{"disabled_until": key.DisabledUntil.UTC()})
	}
	active, err := s.repo.ShopActive(ctx, key.ShopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	if !active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("shop %d is inactive", key.ShopID))
	}
	return key, nil
}

// SelectPerShop returns one randomly chosen eligible credential per shop.
func (s *Service) SelectPerShop(ctx context.Context, credType enums.CredentialType) ([]models.APIKey, error) {
	keys, err := s.repo.ListEligible(ctx, credType, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credentials")
	}
	var (
		selected []models.APIKey
		group    []models.APIKey
	)
	flush := func() {
		if len(group) > 0 {
			selected = append(selected, group[s.pick(len(group))])
			group = group[:0]
		}
	}
	for _, key := range keys {
		if len(group) > 0 && group[0].ShopID != key.ShopID {
			flush()
		}
		group = append(group, key)
	}
	flush()
	return selected, nil
}

// ForShop picks one eligible credential of credType for shopID.
func (s *Service) ForShop(ctx context.Context, shopID int64, credType enums.CredentialType) (*models.APIKey, error) {
	keys, err := s.SelectPerShop(ctx, credType)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		if keys[i].ShopID == shopID {
			return &keys[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no usable %s credential for shop %d", credType, shopID))
}

// Deactivate disables a credential the marketplace rejected.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate credential")
	}
	return nil
}

// CoolDown keeps a rate-limited credential out of rotation for d and
// returns the time it becomes usable again.
func (s *Service) CoolDown(ctx context.Context, id int64, d time.Duration) (time.Time, error) {
	until := s.now().Add(d)
	if err := s.repo.DisableUntil(ctx, id, until); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cool down credential")
	}
	return until, nil
}
