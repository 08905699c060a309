package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/mpsync/internal/testdb"
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/mpsync/pkg/errors"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := testdb.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	svc.pick = func(n int) int { return n - 1 }
	return svc, conn
}

func seedShop(t *testing.T, conn *gorm.DB, active bool) models.Shop {
	t.Helper()
	shop := models.Shop{Name: "shop", IsActive: active}
	require.NoError(t, conn.Create(&shop).Error)
	if !active {
		require.NoError(t, conn.Model(&shop).Update("is_active", false).Error)
	}
	return shop
}

func seedKey(t *testing.T, conn *gorm.DB, shopID int64, credType enums.CredentialType, mutate func(*models.APIKey)) models.APIKey {
	t.Helper()
	key := models.APIKey{
		ShopID:       shopID,
		Type:         credType,
		Name:         "key",
		ClientID:     "client",
		ClientSecret: "secret",
		IsActive:     true,
	}
	if mutate != nil {
		mutate(&key)
	}
	require.NoError(t, conn.Create(&key).Error)
	if !key.IsActive {
		require.NoError(t, conn.Model(&key).Update("is_active", false).Error)
	}
	return key
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestUsable(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	shop := seedShop(t, conn, true)
	closed := seedShop(t, conn, false)

	good := seedKey(t, conn, shop.ID, enums.CredentialTypeSeller, nil)
	inactive := seedKey(t, conn, shop.ID, enums.CredentialTypeSeller, func(k *models.APIKey) { k.IsActive = false })
	until := fixedNow.Add(10 * time.Minute)
	cooling := seedKey(t, conn, shop.ID, enums.CredentialTypeSeller, func(k *models.APIKey) { k.DisabledUntil = &until })
	expired := fixedNow.Add(-time.Minute)
	recovered := seedKey(t, conn, shop.ID, enums.CredentialTypeSeller, func(k *models.APIKey) { k.DisabledUntil = &expired })
	orphan := seedKey(t, conn, closed.ID, enums.CredentialTypeSeller, nil)

	key, err := svc.Usable(ctx, good.ID, enums.CredentialTypeSeller)
	require.NoError(t, err)
	assert.Equal(t, good.ID, key.ID)

	_, err = svc.Usable(ctx, recovered.ID, enums.CredentialTypeSeller)
	require.NoError(t, err)

	cases := []struct {
		name     string
		id       int64
		credType enums.CredentialType
		code     pkgerrors.Code
	}{
		{"missing", 9999, enums.CredentialTypeSeller, pkgerrors.CodeNotFound},
		{"wrong type", good.ID, enums.CredentialTypePerformance, pkgerrors.CodeValidation},
		{"deactivated", inactive.ID, enums.CredentialTypeSeller, pkgerrors.CodeBadCredential},
		{"cooling down", cooling.ID, enums.CredentialTypeSeller, pkgerrors.CodeRateLimited},
		{"inactive shop", orphan.ID, enums.CredentialTypeSeller, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Usable(ctx, tc.id, tc.credType)
			require.Error(t, err)
			assert.Equal(t, tc.code, pkgerrors.CodeOf(err))
		})
	}
}

func TestSelectPerShopPicksOneKeyPerShop(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	first := seedShop(t, conn, true)
	second := seedShop(t, conn, true)
	closed := seedShop(t, conn, false)

	seedKey(t, conn, first.ID, enums.CredentialTypeSeller, nil)
	last := seedKey(t, conn, first.ID, enums.CredentialTypeSeller, nil)
	only := seedKey(t, conn, second.ID, enums.CredentialTypeSeller, nil)
	until := fixedNow.Add(time.Hour)
	seedKey(t, conn, second.ID, enums.CredentialTypeSeller, func(k *models.APIKey) { k.DisabledUntil = &until })
	seedKey(t, conn, second.ID, enums.CredentialTypePerformance, nil)
	seedKey(t, conn, closed.ID, enums.CredentialTypeSeller, nil)

	keys, err := svc.SelectPerShop(ctx, enums.CredentialTypeSeller)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, last.ID, keys[0].ID)
	assert.Equal(t, only.ID, keys[1].ID)
}

func TestForShop(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	shop := seedShop(t, conn, true)
	perf := seedKey(t, conn, shop.ID, enums.CredentialTypePerformance, nil)

	key, err := svc.ForShop(ctx, shop.ID, enums.CredentialTypePerformance)
	require.NoError(t, err)
	assert.Equal(t, perf.ID, key.ID)

	_, err = svc.ForShop(ctx, shop.ID, enums.CredentialTypeSeller)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeactivateAndCoolDown(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	shop := seedShop(t, conn, true)
	key := seedKey(t, conn, shop.ID, enums.CredentialTypeSeller, nil)

	until, err := svc.CoolDown(ctx, key.ID, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(15*time.Minute), until)

	_, err = svc.Usable(ctx, key.ID, enums.CredentialTypeSeller)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimited))

	require.NoError(t, svc.Deactivate(ctx, key.ID))
	var stored models.APIKey
	require.NoError(t, conn.First(&stored, key.ID).Error)
	assert.False(t, stored.IsActive)
}
