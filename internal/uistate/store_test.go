package uistate

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/facecloud/internal/domain"
	"github.com/tbourn/facecloud/internal/repo"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repo.AutoMigrate(db))
	return New(db)
}

func TestGet_Defaults(t *testing.T) {
	s := newStore(t)
	p, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, p.SidebarCollapsed)
	assert.Equal(t, domain.TimeframeWeek, p.Timeframe)
}

func TestUpdate_PersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	var got []domain.Preferences
	unsub := s.Subscribe(func(userID string, p domain.Preferences) {
		assert.Equal(t, "u1", userID)
		got = append(got, p)
	})

	p, err := s.Update(ctx, "u1", func(p *domain.Preferences) { p.SidebarCollapsed = true })
	require.NoError(t, err)
	assert.True(t, p.SidebarCollapsed)

	_, err = s.Update(ctx, "u1", func(p *domain.Preferences) { p.Timeframe = domain.TimeframeMonth })
	require.NoError(t, err)

	stored, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, stored.SidebarCollapsed, "earlier change kept")
	assert.Equal(t, domain.TimeframeMonth, stored.Timeframe)
	require.Len(t, got, 2)

	unsub()
	_, err = s.Update(ctx, "u1", func(p *domain.Preferences) { p.SidebarCollapsed = false })
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpdate_RejectsBadTimeframe(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Update(ctx, "u1", func(p *domain.Preferences) { p.Timeframe = "fortnight" })
	require.ErrorIs(t, err, ErrInvalidTimeframe)

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TimeframeWeek, p.Timeframe)
}

func TestUpdate_ConcurrentTogglesAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "u1", func(p *domain.Preferences) { p.SidebarCollapsed = !p.SidebarCollapsed })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, p.SidebarCollapsed, "even number of toggles")
}
