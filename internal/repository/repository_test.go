package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveAndListSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.now = func() time.Time { return time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC) }

	settings, err := repo.ListSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings)

	require.NoError(t, repo.SaveSettings(ctx, map[string]string{
		models.SettingAirportICAO: "EDDF",
		models.SettingHomeLat:     "50.033",
	}))
	require.NoError(t, repo.SaveSettings(ctx, map[string]string{models.SettingAirportICAO: "EDLP"}))

	settings, err = repo.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 2)
	assert.Equal(t, models.SettingAirportICAO, settings[0].Key)
	assert.Equal(t, "EDLP", settings[0].Value)
	assert.Equal(t, models.SettingHomeLat, settings[1].Key)
	assert.Equal(t, "50.033", settings[1].Value)
	assert.True(t, settings[0].UpdatedAt.Equal(time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)))
}

func TestSaveSettings_Empty(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.SaveSettings(context.Background(), nil))
}

func TestSaveSettings_Concurrent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.SaveSettings(ctx, map[string]string{models.SettingAirportICAO: "EDD" + string(rune('A'+i))})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	settings, err := repo.ListSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, settings, 1)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, repo.Close())
	assert.Error(t, repo.Ping(context.Background()))
}
