package testsupport

import (
	"testing"

	"gaintag/internal/config"
	"gaintag/internal/scancache"
)

// MustOpenStore opens a scancache.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *scancache.Store {
	t.Helper()

	store, err := scancache.Open(cfg.Cache.Dir)
	if err != nil {
		t.Fatalf("scancache.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
