package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/catalog"
	"github.com/feedopt/feedopt/pkg/gateway"
	"github.com/feedopt/feedopt/pkg/storage"
)

// newGateway builds a service client from the current configuration.
func newGateway() (*gateway.Client, error) {
	cfg := gateway.DefaultConfig()
	cfg.BaseURL = viper.GetString("api.url")
	cfg.Proxy = viper.GetString("api.proxy")
	cfg.RetryMax = viper.GetInt("api.retries")
	if t := viper.GetDuration("api.timeout"); t > 0 {
		cfg.Timeout = t
	}
	c, err := gateway.New(cfg)
	if err != nil {
		return nil, err
	}
	utils.Log.WithField("url", c.BaseURL()).Debug("using optimization service")
	return c, nil
}

// openDB opens the local database at the configured path.
func openDB() (*storage.DB, string, error) {
	path, err := utils.GetAbsDBPath(viper.GetString("db.path"))
	if err != nil {
		return nil, "", fmt.Errorf("could not resolve db path: %w", err)
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

// loadMaterials returns the local catalog backed by db. Changes to it are
// made under the database lock at path.
func loadMaterials(ctx context.Context, db *storage.DB, path string) (*catalog.Store, error) {
	store := catalog.NewStore(db)
	store.SetLocker(func(fn func() error) error { return utils.WithLock(path, fn) })
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// sessionID resolves the service session for catalog import and export.
func sessionID(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if s := viper.GetString("session.id"); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("no session: pass --session or set session.id in the config")
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}
