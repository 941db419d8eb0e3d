package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boardsync/collab/internal/config"
	"github.com/boardsync/collab/internal/storage"
)

// StoreFlags are the database location flags shared by the admin commands.
type StoreFlags struct {
	Config   string
	Database string
}

func (c *StoreFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.Config, "config", "", "Path to config file (default: ~/.collab/config.toml)")
	fs.StringVar(&c.Database, "db", "", "Path to SQLite database (default: ~/.collab/collab.db)")
}

// resolveDatabasePath picks the SQLite path: --db, then the config file's
// database key, then ~/.collab/collab.db.
func resolveDatabasePath(configPath, dbFlag string) (string, error) {
	if dbFlag != "" {
		return dbFlag, nil
	}
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if fileCfg.Database != "" {
		return fileCfg.Database, nil
	}
	fileCfg.ApplyDefaults()
	return fileCfg.Database, nil
}

// openDatabase opens (creating if needed) the SQLite database.
func openDatabase(path string) (*storage.SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}
