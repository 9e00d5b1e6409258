package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/newshub/stevedore/pkg/log"
	"github.com/newshub/stevedore/pkg/runtime"
	"github.com/newshub/stevedore/pkg/storage"
	"github.com/newshub/stevedore/pkg/types"
)

// Agent takes best-effort snapshots of the persistent store before a
// redeploy. Nothing it does can abort a deployment: a missing container,
// an empty database, or a failed dump all downgrade to warnings.
type Agent struct {
	rt     runtime.Runtime
	store  storage.Store
	dir    string
	retain int
	logger zerolog.Logger

	// Dump credentials for the database admin user
	username string
	password string
}

// Options configures the backup agent
type Options struct {
	Dir      string
	Retain   int
	Username string
	Password string
}

// NewAgent creates a backup agent
func NewAgent(rt runtime.Runtime, store storage.Store, opts Options) *Agent {
	retain := opts.Retain
	if retain <= 0 {
		retain = 5
	}
	return &Agent{
		rt:       rt,
		store:    store,
		dir:      opts.Dir,
		retain:   retain,
		username: opts.Username,
		password: opts.Password,
		logger:   log.WithComponent("backup"),
	}
}

// Run dumps the database service to a timestamped archive. Returns the
// record on success and nil for every no-op or failure case: a store
// that is not running (first deployment), an empty database, or any
// exec/copy error.
func (a *Agent) Run(ctx context.Context, svc *types.ServiceSpec) *types.BackupRecord {
	running, err := a.rt.IsRunning(ctx, svc.Name)
	if err != nil {
		a.logger.Warn().Err(err).Str("service", svc.Name).
			Msg("could not determine store state, skipping backup")
		return nil
	}
	if !running {
		a.logger.Info().Str("service", svc.Name).
			Msg("persistent store not running, skipping backup (first deployment?)")
		return nil
	}

	dump, err := a.rt.Exec(ctx, svc.Name, []string{
		"mongodump",
		"--archive",
		"--gzip",
		"--username", a.username,
		"--password", a.password,
		"--authenticationDatabase", "admin",
	})
	if err != nil {
		a.logger.Warn().Err(err).Str("service", svc.Name).
			Msg("database dump failed, continuing without backup")
		return nil
	}
	if len(dump) == 0 {
		a.logger.Warn().Str("service", svc.Name).
			Msg("database dump produced no data, treating as empty database")
		return nil
	}

	now := time.Now()
	path := filepath.Join(a.dir, fmt.Sprintf("%s-%s.archive.gz", svc.Name, now.Format("20060102-150405")))
	if err := os.WriteFile(path, dump, 0o600); err != nil {
		a.logger.Warn().Err(err).Str("path", path).
			Msg("failed to write backup archive, continuing without backup")
		return nil
	}

	record := &types.BackupRecord{
		ID:        uuid.NewString(),
		Timestamp: now,
		Source:    svc.Name,
		Path:      path,
		SizeBytes: int64(len(dump)),
	}
	if err := a.store.RecordBackup(record); err != nil {
		a.logger.Warn().Err(err).Msg("failed to index backup record")
	}

	a.logger.Info().
		Str("path", path).
		Int64("size_bytes", record.SizeBytes).
		Msg("backup archived")
	return record
}

// Prune removes all but the most recent retained backups, newest first by
// timestamp. Called after every successful deployment.
func (a *Agent) Prune() error {
	records, err := a.store.ListBackups()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(records) <= a.retain {
		return nil
	}

	for _, record := range records[a.retain:] {
		if err := os.Remove(record.Path); err != nil && !os.IsNotExist(err) {
			a.logger.Warn().Err(err).Str("path", record.Path).
				Msg("failed to remove backup archive")
			continue
		}
		if err := a.store.DeleteBackup(record.ID); err != nil {
			return fmt.Errorf("failed to delete backup record %s: %w", record.ID, err)
		}
		a.logger.Info().Str("path", record.Path).Msg("pruned old backup")
	}
	return nil
}
