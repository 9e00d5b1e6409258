package storage

import "github.com/newshub/stevedore/pkg/types"

// Store persists deployment audit state between invocations
type Store interface {
	// RecordAttempt appends a completed deployment attempt
	RecordAttempt(attempt *types.DeploymentAttempt) error

	// ListAttempts returns attempts newest first
	ListAttempts() ([]*types.DeploymentAttempt, error)

	// RecordBackup appends a backup record to the index
	RecordBackup(record *types.BackupRecord) error

	// ListBackups returns backup records newest first
	ListBackups() ([]*types.BackupRecord, error)

	// DeleteBackup removes a backup record from the index
	DeleteBackup(id string) error

	// Close releases the underlying database
	Close() error
}
