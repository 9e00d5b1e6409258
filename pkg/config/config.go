package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/newshub/stevedore/pkg/types"
)

// RequiredKeys are the environment variables a deployment cannot run
// without. Validation reports every missing key, not just the first.
var RequiredKeys = []string{
	"MONGO_INITDB_ROOT_USERNAME",
	"MONGO_INITDB_ROOT_PASSWORD",
	"JWT_SECRET",
	"NEWS_API_KEY",
	"DOCKER_USERNAME",
}

// TagKey optionally selects the release tag; defaults to types.DefaultTag
const TagKey = "IMAGE_TAG"

const (
	// DefaultManifest is the fixed service manifest path
	DefaultManifest = "stevedore.yaml"

	// DefaultDataDir holds the attempt store, audit log, and metrics file
	DefaultDataDir = "/var/lib/stevedore"

	// DefaultBackupDir holds timestamped database archives
	DefaultBackupDir = "/var/backups/stevedore"
)

// Config carries everything a deployment invocation needs. It replaces
// the ambient globals a shell implementation would use: every stage takes
// the struct explicitly.
type Config struct {
	Env          map[string]string
	Tag          string
	ManifestPath string
	DataDir      string
	BackupDir    string

	PollInterval  time.Duration
	PollAttempts  int
	StopGrace     time.Duration
	RetainBackups int
	LogTailLines  int
}

// Validate checks that every required key is present and non-empty in the
// given environment. Pure function: no reads from the process environment,
// no side effects.
func Validate(env map[string]string) error {
	var missing []string
	for _, key := range RequiredKeys {
		if env[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &types.ConfigurationError{Missing: missing}
	}
	return nil
}

// EnvSnapshot captures the deployment-relevant process environment
func EnvSnapshot() map[string]string {
	env := make(map[string]string, len(RequiredKeys)+1)
	for _, key := range RequiredKeys {
		env[key] = os.Getenv(key)
	}
	env[TagKey] = os.Getenv(TagKey)
	return env
}

// Load validates the process environment and assembles the deployment
// configuration. tagOverride, when non-empty, wins over IMAGE_TAG.
func Load(manifestPath, dataDir, backupDir, tagOverride string) (*Config, error) {
	env := EnvSnapshot()
	if err := Validate(env); err != nil {
		return nil, err
	}

	tag := tagOverride
	if tag == "" {
		tag = env[TagKey]
	}
	if tag == "" {
		tag = types.DefaultTag
	}

	if manifestPath == "" {
		manifestPath = DefaultManifest
	}
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}

	return &Config{
		Env:           env,
		Tag:           tag,
		ManifestPath:  manifestPath,
		DataDir:       dataDir,
		BackupDir:     backupDir,
		PollInterval:  12 * time.Second,
		PollAttempts:  40,
		StopGrace:     30 * time.Second,
		RetainBackups: 5,
		LogTailLines:  50,
	}, nil
}

// AuditLogPath is the plain-text append-only deployment log
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.DataDir, "deploy.log")
}

// StorePath is the bbolt attempt and backup index
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "stevedore.db")
}

// MetricsPath is the Prometheus textfile written after each run
func (c *Config) MetricsPath() string {
	return filepath.Join(c.DataDir, "stevedore.prom")
}

// EnsureDirs creates the data and backup directories if absent
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.BackupDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
