package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/newshub/stevedore/pkg/types"
)

// Manifest is the fixed service manifest file describing the fleet
type Manifest struct {
	Services []*types.ServiceSpec `yaml:"services"`
}

// LoadManifest reads the service manifest, expanding ${VAR} references
// against the validated environment before parsing. Expansion happens on
// the raw text so image names like ${DOCKER_USERNAME}/news-backend and
// env blocks can reference deployment secrets without embedding them.
func LoadManifest(path string, env map[string]string) ([]*types.ServiceSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	expanded := os.Expand(string(raw), func(key string) string {
		return env[key]
	})

	var manifest Manifest
	if err := yaml.Unmarshal([]byte(expanded), &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	if len(manifest.Services) == 0 {
		return nil, fmt.Errorf("manifest %s defines no services", path)
	}

	for _, svc := range manifest.Services {
		if svc.Name == "" {
			return nil, fmt.Errorf("manifest %s: service with empty name", path)
		}
		if svc.Image == "" {
			return nil, fmt.Errorf("manifest %s: service %s has no image", path, svc.Name)
		}
	}

	return manifest.Services, nil
}
