// Package modelstore persists versioned model artifacts on the local
// filesystem or in S3. Artifacts are opaque blobs; each one is paired
// with a small metadata document so versions can be listed without
// loading the artifacts themselves.
package modelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	versionsDir = "versions"
	metaSuffix  = ".meta.json"
)

// artifactName builds the artifact filename for a version, e.g.
// "v_20260829_140502__risk_level__forest.json".
func artifactName(v *domain.ModelVersion) string {
	return fmt.Sprintf("%s__%s__%s.json", v.Version, v.Target, v.ModelName)
}

// LocalStore keeps artifacts under root/versions on the filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore creates a filesystem-backed store rooted at root.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, versionsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create model store root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Save writes the artifact and its metadata sidecar.
func (s *LocalStore) Save(ctx context.Context, version *domain.ModelVersion, artifact []byte) (string, error) {
	path := filepath.Join(s.root, versionsDir, artifactName(version))
	if err := os.WriteFile(path, artifact, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	meta := *version
	meta.ArtifactPath = path
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal version metadata: %w", err)
	}
	if err := os.WriteFile(path+metaSuffix, data, 0o644); err != nil {
		return "", fmt.Errorf("write version metadata: %w", err)
	}
	return path, nil
}

// Load reads an artifact by its storage path.
func (s *LocalStore) Load(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: artifact %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// List returns known versions for a target, oldest first. The version
// tag sorts lexicographically because it embeds a timestamp.
func (s *LocalStore) List(ctx context.Context, target string) ([]*domain.ModelVersion, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, versionsDir))
	if err != nil {
		return nil, fmt.Errorf("read versions directory: %w", err)
	}

	var out []*domain.ModelVersion
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, versionsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read version metadata: %w", err)
		}
		var mv domain.ModelVersion
		if err := json.Unmarshal(data, &mv); err != nil {
			return nil, fmt.Errorf("parse version metadata %s: %w", entry.Name(), err)
		}
		if mv.Target == target {
			out = append(out, &mv)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Latest returns the most recent version for a target.
func (s *LocalStore) Latest(ctx context.Context, target string) (*domain.ModelVersion, error) {
	versions, err := s.List(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: no versions for target %s", domain.ErrNotFound, target)
	}
	return versions[len(versions)-1], nil
}
