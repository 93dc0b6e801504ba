package resolver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cos-systems/cos/errors"
	"github.com/cos-systems/cos/manifest"
)

// DirManifestSource implements LocalManifestSource by scanning a directory
// of serialized manifests (spec §4.4 stage 3b: "local manifest files, e.g. a
// directory of capability descriptors checked in alongside the deployment").
type DirManifestSource struct {
	Dir string
}

// NewDirManifestSource wraps dir as a LocalManifestSource.
func NewDirManifestSource(dir string) *DirManifestSource {
	return &DirManifestSource{Dir: dir}
}

// Scan reads every *.json file directly under Dir and decodes it as a
// manifest.CapabilityManifest, skipping files that fail to parse rather than
// aborting the whole scan (one malformed descriptor should not block
// discovery for every other capability in the directory).
func (s *DirManifestSource) Scan(ctx context.Context) ([]manifest.CapabilityManifest, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.RuntimeError, "failed to read local manifest directory", err)
	}

	var out []manifest.CapabilityManifest
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		var man manifest.CapabilityManifest
		if err := json.Unmarshal(raw, &man); err != nil {
			continue
		}
		out = append(out, man)
	}
	return out, nil
}
