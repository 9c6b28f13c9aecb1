// Package identity provides the per-installation id (pc_id) that tags every
// record written by this instance.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileName is the name of the file in the data dir that stores the id.
const FileName = ".pc_id"

// LoadOrCreate returns the installation id. A non-empty override wins;
// otherwise the id stored in dataDir is used, and if there is none a new
// random UUID is generated and persisted.
func LoadOrCreate(dataDir, override string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}

	path := filepath.Join(dataDir, FileName)
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	case !os.IsNotExist(err):
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to persist pc_id: %w", err)
	}
	return id, nil
}
