package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ServerID returns the identifier of this installation, creating it on first use.
func ServerID(dataDir string) (string, error) {
	p := filepath.Join(dataDir, "server_id")
	if d, e := os.ReadFile(p); e == nil {
		if id := strings.TrimSpace(string(d)); id != "" {
			return id, nil
		}
	}
	id := strings.ToUpper(uuid.New().String())
	if e := os.MkdirAll(dataDir, 0755); e != nil {
		return id, e
	}
	return id, os.WriteFile(p, []byte(id), 0644)
}
