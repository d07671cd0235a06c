package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CertificateCache persists one encrypted certificate blob per team.
type CertificateCache struct {
	Dir      string
	Password string
}

func NewCertificateCache(dataDir string, password string) *CertificateCache {
	return &CertificateCache{Dir: filepath.Join(dataDir, "Certificates"), Password: password}
}

func (c *CertificateCache) Path(teamID string) string {
	return filepath.Join(c.Dir, teamID+".p12")
}

func (c *CertificateCache) Load(teamID string) ([]byte, error) {
	return ReadFile(c.Path(teamID), c.Password)
}

func (c *CertificateCache) Store(teamID string, blob []byte) error {
	return WriteFile(c.Path(teamID), blob, c.Password)
}

// Teams lists the team identifiers that have a cached blob.
func (c *CertificateCache) Teams() ([]string, error) {
	entries, e := os.ReadDir(c.Dir)
	if e != nil {
		if os.IsNotExist(e) {
			return nil, nil
		}
		return nil, e
	}
	var teams []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".p12" {
			continue
		}
		teams = append(teams, strings.TrimSuffix(entry.Name(), ".p12"))
	}
	sort.Strings(teams)
	return teams, nil
}
