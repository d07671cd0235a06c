package storage

import (
	"os"
	"path/filepath"

	"gitee.com/kxapp/kxapp-common/cryptoz"
	"gitee.com/kxapp/kxapp-common/utilz"
)

const (
	TokenTypeXcode = "xcode"
)

// TokenStore keeps session tokens per apple id under Dir/tokens.
type TokenStore struct {
	Dir      string
	Password string
}

func NewTokenStore(dataDir string, password string) *TokenStore {
	return &TokenStore{Dir: filepath.Join(dataDir, "tokens"), Password: password}
}

func (s *TokenStore) TokenPath(email, tokenType string) string {
	p := filepath.Join(s.Dir, email+"."+tokenType)
	os.MkdirAll(filepath.Dir(p), 0755)
	return p
}

func Read[T any](s *TokenStore, email string, tokenType string) (*T, error) {
	return utilz.ReadFromJsonFileSec[T](s.TokenPath(email, tokenType), s.Password)
}

func Write(s *TokenStore, email string, tokenType string, token any) error {
	return utilz.WriteToJsonFileSec(s.TokenPath(email, tokenType), token, s.Password)
}

func (s *TokenStore) Remove(email string, tokenType string) error {
	return os.Remove(s.TokenPath(email, tokenType))
}

func ReadFile(fp string, password string) ([]byte, error) {
	d, e := os.ReadFile(fp)
	if e != nil {
		return nil, e
	}
	if password != "" {
		return cryptoz.RC4Crypto(d, password), nil
	}
	return d, nil
}

func WriteFile(fp string, data []byte, password string) error {
	if password != "" {
		data = cryptoz.RC4Crypto(data, password)
	}
	if e := os.MkdirAll(filepath.Dir(fp), 0755); e != nil {
		return e
	}
	return os.WriteFile(fp, data, 0600)
}
