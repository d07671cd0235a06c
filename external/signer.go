package external

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/appuploader/altserver/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultSignerPath = "zsign"

// CommandSigner signs a bundle in place with a zsign compatible binary.
type CommandSigner struct {
	Path string
}

func (s *CommandSigner) path() string {
	if s.Path == "" {
		return DefaultSignerPath
	}
	return s.Path
}

// signArgs never carries a password, the key file is written with 0600 instead.
func signArgs(keyPath string, certPath string, profilePaths []string, bundlePath string) []string {
	args := []string{"-k", keyPath, "-c", certPath}
	for _, p := range profilePaths {
		args = append(args, "-m", p)
	}
	return append(args, bundlePath)
}

func (s *CommandSigner) SignApp(ctx context.Context, bundlePath string, certificate *model.Certificate, profiles []*model.ProvisioningProfile) error {
	tmp, err := os.MkdirTemp("", "altserver-sign")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	key, cert, err := certificate.PEM()
	if err != nil {
		return errors.Wrap(err, "export signing identity")
	}
	keyPath := filepath.Join(tmp, "identity.key")
	if err := os.WriteFile(keyPath, key, 0600); err != nil {
		return err
	}
	certPath := filepath.Join(tmp, "identity.pem")
	if err := os.WriteFile(certPath, cert, 0644); err != nil {
		return err
	}

	profilePaths := make([]string, 0, len(profiles))
	for i, p := range profiles {
		path := filepath.Join(tmp, fmt.Sprintf("%d.mobileprovision", i))
		if err := os.WriteFile(path, p.Data, 0644); err != nil {
			return err
		}
		profilePaths = append(profilePaths, path)
	}

	log.WithFields(log.Fields{"bundle": bundlePath, "profiles": len(profiles)}).Debug("running ", s.path())
	out, err := exec.CommandContext(ctx, s.path(), signArgs(keyPath, certPath, profilePaths, bundlePath)...).CombinedOutput()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return errors.Wrapf(err, "%s: %s", s.path(), out)
	}
	return nil
}
