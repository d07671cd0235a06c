package util

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// UnzipAppBundle extracts an ipa into dest and returns the path of the Payload/*.app bundle.
func UnzipAppBundle(ipaPath string, dest string) (string, error) {
	r, err := zip.OpenReader(ipaPath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", err
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}

	extractAndWriteFile := func(f *zip.File) error {
		path := filepath.Join(root, f.Name)
		if path != root && !strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			return os.MkdirAll(path, 0755)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		mode := f.Mode().Perm()
		if mode == 0 {
			mode = 0644
		}
		out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode|0200)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, rc)
		return err
	}

	for _, f := range r.File {
		if err := extractAndWriteFile(f); err != nil {
			return "", err
		}
	}
	log.Debugf("extracted %d entries from %s", len(r.File), ipaPath)

	matches, err := filepath.Glob(filepath.Join(root, "Payload", "*.app"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no app bundle found in %s", ipaPath)
	}
	return matches[0], nil
}
