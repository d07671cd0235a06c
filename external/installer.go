package external

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultInstallerPath = "ideviceinstaller"

var progressPattern = regexp.MustCompile(`(\d{1,3})%`)

// CommandInstaller installs a signed bundle with ideviceinstaller.
type CommandInstaller struct {
	Path string
}

func (i *CommandInstaller) path() string {
	if i.Path == "" {
		return DefaultInstallerPath
	}
	return i.Path
}

func installArgs(udid string, bundlePath string) []string {
	return []string{"-u", udid, "-i", bundlePath}
}

// parseProgress reads the last percentage printed on a status line.
func parseProgress(line string) (float64, bool) {
	matches := progressPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || n > 100 {
		return 0, false
	}
	return float64(n) / 100, true
}

func (i *CommandInstaller) InstallApp(ctx context.Context, bundlePath string, udid string, activeProfiles []string, progress func(float64)) error {
	if len(activeProfiles) > 0 {
		// ideviceinstaller has no way to remove inactive profiles
		log.WithField("profiles", strings.Join(activeProfiles, ",")).Debug("active profiles")
	}
	cmd := exec.CommandContext(ctx, i.path(), installArgs(udid, bundlePath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", i.path())
	}
	var output []string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		output = append(output, line)
		if p, ok := parseProgress(line); ok && progress != nil {
			progress(p)
		}
	}
	err = cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" && len(output) > 0 {
			msg = output[len(output)-1]
		}
		return errors.Wrapf(err, "%s: %s", i.path(), msg)
	}
	return nil
}
