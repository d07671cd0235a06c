package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultRetryCooldown = 12 * time.Second

type Options struct {
	API         RemoteAPI
	Attestation AttestationProvider
	Cache       CertificateCache
	Notifier    Notifier
	// Prompt supplies the two factor code, it is asked at most once per authentication.
	Prompt     anisette.VerificationHandler
	Signer     Signer
	Installer  Installer
	Extractor  Extractor
	Downloader Downloader

	AttestationCodes AttestationCodes
	RetryCooldown    time.Duration
	ServerID         string
	TempDir          string
}

// Controller runs the install pipeline with the collaborators it was built with.
type Controller struct {
	opts Options
}

func NewController(opts Options) *Controller {
	if opts.AttestationCodes == nil {
		opts.AttestationCodes = DefaultAttestationCodes
	}
	if opts.RetryCooldown == 0 {
		opts.RetryCooldown = DefaultRetryCooldown
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Controller{opts: opts}
}

type Request struct {
	// Path is a local .ipa, the default application is downloaded when empty.
	Path     string
	Device   *model.Device
	AppleID  string
	Password string
}

/*
*
安装失败并且是anisette数据失效时，重置anisette，等待后整个流程重试一次
*/
func (c *Controller) InstallApplication(ctx context.Context, req Request) (*model.Application, error) {
	app, err := c.attempt(ctx, req)
	if model.IsKind(err, model.AttestationInvalid) {
		log.Warn("anisette data rejected, retrying: ", err)
		c.opts.Attestation.ResetProvisioning()
		c.opts.Notifier.Notify("Registering PC with Apple...", "This may take a few seconds.")
		select {
		case <-time.After(c.opts.RetryCooldown):
			app, err = c.attempt(ctx, req)
		case <-ctx.Done():
			err = model.NewError(model.Cancelled)
		}
	}
	if err == nil {
		c.opts.Notifier.Notify("Installation Succeeded", fmt.Sprintf("%s was successfully installed on %s.", app.Name, req.Device.Name))
		return app, nil
	}

	if model.IsKind(err, model.Cancelled) {
		log.Info("installation cancelled")
		return nil, nil
	}
	log.Error("installation failed: ", err)
	var anisetteErr *AnisetteError
	switch {
	case errors.As(err, &anisetteErr):
		c.opts.Notifier.Alert(ctx, "AnisetteData Failed", err.Error())
	case model.IsKind(err, model.AttestationInvalid):
		c.opts.Attestation.ResetProvisioning()
		c.opts.Notifier.Alert(ctx, "Installation Failed", err.Error())
	default:
		c.opts.Notifier.Alert(ctx, "Installation Failed", err.Error())
	}
	return nil, err
}

func (c *Controller) attempt(ctx context.Context, req Request) (app *model.Application, err error) {
	defer func() {
		err = Reinterpret(cancellation(err), c.opts.AttestationCodes)
	}()

	data, err := c.opts.Attestation.FetchAnisetteData(ctx)
	if err != nil {
		return nil, &AnisetteError{Err: err}
	}
	if data == nil {
		return nil, &model.Error{Kind: model.AttestationInvalid, Message: "invalid anisette data"}
	}

	log.WithField("appleID", req.AppleID).Info("Authenticating...")
	account, session, err := c.opts.API.Authenticate(ctx, req.AppleID, req.Password, data, c.opts.Prompt)
	if err != nil {
		return nil, err
	}
	p := NewProvisioner(c.opts.API, session, c.opts.Cache, c.opts.Notifier)
	team, err := p.FetchTeam(ctx, account)
	if err != nil {
		return nil, err
	}

	var device *model.Device
	var certificate *model.Certificate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		device, err = p.RegisterDevice(gctx, req.Device, team)
		return err
	})
	g.Go(func() error {
		var err error
		certificate, err = p.FetchCertificate(gctx, team)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	workDir := filepath.Join(c.opts.TempDir, uuid.New().String())
	defer func() {
		if e := os.RemoveAll(workDir); e != nil {
			log.Warn("remove temp directory: ", e)
		}
	}()

	app, err = c.acquire(ctx, req, workDir)
	if err != nil {
		return nil, err
	}
	profiles, err := p.PrepareAllProvisioningProfiles(ctx, app, device, team)
	if err != nil {
		return nil, err
	}
	if err := c.install(ctx, app, device, team, certificate, profiles); err != nil {
		return nil, err
	}
	return app, nil
}

// acquire extracts the requested or downloaded archive into workDir and loads the bundle.
func (c *Controller) acquire(ctx context.Context, req Request, workDir string) (*model.Application, error) {
	ipaPath := req.Path
	if ipaPath == "" {
		c.opts.Notifier.Notify(fmt.Sprintf("Installing AltStore to %s...", req.Device.Name), "This may take a few seconds.")
		downloaded, err := c.opts.Downloader.Download(ctx, c.opts.TempDir)
		if err != nil {
			return nil, errors.Wrap(err, "download application")
		}
		ipaPath = downloaded
		defer func() {
			if e := os.Remove(downloaded); e != nil && !os.IsNotExist(e) {
				log.Warn("remove downloaded application: ", e)
			}
		}()
	}

	bundlePath, err := c.opts.Extractor.Extract(ipaPath, workDir)
	if err != nil {
		return nil, errors.Wrap(err, "extract application")
	}
	app, err := model.LoadApplication(bundlePath)
	if err != nil {
		return nil, err
	}
	if req.Path != "" {
		c.opts.Notifier.Notify(fmt.Sprintf("Installing %s to %s...", app.Name, req.Device.Name), "This may take a few seconds.")
	}
	return app, nil
}

func (c *Controller) install(ctx context.Context, app *model.Application, device *model.Device, team *model.Team, certificate *model.Certificate, profiles map[string]*model.ProvisioningProfile) error {
	for _, ext := range app.Extensions {
		if err := updateInfoPlist(ext.Path, func(info map[string]any) {
			for k, v := range bundleValues(ext, profiles[ext.BundleIdentifier]) {
				info[k] = v
			}
		}); err != nil {
			return err
		}
	}

	if app.IsSelfHosted && certificate.MachineIdentifier != "" {
		p12, err := certificate.EncryptedP12()
		if err != nil {
			return errors.Wrap(err, "encrypt certificate")
		}
		if err := os.WriteFile(filepath.Join(app.Path, certificateFileName), p12, 0644); err != nil {
			return err
		}
	}
	err := updateInfoPlist(app.Path, func(info map[string]any) {
		for k, v := range bundleValues(app, profiles[app.BundleIdentifier]) {
			info[k] = v
		}
		appendURLScheme(info, app.BundleIdentifier)
		if app.IsSelfHosted {
			info["ALTDeviceID"] = device.Identifier
			info["ALTServerID"] = c.opts.ServerID
			if certificate.MachineIdentifier != "" {
				info["ALTCertificateID"] = certificate.SerialNumber
			}
		}
	})
	if err != nil {
		return err
	}

	ordered := make([]*model.ProvisioningProfile, 0, len(profiles))
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ordered = append(ordered, profiles[k])
	}

	log.WithField("bundle", app.BundleIdentifier).Info("Signing app...")
	if err := c.opts.Signer.SignApp(ctx, app.Path, certificate, ordered); err != nil {
		return errors.Wrap(err, "sign app")
	}

	var activeProfiles []string
	if team.Type == model.TeamTypeFree && app.IsSelfHosted {
		for _, p := range ordered {
			activeProfiles = append(activeProfiles, p.BundleIdentifier)
		}
	}
	log.WithField("udid", device.Identifier).Info("Installing app...")
	err = c.opts.Installer.InstallApp(ctx, app.Path, device.Identifier, activeProfiles, func(progress float64) {
		log.Debugf("install progress %.0f%%", progress*100)
	})
	if err != nil {
		return errors.Wrap(err, "install app")
	}
	return nil
}
