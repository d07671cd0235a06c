package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

type fakeAttestation struct {
	mu      sync.Mutex
	err     error
	fetches int
	resets  int
}

func (f *fakeAttestation) FetchAnisetteData(ctx context.Context) (*anisette.Data, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return &anisette.Data{XAppleIMD: "md", XAppleIMDM: "mdm"}, nil
}

func (f *fakeAttestation) ResetProvisioning() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

// bundleExtractor lays out an unpacked ipa with one extension and remembers where.
type bundleExtractor struct {
	bundleID string
	dests    []string
}

func (e *bundleExtractor) Extract(archivePath string, destination string) (string, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return "", err
	}
	e.dests = append(e.dests, destination)
	appPath := filepath.Join(destination, "Payload", "App.app")
	if err := os.MkdirAll(filepath.Join(appPath, "PlugIns", "Widget.appex"), 0755); err != nil {
		return "", err
	}
	for path, values := range map[string]map[string]any{
		appPath: {"CFBundleIdentifier": e.bundleID, "CFBundleName": "App"},
		filepath.Join(appPath, "PlugIns", "Widget.appex"): {"CFBundleIdentifier": e.bundleID + ".widget", "CFBundleName": "Widget"},
	} {
		data, err := plist.Marshal(values, plist.XMLFormat)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(path, "Info.plist"), data, 0644); err != nil {
			return "", err
		}
	}
	return appPath, nil
}

type signedBundle struct {
	info        map[string]any
	extension   map[string]any
	profiles    []string
	certificate bool
}

type fakeSigner struct {
	signed []signedBundle
	err    error
}

func readPlist(path string) map[string]any {
	info := map[string]any{}
	data, err := os.ReadFile(filepath.Join(path, "Info.plist"))
	if err == nil {
		plist.Unmarshal(data, &info)
	}
	return info
}

func (s *fakeSigner) SignApp(ctx context.Context, bundlePath string, certificate *model.Certificate, profiles []*model.ProvisioningProfile) error {
	b := signedBundle{
		info:      readPlist(bundlePath),
		extension: readPlist(filepath.Join(bundlePath, "PlugIns", "Widget.appex")),
	}
	for _, p := range profiles {
		b.profiles = append(b.profiles, p.BundleIdentifier)
	}
	_, err := os.Stat(filepath.Join(bundlePath, certificateFileName))
	b.certificate = err == nil
	s.signed = append(s.signed, b)
	return s.err
}

type fakeInstaller struct {
	udid           string
	activeProfiles []string
	calls          int
}

func (i *fakeInstaller) InstallApp(ctx context.Context, bundlePath string, udid string, activeProfiles []string, progress func(float64)) error {
	i.calls++
	i.udid = udid
	i.activeProfiles = activeProfiles
	progress(1)
	return nil
}

type fakeDownloader struct {
	path string
}

func (d *fakeDownloader) Download(ctx context.Context, dir string) (string, error) {
	d.path = filepath.Join(dir, "altstore.ipa")
	return d.path, os.WriteFile(d.path, []byte("ipa"), 0644)
}

type pipelineFixture struct {
	api         *MockRemoteAPI
	attestation *fakeAttestation
	notifier    *recordingNotifier
	extractor   *bundleExtractor
	signer      *fakeSigner
	installer   *fakeInstaller
	downloader  *fakeDownloader
	tempDir     string
	request     Request
	team        *model.Team

	profileMu   sync.Mutex
	profileErrs []error
}

func newPipelineFixture(t *testing.T, bundleID string, teamType model.TeamType) *pipelineFixture {
	f := &pipelineFixture{
		api:         new(MockRemoteAPI),
		attestation: &fakeAttestation{},
		notifier:    &recordingNotifier{},
		extractor:   &bundleExtractor{bundleID: bundleID},
		signer:      &fakeSigner{},
		installer:   &fakeInstaller{},
		downloader:  &fakeDownloader{},
		tempDir:     t.TempDir(),
		team:        &model.Team{Identifier: "T1", Type: teamType},
	}
	ipa := filepath.Join(t.TempDir(), "App.ipa")
	require.NoError(t, os.WriteFile(ipa, []byte("ipa"), 0644))
	device := &model.Device{Identifier: "UDID-1", Name: "iPhone", Type: model.DeviceTypeIPhone}
	f.request = Request{Path: ipa, Device: device, AppleID: "user@example.com", Password: "secret"}

	created := newTestCertificate(t, 0xABCD)
	listed := &model.Certificate{Identifier: "C1", SerialNumber: created.SerialNumber, MachineName: "AltStore", MachineIdentifier: "MACHINE-1", Data: created.Data}
	added := false
	f.api.On("FetchTeams", mock.Anything, mock.Anything, mock.Anything).Return([]*model.Team{f.team}, nil)
	f.api.On("FetchDevices", mock.Anything, f.team, model.DeviceTypeIPhone, mock.Anything).Return([]*model.Device{device}, nil)
	f.api.On("FetchCertificates", mock.Anything, f.team, mock.Anything).Return(func() []*model.Certificate {
		if added {
			return []*model.Certificate{listed}
		}
		return nil
	}, nil)
	f.api.On("AddCertificate", mock.Anything, CertificateMachineName, f.team, mock.Anything).Run(func(mock.Arguments) {
		added = true
	}).Return(created, nil)
	echoAppIDs(f.api)
	f.api.On("FetchAppGroups", mock.Anything, mock.Anything, mock.Anything).Return([]*model.AppGroup{}, nil)
	f.api.On("AssignAppIDToGroups", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.api.On("FetchProvisioningProfile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, appID *model.AppID, deviceType model.DeviceType, team *model.Team, session *model.Session) (*model.ProvisioningProfile, error) {
			f.profileMu.Lock()
			defer f.profileMu.Unlock()
			if len(f.profileErrs) > 0 {
				err := f.profileErrs[0]
				f.profileErrs = f.profileErrs[1:]
				return nil, err
			}
			return &model.ProvisioningProfile{BundleIdentifier: appID.BundleIdentifier}, nil
		}, nil)
	return f
}

func (f *pipelineFixture) authenticates() {
	f.api.On("Authenticate", mock.Anything, "user@example.com", "secret", mock.Anything).
		Return(&model.Account{AppleID: "user@example.com"}, testSession, nil)
}

func (f *pipelineFixture) controller() *Controller {
	return NewController(Options{
		API:           f.api,
		Attestation:   f.attestation,
		Cache:         newMemoryCache(),
		Notifier:      f.notifier,
		Signer:        f.signer,
		Installer:     f.installer,
		Extractor:     f.extractor,
		Downloader:    f.downloader,
		RetryCooldown: time.Millisecond,
		ServerID:      "SERVER-1",
		TempDir:       f.tempDir,
	})
}

func (f *pipelineFixture) assertWorkDirsRemoved(t *testing.T) {
	require.NotEmpty(t, f.extractor.dests)
	for _, d := range f.extractor.dests {
		assert.NoDirExists(t, d)
	}
}

func TestInstallApplication(t *testing.T) {
	f := newPipelineFixture(t, "com.example.app", model.TeamTypeIndividual)
	f.authenticates()

	app, err := f.controller().InstallApplication(context.Background(), f.request)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", app.BundleIdentifier)

	require.Len(t, f.signer.signed, 1)
	signed := f.signer.signed[0]
	assert.Equal(t, "com.example.app.T1", signed.info["CFBundleIdentifier"])
	assert.Equal(t, "com.example.app", signed.info["ALTBundleIdentifier"])
	assert.Equal(t, "com.example.app.T1.widget", signed.extension["CFBundleIdentifier"])
	assert.Equal(t, "com.example.app.widget", signed.extension["ALTBundleIdentifier"])
	assert.NotContains(t, signed.info, "ALTDeviceID")
	assert.False(t, signed.certificate)
	assert.Equal(t, []string{"com.example.app.T1", "com.example.app.T1.widget"}, signed.profiles)

	urlTypes, _ := signed.info["CFBundleURLTypes"].([]any)
	require.Len(t, urlTypes, 1)
	scheme := urlTypes[0].(map[string]any)
	assert.Equal(t, []any{"altstore-com.example.app"}, scheme["CFBundleURLSchemes"])

	assert.Equal(t, "UDID-1", f.installer.udid)
	assert.Nil(t, f.installer.activeProfiles)
	assert.Empty(t, f.notifier.alerts())
	assert.Contains(t, f.notifier.events, notification{Title: "Installation Succeeded", Message: "App was successfully installed on iPhone."})
	f.assertWorkDirsRemoved(t)
	assert.FileExists(t, f.request.Path)
}

func TestInstallApplicationSelfHostedOnFreeTeam(t *testing.T) {
	f := newPipelineFixture(t, model.SelfHostedBundleID, model.TeamTypeFree)
	f.authenticates()

	_, err := f.controller().InstallApplication(context.Background(), f.request)
	require.NoError(t, err)

	require.Len(t, f.signer.signed, 1)
	signed := f.signer.signed[0]
	assert.Equal(t, "com.T1.com.rileytestut.AltStore", signed.info["CFBundleIdentifier"])
	assert.Equal(t, "UDID-1", signed.info["ALTDeviceID"])
	assert.Equal(t, "SERVER-1", signed.info["ALTServerID"])
	assert.Equal(t, "ABCD", signed.info["ALTCertificateID"])
	assert.True(t, signed.certificate)
	assert.NotContains(t, signed.extension, "ALTDeviceID")
	assert.Equal(t, []string{"com.T1.com.rileytestut.AltStore", "com.T1.com.rileytestut.AltStore.widget"}, f.installer.activeProfiles)
}

func TestInstallApplicationDownloadsDefaultApp(t *testing.T) {
	f := newPipelineFixture(t, model.SelfHostedBundleID, model.TeamTypeIndividual)
	f.authenticates()
	f.request.Path = ""

	_, err := f.controller().InstallApplication(context.Background(), f.request)
	require.NoError(t, err)
	assert.NotEmpty(t, f.downloader.path)
	assert.NoFileExists(t, f.downloader.path)
	assert.Equal(t, "Installing AltStore to iPhone...", f.notifier.events[0].Title)
}

func TestInstallApplicationRetriesOnceAfterAttestationFailure(t *testing.T) {
	f := newPipelineFixture(t, "com.example.app", model.TeamTypeIndividual)
	f.api.On("Authenticate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil, model.NewRemoteError(-22421, "invalid")).Once()
	f.authenticates()

	app, err := f.controller().InstallApplication(context.Background(), f.request)
	require.NoError(t, err)
	require.NotNil(t, app)
	f.api.AssertNumberOfCalls(t, "Authenticate", 2)
	assert.Equal(t, 2, f.attestation.fetches)
	assert.Equal(t, 1, f.attestation.resets)
	assert.Contains(t, f.notifier.events, notification{Title: "Registering PC with Apple...", Message: "This may take a few seconds."})
}

func TestInstallApplicationRetriesAfterProfileAttestationFailure(t *testing.T) {
	f := newPipelineFixture(t, "com.example.app", model.TeamTypeIndividual)
	f.authenticates()
	f.profileErrs = []error{model.NewRemoteError(-29004, "invalid")}

	app, err := f.controller().InstallApplication(context.Background(), f.request)
	require.NoError(t, err)
	require.NotNil(t, app)
	f.api.AssertNumberOfCalls(t, "Authenticate", 2)
	assert.Equal(t, 2, f.attestation.fetches)
	assert.Equal(t, 1, f.attestation.resets)
	assert.Len(t, f.extractor.dests, 2)
	f.assertWorkDirsRemoved(t)
	require.Len(t, f.signer.signed, 1)
	assert.Empty(t, f.notifier.alerts())
}

func TestInstallApplicationRetryIsBounded(t *testing.T) {
	f := newPipelineFixture(t, "com.example.app", model.TeamTypeIndividual)
	f.api.On("Authenticate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil, model.NewRemoteError(-29004, "invalid"))

	app, err := f.controller().InstallApplication(context.Background(), f.request)
	assert.Nil(t, app)
	assert.True(t, model.IsKind(err, model.AttestationInvalid))
	f.api.AssertNumberOfCalls(t, "Authenticate", 2)
	assert.Equal(t, []string{"Installation Failed"}, f.notifier.alerts())
	assert.Equal(t, 2, f.attestation.resets)
}

func TestInstallApplicationRemovesWorkDirOnFailure(t *testing.T) {
	f := newPipelineFixture(t, "com.example.app", model.TeamTypeIndividual)
	f.authenticates()
	f.signer.err = errors.New("zsign exited with status 1")

	_, err := f.controller().InstallApplication(context.Background(), f.request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zsign exited")
	f.assertWorkDirsRemoved(t)
	assert.Equal(t, 0, f.installer.calls)
	assert.Equal(t, []string{"Installation Failed"}, f.notifier.alerts())
}

func TestInstallApplicationCancelled(t *testing.T) {
	for name, cause := range map[string]error{
		"cancelled":       model.NewError(model.Cancelled),
		"context":         context.Canceled,
		"wrapped context": errors.Join(errors.New("request aborted"), context.Canceled),
	} {
		t.Run(name, func(t *testing.T) {
			f := newPipelineFixture(t, "com.example.app", model.TeamTypeIndividual)
			f.api.On("Authenticate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil, cause)

			app, err := f.controller().InstallApplication(context.Background(), f.request)
			assert.NoError(t, err)
			assert.Nil(t, app)
			assert.Empty(t, f.notifier.alerts())
		})
	}
}

func TestInstallApplicationAnisetteFailure(t *testing.T) {
	f := newPipelineFixture(t, "com.example.app", model.TeamTypeIndividual)
	f.attestation.err = errors.New("connection refused")

	_, err := f.controller().InstallApplication(context.Background(), f.request)
	var anisetteErr *AnisetteError
	require.ErrorAs(t, err, &anisetteErr)
	assert.Equal(t, []string{"AnisetteData Failed"}, f.notifier.alerts())
	f.api.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
