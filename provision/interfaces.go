package provision

import (
	"context"

	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/model"
)

// RemoteAPI is the developer account the pipeline reconciles against.
type RemoteAPI interface {
	Authenticate(ctx context.Context, appleID string, password string, data *anisette.Data, verify anisette.VerificationHandler) (*model.Account, *model.Session, error)
	FetchTeams(ctx context.Context, account *model.Account, session *model.Session) ([]*model.Team, error)
	FetchDevices(ctx context.Context, team *model.Team, deviceType model.DeviceType, session *model.Session) ([]*model.Device, error)
	RegisterDevice(ctx context.Context, name string, identifier string, deviceType model.DeviceType, team *model.Team, session *model.Session) (*model.Device, error)
	FetchCertificates(ctx context.Context, team *model.Team, session *model.Session) ([]*model.Certificate, error)
	AddCertificate(ctx context.Context, machineName string, team *model.Team, session *model.Session) (*model.Certificate, error)
	RevokeCertificate(ctx context.Context, certificate *model.Certificate, team *model.Team, session *model.Session) error
	FetchAppIDs(ctx context.Context, team *model.Team, session *model.Session) ([]*model.AppID, error)
	AddAppID(ctx context.Context, name string, bundleID string, team *model.Team, session *model.Session) (*model.AppID, error)
	UpdateAppID(ctx context.Context, appID *model.AppID, team *model.Team, session *model.Session) (*model.AppID, error)
	FetchAppGroups(ctx context.Context, team *model.Team, session *model.Session) ([]*model.AppGroup, error)
	AddAppGroup(ctx context.Context, name string, groupIdentifier string, team *model.Team, session *model.Session) (*model.AppGroup, error)
	AssignAppIDToGroups(ctx context.Context, appID *model.AppID, groups []*model.AppGroup, team *model.Team, session *model.Session) error
	FetchProvisioningProfile(ctx context.Context, appID *model.AppID, deviceType model.DeviceType, team *model.Team, session *model.Session) (*model.ProvisioningProfile, error)
}

type AttestationProvider interface {
	// FetchAnisetteData may return nil data when no provider is available.
	FetchAnisetteData(ctx context.Context) (*anisette.Data, error)
	ResetProvisioning()
}

type Notifier interface {
	Notify(title string, message string)
	// Alert blocks until the user dismisses it. A non-nil error aborts the operation that raised it.
	Alert(ctx context.Context, title string, message string) error
}

// CertificateCache stores one encrypted certificate blob per team.
type CertificateCache interface {
	Load(teamID string) ([]byte, error)
	Store(teamID string, blob []byte) error
}

type Signer interface {
	SignApp(ctx context.Context, bundlePath string, certificate *model.Certificate, profiles []*model.ProvisioningProfile) error
}

type Installer interface {
	InstallApp(ctx context.Context, bundlePath string, udid string, activeProfiles []string, progress func(float64)) error
}

type Extractor interface {
	Extract(archivePath string, destination string) (string, error)
}

// ExtractorFunc adapts a plain function such as util.UnzipAppBundle.
type ExtractorFunc func(archivePath string, destination string) (string, error)

func (f ExtractorFunc) Extract(archivePath string, destination string) (string, error) {
	return f(archivePath, destination)
}

type Downloader interface {
	// Download stores the default application archive in dir and returns its path.
	Download(ctx context.Context, dir string) (string, error)
}
