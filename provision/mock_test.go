package provision

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/model"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

type MockRemoteAPI struct {
	mock.Mock
}

func (m *MockRemoteAPI) Authenticate(ctx context.Context, appleID string, password string, data *anisette.Data, verify anisette.VerificationHandler) (*model.Account, *model.Session, error) {
	args := m.Called(ctx, appleID, password, data)
	account, _ := args.Get(0).(*model.Account)
	session, _ := args.Get(1).(*model.Session)
	return account, session, args.Error(2)
}

func (m *MockRemoteAPI) FetchTeams(ctx context.Context, account *model.Account, session *model.Session) ([]*model.Team, error) {
	args := m.Called(ctx, account, session)
	teams, _ := args.Get(0).([]*model.Team)
	return teams, args.Error(1)
}

func (m *MockRemoteAPI) FetchDevices(ctx context.Context, team *model.Team, deviceType model.DeviceType, session *model.Session) ([]*model.Device, error) {
	args := m.Called(ctx, team, deviceType, session)
	devices, _ := args.Get(0).([]*model.Device)
	return devices, args.Error(1)
}

func (m *MockRemoteAPI) RegisterDevice(ctx context.Context, name string, identifier string, deviceType model.DeviceType, team *model.Team, session *model.Session) (*model.Device, error) {
	args := m.Called(ctx, name, identifier, deviceType, team, session)
	device, _ := args.Get(0).(*model.Device)
	return device, args.Error(1)
}

func (m *MockRemoteAPI) FetchCertificates(ctx context.Context, team *model.Team, session *model.Session) ([]*model.Certificate, error) {
	args := m.Called(ctx, team, session)
	if fn, ok := args.Get(0).(func() []*model.Certificate); ok {
		return fn(), args.Error(1)
	}
	certs, _ := args.Get(0).([]*model.Certificate)
	return certs, args.Error(1)
}

func (m *MockRemoteAPI) AddCertificate(ctx context.Context, machineName string, team *model.Team, session *model.Session) (*model.Certificate, error) {
	args := m.Called(ctx, machineName, team, session)
	cert, _ := args.Get(0).(*model.Certificate)
	return cert, args.Error(1)
}

func (m *MockRemoteAPI) RevokeCertificate(ctx context.Context, certificate *model.Certificate, team *model.Team, session *model.Session) error {
	return m.Called(ctx, certificate, team, session).Error(0)
}

func (m *MockRemoteAPI) FetchAppIDs(ctx context.Context, team *model.Team, session *model.Session) ([]*model.AppID, error) {
	args := m.Called(ctx, team, session)
	ids, _ := args.Get(0).([]*model.AppID)
	return ids, args.Error(1)
}

func (m *MockRemoteAPI) AddAppID(ctx context.Context, name string, bundleID string, team *model.Team, session *model.Session) (*model.AppID, error) {
	args := m.Called(ctx, name, bundleID, team, session)
	if fn, ok := args.Get(0).(func(context.Context, string, string, *model.Team, *model.Session) *model.AppID); ok {
		return fn(ctx, name, bundleID, team, session), args.Error(1)
	}
	id, _ := args.Get(0).(*model.AppID)
	return id, args.Error(1)
}

func (m *MockRemoteAPI) UpdateAppID(ctx context.Context, appID *model.AppID, team *model.Team, session *model.Session) (*model.AppID, error) {
	args := m.Called(ctx, appID, team, session)
	if fn, ok := args.Get(0).(func(context.Context, *model.AppID, *model.Team, *model.Session) *model.AppID); ok {
		return fn(ctx, appID, team, session), args.Error(1)
	}
	id, _ := args.Get(0).(*model.AppID)
	return id, args.Error(1)
}

func (m *MockRemoteAPI) FetchAppGroups(ctx context.Context, team *model.Team, session *model.Session) ([]*model.AppGroup, error) {
	args := m.Called(ctx, team, session)
	if fn, ok := args.Get(0).(func(context.Context, *model.Team, *model.Session) []*model.AppGroup); ok {
		return fn(ctx, team, session), args.Error(1)
	}
	groups, _ := args.Get(0).([]*model.AppGroup)
	return groups, args.Error(1)
}

func (m *MockRemoteAPI) AddAppGroup(ctx context.Context, name string, groupIdentifier string, team *model.Team, session *model.Session) (*model.AppGroup, error) {
	args := m.Called(ctx, name, groupIdentifier, team, session)
	if fn, ok := args.Get(0).(func(context.Context, string, string, *model.Team, *model.Session) *model.AppGroup); ok {
		return fn(ctx, name, groupIdentifier, team, session), args.Error(1)
	}
	group, _ := args.Get(0).(*model.AppGroup)
	return group, args.Error(1)
}

func (m *MockRemoteAPI) AssignAppIDToGroups(ctx context.Context, appID *model.AppID, groups []*model.AppGroup, team *model.Team, session *model.Session) error {
	return m.Called(ctx, appID, groups, team, session).Error(0)
}

func (m *MockRemoteAPI) FetchProvisioningProfile(ctx context.Context, appID *model.AppID, deviceType model.DeviceType, team *model.Team, session *model.Session) (*model.ProvisioningProfile, error) {
	args := m.Called(ctx, appID, deviceType, team, session)
	if fn, ok := args.Get(0).(func(context.Context, *model.AppID, model.DeviceType, *model.Team, *model.Session) (*model.ProvisioningProfile, error)); ok {
		return fn(ctx, appID, deviceType, team, session)
	}
	if fn, ok := args.Get(0).(func(context.Context, *model.AppID, model.DeviceType, *model.Team, *model.Session) *model.ProvisioningProfile); ok {
		return fn(ctx, appID, deviceType, team, session), args.Error(1)
	}
	profile, _ := args.Get(0).(*model.ProvisioningProfile)
	return profile, args.Error(1)
}

// echoAppIDs makes the app id calls behave like an empty remote account.
func echoAppIDs(api *MockRemoteAPI) {
	api.On("FetchAppIDs", mock.Anything, mock.Anything, mock.Anything).Return([]*model.AppID{}, nil)
	api.On("AddAppID", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, name string, bundleID string, team *model.Team, session *model.Session) *model.AppID {
			return &model.AppID{Identifier: "ID-" + bundleID, Name: name, BundleIdentifier: bundleID, Features: map[string]any{}}
		}, nil)
	api.On("UpdateAppID", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, appID *model.AppID, team *model.Team, session *model.Session) *model.AppID {
			return appID
		}, nil)
}

type notification struct {
	Title   string
	Message string
	Alert   bool
}

type recordingNotifier struct {
	mu       sync.Mutex
	events   []notification
	alertErr error
}

func (n *recordingNotifier) Notify(title string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{Title: title, Message: message})
}

func (n *recordingNotifier) Alert(ctx context.Context, title string, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{Title: title, Message: message, Alert: true})
	return n.alertErr
}

func (n *recordingNotifier) alerts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var titles []string
	for _, e := range n.events {
		if e.Alert {
			titles = append(titles, e.Title)
		}
	}
	return titles
}

type memoryCache struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{blobs: map[string][]byte{}}
}

func (c *memoryCache) Load(teamID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[teamID]
	if !ok {
		return nil, os.ErrNotExist
	}
	return b, nil
}

func (c *memoryCache) Store(teamID string, blob []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[teamID] = blob
	return nil
}

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

// newTestCertificate returns a self signed certificate with its private key.
func newTestCertificate(t *testing.T, serial int64) *model.Certificate {
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "iPhone Developer: test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &testKey.PublicKey, testKey)
	require.NoError(t, err)
	return &model.Certificate{
		Identifier:   "CERT",
		Name:         "iPhone Developer: test",
		SerialNumber: model.FormatSerialNumber(big.NewInt(serial)),
		Data:         der,
		PrivateKey:   testKey,
	}
}

// writeBundle creates a minimal bundle with an Info.plist.
func writeBundle(t *testing.T, path string, bundleID string, name string) {
	require.NoError(t, os.MkdirAll(path, 0755))
	data, err := plist.Marshal(map[string]any{"CFBundleIdentifier": bundleID, "CFBundleName": name}, plist.XMLFormat)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "Info.plist"), data, 0644))
}
