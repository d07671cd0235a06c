package xcode

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/model"
	"github.com/appuploader/altserver/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

type recordedRequest struct {
	Action  string
	Params  map[string]any
	Headers http.Header
}

type fakeServices struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]map[string]any
}

func (f *fakeServices) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var params map[string]any
		_, err := plist.Unmarshal(body, &params)
		require.NoError(t, err)
		action := strings.TrimPrefix(r.URL.Path, "/")
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Action: action, Params: params, Headers: r.Header.Clone()})
		response, ok := f.responses[action]
		f.mu.Unlock()
		if !ok {
			response = map[string]any{"resultCode": 0}
		}
		out, _ := plist.Marshal(response, plist.XMLFormat)
		w.Header().Set("DSESSIONID", "session-1")
		w.Write(out)
	})
}

func newTestClient(t *testing.T, f *fakeServices) (*Client, *model.Session) {
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	client := NewClientWithHTTP(nil, server.Client())
	client.ServiceURL = server.URL + "/"
	session := &model.Session{DSID: "000123", AuthToken: "gs-token", Anisette: &anisette.Data{XAppleIMD: "md", XAppleIMDM: "mdm", XMmeDeviceId: "DEVICE"}}
	return client, session
}

func TestParsePlistQH65B2ResultCode(t *testing.T) {
	f := &fakeServices{responses: map[string]map[string]any{
		"ios/listDevices.action": {"resultCode": 35, "userString": "There are no devices."},
	}}
	client, session := newTestClient(t, f)
	_, err := client.FetchDevices(context.Background(), &model.Team{Identifier: "T1"}, model.DeviceTypeIPhone, session)
	require.Error(t, err)
	code, ok := model.RemoteCode(err)
	assert.True(t, ok)
	assert.Equal(t, 35, code)
	assert.Contains(t, err.Error(), "There are no devices.")
}

func TestPostXcodeHeadersAndSession(t *testing.T) {
	f := &fakeServices{responses: map[string]map[string]any{
		"listTeams.action": {"resultCode": 0, "teams": []any{
			map[string]any{"teamId": "T1", "name": "Free", "type": "Individual", "memberships": []any{map[string]any{"membershipProductId": "fp22", "name": "Xcode Free Provisioning Program"}}},
			map[string]any{"teamId": "T2", "name": "Paid", "type": "Individual", "memberships": []any{map[string]any{"membershipProductId": "ds1", "name": "Apple Developer Program"}}},
			map[string]any{"teamId": "T3", "name": "Org", "type": "Company/Organization"},
		}},
	}}
	client, session := newTestClient(t, f)
	teams, err := client.FetchTeams(context.Background(), &model.Account{}, session)
	require.NoError(t, err)
	require.Len(t, teams, 3)
	assert.Equal(t, model.TeamTypeFree, teams[0].Type)
	assert.Equal(t, model.TeamTypeIndividual, teams[1].Type)
	assert.Equal(t, model.TeamTypeOrganization, teams[2].Type)

	_, err = client.FetchTeams(context.Background(), &model.Account{}, session)
	require.NoError(t, err)

	first, second := f.requests[0], f.requests[1]
	assert.Equal(t, "gs-token", first.Headers.Get("X-Apple-GS-Token"))
	assert.Equal(t, "000123", first.Headers.Get("X-Apple-I-Identity-Id"))
	assert.Equal(t, "md", first.Headers.Get("X-Apple-I-MD"))
	assert.Empty(t, first.Headers.Get("DSESSIONID"))
	assert.Equal(t, "session-1", second.Headers.Get("DSESSIONID"))
	assert.Equal(t, "QH65B2", first.Params["protocolVersion"])
	assert.Equal(t, ClientID, first.Params["clientId"])
}

func TestRegisterDeviceAndAppGroups(t *testing.T) {
	f := &fakeServices{responses: map[string]map[string]any{
		"tvos/addDevice.action": {"resultCode": 0, "device": map[string]any{"deviceId": "D1", "name": "TV", "deviceNumber": "UDID-1", "deviceClass": "tvOS"}},
		"ios/addApplicationGroup.action": {"resultCode": 0, "applicationGroup": map[string]any{
			"applicationGroup": "G1", "identifier": "group.sync.T1", "name": "AltStore group sync",
		}},
	}}
	client, session := newTestClient(t, f)
	team := &model.Team{Identifier: "T1"}

	device, err := client.RegisterDevice(context.Background(), "TV", "UDID-1", model.DeviceTypeAppleTV, team, session)
	require.NoError(t, err)
	assert.Equal(t, "UDID-1", device.Identifier)
	assert.Equal(t, model.DeviceTypeAppleTV, device.Type)
	assert.Equal(t, "UDID-1", f.requests[0].Params["deviceNumber"])
	assert.Equal(t, "T1", f.requests[0].Params["teamId"])
	assert.Equal(t, "tvos", f.requests[0].Params["DTDK_Platform"])

	group, err := client.AddAppGroup(context.Background(), "AltStore group sync", "group.sync.T1", team, session)
	require.NoError(t, err)
	assert.Equal(t, "G1", group.Identifier)
	assert.Equal(t, "group.sync.T1", group.GroupIdentifier)

	require.NoError(t, client.AssignAppIDToGroups(context.Background(), &model.AppID{Identifier: "A1"}, []*model.AppGroup{group}, team, session))
	assign := f.requests[2]
	assert.Equal(t, "ios/assignApplicationGroupToAppId.action", assign.Action)
	assert.Equal(t, "A1", assign.Params["appIdId"])
	assert.Equal(t, []any{"G1"}, assign.Params["applicationGroups"])
}

func TestUpdateAppIDSendsFeatures(t *testing.T) {
	f := &fakeServices{responses: map[string]map[string]any{
		"ios/updateAppId.action": {"resultCode": 0, "appId": map[string]any{
			"appIdId": "A1", "identifier": "com.example.app.T1", "name": "Example", "features": map[string]any{model.FeatureAppGroups: true},
		}},
	}}
	client, session := newTestClient(t, f)
	appID := &model.AppID{Identifier: "A1", Features: map[string]any{model.FeatureAppGroups: true, "SKC3T5S89Y": false}}
	updated, err := client.UpdateAppID(context.Background(), appID, &model.Team{Identifier: "T1"}, session)
	require.NoError(t, err)
	enabled, present := updated.FeatureEnabled(model.FeatureAppGroups)
	assert.True(t, enabled)
	assert.True(t, present)
	assert.Equal(t, true, f.requests[0].Params[model.FeatureAppGroups])
	assert.Equal(t, false, f.requests[0].Params["SKC3T5S89Y"])
}

func TestCancelledContextIsNotRemoteError(t *testing.T) {
	f := &fakeServices{}
	client, session := newTestClient(t, f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchTeams(ctx, &model.Account{}, session)
	assert.True(t, errors.Is(err, context.Canceled))
	_, ok := model.RemoteCode(err)
	assert.False(t, ok)

	_, err = client.RegisterDevice(ctx, "iPhone", "UDID-1", model.DeviceTypeIPhone, &model.Team{Identifier: "T1"}, session)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, f.requests)
}

func TestMissingObjectIsRemoteError(t *testing.T) {
	f := &fakeServices{responses: map[string]map[string]any{
		"ios/addAppId.action": {"resultCode": 0},
	}}
	client, session := newTestClient(t, f)
	_, err := client.AddAppID(context.Background(), "Example!", "com.example", &model.Team{Identifier: "T1"}, session)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.Remote))
	assert.Equal(t, "Example", f.requests[0].Params["name"])
}

func TestAuthenticateRequiresAnisette(t *testing.T) {
	client := NewClient(nil)
	_, _, err := client.Authenticate(context.Background(), "user@example.com", "pwd", nil, nil)
	assert.True(t, model.IsKind(err, model.AttestationInvalid))
}

func TestAuthenticateResumesCachedToken(t *testing.T) {
	f := &fakeServices{responses: map[string]map[string]any{
		"viewDeveloper.action": {"resultCode": 0, "developer": map[string]any{"firstName": "Jane", "lastName": "Appleseed", "email": "user@example.com"}},
	}}
	client, _ := newTestClient(t, f)
	client.Tokens = storage.NewTokenStore(t.TempDir(), "")
	require.NoError(t, storage.Write(client.Tokens, "user@example.com", storage.TokenTypeXcode, &XcodeToken{Email: "user@example.com", XAppleGSToken: "cached", Adsid: "000999"}))

	account, session, err := client.Authenticate(context.Background(), "user@example.com", "pwd", &anisette.Data{XAppleIMD: "md", XAppleIMDM: "mdm"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Jane Appleseed", account.Name())
	assert.Equal(t, "000999", session.DSID)
	assert.Equal(t, "cached", session.AuthToken)
	require.Len(t, f.requests, 1)
	assert.Equal(t, "cached", f.requests[0].Headers.Get("X-Apple-GS-Token"))
}

func TestTeamType(t *testing.T) {
	tests := []struct {
		name string
		team XCodeTeam
		want model.TeamType
	}{
		{"organization", XCodeTeam{Type: "Company/Organization"}, model.TeamTypeOrganization},
		{"free flag", XCodeTeam{Type: "Individual", XcodeFreeOnly: true}, model.TeamTypeFree},
		{"free membership", XCodeTeam{Type: "Individual", Memberships: []XcodeMembership{{Name: "Free Developer"}}}, model.TeamTypeFree},
		{"paid", XCodeTeam{Type: "Individual", Memberships: []XcodeMembership{{MembershipProductId: "ds1", Name: "Apple Developer Program"}}}, model.TeamTypeIndividual},
		{"unknown", XCodeTeam{Type: "In-House"}, model.TeamTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, teamType(tt.team))
		})
	}
}
