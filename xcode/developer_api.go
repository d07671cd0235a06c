package xcode

import (
	"context"
	"net/http"
	"strings"

	"github.com/appuploader/altserver/model"
	"github.com/appuploader/altserver/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const freeMembershipProductID = "fp22"

func platformAction(deviceType model.DeviceType, action string) string {
	return deviceType.Platform() + "/" + action + ".action"
}

func teamParams(team *model.Team, deviceType model.DeviceType) map[string]any {
	params := map[string]any{"teamId": team.Identifier}
	if deviceType == model.DeviceTypeAppleTV {
		params["DTDK_Platform"] = "tvos"
		params["subPlatform"] = "tvOS"
	}
	return params
}

func (client *Client) FetchTeams(ctx context.Context, account *model.Account, session *model.Session) ([]*model.Team, error) {
	teams, e := ParsePlistQH65B2[[]XCodeTeam](client.postXcode(ctx, "listTeams.action", session, nil), http.StatusOK, "teams")
	if e != nil {
		return nil, remoteError(ctx, e)
	}
	var result []*model.Team
	if teams != nil {
		for _, t := range *teams {
			result = append(result, &model.Team{Identifier: t.TeamId, Name: t.Name, Type: teamType(t)})
		}
	}
	return result, nil
}

// teamType 个人账号只有fp22会员或者会员名包含free时是免费账号
func teamType(team XCodeTeam) model.TeamType {
	switch team.Type {
	case "Company/Organization":
		return model.TeamTypeOrganization
	case "Individual":
		if team.XcodeFreeOnly {
			return model.TeamTypeFree
		}
		if len(team.Memberships) == 0 {
			return model.TeamTypeIndividual
		}
		free := true
		for _, m := range team.Memberships {
			if m.MembershipProductId != freeMembershipProductID && !strings.Contains(strings.ToLower(m.Name), "free") {
				free = false
				break
			}
		}
		if free {
			return model.TeamTypeFree
		}
		return model.TeamTypeIndividual
	}
	return model.TeamTypeUnknown
}

func (client *Client) FetchDevices(ctx context.Context, team *model.Team, deviceType model.DeviceType, session *model.Session) ([]*model.Device, error) {
	devices, e := ParsePlistQH65B2[[]XcodeDevice](client.postXcode(ctx, platformAction(deviceType, "listDevices"), session, teamParams(team, deviceType)), http.StatusOK, "devices")
	if e != nil {
		return nil, remoteError(ctx, e)
	}
	var result []*model.Device
	if devices != nil {
		for _, d := range *devices {
			result = append(result, toDevice(d, deviceType))
		}
	}
	return result, nil
}

func toDevice(d XcodeDevice, fallback model.DeviceType) *model.Device {
	deviceType := fallback
	if d.DeviceClass != "" {
		deviceType = model.ParseDeviceType(d.DeviceClass)
	}
	return &model.Device{Identifier: d.DeviceNumber, Name: d.Name, Type: deviceType}
}

func (client *Client) RegisterDevice(ctx context.Context, name string, identifier string, deviceType model.DeviceType, team *model.Team, session *model.Session) (*model.Device, error) {
	params := teamParams(team, deviceType)
	params["deviceNumber"] = identifier
	params["name"] = name
	device, err := parseRequired[XcodeDevice](ctx, client.postXcode(ctx, platformAction(deviceType, "addDevice"), session, params), "device")
	if err != nil {
		return nil, err
	}
	return toDevice(*device, deviceType), nil
}

func (client *Client) FetchCertificates(ctx context.Context, team *model.Team, session *model.Session) ([]*model.Certificate, error) {
	certs, e := ParsePlistQH65B2[[]XcodeCertificate](client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "listAllDevelopmentCerts"), session, teamParams(team, model.DeviceTypeIPhone)), http.StatusOK, "certificates")
	if e != nil {
		return nil, remoteError(ctx, e)
	}
	var result []*model.Certificate
	if certs != nil {
		for _, c := range *certs {
			result = append(result, toCertificate(c))
		}
	}
	return result, nil
}

func toCertificate(c XcodeCertificate) *model.Certificate {
	serial := c.SerialNumber
	if serial == "" {
		serial = c.SerialNum
	}
	cert := &model.Certificate{
		Identifier:        c.CertificateId,
		Name:              c.Name,
		SerialNumber:      serial,
		MachineName:       c.MachineName,
		MachineIdentifier: c.MachineId,
		Data:              c.CertContent,
	}
	if cert.Identifier == "" {
		cert.Identifier = c.CertRequestId
	}
	if serial == "" && len(c.CertContent) > 0 {
		if x, err := util.ParseCertificate(c.CertContent); err == nil {
			cert.SerialNumber = model.FormatSerialNumber(x.SerialNumber)
		}
	}
	return cert
}

/*
*
生成rsa私钥和csr提交，返回的证书带着私钥，私钥只在内存里
*/
func (client *Client) AddCertificate(ctx context.Context, machineName string, team *model.Team, session *model.Session) (*model.Certificate, error) {
	key, csr, err := util.CreateCertRequest("", "CertificateRequest")
	if err != nil {
		return nil, err
	}
	params := teamParams(team, model.DeviceTypeIPhone)
	params["csrContent"] = string(csr)
	params["machineId"] = strings.ToUpper(uuid.New().String())
	params["machineName"] = machineName
	request, err := parseRequired[XcodeCertificate](ctx, client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "submitDevelopmentCSR"), session, params), "certRequest")
	if err != nil {
		return nil, err
	}
	cert := toCertificate(*request)
	if cert.MachineName == "" {
		cert.MachineName = machineName
	}
	cert.PrivateKey = key
	log.WithFields(log.Fields{"team": team.Identifier, "serial": cert.SerialNumber}).Debug("development certificate requested")
	return cert, nil
}

func (client *Client) RevokeCertificate(ctx context.Context, certificate *model.Certificate, team *model.Team, session *model.Session) error {
	params := teamParams(team, model.DeviceTypeIPhone)
	params["serialNumber"] = certificate.SerialNumber
	_, e := ParsePlistQH65B2[any](client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "revokeDevelopmentCert"), session, params), http.StatusOK, "")
	return remoteError(ctx, e)
}

func (client *Client) FetchAppIDs(ctx context.Context, team *model.Team, session *model.Session) ([]*model.AppID, error) {
	appIDs, e := ParsePlistQH65B2[[]XcodeAppID](client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "listAppIds"), session, teamParams(team, model.DeviceTypeIPhone)), http.StatusOK, "appIds")
	if e != nil {
		return nil, remoteError(ctx, e)
	}
	var result []*model.AppID
	if appIDs != nil {
		for _, a := range *appIDs {
			result = append(result, toAppID(a))
		}
	}
	return result, nil
}

func toAppID(a XcodeAppID) *model.AppID {
	features := a.Features
	if features == nil {
		features = map[string]any{}
	}
	return &model.AppID{Identifier: a.AppIdId, Name: a.Name, BundleIdentifier: a.Identifier, Features: features}
}

func (client *Client) AddAppID(ctx context.Context, name string, bundleID string, team *model.Team, session *model.Session) (*model.AppID, error) {
	params := teamParams(team, model.DeviceTypeIPhone)
	params["identifier"] = bundleID
	params["name"] = sanitizeAppIDName(name)
	appID, err := parseRequired[XcodeAppID](ctx, client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "addAppId"), session, params), "appId")
	if err != nil {
		return nil, err
	}
	return toAppID(*appID), nil
}

// sanitizeAppIDName app id 名字只能是字母数字和空格
func sanitizeAppIDName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 128 && (r == ' ' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "App"
	}
	return b.String()
}

func (client *Client) UpdateAppID(ctx context.Context, appID *model.AppID, team *model.Team, session *model.Session) (*model.AppID, error) {
	params := teamParams(team, model.DeviceTypeIPhone)
	for k, v := range appID.Features {
		params[k] = v
	}
	params["appIdId"] = appID.Identifier
	updated, err := parseRequired[XcodeAppID](ctx, client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "updateAppId"), session, params), "appId")
	if err != nil {
		return nil, err
	}
	return toAppID(*updated), nil
}

func (client *Client) FetchAppGroups(ctx context.Context, team *model.Team, session *model.Session) ([]*model.AppGroup, error) {
	groups, e := ParsePlistQH65B2[[]XcodeAppGroup](client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "listApplicationGroups"), session, teamParams(team, model.DeviceTypeIPhone)), http.StatusOK, "applicationGroupList")
	if e != nil {
		return nil, remoteError(ctx, e)
	}
	var result []*model.AppGroup
	if groups != nil {
		for _, g := range *groups {
			result = append(result, toAppGroup(g))
		}
	}
	return result, nil
}

func toAppGroup(g XcodeAppGroup) *model.AppGroup {
	return &model.AppGroup{Identifier: g.ApplicationGroup, GroupIdentifier: g.Identifier, Name: g.Name}
}

func (client *Client) AddAppGroup(ctx context.Context, name string, groupIdentifier string, team *model.Team, session *model.Session) (*model.AppGroup, error) {
	params := teamParams(team, model.DeviceTypeIPhone)
	params["identifier"] = groupIdentifier
	params["name"] = name
	group, err := parseRequired[XcodeAppGroup](ctx, client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "addApplicationGroup"), session, params), "applicationGroup")
	if err != nil {
		return nil, err
	}
	return toAppGroup(*group), nil
}

func (client *Client) AssignAppIDToGroups(ctx context.Context, appID *model.AppID, groups []*model.AppGroup, team *model.Team, session *model.Session) error {
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.Identifier)
	}
	params := teamParams(team, model.DeviceTypeIPhone)
	params["appIdId"] = appID.Identifier
	params["applicationGroups"] = ids
	_, e := ParsePlistQH65B2[any](client.postXcode(ctx, platformAction(model.DeviceTypeIPhone, "assignApplicationGroupToAppId"), session, params), http.StatusOK, "")
	return remoteError(ctx, e)
}

func (client *Client) FetchProvisioningProfile(ctx context.Context, appID *model.AppID, deviceType model.DeviceType, team *model.Team, session *model.Session) (*model.ProvisioningProfile, error) {
	params := teamParams(team, deviceType)
	params["appIdId"] = appID.Identifier
	p, err := parseRequired[XcodeProvisioningProfile](ctx, client.postXcode(ctx, platformAction(deviceType, "downloadTeamProvisioningProfile"), session, params), "provisioningProfile")
	if err != nil {
		return nil, err
	}
	profile, err := model.ParseProvisioningProfile(p.EncodedProfile)
	if err != nil {
		return nil, err
	}
	profile.Identifier = p.ProvisioningProfileId
	if profile.Name == "" {
		profile.Name = p.Name
	}
	return profile, nil
}
