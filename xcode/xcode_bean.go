package xcode

import "time"

type XcodeToken struct {
	Email string `json:"email"`
	//gsa 业务逻辑请求中需要用到的头X-Apple-GS-Token
	XAppleGSToken string `json:"X-Apple-GS-Token"`
	//gsa请求中需要用到的头X-Apple-I-Identity-Id
	Adsid string `json:"Adsid"`
}

type XcodeDeveloper struct {
	DeveloperStatus string `plist:"developerStatus"`
	Email           string `plist:"email"`
	FirstName       string `plist:"firstName"`
	LastName        string `plist:"lastName"`
	PersonId        uint64 `plist:"personId"`
}

type XcodeMembership struct {
	MembershipId        string `plist:"membershipId"`
	MembershipProductId string `plist:"membershipProductId"`
	Name                string `plist:"name"`
	Platform            string `plist:"platform"`
	Status              string `plist:"status"`
}

type XCodeTeam struct {
	DateCreated   time.Time         `plist:"dateCreated"`
	Memberships   []XcodeMembership `plist:"memberships"`
	Name          string            `plist:"name"`
	Status        string            `plist:"status"`
	TeamId        string            `plist:"teamId"`
	Type          string            `plist:"type"`
	XcodeFreeOnly bool              `plist:"xcodeFreeOnly"`
}

type XcodeDevice struct {
	DeviceId       string `plist:"deviceId"`
	Name           string `plist:"name"`
	DeviceNumber   string `plist:"deviceNumber"`
	DeviceClass    string `plist:"deviceClass"`
	DevicePlatform string `plist:"devicePlatform"`
	Status         string `plist:"status"`
}

type XcodeCertificate struct {
	CertificateId       string    `plist:"certificateId"`
	CertRequestId       string    `plist:"certRequestId"`
	Name                string    `plist:"name"`
	SerialNumber        string    `plist:"serialNumber"`
	SerialNum           string    `plist:"serialNum"`
	MachineName         string    `plist:"machineName"`
	MachineId           string    `plist:"machineId"`
	CertContent         []byte    `plist:"certContent"`
	StatusString        string    `plist:"statusString"`
	ExpirationDate      time.Time `plist:"expirationDate"`
	CertificatePlatform string    `plist:"certificatePlatform"`
}

type XcodeAppID struct {
	AppIdId        string         `plist:"appIdId"`
	Name           string         `plist:"name"`
	Identifier     string         `plist:"identifier"`
	Prefix         string         `plist:"prefix"`
	Features       map[string]any `plist:"features"`
	ExpirationDate time.Time      `plist:"expirationDate"`
}

type XcodeAppGroup struct {
	ApplicationGroup string `plist:"applicationGroup"`
	Name             string `plist:"name"`
	Identifier       string `plist:"identifier"`
	Status           string `plist:"status"`
}

type XcodeProvisioningProfile struct {
	ProvisioningProfileId string `plist:"provisioningProfileId"`
	Name                  string `plist:"name"`
	UUID                  string `plist:"UUID"`
	EncodedProfile        []byte `plist:"encodedProfile"`
}
