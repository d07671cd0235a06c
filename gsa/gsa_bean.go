package gsa

import (
	"encoding/base64"
	"fmt"
)

const Status_GSA_Response_OK = 200                            //Request accepted
const Status_GSA_Response_SecondaryActionRequired = 409       //Secondary authentication (2FA) is required
const Status_GSA_Response_Anisette_Reprovision_Required = 433 //Anisette machine data has changed
const Status_GSA_Response_AnisetteResyncRequired = 434        //Anisette headers have expired

type RequestCPD struct {
	CID            string `plist:"AppleIDClientIdentifier"`
	ClientTime     string `plist:"X-Apple-I-Client-Time"`
	IMD            string `plist:"X-Apple-I-MD"`
	IMDM           string `plist:"X-Apple-I-MD-M"`
	RInfo          int    `plist:"X-Apple-I-MD-RINFO"`
	SerialNumber   string `plist:"X-Apple-I-SRL-NO,omitempty"`
	UDID           string `plist:"X-Mme-Device-Id"`
	ClientTimeZone string `plist:"X-Apple-I-TimeZone"`
	Loc            string `plist:"loc,omitempty"`
	BootStrap      bool   `plist:"bootstrap"`
	CKGen          bool   `plist:"ckgen,omitempty"`
	Icscrec        bool   `plist:"icscrec"`
	PBE            bool   `plist:"pbe"`
	PRKGEN         bool   `plist:"prkgen,omitempty"`
	SVCT           string `plist:"svct,omitempty"`
}

type InitRequest struct {
	A2K        []byte     `plist:"A2k"`
	Operation  string     `plist:"o"`
	ProtoStyle []string   `plist:"ps"`
	UserName   string     `plist:"u"`
	CPD        RequestCPD `plist:"cpd"`
}

type InitResponse struct {
	Status         Status `plist:"Status"`
	IterationCount int    `plist:"i"`
	Salt           []byte `plist:"s"`
	ServerProto    string `plist:"sp"`
	Cookie         string `plist:"c"`
	SRPB           []byte `plist:"B"`
}

// Status hsc是http兼容状态码, ec是gsa错误码, -20101表示密码错误
type Status struct {
	StatusCode        int    `plist:"hsc"`
	ErrorDescription  string `plist:"ed"`
	ErrorCode         int    `plist:"ec"`
	ErrorMessage      string `plist:"em"`
	AuthenticationURL string `plist:"au"`
}

type CompleteRequest struct {
	M1        []byte     `plist:"M1"`
	Cookie    string     `plist:"c"`
	Operation string     `plist:"o"`
	UserName  string     `plist:"u"`
	CPD       RequestCPD `plist:"cpd"`
}

type CompleteResponse struct {
	Status Status `plist:"Status"`
	SPD    []byte `plist:"spd"` //AES-CBC encrypted with the session key
	M2     []byte `plist:"M2"`
	NP     []byte `plist:"np"`
}

type Token struct {
	Duration int    `plist:"duration" json:"duration"`
	Expiry   int64  `plist:"expiry" json:"expiry"`
	Token    string `plist:"token" json:"token"`
}

// ServerProvidedData is the decrypted spd dictionary returned by a completed login.
type ServerProvidedData struct {
	DsPrsId      int               `plist:"DsPrsId" json:"DsPrsId"`
	GsIdmsToken  string            `plist:"GsIdmsToken" json:"GsIdmsToken"`
	Acname       string            `plist:"acname" json:"acname"`
	Adsid        string            `plist:"adsid" json:"adsid"`
	C            []byte            `plist:"c" json:"c"`
	Fn           string            `plist:"fn" json:"fn"`
	Ln           string            `plist:"ln" json:"ln"`
	PrimaryEmail string            `plist:"primaryEmail" json:"primaryEmail"`
	Sk           []byte            `plist:"sk" json:"sk"`
	StatusCode   int               `plist:"status-code" json:"statusCode"`
	TokenBundles map[string]*Token `plist:"t" json:"tokenBundles"`
	Url          string            `plist:"url" json:"url"`
}

// IdentityToken is the X-Apple-Identity-Token header used during two factor verification.
func (spd *ServerProvidedData) IdentityToken() string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", spd.Adsid, spd.GsIdmsToken)))
}

type AppTokensRequest struct {
	U         string     `plist:"u"`
	T         string     `plist:"t"`
	Checksum  []byte     `plist:"checksum"`
	C         []byte     `plist:"c"`
	App       []string   `plist:"app"`
	Operation string     `plist:"o"`
	CPD       RequestCPD `plist:"cpd"`
}

type AppTokensResponse struct {
	Status Status `plist:"Status"`
	ET     []byte `plist:"et"`
}

type decryptedAppTokens struct {
	StatusCode   int               `plist:"status-code"`
	TokenBundles map[string]*Token `plist:"t"`
}
