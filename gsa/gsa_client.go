package gsa

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"hash"
	"net/http"
	"strconv"
	"time"

	"gitee.com/kxapp/kxapp-common/errorz"
	"gitee.com/kxapp/kxapp-common/httpz"
	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/srp"
	"golang.org/x/crypto/pbkdf2"
	"howett.net/plist"
)

const AppBundleIDXcode = "com.apple.gs.xcode.auth"

// Client performs the GrandSlam SRP login of one apple id.
type Client struct {
	ServiceURL string
	AuthURL    string

	httpClient *http.Client
	anisette   *anisette.Data
	username   string
	password   string

	srpClient    *srp.Client
	exchangeHash hash.Hash
}

func NewClient(httpClient *http.Client, username, password string, data *anisette.Data) *Client {
	if httpClient == nil {
		httpClient = httpz.NewHttpClient(nil)
	}
	return &Client{
		ServiceURL: GrandSlamURL,
		AuthURL:    TwoFactorURL,
		httpClient: httpClient,
		anisette:   data,
		username:   username,
		password:   password,
	}
}

func (c *Client) cpd() RequestCPD {
	rinfo, _ := strconv.Atoi(c.anisette.XAppleIMDRINFO)
	return RequestCPD{
		CID:            c.anisette.XMmeDeviceId,
		ClientTime:     time.Now().UTC().Format(anisette.ClientTimeFormat),
		IMD:            c.anisette.XAppleIMD,
		IMDM:           c.anisette.XAppleIMDM,
		RInfo:          rinfo,
		SerialNumber:   c.anisette.XAppleISRLNO,
		UDID:           c.anisette.XMmeDeviceId,
		ClientTimeZone: c.anisette.XAppleITimeZone,
		Loc:            c.anisette.XAppleLocale,
		BootStrap:      true,
		CKGen:          true,
		Icscrec:        true,
		PRKGEN:         true,
		SVCT:           "iCloud",
	}
}

/*
*
开始登录，成功返回m2解密后的spd数据
spd.StatusCode 409表示需要2次校验，200表示成功
433/434 表示 anisette 数据失效
*/
func (c *Client) Login() (*ServerProvidedData, *errorz.StatusError) {
	c.srpClient = srp.NewClient(srp.Group2048, nil)
	c.exchangeHash = sha256.New()

	protocols := []string{"s2k", "s2k_fo"}
	for i, name := range protocols {
		c.updateNegString(name)
		if i != len(protocols)-1 {
			c.updateNegString(",")
		}
	}
	c.updateNegString("|")

	initResp, e := parseGsaPlistResponse[InitResponse](c.postGsaPlistRequest(InitRequest{
		A2K:        c.srpClient.PublicKey(),
		Operation:  "init",
		ProtoStyle: protocols,
		UserName:   c.username,
		CPD:        c.cpd(),
	}))
	if e != nil {
		return nil, e
	}
	if isAnisetteStatus(initResp.Status.StatusCode) {
		return nil, &errorz.StatusError{Status: initResp.Status.StatusCode, Body: initResp.Status.ErrorMessage}
	}

	key := srpPassword(initResp.ServerProto != "s2k", c.password, initResp.Salt, initResp.IterationCount)
	if err := c.srpClient.ProcessChallenge([]byte(c.username), key, initResp.Salt, initResp.SRPB); err != nil {
		return nil, errorz.NewInternalError(err.Error())
	}

	c.updateNegString("|")
	c.updateNegString(initResp.ServerProto)
	completeResp, e := parseGsaPlistResponse[CompleteResponse](c.postGsaPlistRequest(CompleteRequest{
		M1:        c.srpClient.M1,
		Cookie:    initResp.Cookie,
		Operation: "complete",
		UserName:  c.username,
		CPD:       c.cpd(),
	}))
	if e != nil {
		return nil, e
	}
	if isAnisetteStatus(completeResp.Status.StatusCode) {
		return nil, &errorz.StatusError{Status: completeResp.Status.StatusCode, Body: completeResp.Status.ErrorMessage}
	}
	if err := c.srpClient.VerifyM2(completeResp.M2); err != nil {
		return nil, errorz.NewInternalError("m2 check failed,internal error")
	}
	c.updateNegString("|")
	c.updateNegData(completeResp.SPD)
	c.updateNegString("|")

	plain, err := c.decryptSPD(completeResp.SPD)
	if err != nil {
		return nil, errorz.NewParseDataError(err)
	}
	var spd ServerProvidedData
	if _, e3 := plist.Unmarshal(plain, &spd); e3 != nil {
		return nil, errorz.NewParseDataError(e3)
	}
	if spd.StatusCode == 0 {
		spd.StatusCode = completeResp.Status.StatusCode
	}
	return &spd, nil
}

func isAnisetteStatus(status int) bool {
	return status == Status_GSA_Response_Anisette_Reprovision_Required || status == Status_GSA_Response_AnisetteResyncRequired
}

// IsAnisetteError reports whether a login failure means the anisette data was rejected.
func IsAnisetteError(e *errorz.StatusError) bool {
	return e != nil && isAnisetteStatus(e.Status)
}

// srpPassword s2k使用sha256摘要作为pbkdf2密码，s2k_fo使用摘要的hex字符串
func srpPassword(s2kfo bool, password string, salt []byte, iterations int) []byte {
	digest := sha256.Sum256([]byte(password))
	p := digest[:]
	if s2kfo {
		p = []byte(hex.EncodeToString(p))
	}
	return pbkdf2.Key(p, salt, iterations, sha256.Size, sha256.New)
}

func (c *Client) updateNegData(data []byte) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	c.exchangeHash.Write(buf.Bytes())
	c.exchangeHash.Write(data)
}

func (c *Client) updateNegString(s string) {
	c.exchangeHash.Write([]byte(s))
}

func (c *Client) sessionKey(name string) []byte {
	mac := hmac.New(sha256.New, c.srpClient.SessionKey())
	mac.Write([]byte(name))
	return mac.Sum(nil)
}

// decryptSPD spd使用aes-cbc加密, key/iv 由srp K做hmac得到
func (c *Client) decryptSPD(spd []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.sessionKey("extra data key:"))
	if err != nil {
		return nil, err
	}
	if len(spd) == 0 || len(spd)%block.BlockSize() != 0 {
		return nil, errors.New("spd is not a multiple of the block size")
	}
	iv := c.sessionKey("extra data iv:")[:block.BlockSize()]
	plain := make([]byte, len(spd))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, spd)
	return pkcs7Unpad(plain, block.BlockSize())
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	return data[:len(data)-n], nil
}

// FetchXcodeToken exchanges a fully verified spd for the xcode app token.
func (c *Client) FetchXcodeToken(spd *ServerProvidedData) (*Token, *errorz.StatusError) {
	if spd == nil {
		return nil, errorz.NewUnauthorizedError("no token found")
	}
	apps := []string{AppBundleIDXcode}
	response, e := parseGsaPlistResponse[AppTokensResponse](c.postGsaPlistRequest(AppTokensRequest{
		U:         spd.Adsid,
		App:       apps,
		C:         spd.C,
		T:         spd.GsIdmsToken,
		Operation: "apptokens",
		Checksum:  appTokensChecksum(spd.Sk, spd.Adsid, apps),
		CPD:       c.cpd(),
	}))
	if e != nil {
		return nil, e
	}
	plain, err := decryptGCM(spd.Sk, response.ET)
	if err != nil {
		return nil, errorz.NewParseDataError(err)
	}
	var tokens decryptedAppTokens
	if _, err := plist.Unmarshal(plain, &tokens); err != nil {
		return nil, errorz.NewParseDataError(err)
	}
	token := tokens.TokenBundles[AppBundleIDXcode]
	if token == nil {
		return nil, errorz.NewUnauthorizedError("xcode token missing")
	}
	return token, nil
}

func appTokensChecksum(sk []byte, adsid string, apps []string) []byte {
	mac := hmac.New(sha256.New, sk)
	mac.Write([]byte("apptokens"))
	mac.Write([]byte(adsid))
	for _, app := range apps {
		mac.Write([]byte(app))
	}
	return mac.Sum(nil)
}

// decryptGCM et = version(3) | iv(16) | ciphertext | tag(16), version is the additional data.
func decryptGCM(key []byte, et []byte) ([]byte, error) {
	if len(et) < 3+16+16 {
		return nil, errors.New("encrypted token too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, et[3:19], et[19:], et[:3])
}
