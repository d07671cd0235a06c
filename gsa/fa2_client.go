package gsa

import (
	"fmt"
	"net/http"

	"gitee.com/kxapp/kxapp-common/errorz"
	"gitee.com/kxapp/kxapp-common/httpz"
	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/util"
	jsoniter "github.com/json-iterator/go"
)

const TwoFactorURL = "https://gsa.apple.com/auth"

/*
*
xcode 二次校验的时候使用的头
*/
func xcodeStep2Header() map[string]string {
	return map[string]string{
		"Content-Type":      httpz.ContentType_JSON,
		"X-Requested-With":  "XMLHttpRequest",
		"Accept":            "application/json, text/javascript, */*; q=0.01",
		"Accept-Language":   "en-us",
		"User-Agent":        httpz.UserAgent_XCode,
		"X-MMe-Client-Info": "<iMac20,2> <Mac OS X;13.1;22C65> <com.apple.AuthKit/1 (com.apple.dt.Xcode/3594.4.19)>",
		"X-Apple-App-Info":  AppBundleIDXcode,
		"X-Xcode-Version":   "14.2 (14C18)",
	}
}

// Fa2Client talks to the trusted device endpoints after a login returned 409.
type Fa2Client struct {
	headers    map[string]string
	httpClient *http.Client
	serverURL  string
}

func NewFa2Client(httpClient *http.Client, serverURL string, spd *ServerProvidedData, data *anisette.Data) *Fa2Client {
	if serverURL == "" {
		serverURL = TwoFactorURL
	}
	headers := data.AddHeaders(xcodeStep2Header())
	headers["X-Apple-Identity-Token"] = spd.IdentityToken()
	return &Fa2Client{headers: headers, httpClient: httpClient, serverURL: serverURL}
}

// Fa2Client returns a client for the second factor of the last login.
func (c *Client) Fa2Client(spd *ServerProvidedData) *Fa2Client {
	return NewFa2Client(c.httpClient, c.AuthURL, spd, c.anisette)
}

// RequestDeviceCode pushes a verification code to the trusted devices of the account.
func (client *Fa2Client) RequestDeviceCode() *errorz.StatusError {
	urlStr := client.serverURL + "/verify/trusteddevice/securitycode"
	response := httpz.NewHttpRequestBuilder(http.MethodPut, urlStr).AddHeaders(client.headers).Request(client.httpClient)
	return checkFa2Response(response)
}

/*
校验设备码，423表示校验码发送太多，400表示错误errorMessage
*/
func (client *Fa2Client) VerifyDeviceCode(code string) *errorz.StatusError {
	param := fmt.Sprintf(`{"securityCode": {"code": "%s"}}`, code)
	urlStr := client.serverURL + "/verify/trusteddevice/securitycode"
	response := httpz.NewHttpRequestBuilder(http.MethodPost, urlStr).AddHeaders(client.headers).AddBody(param).Request(client.httpClient)
	return checkFa2Response(response)
}

func checkFa2Response(response *httpz.HttpResponse) *errorz.StatusError {
	if response.HasError() {
		return errorz.NewNetworkError(response.Error)
	}
	if response.Status == http.StatusUnauthorized {
		return errorz.NewUnauthorizedError(string(response.Body))
	}
	if response.Status >= 200 && response.Status < 300 {
		return nil
	}
	if len(response.Body) > 0 {
		errorDetail := jsoniter.Get(response.Body, "serviceErrors", 0, "message")
		if errorDetail.LastError() == nil {
			return &errorz.StatusError{Status: response.Status, Body: errorDetail.ToString()}
		}
		errorName := jsoniter.Get(response.Body, "serviceErrors", 0, "code")
		if errorName.LastError() == nil {
			return &errorz.StatusError{Status: response.Status, Body: errorName.ToString()}
		}
	}
	return &errorz.StatusError{Status: response.Status, Body: util.ReadErrorMessage(response.Body)}
}
