package xcode

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"gitee.com/kxapp/kxapp-common/errorz"
	"gitee.com/kxapp/kxapp-common/httpz"
	"github.com/appuploader/altserver/anisette"
	"github.com/appuploader/altserver/gsa"
	"github.com/appuploader/altserver/model"
	"github.com/appuploader/altserver/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

const ErrorCodeInvalidAccount = -20751
const ErrorCodeInvalidPassword = -20101

const (
	ServiceURL = "https://developerservices2.apple.com/services/QH65B2/"
	ClientID   = "XABBG36SBA"
)

// Client is the developer services account api used by the provisioning pipeline.
type Client struct {
	ServiceURL string
	GSAURL     string
	AuthURL    string
	Tokens     *storage.TokenStore

	httpClient *http.Client
	mu         sync.Mutex
	sessionID  string
}

func NewClient(tokens *storage.TokenStore) *Client {
	return &Client{
		ServiceURL: ServiceURL,
		GSAURL:     gsa.GrandSlamURL,
		AuthURL:    gsa.TwoFactorURL,
		Tokens:     tokens,
		httpClient: httpz.NewHttpClient(nil),
	}
}

// NewClientWithHTTP replaces the transport, test servers use it.
func NewClientWithHTTP(tokens *storage.TokenStore, httpClient *http.Client) *Client {
	client := NewClient(tokens)
	client.httpClient = httpClient
	return client
}

/*
*
登录流程：先尝试缓存的xcode token，失效后走gsa srp登录，
409时请求设备验证码，校验后重新登录，最后换取xcode token
*/
func (client *Client) Authenticate(ctx context.Context, appleID string, password string, data *anisette.Data, verify anisette.VerificationHandler) (*model.Account, *model.Session, error) {
	if data == nil {
		return nil, nil, &model.Error{Kind: model.AttestationInvalid, Message: "invalid anisette data"}
	}
	if session := client.resumeSession(appleID, data); session != nil {
		account, e := client.viewDeveloper(ctx, appleID, session)
		if e == nil {
			log.Debugf("reuse xcode token of %s", appleID)
			return account, session, nil
		}
		log.Debugf("cached xcode token of %s is no longer valid: %v", appleID, e)
	}

	gsaClient := gsa.NewClient(client.httpClient, appleID, password, data)
	gsaClient.ServiceURL = client.GSAURL
	gsaClient.AuthURL = client.AuthURL
	spd, e := gsaClient.Login()
	if e != nil {
		return nil, nil, loginError(e)
	}
	if spd.StatusCode == gsa.Status_GSA_Response_SecondaryActionRequired {
		if verify == nil {
			return nil, nil, model.NewRemoteError(spd.StatusCode, "two factor authentication is required")
		}
		fa2 := gsaClient.Fa2Client(spd)
		if e := fa2.RequestDeviceCode(); e != nil {
			return nil, nil, toModelError(e)
		}
		code, ok := verify(ctx)
		if !ok {
			return nil, nil, model.NewError(model.Cancelled)
		}
		if e := fa2.VerifyDeviceCode(code); e != nil {
			return nil, nil, toModelError(e)
		}
		spd, e = gsaClient.Login()
		if e != nil {
			return nil, nil, loginError(e)
		}
		if spd.StatusCode == gsa.Status_GSA_Response_SecondaryActionRequired {
			return nil, nil, model.NewRemoteError(spd.StatusCode, "two factor authentication failed")
		}
	}
	token, e := gsaClient.FetchXcodeToken(spd)
	if e != nil {
		log.Error("get xcode token error ", e)
		return nil, nil, loginError(e)
	}
	session := &model.Session{DSID: spd.Adsid, AuthToken: token.Token, Anisette: data}
	if client.Tokens != nil {
		saveE := storage.Write(client.Tokens, appleID, storage.TokenTypeXcode, &XcodeToken{Email: appleID, XAppleGSToken: token.Token, Adsid: spd.Adsid})
		if saveE != nil {
			log.Warn("save token error ", saveE)
		}
	}
	account, err := client.viewDeveloper(ctx, appleID, session)
	if err != nil {
		return nil, nil, err
	}
	return account, session, nil
}

func (client *Client) resumeSession(appleID string, data *anisette.Data) *model.Session {
	if client.Tokens == nil {
		return nil
	}
	t, e := storage.Read[XcodeToken](client.Tokens, appleID, storage.TokenTypeXcode)
	if e != nil || t.XAppleGSToken == "" {
		return nil
	}
	return &model.Session{DSID: t.Adsid, AuthToken: t.XAppleGSToken, Anisette: data}
}

func (client *Client) viewDeveloper(ctx context.Context, appleID string, session *model.Session) (*model.Account, error) {
	developer, e := ParsePlistQH65B2[XcodeDeveloper](client.postXcode(ctx, "viewDeveloper.action", session, nil), http.StatusOK, "developer")
	if e != nil {
		return nil, remoteError(ctx, e)
	}
	account := &model.Account{AppleID: appleID, Identifier: session.DSID}
	if developer != nil {
		account.FirstName = developer.FirstName
		account.LastName = developer.LastName
		if developer.Email != "" {
			account.AppleID = developer.Email
		}
	}
	return account, nil
}

func loginError(e *errorz.StatusError) error {
	if gsa.IsAnisetteError(e) {
		return &model.Error{Kind: model.AttestationInvalid, Message: e.Body}
	}
	return toModelError(e)
}

func toModelError(e *errorz.StatusError) error {
	if e == nil {
		return nil
	}
	return model.NewRemoteError(e.Status, e.Body)
}

// remoteError reports a cancelled ctx as is, the status error only carries its text.
func remoteError(ctx context.Context, e *errorz.StatusError) error {
	if e == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return toModelError(e)
}

/*
*
xcode plist request QH65B2, params合并到协议参数里
*/
func (client *Client) postXcode(ctx context.Context, action string, session *model.Session, params map[string]any) *httpz.HttpResponse {
	if err := ctx.Err(); err != nil {
		return &httpz.HttpResponse{Error: err}
	}
	headers := client.requestHeaders(session.AuthToken, session.DSID, session.Anisette)
	urlStr := client.ServiceURL + action + "?clientId=" + ClientID
	protocolStruct := map[string]any{"clientId": ClientID, "protocolVersion": "QH65B2", "requestId": strings.ToUpper(uuid.New().String())}
	for k, v := range params {
		protocolStruct[k] = v
	}
	requestBody, e := plist.Marshal(protocolStruct, plist.XMLFormat)
	if e != nil {
		return &httpz.HttpResponse{Error: e}
	}
	log.Debugf("xcode request %s", action)
	response := httpz.NewHttpRequestBuilder(http.MethodPost, urlStr).AddHeaders(headers).AddBody(requestBody).Request(client.httpClient)
	if response.Header != nil {
		if sessionID := response.Header.Get("DSESSIONID"); sessionID != "" {
			client.mu.Lock()
			if sessionID != client.sessionID && client.sessionID != "" {
				log.Debugf("xcodeSessionID %s changed to %s", client.sessionID, sessionID)
			}
			client.sessionID = sessionID
			client.mu.Unlock()
		}
	}
	return response
}

func ParsePlistQH65B2[T any](response *httpz.HttpResponse, successStatus int, dataField string) (*T, *errorz.StatusError) {
	if response.HasError() {
		return nil, errorz.NewNetworkError(response.Error)
	}
	if len(response.Body) == 0 {
		if response.Status == successStatus {
			return nil, nil
		}
		return nil, &errorz.StatusError{Status: response.Status, Body: ""}
	}
	var resultMap map[string]any
	if _, e := plist.Unmarshal(response.Body, &resultMap); e != nil {
		if response.Status != successStatus {
			return nil, &errorz.StatusError{Status: response.Status, Body: string(response.Body)}
		}
		return nil, errorz.NewParseDataError(e)
	}
	if code := resultCode(resultMap["resultCode"]); code != 0 {
		ustring, ok := resultMap["userString"].(string)
		if !ok {
			ustring, ok = resultMap["resultString"].(string)
		}
		if !ok {
			ustring = string(response.Body)
		}
		if code == 1100 {
			return nil, errorz.NewUnauthorizedError(ustring)
		}
		return nil, &errorz.StatusError{Status: code, Body: ustring}
	}
	if dataField == "" {
		return nil, nil
	}
	obj, ok := resultMap[dataField]
	if !ok {
		return nil, &errorz.StatusError{Status: response.Status, Body: "missing " + dataField}
	}
	bt, e := plist.Marshal(obj, plist.XMLFormat)
	result := new(T)
	if e != nil {
		return nil, errorz.NewParseDataError(e)
	}
	if _, e2 := plist.Unmarshal(bt, result); e2 != nil {
		return nil, errorz.NewParseDataError(e2)
	}
	return result, nil
}

func parseRequired[T any](ctx context.Context, response *httpz.HttpResponse, dataField string) (*T, error) {
	result, e := ParsePlistQH65B2[T](response, http.StatusOK, dataField)
	if e != nil {
		return nil, remoteError(ctx, e)
	}
	if result == nil {
		return nil, model.NewRemoteError(response.Status, "missing "+dataField)
	}
	return result, nil
}

func resultCode(v any) int {
	switch c := v.(type) {
	case uint64:
		return int(c)
	case int64:
		return int(c)
	case int:
		return c
	}
	return 0
}
