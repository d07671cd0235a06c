package gsa

import (
	"net/http"

	"gitee.com/kxapp/kxapp-common/errorz"
	"gitee.com/kxapp/kxapp-common/httpz"
	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

const GrandSlamURL = "https://gsa.apple.com/grandslam/GsService2"

/*
req必须是值类型，如果是指针类型，在plist编码的时候会失败
*/
func (c *Client) postGsaPlistRequest(req any) *httpz.HttpResponse {
	headers := map[string]string{
		"Content-Type":      httpz.ContentType_Plist,
		"Accept":            "*/*",
		"Accept-Language":   "en-us",
		"User-Agent":        httpz.UserAgent_AKD,
		"X-MMe-Client-Info": c.anisette.XMmeClientInfo,
	}
	request := map[string]any{
		"Header":  map[string]string{"Version": "1.0.1"},
		"Request": req,
	}
	body, e := plist.MarshalIndent(&request, plist.XMLFormat, "\t")
	if e != nil {
		log.Error("request param error", e)
		return &httpz.HttpResponse{Error: e}
	}
	return httpz.NewHttpRequestBuilder(http.MethodPost, c.ServiceURL).AddHeaders(headers).AddBody(body).Request(c.httpClient)
}

// parseGsaPlistResponse returns the gsa error code (ec) as StatusError.Status so callers see apple's negative codes.
func parseGsaPlistResponse[T any](res *httpz.HttpResponse) (*T, *errorz.StatusError) {
	if res.HasError() {
		return nil, errorz.NewNetworkError(res.Error)
	}
	var mp map[string]map[string]any
	_, e1 := plist.Unmarshal(res.Body, &mp)
	responseDic := mp["Response"]
	if e1 != nil {
		return nil, errorz.NewParseDataError(e1)
	}
	if responseDic == nil {
		return nil, &errorz.StatusError{Status: res.Status, Body: string(res.Body)}
	}
	responseBytes, e2 := plist.Marshal(responseDic, plist.XMLFormat)
	if e2 != nil {
		return nil, errorz.NewParseDataError(e2)
	}
	var status struct {
		Status Status `plist:"Status"`
	}
	if _, e3 := plist.Unmarshal(responseBytes, &status); e3 != nil {
		return nil, errorz.NewParseDataError(e3)
	}
	if status.Status.ErrorCode != 0 {
		return nil, &errorz.StatusError{Status: status.Status.ErrorCode, Body: status.Status.ErrorMessage}
	}
	target := new(T)
	if _, e4 := plist.Unmarshal(responseBytes, target); e4 != nil {
		return nil, errorz.NewParseDataError(e4)
	}
	return target, nil
}
