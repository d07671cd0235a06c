package xcode

import "github.com/appuploader/altserver/anisette"

/*
*
请求xcode服务器，如viewdeveloper使用的头
*/
func xcodeServiceHeader(gstoken string, adsid string) map[string]string {
	headers := make(map[string]string)
	headers["Accept"] = "text/x-xml-plist"
	headers["Content-Type"] = "text/x-xml-plist"
	headers["User-Agent"] = "Xcode"
	headers["Accept-Language"] = "en-us"
	headers["X-Apple-App-Info"] = "com.apple.gs.xcode.auth"
	headers["X-Xcode-Version"] = "11.2 (11B41)"
	headers["X-Apple-GS-Token"] = gstoken
	headers["X-Apple-I-Identity-Id"] = adsid
	return headers
}

func (client *Client) requestHeaders(gstoken string, adsid string, data *anisette.Data) map[string]string {
	headers := xcodeServiceHeader(gstoken, adsid)
	if data != nil {
		data.AddHeaders(headers)
	}
	client.mu.Lock()
	if client.sessionID != "" {
		headers["DSESSIONID"] = client.sessionID
	}
	client.mu.Unlock()
	return headers
}
