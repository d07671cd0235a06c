package anisette

import (
	"context"
	"time"
)

const ClientTimeFormat = "2006-01-02T15:04:05Z"

// VerificationHandler blocks until the user supplies a two factor code, ok is false when the user gave up.
type VerificationHandler func(ctx context.Context) (code string, ok bool)

// Data is the machine provisioning header set apple requires on every GSA and developer services request.
type Data struct {
	XAppleIMD         string    `json:"X-Apple-I-MD"`
	XAppleIMDM        string    `json:"X-Apple-I-MD-M"`
	XAppleIMDRINFO    string    `json:"X-Apple-I-MD-RINFO"` //新版mac是84215040,老xcode是17106176
	XAppleIMDLU       string    `json:"X-Apple-I-MD-LU"`
	XAppleISRLNO      string    `json:"X-Apple-I-SRL-NO"`
	XMmeClientInfo    string    `json:"X-Mme-Client-Info"`
	XAppleIClientTime time.Time `json:"X-Apple-I-Client-Time"`
	XAppleITimeZone   string    `json:"X-Apple-I-TimeZone"`
	XAppleLocale      string    `json:"X-Apple-Locale"`
	XMmeDeviceId      string    `json:"X-Mme-Device-Id"`
}

func (data *Data) Valid() bool {
	return data != nil && data.XAppleIMDM != "" && data.XAppleIMD != ""
}

func (data *Data) AddHeaders(headers map[string]string) map[string]string {
	headers["X-Apple-I-MD"] = data.XAppleIMD
	headers["X-Apple-I-MD-LU"] = data.XAppleIMDLU
	headers["X-Apple-I-MD-M"] = data.XAppleIMDM
	headers["X-Apple-I-MD-RINFO"] = data.XAppleIMDRINFO
	headers["X-Apple-I-TimeZone"] = data.XAppleITimeZone
	headers["X-Apple-Locale"] = data.XAppleLocale
	headers["X-Mme-Client-Info"] = data.XMmeClientInfo
	headers["X-Mme-Device-Id"] = data.XMmeDeviceId
	headers["X-Apple-I-Client-Time"] = time.Now().UTC().Format(ClientTimeFormat)
	if data.XAppleISRLNO != "" {
		headers["X-Apple-I-SRL-NO"] = data.XAppleISRLNO
	}
	return headers
}
