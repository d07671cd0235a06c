package util

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/crypto/ocsp"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func NewPKIXName(name string, email string, country string) pkix.Name {
	var (
		oidCountry    = []int{2, 5, 4, 6}
		oidCommonName = []int{2, 5, 4, 3}
		oidEmail      = []int{1, 2, 840, 113549, 1, 9, 1}
	)
	names := []pkix.AttributeTypeAndValue{
		{Type: oidCommonName, Value: name},
		{Type: oidCountry, Value: country},
	}
	if email != "" {
		names = append(names, pkix.AttributeTypeAndValue{Type: oidEmail, Value: email})
	}
	return pkix.Name{
		Country:    []string{country},
		CommonName: name,
		Names:      names,
	}
}

// NewCSR returns a pem encoded certificate request signed by keypair.
func NewCSR(keypair crypto.Signer, email string, name string) ([]byte, error) {
	var csrTemplate = x509.CertificateRequest{
		Subject:            NewPKIXName(name, email, "US"),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}
	csrCertificate, err := x509.CreateCertificateRequest(rand.Reader, &csrTemplate, keypair)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrCertificate}), nil
}

/*
*
生成2048位rsa私钥和对应的证书请求,私钥只保存在内存里,证书创建成功后和证书一起合并为p12
*/
func CreateCertRequest(email string, name string) (*rsa.PrivateKey, []byte, error) {
	keys, e := rsa.GenerateKey(rand.Reader, 2048)
	if e != nil {
		return nil, nil, e
	}
	csr, e := NewCSR(keys, email, name)
	if e != nil {
		return nil, nil, e
	}
	return keys, csr, nil
}

func EncodePrivateKey(keys *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(keys)})
}

func EncodeCertificate(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// ParseCertificate accepts DER or PEM encoded certificate content.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	return x509.ParseCertificate(data)
}

/*
*
把privatekey和证书的内容合并为p12
*/
func GenerateP12(priKey *rsa.PrivateKey, cert *x509.Certificate, password string) (pfxData []byte, err error) {
	return gopkcs12.Legacy.Encode(priKey, cert, nil, password)
}

func DecodeP12(p12 []byte, password string) (*rsa.PrivateKey, *x509.Certificate, error) {
	key, cert, e := gopkcs12.Decode(p12, password)
	if e != nil {
		return nil, nil, e
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, errors.New("p12 private key is not rsa")
	}
	return rsaKey, cert, nil
}

func OCSPStatusCheck(certt *x509.Certificate) (*ocsp.Response, error) {
	if len(certt.OCSPServer) == 0 {
		return nil, errors.New("certificate has no ocsp server")
	}
	ocspURL := certt.OCSPServer[0]
	issuerCertURL := ocspURL
	if certt.IssuingCertificateURL != nil {
		issuerCertURL = certt.IssuingCertificateURL[0]
	}

	issuer, err := getCertFromURL(issuerCertURL)
	if err != nil {
		return nil, fmt.Errorf("getting issuer certificate: %w", err)
	}

	buffer, err := ocsp.CreateRequest(certt, issuer, &ocsp.RequestOptions{
		Hash: crypto.SHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ocsp request body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, ocspURL, bytes.NewBuffer(buffer))
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}

	ocspUrl, err := url.Parse(ocspURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ocsp url: %w", err)
	}

	req.Header.Add("Content-Type", "application/ocsp-request")
	req.Header.Add("Accept", "application/ocsp-response")
	req.Header.Add("host", ocspUrl.Host)

	httpResponse, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making ocsp request: %w", err)
	}
	defer httpResponse.Body.Close()

	output, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	ocspResponse, err := ocsp.ParseResponse(output, issuer)
	if err != nil {
		return nil, fmt.Errorf("parsing ocsp response: %w", err)
	}
	return ocspResponse, nil
}

func getCertFromURL(url string) (*x509.Certificate, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("getting cert from %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return ParseCertificate(body)
}

func OCSPStatusName(status int) string {
	switch status {
	case ocsp.Revoked:
		return "Revoked"
	case ocsp.Good:
		return "Good"
	case ocsp.ServerFailed:
		return "ServerFailed"
	default:
		return "Unknown"
	}
}
