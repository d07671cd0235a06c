package model

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/appuploader/altserver/util"
)

type Certificate struct {
	Identifier        string
	Name              string
	SerialNumber      string
	MachineName       string
	MachineIdentifier string
	// Data is the DER encoded certificate.
	Data       []byte
	PrivateKey *rsa.PrivateKey
}

// P12 combines the certificate and its private key, protected by password.
func (c *Certificate) P12(password string) ([]byte, error) {
	if c.PrivateKey == nil {
		return nil, NewError(MissingPrivateKey)
	}
	cert, e := util.ParseCertificate(c.Data)
	if e != nil {
		return nil, fmt.Errorf("parse certificate %s: %w", c.SerialNumber, e)
	}
	return util.GenerateP12(c.PrivateKey, cert, password)
}

// PEM returns the pem encoded private key and certificate.
func (c *Certificate) PEM() (key []byte, cert []byte, err error) {
	if c.PrivateKey == nil {
		return nil, nil, NewError(MissingPrivateKey)
	}
	parsed, e := util.ParseCertificate(c.Data)
	if e != nil {
		return nil, nil, fmt.Errorf("parse certificate %s: %w", c.SerialNumber, e)
	}
	return util.EncodePrivateKey(c.PrivateKey), util.EncodeCertificate(parsed), nil
}

// EncryptedP12 is the p12 protected by the machine identifier apple reports for the certificate.
func (c *Certificate) EncryptedP12() ([]byte, error) {
	if c.MachineIdentifier == "" {
		return nil, errors.New("certificate has no machine identifier")
	}
	return c.P12(c.MachineIdentifier)
}

func CertificateFromP12(data []byte, password string) (*Certificate, error) {
	key, cert, e := util.DecodeP12(data, password)
	if e != nil {
		return nil, e
	}
	return &Certificate{
		Name:         cert.Subject.CommonName,
		SerialNumber: FormatSerialNumber(cert.SerialNumber),
		Data:         cert.Raw,
		PrivateKey:   key,
	}, nil
}

func FormatSerialNumber(serial *big.Int) string {
	return strings.ToUpper(serial.Text(16))
}

// SameSerial compares serial numbers ignoring case and leading zeros.
func SameSerial(a, b string) bool {
	return strings.TrimLeft(strings.ToUpper(a), "0") == strings.TrimLeft(strings.ToUpper(b), "0")
}
