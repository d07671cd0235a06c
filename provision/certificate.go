package provision

import (
	"context"
	"os"
	"strings"

	"github.com/appuploader/altserver/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const CertificateMachineName = "AltStore"

const (
	multipleServersTitle   = "Installing AltStore with Multiple AltServers Not Supported"
	multipleServersMessage = "Please use the same AltServer you previously used with this Apple ID, or else apps installed with other AltServers will stop working.\n\nAre you sure you want to continue?"
)

// FetchCertificate returns a development certificate of team that carries its private key.
func (p *Provisioner) FetchCertificate(ctx context.Context, team *model.Team) (*model.Certificate, error) {
	logger := log.WithField("team", team.Identifier)
	logger.Info("Fetching certificate...")
	certificates, err := p.api.FetchCertificates(ctx, team, p.session)
	if err != nil {
		return nil, errors.Wrap(err, "fetch certificates")
	}

	var owned *model.Certificate
	for _, c := range certificates {
		if strings.HasPrefix(c.MachineName, CertificateMachineName) {
			owned = c
			break
		}
	}

	if owned != nil {
		if cert := p.cachedCertificate(team, owned); cert != nil {
			logger.WithField("serial", cert.SerialNumber).Info("Using cached certificate")
			return cert, nil
		}
		if err := p.notifier.Alert(ctx, multipleServersTitle, multipleServersMessage); err != nil {
			return nil, err
		}
	}

	if len(certificates) > 0 {
		revoke := owned
		if revoke == nil {
			revoke = certificates[0]
		}
		logger.WithField("serial", revoke.SerialNumber).Info("Revoking certificate...")
		if err := p.api.RevokeCertificate(ctx, revoke, team, p.session); err != nil {
			return nil, errors.Wrapf(err, "revoke certificate %s", revoke.SerialNumber)
		}
		return p.FetchCertificate(ctx, team)
	}

	logger.Info("Creating certificate...")
	created, err := p.api.AddCertificate(ctx, CertificateMachineName, team, p.session)
	if err != nil {
		return nil, errors.Wrap(err, "add certificate")
	}
	if created.PrivateKey == nil {
		return nil, model.NewError(model.MissingPrivateKey)
	}

	certificates, err = p.api.FetchCertificates(ctx, team, p.session)
	if err != nil {
		return nil, errors.Wrap(err, "fetch certificates")
	}
	var certificate *model.Certificate
	for _, c := range certificates {
		if model.SameSerial(c.SerialNumber, created.SerialNumber) {
			copied := *c
			certificate = &copied
			break
		}
	}
	if certificate == nil {
		return nil, model.NewError(model.MissingCertificate)
	}
	certificate.PrivateKey = created.PrivateKey
	if len(certificate.Data) == 0 {
		certificate.Data = created.Data
	}
	p.storeCertificate(team, certificate)
	return certificate, nil
}

// cachedCertificate decrypts the team's cached blob with the machine identifier apple reports for remote.
func (p *Provisioner) cachedCertificate(team *model.Team, remote *model.Certificate) *model.Certificate {
	if p.cache == nil || remote.MachineIdentifier == "" {
		return nil
	}
	logger := log.WithFields(log.Fields{"team": team.Identifier, "serial": remote.SerialNumber})
	data, err := p.cache.Load(team.Identifier)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("read cached certificate: ", err)
		}
		return nil
	}
	cached, err := model.CertificateFromP12(data, remote.MachineIdentifier)
	if err != nil {
		logger.Warn("decrypt cached certificate: ", err)
		return nil
	}
	if remote.SerialNumber != "" && !model.SameSerial(cached.SerialNumber, remote.SerialNumber) {
		logger.Warnf("cached certificate %s does not match", cached.SerialNumber)
		return nil
	}
	cached.Identifier = remote.Identifier
	cached.SerialNumber = remote.SerialNumber
	cached.MachineName = remote.MachineName
	cached.MachineIdentifier = remote.MachineIdentifier
	if remote.Name != "" {
		cached.Name = remote.Name
	}
	return cached
}

func (p *Provisioner) storeCertificate(team *model.Team, certificate *model.Certificate) {
	if p.cache == nil {
		return
	}
	logger := log.WithFields(log.Fields{"team": team.Identifier, "serial": certificate.SerialNumber})
	blob, err := certificate.EncryptedP12()
	if err != nil {
		logger.Warn("encrypt certificate: ", err)
		return
	}
	if err := p.cache.Store(team.Identifier, blob); err != nil {
		logger.Warn("cache certificate: ", err)
	}
}
