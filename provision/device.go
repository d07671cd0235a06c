package provision

import (
	"context"

	"github.com/appuploader/altserver/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RegisterDevice returns the team's device with the same udid, registering it first when missing.
func (p *Provisioner) RegisterDevice(ctx context.Context, device *model.Device, team *model.Team) (*model.Device, error) {
	log.WithField("udid", device.Identifier).Info("Registering device...")
	devices, err := p.api.FetchDevices(ctx, team, device.Type, p.session)
	if err != nil {
		return nil, errors.Wrap(err, "fetch devices")
	}
	for _, d := range devices {
		if d.Identifier == device.Identifier {
			return d, nil
		}
	}
	registered, err := p.api.RegisterDevice(ctx, device.Name, device.Identifier, device.Type, team, p.session)
	if err != nil {
		return nil, errors.Wrapf(err, "register device %s", device.Identifier)
	}
	return registered, nil
}
