package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/appuploader/altserver/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

/*
*
计算注册用的bundle id：parent是包含扩展的主app，主app的parent是它自己。
自托管的app用 com.<team>.<parent>，其他app用 <parent>.<team>，
只替换开头的parent部分
*/
func BundleIdentifier(app *model.Application, parent *model.Application, team *model.Team) (string, error) {
	if parent == nil {
		parent = app
	}
	parentID := parent.BundleIdentifier
	if parentID == "" {
		return "", fmt.Errorf("empty bundle identifier for %s", parent.Name)
	}
	if app.BundleIdentifier != parentID && !strings.HasPrefix(app.BundleIdentifier, parentID+".") {
		return "", fmt.Errorf("bundle identifier %s is not nested in %s", app.BundleIdentifier, parentID)
	}
	var updated string
	if app.IsSelfHosted {
		updated = "com." + team.Identifier + "." + parentID
	} else {
		updated = parentID + "." + team.Identifier
	}
	return updated + strings.TrimPrefix(app.BundleIdentifier, parentID), nil
}

func preferredName(app *model.Application, parent *model.Application) string {
	if parent == nil || parent == app {
		return app.Name
	}
	return parent.Name + " " + app.Name
}

// PrepareProvisioningProfile settles the app id, capabilities and groups of app before asking for its profile.
func (p *Provisioner) PrepareProvisioningProfile(ctx context.Context, app *model.Application, parent *model.Application, device *model.Device, team *model.Team) (*model.ProvisioningProfile, error) {
	bundleID, err := BundleIdentifier(app, parent, team)
	if err != nil {
		return nil, err
	}
	appID, err := p.RegisterAppID(ctx, preferredName(app, parent), bundleID, team)
	if err != nil {
		return nil, err
	}
	appID, err = p.UpdateCapabilities(ctx, appID, app, team)
	if err != nil {
		return nil, err
	}
	appID, err = p.ReconcileAppGroups(ctx, appID, app, team)
	if err != nil {
		return nil, err
	}
	log.WithField("bundle", bundleID).Info("Fetching provisioning profile...")
	profile, err := p.api.FetchProvisioningProfile(ctx, appID, device.Type, team, p.session)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch provisioning profile %s", bundleID)
	}
	return profile, nil
}

// PrepareAllProvisioningProfiles returns the profiles of app and its extensions keyed by their original bundle ids.
func (p *Provisioner) PrepareAllProvisioningProfiles(ctx context.Context, app *model.Application, device *model.Device, team *model.Team) (map[string]*model.ProvisioningProfile, error) {
	root, err := p.PrepareProvisioningProfile(ctx, app, nil, device, team)
	if err != nil {
		return nil, err
	}

	extensions := make([]*model.ProvisioningProfile, len(app.Extensions))
	var g errgroup.Group
	for i, ext := range app.Extensions {
		g.Go(func() error {
			profile, err := p.PrepareProvisioningProfile(ctx, ext, app, device, team)
			if err != nil {
				return err
			}
			extensions[i] = profile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profiles := make(map[string]*model.ProvisioningProfile, len(app.Extensions)+1)
	profiles[app.BundleIdentifier] = root
	for i, ext := range app.Extensions {
		profiles[ext.BundleIdentifier] = extensions[i]
	}
	return profiles, nil
}
