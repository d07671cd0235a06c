package provision

import (
	"context"
	"strings"

	"github.com/appuploader/altserver/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RegisterAppID finds the team's app id registered for bundleID or creates it.
func (p *Provisioner) RegisterAppID(ctx context.Context, name string, bundleID string, team *model.Team) (*model.AppID, error) {
	appIDs, err := p.api.FetchAppIDs(ctx, team, p.session)
	if err != nil {
		return nil, errors.Wrap(err, "fetch app ids")
	}
	for _, a := range appIDs {
		if a.BundleIdentifier == bundleID {
			return a, nil
		}
	}
	log.WithField("bundle", bundleID).Info("Registering app id...")
	appID, err := p.api.AddAppID(ctx, name, bundleID, team, p.session)
	if err != nil {
		return nil, errors.Wrapf(err, "add app id %s", bundleID)
	}
	return appID, nil
}

// UpdateCapabilities enables the app groups capability on top of the features already set.
func (p *Provisioner) UpdateCapabilities(ctx context.Context, appID *model.AppID, app *model.Application, team *model.Team) (*model.AppID, error) {
	updated := appID.WithFeatures(map[string]any{model.FeatureAppGroups: true})
	result, err := p.api.UpdateAppID(ctx, updated, team, p.session)
	if err != nil {
		return nil, errors.Wrapf(err, "update app id %s", appID.BundleIdentifier)
	}
	return result, nil
}

// AppGroupName is the display name used when creating the remote group for an entitlement group.
func AppGroupName(group string) string {
	return strings.ReplaceAll("AltStore "+group, ".", " ")
}

// ReconcileAppGroups makes sure every application group the app declares exists for the team and is assigned to appID.
func (p *Provisioner) ReconcileAppGroups(ctx context.Context, appID *model.AppID, app *model.Application, team *model.Team) (*model.AppID, error) {
	declared := app.AppGroups()
	if len(declared) == 0 {
		if enabled, present := appID.FeatureEnabled(model.FeatureAppGroups); present && !enabled {
			return appID, nil
		}
	}

	p.groupMu.Lock()
	defer p.groupMu.Unlock()

	existing, err := p.api.FetchAppGroups(ctx, team, p.session)
	if err != nil {
		return nil, errors.Wrap(err, "fetch app groups")
	}

	groups := make([]*model.AppGroup, len(declared))
	var g errgroup.Group
	for i, group := range declared {
		identifier := group + "." + team.Identifier
		var match *model.AppGroup
		for _, e := range existing {
			if e.GroupIdentifier == identifier {
				match = e
				break
			}
		}
		if match != nil {
			groups[i] = match
			continue
		}
		g.Go(func() error {
			log.WithField("group", identifier).Info("Registering app group...")
			created, err := p.api.AddAppGroup(ctx, AppGroupName(group), identifier, team, p.session)
			if err != nil {
				return errors.Wrapf(err, "add app group %s", identifier)
			}
			groups[i] = created
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := p.api.AssignAppIDToGroups(ctx, appID, groups, team, p.session); err != nil {
		return nil, errors.Wrapf(err, "assign app groups to %s", appID.BundleIdentifier)
	}
	return appID, nil
}
