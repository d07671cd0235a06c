package provision

import (
	"context"

	"github.com/appuploader/altserver/model"
	log "github.com/sirupsen/logrus"
)

// SelectTeam prefers the individual team, then the free team, then whatever comes first.
func SelectTeam(teams []*model.Team) (*model.Team, error) {
	if len(teams) == 0 {
		return nil, model.NewError(model.NoTeam)
	}
	for _, t := range teams {
		if t.Type == model.TeamTypeIndividual {
			return t, nil
		}
	}
	for _, t := range teams {
		if t.Type == model.TeamTypeFree {
			return t, nil
		}
	}
	return teams[0], nil
}

func (p *Provisioner) FetchTeam(ctx context.Context, account *model.Account) (*model.Team, error) {
	log.Info("Fetching team...")
	teams, err := p.api.FetchTeams(ctx, account, p.session)
	if err != nil {
		return nil, err
	}
	team, err := SelectTeam(teams)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"team": team.Identifier, "type": team.Type}).Info("Using team")
	return team, nil
}
