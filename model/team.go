package model

import "github.com/appuploader/altserver/anisette"

type TeamType int

const (
	TeamTypeUnknown TeamType = iota
	TeamTypeFree
	TeamTypeIndividual
	TeamTypeOrganization
)

func (t TeamType) String() string {
	switch t {
	case TeamTypeFree:
		return "Free"
	case TeamTypeIndividual:
		return "Individual"
	case TeamTypeOrganization:
		return "Organization"
	default:
		return "Unknown"
	}
}

type Team struct {
	Identifier string
	Name       string
	Type       TeamType
}

type Account struct {
	AppleID    string
	Identifier string
	FirstName  string
	LastName   string
}

func (a *Account) Name() string {
	if a.FirstName == "" && a.LastName == "" {
		return a.AppleID
	}
	return a.FirstName + " " + a.LastName
}

// Session is the authentication context handed to every remote call of one pipeline run.
type Session struct {
	DSID      string
	AuthToken string
	Anisette  *anisette.Data
}
