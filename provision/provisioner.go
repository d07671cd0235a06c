package provision

import (
	"sync"

	"github.com/appuploader/altserver/model"
)

// Provisioner resolves the remote resources of one pipeline run.
// It owns the app group lock, so a new one is created for every attempt.
type Provisioner struct {
	api      RemoteAPI
	session  *model.Session
	cache    CertificateCache
	notifier Notifier

	groupMu sync.Mutex
}

func NewProvisioner(api RemoteAPI, session *model.Session, cache CertificateCache, notifier Notifier) *Provisioner {
	return &Provisioner{api: api, session: session, cache: cache, notifier: notifier}
}
