package anisette

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

var DefaultServers = []string{"https://ani.sidestore.io", "https://ani.altstore.io"}

// ServerProvider loads anisette data from remote anisette servers, trying each url until one answers.
type ServerProvider struct {
	URLs   []string
	client *resty.Client

	mu     sync.Mutex
	cached *Data
	renew  bool
}

func NewServerProvider(urls ...string) *ServerProvider {
	if len(urls) == 0 {
		urls = DefaultServers
	}
	return &ServerProvider{
		URLs:   urls,
		client: resty.New().SetTimeout(30 * time.Second).SetHeader("Accept", "application/json"),
	}
}

// FetchAnisetteData returns nil data without error when no server is configured.
func (p *ServerProvider) FetchAnisetteData(ctx context.Context) (*Data, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		return p.cached, nil
	}
	if len(p.URLs) == 0 {
		return nil, nil
	}
	var errs []error
	for _, u := range p.URLs {
		data, e := p.fetch(ctx, u)
		if e != nil {
			log.WithField("server", u).Warnf("load anisette data fail %v", e)
			errs = append(errs, e)
			continue
		}
		p.cached = data
		p.renew = false
		return data, nil
	}
	return nil, fmt.Errorf("load anisette data fail: %w", errors.Join(errs...))
}

func (p *ServerProvider) fetch(ctx context.Context, u string) (*Data, error) {
	request := p.client.R().SetContext(ctx).SetResult(&Data{})
	if p.renew {
		request.SetQueryParam("renew", "true")
	}
	response, e := request.Get(u)
	if e != nil {
		return nil, e
	}
	if response.IsError() {
		return nil, fmt.Errorf("status %d: %s", response.StatusCode(), response.String())
	}
	data, ok := response.Result().(*Data)
	if !ok || !data.Valid() {
		return nil, errors.New("anisette server returned incomplete data")
	}
	return data, nil
}

// ResetProvisioning drops the cached data so the next fetch asks the server for freshly provisioned data.
func (p *ServerProvider) ResetProvisioning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
	p.renew = true
}
