// Package invalidate tells downstream caches that published content behind a
// key is stale. The call is best-effort and idempotent: consumers re-fetch,
// so telling them twice is the same as telling them once.
package invalidate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const secretHeader = "X-Courseloc-Secret"

type Propagator struct {
	url    string
	secret string
	client *resty.Client
	log    *logrus.Logger
}

// New creates a Propagator posting to url. An empty url disables propagation.
func New(url, secret string, timeout time.Duration, log *logrus.Logger) *Propagator {
	return &Propagator{
		url:    url,
		secret: secret,
		client: resty.New().SetTimeout(timeout),
		log:    log,
	}
}

// Invalidate implements core.Invalidator.
func (p *Propagator) Invalidate(ctx context.Context, key string) error {

	if p.url == "" {
		p.log.Debug("cache notifier is not configured, skipping invalidation")
		return nil
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader(secretHeader, p.secret).
		SetBody(map[string]string{"key": key}).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("cache invalidation for %s: %w", key, err)
	}
	if resp.IsError() {
		return fmt.Errorf("cache invalidation for %s: %s", key, resp.Status())
	}

	p.log.WithField("key", key).Debug("cache invalidated")
	return nil
}
