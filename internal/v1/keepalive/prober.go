// Package keepalive implements the self-ping that keeps a free-tier host
// from idling the process out between real traffic.
package keepalive

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zkroom/relay/internal/v1/logging"
)

// Prober periodically requests its own /ping endpoint. It is a no-op
// unless a public URL is configured — most deployments behind a fixed
// address don't need it.
type Prober struct {
	url      string
	interval time.Duration
	client   *http.Client
}

func New(publicURL string, interval time.Duration) *Prober {
	return &Prober{
		url:      publicURL + "/ping",
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Run blocks, pinging on interval until ctx is cancelled. Callers should
// start it in its own goroutine. Constructed without a public URL, Run
// returns immediately.
func (p *Prober) Run(ctx context.Context) {
	if p.url == "/ping" {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ping(ctx)
		}
	}
}

func (p *Prober) ping(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.url, nil)
	if err != nil {
		logging.Error(ctx, "keep-alive prober failed to build request", zap.Error(err))
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logging.Warn(ctx, "keep-alive prober request failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Warn(ctx, "keep-alive prober got non-200 response", zap.Int("status", resp.StatusCode))
	}
}
