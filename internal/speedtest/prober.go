package speedtest

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	stgo "github.com/showwin/speedtest-go/speedtest"
	"go.uber.org/zap"
)

// ProbeResult carries the four metrics of one successful measurement.
type ProbeResult struct {
	DownloadMbps float64
	UploadMbps   float64
	PingMs       float64
	Server       string
}

// Prober performs one network measurement. Implementations may block for
// tens of seconds; callers own any timeout policy via ctx.
type Prober interface {
	Probe(ctx context.Context) (*ProbeResult, error)
}

// SpeedtestProber measures bandwidth against the nearest speedtest.net
// server using showwin/speedtest-go.
type SpeedtestProber struct {
	client *stgo.Speedtest
}

func NewSpeedtestProber() *SpeedtestProber {
	return &SpeedtestProber{client: stgo.New()}
}

func (p *SpeedtestProber) Probe(ctx context.Context) (*ProbeResult, error) {
	serverList, err := p.client.FetchServerListContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch server list")
	}
	targets, err := serverList.FindServer(nil)
	if err != nil {
		return nil, errors.Wrap(err, "find best server")
	}
	if len(targets) == 0 {
		return nil, errors.New("no speedtest server available")
	}

	srv := targets[0]
	zap.L().Info("using speedtest server",
		zap.String("host", srv.Host),
		zap.String("sponsor", srv.Sponsor),
		zap.String("country", srv.Country))

	if err := srv.PingTestContext(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "ping test")
	}
	zap.S().Info("testing download speed...")
	if err := srv.DownloadTestContext(ctx); err != nil {
		return nil, errors.Wrap(err, "download test")
	}
	zap.S().Info("testing upload speed...")
	if err := srv.UploadTestContext(ctx); err != nil {
		return nil, errors.Wrap(err, "upload test")
	}

	return &ProbeResult{
		DownloadMbps: srv.DLSpeed,
		UploadMbps:   srv.ULSpeed,
		PingMs:       float64(srv.Latency.Microseconds()) / 1000.0,
		Server:       fmt.Sprintf("%s (%s)", srv.Host, srv.Sponsor),
	}, nil
}
