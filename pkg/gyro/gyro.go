package gyro

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/tigerbot-team/motionctl/pkg/sensors"
)

type fifo interface {
	ReadFIFO() ([]int16, error)
	DegreesPerLSB() float64
}

// Gyro integrates FIFO rate samples into a heading, reported in tenths of a
// degree, clockwise positive.
type Gyro struct {
	dev    fifo
	invert bool
	logger golog.Logger

	lock    sync.Mutex
	heading float64
}

var _ sensors.Gyro = (*Gyro)(nil)

func New(dev fifo, invert bool, logger golog.Logger) *Gyro {
	return &Gyro{dev: dev, invert: invert, logger: logger}
}

func (g *Gyro) Value() float64 {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.heading * 10
}

// Poll drains the FIFO into the heading.
func (g *Gyro) Poll() error {
	samples, err := g.dev.ReadFIFO()
	if err != nil {
		return err
	}
	scale := g.dev.DegreesPerLSB() / SampleRate
	if g.invert {
		scale = -scale
	}
	g.lock.Lock()
	defer g.lock.Unlock()
	for _, s := range samples {
		g.heading += float64(s) * scale
	}
	return nil
}

// Loop polls every period until ctx is cancelled.
func (g *Gyro) Loop(ctx context.Context, clk clock.Clock, period time.Duration) {
	ticker := clk.Ticker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Poll(); err != nil {
				g.logger.Warnw("failed to read gyro", "error", err)
			}
		}
	}
}
