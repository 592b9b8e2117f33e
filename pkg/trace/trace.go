// Package trace records the odometry path and renders it to an image.
package trace

import (
	"image"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/motionctl/pkg/odom"
)

// Trace keeps the most recent poses, oldest first.
type Trace struct {
	limit int

	lock  sync.Mutex
	poses []odom.Pose
}

// New keeps at most limit poses; zero means no limit.
func New(limit int) *Trace {
	return &Trace{limit: limit}
}

var _ odom.Recorder = (*Trace)(nil)

func (t *Trace) Record(p odom.Pose) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.poses = append(t.poses, p)
	if t.limit > 0 && len(t.poses) > t.limit {
		t.poses = append(t.poses[:0], t.poses[len(t.poses)-t.limit:]...)
	}
}

func (t *Trace) Poses() []odom.Pose {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]odom.Pose(nil), t.poses...)
}

func (t *Trace) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.poses)
}

// Bounds is the smallest rectangle holding every pose and the extra points.
func (t *Trace) Bounds(extra ...r2.Point) r2.Rect {
	rect := r2.EmptyRect()
	for _, p := range t.Poses() {
		rect = rect.AddPoint(p.Position)
	}
	for _, p := range extra {
		rect = rect.AddPoint(p)
	}
	return rect
}

const margin = 20

// Render draws the path in a size x size image, with +Y up.  Targets are
// drawn as circles and the final heading as a short tick.
func (t *Trace) Render(size int, targets ...r2.Point) image.Image {
	dc := gg.NewContext(size, size)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	poses := t.Poses()
	bounds := t.Bounds(append(targets, r2.Point{})...)
	span := math.Max(bounds.Size().X, bounds.Size().Y)
	if span == 0 {
		span = 1
	}
	scale := float64(size-2*margin) / span
	toImage := func(p r2.Point) (float64, float64) {
		return margin + (p.X-bounds.Lo().X)*scale, float64(size) - margin - (p.Y-bounds.Lo().Y)*scale
	}

	// Origin.
	dc.SetRGB(0.7, 0.7, 0.7)
	ox, oy := toImage(r2.Point{})
	dc.DrawLine(ox-5, oy, ox+5, oy)
	dc.DrawLine(ox, oy-5, ox, oy+5)
	dc.Stroke()

	dc.SetRGB(1, 0, 0)
	for _, p := range targets {
		x, y := toImage(p)
		dc.DrawCircle(x, y, 4)
		dc.Stroke()
	}

	if len(poses) == 0 {
		return dc.Image()
	}
	dc.SetRGB(0, 0, 0.8)
	dc.SetLineWidth(2)
	for i, p := range poses {
		x, y := toImage(p.Position)
		if i == 0 {
			dc.MoveTo(x, y)
		} else {
			dc.LineTo(x, y)
		}
	}
	dc.Stroke()

	last := poses[len(poses)-1]
	x, y := toImage(last.Position)
	sin, cos := math.Sincos(last.Heading)
	dc.SetRGB(0, 0.6, 0)
	dc.DrawLine(x, y, x+12*sin, y-12*cos)
	dc.Stroke()
	return dc.Image()
}

func (t *Trace) SavePNG(path string, size int, targets ...r2.Point) error {
	return errors.Wrapf(gg.SavePNG(path, t.Render(size, targets...)), "saving trace to %q", path)
}
