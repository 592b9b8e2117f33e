package main

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func TestUnknownCommand(t *testing.T) {
	err := mainWithArgs(context.Background(), []string{"hwcheck", "frobnicate"}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPicoNeedsBus(t *testing.T) {
	err := mainWithArgs(context.Background(), []string{"hwcheck", "pico", "--bus", "/nonexistent/i2c-9"}, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := every(ctx, time.Millisecond, func() error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 3)
}
