package joystick

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
)

func encode(t *testing.T, events ...rawEvent) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range events {
		test.That(t, binary.Write(&buf, binary.LittleEndian, e), test.ShouldBeNil)
	}
	return io.NopCloser(&buf)
}

func TestReadEvent(t *testing.T) {
	j := FromReader(encode(t,
		rawEvent{Time: 1000, Value: 1, Type: EventTypeButton | 0x80, Number: ButtonCross},
		rawEvent{Time: 1250, Value: -AxisMax, Type: EventTypeAxis, Number: AxisLStickY},
	), golog.NewTestLogger(t))

	first, err := j.ReadEvent()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Type, test.ShouldEqual, EventType(EventTypeButton))
	test.That(t, first.Number, test.ShouldEqual, uint8(ButtonCross))

	second, err := j.ReadEvent()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Type, test.ShouldEqual, EventType(EventTypeAxis))
	test.That(t, second.Percent(), test.ShouldAlmostEqual, -100.0)
	test.That(t, second.Time.Sub(first.Time).Milliseconds(), test.ShouldEqual, int64(250))
	test.That(t, second.String(), test.ShouldEqual, "axis(1)=-32767")
}

func TestLoopClosesOnEOF(t *testing.T) {
	j := FromReader(encode(t,
		rawEvent{Time: 1, Value: 1, Type: EventTypeButton, Number: ButtonOptions},
	), golog.NewTestLogger(t))

	events := make(chan *Event, 4)
	j.Loop(context.Background(), events)

	var got []*Event
	for e := range events {
		got = append(got, e)
	}
	test.That(t, got, test.ShouldHaveLength, 1)
	test.That(t, got[0].Number, test.ShouldEqual, uint8(ButtonOptions))
}
