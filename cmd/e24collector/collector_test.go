package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/gole24/pkg/config"
	"github.com/itohio/gole24/pkg/e24"
)

type countingOutput struct {
	samples []e24.Sample
	limit   int
	cancel  context.CancelFunc
	err     error
}

func (o *countingOutput) Publish(s e24.Sample) error {
	o.samples = append(o.samples, s)
	if len(o.samples) >= o.limit {
		o.cancel()
	}
	return o.err
}

func (o *countingOutput) Close() error { return nil }

func newMockDriver(signal e24.Signal) (*e24.Driver, *e24.Mock) {
	m := e24.NewMock(signal)
	d := e24.New(m, false)
	d.SetSettleDelay(0)
	return d, m
}

func TestSetup(t *testing.T) {
	cfg := config.Default()
	cfg.Device.Channels = []config.ChannelConfig{
		{Channel: 1, Frequency: 10, Gain: 2, Calibration: 1, InputType: "line_b"},
		{Channel: 4, Frequency: 100, Gain: 1},
	}
	d, m := newMockDriver(nil)

	require.NoError(t, setup(d, cfg))
	assert.Equal(t, e24.MaskOf(1, 4), d.State().Active)
	assert.Equal(t, e24.TimerFrameWidth, d.State().FrameWidth)

	running, active := m.Running()
	assert.True(t, running)
	assert.Equal(t, e24.MaskOf(1, 4), active)
}

func TestSetup_SelfTestReactivates(t *testing.T) {
	cfg := config.Default()
	cfg.Device.SelfTest = true
	d, m := newMockDriver(nil)

	require.NoError(t, setup(d, cfg))
	running, _ := m.Running()
	assert.True(t, running)
}

func TestSetup_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Device.Channels[0].Gain = 3
	d, m := newMockDriver(nil)

	assert.ErrorIs(t, setup(d, cfg), e24.ErrInvalidParameter)
	assert.Empty(t, m.Frames())
}

func TestCollect(t *testing.T) {
	cfg := config.Default()
	cfg.Device.Channels = []config.ChannelConfig{
		{Channel: 2, Frequency: 50, Gain: 1},
		{Channel: 3, Frequency: 50, Gain: 1},
	}
	d, _ := newMockDriver(e24.ConstantSignal(1000))
	require.NoError(t, setup(d, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &countingOutput{limit: 6, cancel: cancel}

	require.NoError(t, collect(ctx, d, 0, out))
	require.Len(t, out.samples, 6)
	for i, s := range out.samples {
		assert.Equal(t, e24.Channel(2+i%2), s.Channel, "sample %d", i)
		assert.Equal(t, int32(1000), s.Raw)
		assert.True(t, s.HasTimer)
	}
}

func TestCollect_Averaging(t *testing.T) {
	cfg := config.Default()
	d, _ := newMockDriver(e24.ConstantSignal(-250))
	require.NoError(t, setup(d, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &countingOutput{limit: 3, cancel: cancel}

	require.NoError(t, collect(ctx, d, 4, out))
	require.GreaterOrEqual(t, len(out.samples), 3)
	for _, s := range out.samples {
		assert.Equal(t, e24.Channel(3), s.Channel)
		assert.Equal(t, int32(-250), s.Raw)
	}
}

func TestCollect_PublishErrorsDoNotStop(t *testing.T) {
	d, _ := newMockDriver(nil)
	require.NoError(t, setup(d, config.Default()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &countingOutput{limit: 3, cancel: cancel, err: errors.New("sink down")}

	require.NoError(t, collect(ctx, d, 0, out))
	assert.Len(t, out.samples, 3)
}

func TestCollect_TransportError(t *testing.T) {
	d, m := newMockDriver(nil)
	require.NoError(t, setup(d, config.Default()))

	errLine := errors.New("line dropped")
	m.FailReads(errLine)
	out := &countingOutput{limit: 100, cancel: func() {}}

	err := collect(context.Background(), d, 0, out)
	assert.ErrorIs(t, err, errLine)
	assert.Empty(t, out.samples)
}

func TestOpenOutputs(t *testing.T) {
	cfg := config.Default()
	cfg.Outputs.Rotate.Enabled = true
	cfg.Outputs.Rotate.Dir = t.TempDir()

	outs, err := openOutputs(cfg)
	require.NoError(t, err)
	assert.Len(t, outs, 2)
	assert.NoError(t, outs.Close())

	cfg.Outputs.Console = false
	cfg.Outputs.Rotate.Enabled = false
	outs, err = openOutputs(cfg)
	require.NoError(t, err)
	assert.Empty(t, outs)
}
