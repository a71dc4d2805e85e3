package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/itohio/gole24/pkg/config"
	"github.com/itohio/gole24/pkg/e24"
	"github.com/itohio/gole24/pkg/output"
	"github.com/itohio/gole24/pkg/sample"
)

// setup programs the device from cfg and optionally verifies the result.
// The device is streaming when setup returns without error.
func setup(d *e24.Driver, cfg *config.Config) error {
	dc, err := cfg.DeviceSetup()
	if err != nil {
		return fmt.Errorf("device config: %w", err)
	}
	if err := d.Initialize(dc); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	glog.Infof("Device initialized: channels %v, %d-byte frames", dc.Mask(), d.State().FrameWidth)

	if !cfg.Device.SelfTest {
		return nil
	}
	if err := d.SelfTest(dc); err != nil {
		return err
	}
	glog.Info("Self test passed")
	return d.Activate()
}

// collect streams samples into out until ctx is done or the transport fails.
// Publishing failures are logged and do not stop collection.
func collect(ctx context.Context, d *e24.Driver, average int, out output.Output) error {
	conv := sample.NewAveragingConverter(average)
	var n int
	for s, err := range conv(d.Samples(ctx)) {
		if err != nil {
			return err
		}
		n++
		if err := out.Publish(s); err != nil {
			glog.Warningf("publish: %v", err)
		}
	}
	glog.Infof("Collected %d samples", n)
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
