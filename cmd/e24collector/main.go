package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"

	"github.com/itohio/gole24/pkg/config"
	"github.com/itohio/gole24/pkg/e24"
	"github.com/itohio/gole24/pkg/output"
	"github.com/itohio/gole24/pkg/output/console"
	"github.com/itohio/gole24/pkg/output/mqtt"
	"github.com/itohio/gole24/pkg/output/rotate"
)

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use simulated device instead of serial port")
		selfTestFlag       = flag.Bool("selftest", false, "Verify device parameters after setup (overrides config)")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average per channel (0 = disabled, overrides config)")
		versionFlag        = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()
	defer glog.Flush()

	if *versionFlag {
		fmt.Println(e24.Version)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *selfTestFlag {
		cfg.Device.SelfTest = true
	}
	if *averageSamplesFlag >= 0 {
		cfg.AverageSamples = *averageSamplesFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mockFlag); err != nil {
		glog.Errorf("e24collector: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, useMock bool) error {
	glog.Infof("e24collector %s", e24.Version)

	d, err := openDevice(cfg, useMock)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			glog.Warningf("closing device: %v", err)
		}
	}()

	out, err := openOutputs(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			glog.Warningf("closing outputs: %v", err)
		}
	}()

	if err := setup(d, cfg); err != nil {
		return err
	}
	return collect(ctx, d, cfg.AverageSamples, out)
}

func openDevice(cfg *config.Config, useMock bool) (*e24.Driver, error) {
	if useMock {
		glog.Info("Using simulated device")
		m := e24.NewMock(nil)
		m.Realtime = true
		d := e24.New(m, cfg.Device.OutputInMV)
		d.SetSettleDelay(0)
		return d, nil
	}
	glog.Infof("Opening %s at %d baud", cfg.Serial.Port, cfg.Serial.BaudRate)
	return e24.Open(cfg.DriverOptions())
}

func openOutputs(cfg *config.Config) (output.Multi, error) {
	var outs output.Multi
	if cfg.Outputs.Console {
		outs = append(outs, console.New(os.Stdout))
	}
	if cfg.Outputs.Rotate.Enabled {
		outs = append(outs, rotate.New(cfg.Outputs.Rotate.Dir))
	}
	if cfg.Outputs.MQTT.Enabled {
		m, err := mqtt.New(cfg.Outputs.MQTT)
		if err != nil {
			outs.Close()
			return nil, err
		}
		outs = append(outs, m)
	}
	if len(outs) == 0 {
		glog.Warning("No outputs enabled")
	}
	return outs, nil
}
