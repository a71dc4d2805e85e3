package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/itohio/gole24/pkg/config"
	"github.com/itohio/gole24/pkg/e24"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use simulated device instead of serial port")
		evalFlag   = flag.String("e", "", "Run a single command and exit")
	)
	flag.Parse()
	defer glog.Flush()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		glog.Exitf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	setup, err := cfg.DeviceSetup()
	if err != nil {
		glog.Exitf("Invalid device configuration: %v", err)
	}

	var d *e24.Driver
	if *mockFlag {
		m := e24.NewMock(nil)
		m.Realtime = true
		d = e24.New(m, cfg.Device.OutputInMV)
		d.SetSettleDelay(0)
	} else if d, err = e24.Open(cfg.DriverOptions()); err != nil {
		glog.Exitf("Failed to open device: %v", err)
	}
	defer d.Close()

	shell := newShell(&session{d: d, setup: setup, w: os.Stdout})
	if *evalFlag != "" {
		if err := shell.Process(strings.Fields(*evalFlag)...); err != nil {
			glog.Errorf("%v", err)
		}
		return
	}

	shell.Println(fmt.Sprintf("E24 shell %s on %s", e24.Version, cfg.Serial.Port))
	shell.Run()
}

func newShell(s *session) *ishell.Shell {
	shell := ishell.New()
	shell.Set(sessionKey, s)
	shell.SetPrompt("e24> ")
	for _, cmd := range commands {
		shell.AddCmd(cmd)
	}
	return shell
}
