package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"
)

const sessionKey = "$session"

func sessionFrom(c *ishell.Context) *session {
	return c.Get(sessionKey).(*session)
}

// run executes fn and reports its error on the shell.
func run(fn func(s *session, c *ishell.Context) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if err := fn(sessionFrom(c), c); err != nil {
			c.Err(err)
		}
	}
}

// countArg returns the first argument as a positive count, or def.
func countArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid COUNT %q", args[0])
	}
	return n, nil
}

var commands = []*ishell.Cmd{
	{
		Name: "params",
		Help: "read back stored channel parameters (stops conversion)",
		Func: run(func(s *session, c *ishell.Context) error { return s.params() }),
	},
	{
		Name: "selftest",
		Help: "compare stored parameters with the configured setup",
		Func: run(func(s *session, c *ishell.Context) error { return s.selfTest() }),
	},
	{
		Name:    "init",
		Aliases: []string{"initialize"},
		Help:    "program the configured setup and start conversion",
		Func:    run(func(s *session, c *ishell.Context) error { return s.initialize() }),
	},
	{
		Name: "read",
		Help: "[COUNT] print decoded samples",
		Func: run(func(s *session, c *ishell.Context) error {
			n, err := countArg(c.Args, 10)
			if err != nil {
				return err
			}
			return s.read(context.Background(), n)
		}),
	},
	{
		Name: "raw",
		Help: "[COUNT] print sample frames bit by bit",
		Func: run(func(s *session, c *ishell.Context) error {
			n, err := countArg(c.Args, 1)
			if err != nil {
				return err
			}
			return s.raw(n)
		}),
	},
	{
		Name: "stop",
		Help: "stop conversion",
		Func: run(func(s *session, c *ishell.Context) error { return s.d.Stop() }),
	},
	{
		Name: "start",
		Help: "start conversion on the active channels",
		Func: run(func(s *session, c *ishell.Context) error { return s.d.Activate() }),
	},
	{
		Name: "channels",
		Help: "[CHANNEL=on|off ...] show or change active channels",
		Func: run(func(s *session, c *ishell.Context) error { return s.channels(c.Args) }),
	},
	{
		Name: "timer",
		Help: "reset the hardware timer",
		Func: run(func(s *session, c *ishell.Context) error { return s.d.ResetTimer() }),
	},
	{
		Name: "mode",
		Help: "4|5 sample frame width",
		Func: run(func(s *session, c *ishell.Context) error {
			if len(c.Args) < 1 {
				return fmt.Errorf("WIDTH required")
			}
			return s.byteMode(c.Args[0])
		}),
	},
	{
		Name: "speed",
		Help: "BAUD switch device and port speed",
		Func: run(func(s *session, c *ishell.Context) error {
			if len(c.Args) < 1 {
				return fmt.Errorf("BAUD required")
			}
			return s.speed(c.Args[0])
		}),
	},
	{
		Name:    "eeprom.read",
		Aliases: []string{"er"},
		Help:    "ADDRESS [COUNT] read EEPROM bytes",
		Func:    run(func(s *session, c *ishell.Context) error { return s.eepromRead(c.Args) }),
	},
	{
		Name:    "eeprom.write",
		Aliases: []string{"ew"},
		Help:    "ADDRESS VALUE write one EEPROM byte",
		Func: run(func(s *session, c *ishell.Context) error {
			return s.eepromWrite(context.Background(), c.Args)
		}),
	},
}
