package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gole24/pkg/e24"
)

// readTimeout bounds commands that wait for samples.
const readTimeout = 10 * time.Second

// session holds the device a shell operates on and the setup it was
// initialized with.
type session struct {
	d     *e24.Driver
	setup e24.DeviceConfig
	w     io.Writer
}

func (s *session) params() error {
	p, err := s.d.ReadParameters()
	if err != nil {
		return err
	}
	fmt.Fprintln(s.w, p.String())
	return nil
}

func (s *session) selfTest() error {
	if err := s.d.SelfTest(s.setup); err != nil {
		return err
	}
	fmt.Fprintln(s.w, "self test passed")
	return s.d.Activate()
}

func (s *session) initialize() error {
	if err := s.d.Initialize(s.setup); err != nil {
		return err
	}
	st := s.d.State()
	fmt.Fprintf(s.w, "channels %v, %d-byte frames\n", st.Active, st.FrameWidth)
	return nil
}

func (s *session) read(ctx context.Context, n int) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	got := 0
	for smp, err := range s.d.Samples(ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintln(s.w, e24.FormatSample(smp))
		if got++; got >= n {
			return nil
		}
	}
	return fmt.Errorf("read %d of %d samples: %w", got, n, ctx.Err())
}

func (s *session) raw(n int) error {
	for range n {
		frame, err := s.d.ReadFrame()
		if err != nil {
			return err
		}
		if len(frame) == 0 {
			fmt.Fprintln(s.w, "(timeout)")
			continue
		}
		fmt.Fprintln(s.w, e24.FormatFrame(frame))
	}
	return nil
}

func (s *session) byteMode(arg string) error {
	width, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid width %q: %w", arg, err)
	}
	return s.d.SetByteMode(width)
}

func (s *session) speed(arg string) error {
	baud, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid speed %q: %w", arg, err)
	}
	return s.d.SetTransportSpeed(baud)
}

// channels parses arguments like "1=on 3=off".
func (s *session) channels(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.w, "active: %v\n", s.d.State().Active)
		return nil
	}
	want := map[e24.Channel]bool{}
	for _, a := range args {
		chs, state, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("%w: expected CHANNEL=on|off, got %q", e24.ErrInvalidParameter, a)
		}
		ch, err := strconv.Atoi(chs)
		if err != nil {
			return fmt.Errorf("%w: channel %q", e24.ErrInvalidParameter, chs)
		}
		switch strings.ToLower(state) {
		case "on", "1", "true":
			want[e24.Channel(ch)] = true
		case "off", "0", "false":
			want[e24.Channel(ch)] = false
		default:
			return fmt.Errorf("%w: state %q", e24.ErrInvalidParameter, state)
		}
	}
	if err := s.d.SetActiveChannels(want); err != nil {
		return err
	}
	fmt.Fprintf(s.w, "active: %v\n", s.d.State().Active)
	return nil
}

func (s *session) eepromRead(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("ADDRESS required")
	}
	addr, err := parseByte(args[0])
	if err != nil {
		return err
	}
	n := 1
	if len(args) > 1 {
		if n, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid COUNT: %w", err)
		}
	}
	b, err := s.d.ReadEEPROM(addr, n)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.w, "%02x: % x\n", addr, b)
	return nil
}

func (s *session) eepromWrite(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("ADDRESS and VALUE required")
	}
	addr, err := parseByte(args[0])
	if err != nil {
		return err
	}
	v, err := parseByte(args[1])
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	return s.d.WriteEEPROM(ctx, addr, v)
}

// parseByte accepts decimal, 0x hex and 0 octal notation.
func parseByte(arg string) (byte, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a byte", e24.ErrInvalidParameter, arg)
	}
	return byte(v), nil
}
