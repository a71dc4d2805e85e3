package e24

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the device's factory line speed.
	DefaultBaudRate = 19200
	// DefaultTimeout bounds every read from the device.
	DefaultTimeout = time.Second
	// SettleDelay is the quiet period the device needs after every command.
	SettleDelay = 100 * time.Millisecond
	// EEPROMPollInterval is the pause between polls for an EEPROM write ack.
	EEPROMPollInterval = 500 * time.Millisecond
)

// Options configures Open.
type Options struct {
	Port       string
	BaudRate   int           // DefaultBaudRate when 0
	Timeout    time.Duration // DefaultTimeout when 0
	Millivolts bool          // scale values to mV instead of raw counts
}

// ChannelConfig is the desired setup of one channel.
type ChannelConfig struct {
	Channel     Channel
	Frequency   int // Hz, quantized by the device
	Gain        Gain
	Calibration uint8
	Input       InputType
}

// Validate checks every field against the device's accepted values.
func (c ChannelConfig) Validate() error {
	if err := c.Channel.validate(); err != nil {
		return err
	}
	if _, err := FrequencyDivisor(c.Frequency); err != nil {
		return fmt.Errorf("channel %d: %w", c.Channel, err)
	}
	if _, err := c.Gain.Code(); err != nil {
		return fmt.Errorf("channel %d: %w", c.Channel, err)
	}
	if err := validateCalibration(c.Calibration); err != nil {
		return fmt.Errorf("channel %d: %w", c.Channel, err)
	}
	if err := c.Input.validate(); err != nil {
		return fmt.Errorf("channel %d: %w", c.Channel, err)
	}
	return nil
}

// DeviceConfig is the complete setup applied by Initialize.
type DeviceConfig struct {
	Channels  []ChannelConfig
	TimerMode bool // 5-byte frames with the hardware timer
}

// Validate checks every channel and that no channel appears twice.
func (c DeviceConfig) Validate() error {
	var seen ChannelMask
	for _, ch := range c.Channels {
		if err := ch.Validate(); err != nil {
			return err
		}
		if seen.Has(ch.Channel) {
			return fmt.Errorf("%w: channel %d configured twice", ErrInvalidParameter, ch.Channel)
		}
		seen = seen.Enable(ch.Channel)
	}
	return nil
}

// Mask returns the set of configured channels.
func (c DeviceConfig) Mask() ChannelMask {
	var m ChannelMask
	for _, ch := range c.Channels {
		m = m.Enable(ch.Channel)
	}
	return m
}

// sorted returns the channels in ascending channel order.
func (c DeviceConfig) sorted() []ChannelConfig {
	out := slices.Clone(c.Channels)
	slices.SortFunc(out, func(a, b ChannelConfig) int { return int(a.Channel - b.Channel) })
	return out
}

// DeviceState is the driver's view of the device.
type DeviceState struct {
	Active      ChannelMask
	FrameWidth  int
	Coefficient float64
}

// Driver talks to one E24 over a Transport. It is not safe for concurrent
// use; callers must serialize access.
type Driver struct {
	port  Transport
	state DeviceState
	gains [NumChannels]Gain

	settle time.Duration
	sleep  func(time.Duration)
	now    func() time.Time
}

// New wraps an already open transport.
func New(port Transport, millivolts bool) *Driver {
	coef := CountsCoefficient
	if millivolts {
		coef = MillivoltCoefficient
	}
	return &Driver{
		port: port,
		state: DeviceState{
			FrameWidth:  FrameWidth,
			Coefficient: coef,
		},
		gains:  [NumChannels]Gain{1, 1, 1, 1},
		settle: SettleDelay,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// Open opens the serial port 8N1 with the given speed and read timeout.
func Open(opts Options) (*Driver, error) {
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	port, err := serial.Open(opts.Port, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &TransportError{Op: "open " + opts.Port, Err: err}
	}

	setup := []struct {
		op string
		fn func() error
	}{
		{"set read timeout", func() error { return port.SetReadTimeout(opts.Timeout) }},
		// The device expects DTR low and RTS high.
		{"set DTR", func() error { return port.SetDTR(false) }},
		{"set RTS", func() error { return port.SetRTS(true) }},
	}
	for _, s := range setup {
		if err := s.fn(); err != nil {
			port.Close()
			return nil, &TransportError{Op: s.op, Err: err}
		}
	}

	glog.Infof("opened %s at %d baud", opts.Port, opts.BaudRate)
	return New(port, opts.Millivolts), nil
}

// SetSettleDelay changes the pause after every command frame. Simulated
// devices need none.
func (d *Driver) SetSettleDelay(delay time.Duration) {
	d.settle = delay
}

// State returns a copy of the driver's view of the device.
func (d *Driver) State() DeviceState {
	return d.state
}

// Decoder returns a snapshot of the state used to decode sample frames.
func (d *Driver) Decoder() Decoder {
	return Decoder{
		Width:       d.state.FrameWidth,
		Coefficient: d.state.Coefficient,
		Gains:       d.gains,
	}
}

// send writes a frame, discards pending input and waits for the device to
// settle.
func (d *Driver) send(f Frame) error {
	return d.write(f, true)
}

func (d *Driver) write(f Frame, flushInput bool) error {
	if d.port == nil {
		return ErrClosed
	}
	glog.V(2).Infof("TX %v", f)

	n, err := d.port.Write(f[:])
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if n != len(f) {
		return &TransportError{Op: "write", Err: fmt.Errorf("wrote %d of %d bytes", n, len(f))}
	}
	if flushInput {
		if err := d.port.ResetInputBuffer(); err != nil {
			return &TransportError{Op: "flush input", Err: err}
		}
	}
	d.sleep(d.settle)
	return nil
}

func (d *Driver) flushOutput() error {
	if d.port == nil {
		return ErrClosed
	}
	if err := d.port.ResetOutputBuffer(); err != nil {
		return &TransportError{Op: "flush output", Err: err}
	}
	return nil
}

// read collects up to n bytes, stopping early when a read times out.
func (d *Driver) read(n int) ([]byte, error) {
	if d.port == nil {
		return nil, ErrClosed
	}
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := d.port.Read(buf[got:])
		if err != nil {
			return buf[:got], &TransportError{Op: "read", Err: err}
		}
		if m == 0 {
			break
		}
		got += m
	}
	return buf[:got], nil
}

// Stop halts conversion and discards unsent output.
func (d *Driver) Stop() error {
	if err := d.send(StopFrame()); err != nil {
		return err
	}
	return d.flushOutput()
}

// Activate starts conversion on the currently active channels.
func (d *Driver) Activate() error {
	return d.send(ActivateFrame(d.state.Active))
}

// SetActiveChannels stops the device and enables or disables the listed
// channels. Channels missing from want keep their current state.
func (d *Driver) SetActiveChannels(want map[Channel]bool) error {
	for ch := range want {
		if err := ch.validate(); err != nil {
			return err
		}
	}
	if err := d.Stop(); err != nil {
		return err
	}

	active := d.state.Active
	for ch, on := range want {
		active = active.Set(ch, on)
	}
	d.state.Active = active
	return d.Activate()
}

// ApplyChannel programs frequency, gain/calibration and input of an active
// channel.
func (d *Driver) ApplyChannel(cfg ChannelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !d.state.Active.Has(cfg.Channel) {
		return fmt.Errorf("%w: %d", ErrChannelInactive, cfg.Channel)
	}

	freq, err := FrequencyFrames(cfg.Channel, cfg.Frequency)
	if err != nil {
		return err
	}
	gain, err := GainCalibrationFrame(cfg.Channel, cfg.Gain, cfg.Calibration)
	if err != nil {
		return err
	}
	input, err := InputTypeFrame(cfg.Channel, cfg.Input)
	if err != nil {
		return err
	}

	for _, f := range freq {
		if err := d.send(f); err != nil {
			return err
		}
	}
	if err := d.send(gain); err != nil {
		return err
	}
	d.gains[cfg.Channel-1] = cfg.Gain
	if err := d.flushOutput(); err != nil {
		return err
	}
	return d.send(input)
}

// SetByteMode switches between 4-byte and 5-byte (timer) sample frames. It is
// a no-op when the device is already in the requested mode.
func (d *Driver) SetByteMode(width int) error {
	f, err := ByteModeFrame(width)
	if err != nil {
		return err
	}
	if d.state.FrameWidth == width {
		return nil
	}
	if err := d.send(f); err != nil {
		return err
	}
	d.state.FrameWidth = width
	return nil
}

// Reinitialize commits pending parameters of the channels in m and restarts
// conversion on the active channels.
func (d *Driver) Reinitialize(m ChannelMask) error {
	if err := d.send(ReinitFrame(m)); err != nil {
		return err
	}
	if err := d.Activate(); err != nil {
		return err
	}
	return d.flushOutput()
}

// Initialize brings the device from any state to running with cfg. The
// command order is required by the hardware. A failure leaves the device in
// whatever state the failed command left it.
func (d *Driver) Initialize(cfg DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	mask := cfg.Mask()
	glog.Infof("initializing channels %v", mask)

	if err := d.Stop(); err != nil {
		return err
	}
	want := make(map[Channel]bool, NumChannels)
	for ch := Channel(1); ch <= NumChannels; ch++ {
		want[ch] = mask.Has(ch)
	}
	if err := d.SetActiveChannels(want); err != nil {
		return err
	}
	// Parameters are only accepted after a second stop.
	if err := d.Stop(); err != nil {
		return err
	}

	for _, ch := range cfg.sorted() {
		if err := d.ApplyChannel(ch); err != nil {
			return fmt.Errorf("channel %d: %w", ch.Channel, err)
		}
	}

	width := FrameWidth
	if cfg.TimerMode {
		width = TimerFrameWidth
	}
	if err := d.SetByteMode(width); err != nil {
		return err
	}
	return d.Reinitialize(AllChannels)
}

// ReadFrame reads one raw sample frame. On timeout it returns what arrived,
// possibly nothing.
func (d *Driver) ReadFrame() ([]byte, error) {
	return d.read(d.state.FrameWidth)
}

// ReadSample reads and decodes one sample. ok is false when the read timed
// out before a full frame arrived; the caller may poll again.
func (d *Driver) ReadSample() (s Sample, ok bool, err error) {
	frame, err := d.ReadFrame()
	if err != nil {
		return Sample{}, false, err
	}
	s, err = d.Decoder().Decode(frame, d.now())
	if err != nil {
		if len(frame) > 0 {
			glog.V(1).Infof("dropping partial frame % x", frame)
		}
		return Sample{}, false, nil
	}
	return s, true, nil
}

// Samples returns a sequence of samples read from the device. Timed out reads
// are polled again. The sequence ends when ctx is done, when the consumer
// stops, or after yielding a transport error. It can be ranged over again.
func (d *Driver) Samples(ctx context.Context) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		for ctx.Err() == nil {
			s, ok, err := d.ReadSample()
			if err != nil {
				yield(Sample{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

// ReadParameters stops the device and reads back its stored configuration.
// Conversion stays stopped; call Activate to resume.
func (d *Driver) ReadParameters() (Parameters, error) {
	if err := d.Stop(); err != nil {
		return Parameters{}, err
	}
	if err := d.send(QueryFrame()); err != nil {
		return Parameters{}, err
	}
	b, err := d.read(ParamsLength)
	if err != nil {
		return Parameters{}, err
	}
	return ParseParameters(b)
}

// SelfTest compares the stored configuration of every channel in cfg with
// what cfg programs. A mismatch is reported as *SelfTestError. Conversion
// stays stopped.
func (d *Driver) SelfTest(cfg DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	params, err := d.ReadParameters()
	if err != nil {
		return err
	}

	var expected, actual []string
	for _, ch := range cfg.sorted() {
		want, err := ExpectedParams(ch)
		if err != nil {
			return err
		}
		expected = append(expected, want.String())
		actual = append(actual, params.Line(ch.Channel))
	}
	if !slices.Equal(expected, actual) {
		return &SelfTestError{
			Expected: strings.Join(expected, "\n"),
			Actual:   params.String(),
		}
	}
	return nil
}

// ResetTimer zeroes the hardware timer carried in 5-byte frames.
func (d *Driver) ResetTimer() error {
	return d.send(ResetTimerFrame())
}

// SetTransportSpeed changes the device's line speed. When the transport is a
// serial port its speed is switched to match.
func (d *Driver) SetTransportSpeed(baud int) error {
	f, err := SpeedFrame(baud)
	if err != nil {
		return err
	}
	if err := d.send(f); err != nil {
		return err
	}
	if port, ok := d.port.(serial.Port); ok {
		if err := port.SetMode(&serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}); err != nil {
			return &TransportError{Op: "set mode", Err: err}
		}
	}
	return nil
}

// SetEEPROMAddress points the next EEPROM operation at addr.
func (d *Driver) SetEEPROMAddress(addr uint8) error {
	f, err := EEPROMAddressFrame(addr)
	if err != nil {
		return err
	}
	return d.send(f)
}

// ReadEEPROM stops the device, reads n bytes starting at addr and resumes
// conversion.
func (d *Driver) ReadEEPROM(addr uint8, n int) ([]byte, error) {
	if n <= 0 || int(addr)+n-1 > MaxEEPROMReadAddress {
		return nil, fmt.Errorf("%w: eeprom read of %d bytes at %d", ErrInvalidParameter, n, addr)
	}
	if err := d.Stop(); err != nil {
		return nil, err
	}
	if err := d.SetEEPROMAddress(addr); err != nil {
		return nil, err
	}

	out := make([]byte, 0, n)
	for i := range n {
		// The answer follows the command immediately, so input is kept.
		if err := d.write(EEPROMReadFrame(), false); err != nil {
			return nil, err
		}
		b, err := d.read(2)
		if err != nil {
			return nil, err
		}
		if len(b) != 2 {
			return nil, fmt.Errorf("eeprom byte %d: %w", int(addr)+i, ErrShortRead)
		}
		out = append(out, (b[1]&0x0F)<<4|b[0]&0x0F)
	}
	return out, d.Activate()
}

// WriteEEPROM stores value at addr and waits for the device to acknowledge.
// ctx bounds the wait.
func (d *Driver) WriteEEPROM(ctx context.Context, addr uint8, value byte) error {
	if addr > MaxEEPROMWriteAddress {
		return fmt.Errorf("%w: eeprom write address %d", ErrInvalidParameter, addr)
	}
	if err := d.SetEEPROMAddress(addr); err != nil {
		return err
	}
	if err := d.write(EEPROMWriteFrame(value), false); err != nil {
		return err
	}
	for {
		b, err := d.read(1)
		if err != nil {
			return err
		}
		if len(b) == 1 && b[0] == eepromAck {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("eeprom write at %d: %w", addr, err)
		}
		d.sleep(EEPROMPollInterval)
	}
}

// Close stops the device and releases the transport. It is safe to call
// more than once.
func (d *Driver) Close() error {
	if d.port == nil {
		return nil
	}
	stopErr := d.Stop()
	closeErr := d.port.Close()
	d.port = nil
	if closeErr != nil {
		closeErr = &TransportError{Op: "close", Err: closeErr}
	}
	return errors.Join(stopErr, closeErr)
}
