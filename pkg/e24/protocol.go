package e24

import (
	"fmt"
	"strconv"
	"strings"
)

// Version of the driver, printed by the collector on start.
const Version = "0.2.0"

// NumChannels is the number of ADC inputs on the device.
const NumChannels = 4

const (
	// ClockHz is the modulator clock the frequency divisor is derived from.
	ClockHz = 2457600
	// MinFrequency and MaxFrequency bound the per-channel sampling frequency in Hz.
	MinFrequency = 5
	MaxFrequency = 1000

	// MaxEEPROMReadAddress is the last readable EEPROM cell.
	MaxEEPROMReadAddress = 127
	// MaxEEPROMWriteAddress is the last writable EEPROM cell.
	MaxEEPROMWriteAddress = 63

	divisorScale = 128
)

// Command opcodes (third byte of a frame). Channel-addressed opcodes carry the
// channel-bit or channel mask in the low nibble.
const (
	opActivate   byte = 0x80
	opInputType  byte = 0x90
	opFreqHigh   byte = 0xA0
	opFreqLow    byte = 0xB0
	opGainCal    byte = 0xC0
	opReinit     byte = 0xD0
	opSpeed      byte = 0x0E
	opResetTimer byte = 0xF0
	opEEPROMRead byte = 0xF1
	opEEPROMAddr byte = 0xF2
	opEEPROMSave byte = 0xF3
	opQuery      byte = 0xF5
	opTimerMode  byte = 0xF6
	opPlainMode  byte = 0xF7
	opStop       byte = 0xFF

	speedGuard byte = 0x5A
	eepromAck  byte = 0xB0
)

// Frame is a 3-byte command sent to the device.
type Frame [3]byte

func (f Frame) String() string {
	return fmt.Sprintf("% x", f[:])
}

// Channel identifies an ADC input, numbered from 1.
type Channel int

// Valid reports whether c is one of 1..NumChannels.
func (c Channel) Valid() bool {
	return c >= 1 && c <= NumChannels
}

func (c Channel) validate() error {
	if !c.Valid() {
		return fmt.Errorf("%w: channel %d (want 1..%d)", ErrInvalidParameter, c, NumChannels)
	}
	return nil
}

// Bit returns the one-hot channel-bit of c.
func (c Channel) Bit() ChannelMask {
	if !c.Valid() {
		return 0
	}
	return 1 << (c - 1)
}

// ChannelMask is a set of channels, bit i standing for channel i+1.
type ChannelMask uint8

// AllChannels has every channel enabled.
const AllChannels ChannelMask = 0x0F

// MaskOf returns the mask with the given channels enabled.
func MaskOf(channels ...Channel) ChannelMask {
	var m ChannelMask
	for _, ch := range channels {
		m = m.Enable(ch)
	}
	return m
}

// Has reports whether ch is enabled in m.
func (m ChannelMask) Has(ch Channel) bool {
	return ch.Valid() && m&ch.Bit() != 0
}

// Enable returns m with ch enabled.
func (m ChannelMask) Enable(ch Channel) ChannelMask {
	return (m | ch.Bit()) & AllChannels
}

// Disable returns m with ch disabled.
func (m ChannelMask) Disable(ch Channel) ChannelMask {
	return m &^ ch.Bit() & AllChannels
}

// Set enables or disables ch.
func (m ChannelMask) Set(ch Channel, on bool) ChannelMask {
	if on {
		return m.Enable(ch)
	}
	return m.Disable(ch)
}

// Channels lists the enabled channels in ascending order.
func (m ChannelMask) Channels() []Channel {
	var out []Channel
	for ch := Channel(1); ch <= NumChannels; ch++ {
		if m.Has(ch) {
			out = append(out, ch)
		}
	}
	return out
}

func (m ChannelMask) String() string {
	chs := m.Channels()
	if len(chs) == 0 {
		return "none"
	}
	parts := make([]string, len(chs))
	for i, ch := range chs {
		parts[i] = strconv.Itoa(int(ch))
	}
	return strings.Join(parts, ",")
}

// Gain is the programmable amplifier gain of a channel.
type Gain int

var gainTable = [8]Gain{1, 2, 4, 8, 16, 32, 64, 128}

// Code returns the 3-bit gain code (log2 of the gain).
func (g Gain) Code() (uint8, error) {
	for code, v := range gainTable {
		if v == g {
			return uint8(code), nil
		}
	}
	return 0, fmt.Errorf("%w: gain %d (want one of %v)", ErrInvalidParameter, g, gainTable)
}

// GainFromCode maps a 3-bit gain code back to the gain.
func GainFromCode(code uint8) (Gain, error) {
	if int(code) >= len(gainTable) {
		return 0, fmt.Errorf("%w: gain code %d", ErrInvalidParameter, code)
	}
	return gainTable[code], nil
}

// InputType selects what a channel's input is connected to.
type InputType uint8

const (
	LineA InputType = iota
	LineB
	SelfVoltage
	TestMode
)

var inputTypeNames = [...]string{"line_a", "line_b", "self_voltage", "test_mode"}

func (t InputType) String() string {
	if int(t) < len(inputTypeNames) {
		return inputTypeNames[t]
	}
	return "input(" + strconv.Itoa(int(t)) + ")"
}

func (t InputType) validate() error {
	if int(t) >= len(inputTypeNames) {
		return fmt.Errorf("%w: input type %d", ErrInvalidParameter, t)
	}
	return nil
}

// ParseInputType accepts a name such as "line_b" or a numeric code "0".."3".
func ParseInputType(s string) (InputType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range inputTypeNames {
		if s == name {
			return InputType(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(inputTypeNames) {
		return InputType(n), nil
	}
	return 0, fmt.Errorf("%w: input type %q", ErrInvalidParameter, s)
}

func validateCalibration(cal uint8) error {
	if cal > 7 {
		return fmt.Errorf("%w: calibration %d (want 0..7)", ErrInvalidParameter, cal)
	}
	return nil
}

// ActivateFrame enables the channels in m and starts conversion.
func ActivateFrame(m ChannelMask) Frame {
	return Frame{0, 0, opActivate + byte(m&AllChannels)}
}

// InputTypeFrame selects the input of a channel.
func InputTypeFrame(ch Channel, t InputType) (Frame, error) {
	if err := ch.validate(); err != nil {
		return Frame{}, err
	}
	if err := t.validate(); err != nil {
		return Frame{}, err
	}
	return Frame{0, byte(t), opInputType + byte(ch.Bit())}, nil
}

// FrequencyDivisor returns the divisor the device is programmed with for hz.
// The division truncates, so the effective frequency is quantized.
func FrequencyDivisor(hz int) (uint16, error) {
	if hz < MinFrequency || hz > MaxFrequency {
		return 0, fmt.Errorf("%w: frequency %d Hz (want %d..%d)", ErrInvalidParameter, hz, MinFrequency, MaxFrequency)
	}
	return uint16(ClockHz / (divisorScale * hz)), nil
}

// FrequencyFromDivisor returns the effective sampling frequency of a divisor.
func FrequencyFromDivisor(div uint16) (float64, error) {
	if div == 0 {
		return 0, fmt.Errorf("%w: zero frequency divisor", ErrInvalidParameter)
	}
	return float64(ClockHz) / float64(divisorScale*int(div)), nil
}

// FrequencyFrames returns the two frames programming the frequency of a
// channel. The low byte frame must be sent before the high byte frame.
func FrequencyFrames(ch Channel, hz int) ([2]Frame, error) {
	if err := ch.validate(); err != nil {
		return [2]Frame{}, err
	}
	div, err := FrequencyDivisor(hz)
	if err != nil {
		return [2]Frame{}, err
	}
	lo, hi := byte(div), byte(div>>8)
	bit := byte(ch.Bit())
	return [2]Frame{
		{lo >> 4, lo & 0x0F, opFreqLow + bit},
		{hi >> 4, hi & 0x0F, opFreqHigh + bit},
	}, nil
}

// GainCalibrationFrame sets the gain and calibration mode of a channel.
func GainCalibrationFrame(ch Channel, g Gain, cal uint8) (Frame, error) {
	if err := ch.validate(); err != nil {
		return Frame{}, err
	}
	code, err := g.Code()
	if err != nil {
		return Frame{}, err
	}
	if err := validateCalibration(cal); err != nil {
		return Frame{}, err
	}
	return Frame{cal, code, opGainCal + byte(ch.Bit())}, nil
}

// ReinitFrame commits pending parameters of the channels in m.
func ReinitFrame(m ChannelMask) Frame {
	return Frame{0, 0, opReinit + byte(m&AllChannels)}
}

func ResetTimerFrame() Frame { return Frame{0, 0, opResetTimer} }
func StopFrame() Frame       { return Frame{0, 0, opStop} }
func QueryFrame() Frame      { return Frame{0, 0, opQuery} }
func EEPROMReadFrame() Frame { return Frame{0, 0, opEEPROMRead} }

// ByteModeFrame switches the sample frame width to 4 or 5 bytes.
func ByteModeFrame(width int) (Frame, error) {
	switch width {
	case FrameWidth:
		return Frame{0, 0, opPlainMode}, nil
	case TimerFrameWidth:
		return Frame{0, 0, opTimerMode}, nil
	}
	return Frame{}, fmt.Errorf("%w: byte mode %d (want %d or %d)", ErrInvalidParameter, width, FrameWidth, TimerFrameWidth)
}

// EEPROMAddressFrame points the next EEPROM operation at addr.
func EEPROMAddressFrame(addr uint8) (Frame, error) {
	if addr > MaxEEPROMReadAddress {
		return Frame{}, fmt.Errorf("%w: eeprom address %d", ErrInvalidParameter, addr)
	}
	return Frame{addr >> 4, addr & 0x0F, opEEPROMAddr}, nil
}

// EEPROMWriteFrame stores value at the selected EEPROM address.
func EEPROMWriteFrame(value byte) Frame {
	return Frame{value >> 4, value & 0x0F, opEEPROMSave}
}

var speedIndex = map[int]byte{2400: 0, 4800: 1, 9600: 2, 19200: 3, 38400: 4, 57600: 5}

// SpeedFrame changes the device's serial line speed.
func SpeedFrame(baud int) (Frame, error) {
	idx, ok := speedIndex[baud]
	if !ok {
		return Frame{}, fmt.Errorf("%w: baud rate %d", ErrInvalidParameter, baud)
	}
	return Frame{speedGuard, speedGuard, opSpeed + idx}, nil
}
