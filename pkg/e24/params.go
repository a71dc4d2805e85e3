package e24

import (
	"fmt"
	"math"
	"strings"

	"periph.io/x/conn/v3/physic"
)

// ParamsLength is the size of the device's parameter echo.
const ParamsLength = 14

var paramsMarker = [2]byte{0xEE, 0xEA}

// adChannelBySlot is the board wiring of channel slots to AD7714 inputs.
var adChannelBySlot = [NumChannels]uint8{0, 1, 3, 2}

// ChannelParams is the configuration the device reports for one channel slot.
type ChannelParams struct {
	Channel     Channel
	Divisor     uint16
	Frequency   physic.Frequency
	ADChannel   uint8
	Calibration uint8
	Gain        Gain
}

func (p ChannelParams) String() string {
	return fmt.Sprintf("ADC_Channel #%d\tfrequency %d\tad7714_channel %d\tcalibration %d\tgain %d",
		p.Channel, int64(p.Frequency/physic.Hertz), p.ADChannel, p.Calibration, p.Gain)
}

// Parameters is a decoded parameter echo. Errors[i] is set when slot i could
// not be decoded; the other slots are still valid.
type Parameters struct {
	Channels [NumChannels]ChannelParams
	Errors   [NumChannels]error
}

// Line returns the report line of ch, or its decode error.
func (p Parameters) Line(ch Channel) string {
	if !ch.Valid() {
		return ""
	}
	if err := p.Errors[ch-1]; err != nil {
		return err.Error()
	}
	return p.Channels[ch-1].String()
}

func (p Parameters) String() string {
	lines := make([]string, 0, NumChannels)
	for ch := Channel(1); ch <= NumChannels; ch++ {
		lines = append(lines, p.Line(ch))
	}
	return strings.Join(lines, "\n")
}

// ParseParameters decodes the 14-byte parameter echo: a 0xEE 0xEA marker
// followed by one 3-byte group per channel slot.
func ParseParameters(b []byte) (Parameters, error) {
	if len(b) != ParamsLength || b[0] != paramsMarker[0] || b[1] != paramsMarker[1] {
		return Parameters{}, fmt.Errorf("%w: result = % x", ErrMalformedReadback, b)
	}

	var p Parameters
	payload := b[2:]
	for i := range NumChannels {
		ch := Channel(i + 1)
		cp, err := parseChannelParams(ch, payload[i*3:i*3+3])
		if err != nil {
			p.Errors[i] = &ChannelError{Channel: ch, Err: err}
			continue
		}
		p.Channels[i] = cp
	}
	return p, nil
}

func parseChannelParams(ch Channel, group []byte) (ChannelParams, error) {
	div := uint16(group[0])<<8 | uint16(group[1])
	hz, err := FrequencyFromDivisor(div)
	if err != nil {
		return ChannelParams{}, err
	}
	gain, err := GainFromCode(group[2] & 0x07)
	if err != nil {
		return ChannelParams{}, err
	}
	return ChannelParams{
		Channel:     ch,
		Divisor:     div,
		Frequency:   hertz(hz),
		ADChannel:   (group[2] & 0xC0) >> 6,
		Calibration: (group[2] & 0x38) >> 3,
		Gain:        gain,
	}, nil
}

// ExpectedParams returns what the device should report for a channel
// programmed with cfg.
func ExpectedParams(cfg ChannelConfig) (ChannelParams, error) {
	if err := cfg.Validate(); err != nil {
		return ChannelParams{}, err
	}
	div, err := FrequencyDivisor(cfg.Frequency)
	if err != nil {
		return ChannelParams{}, err
	}
	hz, err := FrequencyFromDivisor(div)
	if err != nil {
		return ChannelParams{}, err
	}
	return ChannelParams{
		Channel:     cfg.Channel,
		Divisor:     div,
		Frequency:   hertz(hz),
		ADChannel:   adChannelBySlot[cfg.Channel-1],
		Calibration: cfg.Calibration,
		Gain:        cfg.Gain,
	}, nil
}

func hertz(hz float64) physic.Frequency {
	return physic.Frequency(math.Round(hz * float64(physic.Hertz)))
}
