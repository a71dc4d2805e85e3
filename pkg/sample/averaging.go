package sample

import (
	"iter"
	"math"

	"github.com/itohio/gole24/pkg/e24"
)

// Averager averages blocks of consecutive samples per channel. Channels are
// averaged independently, so interleaved multi-channel streams are safe.
type Averager struct {
	window int
	acc    [e24.NumChannels]accumulator
}

type accumulator struct {
	n     int
	raw   int64
	value float64
	last  e24.Sample
}

// NewAverager creates an averager emitting one sample per window samples of a
// channel. Windows below 1 are treated as 1.
func NewAverager(window int) *Averager {
	if window < 1 {
		window = 1 // No averaging if invalid
	}
	return &Averager{window: window}
}

// Window returns the number of samples averaged per output sample.
func (a *Averager) Window() int {
	return a.window
}

// Add accumulates s and returns the averaged sample once its channel's block
// is complete. Samples of invalid channels are returned unchanged.
func (a *Averager) Add(s e24.Sample) (e24.Sample, bool) {
	if !s.Channel.Valid() {
		return s, true
	}
	acc := &a.acc[s.Channel-1]
	acc.n++
	acc.raw += int64(s.Raw)
	acc.value += s.Value
	acc.last = s
	if acc.n < a.window {
		return e24.Sample{}, false
	}
	out := acc.average()
	*acc = accumulator{}
	return out, true
}

// Flush returns the averages of incomplete blocks in channel order and resets
// the averager.
func (a *Averager) Flush() []e24.Sample {
	var out []e24.Sample
	for i := range a.acc {
		if a.acc[i].n == 0 {
			continue
		}
		out = append(out, a.acc[i].average())
		a.acc[i] = accumulator{}
	}
	return out
}

// average uses the most recent sample's timestamp and timer.
func (acc *accumulator) average() e24.Sample {
	n := float64(acc.n)
	s := acc.last
	s.Raw = int32(math.Round(float64(acc.raw) / n))
	s.Value = acc.value / n
	return s
}

// NewAveragingConverter creates a converter that averages window consecutive
// samples per channel. Partial blocks are emitted when the input ends.
func NewAveragingConverter(window int) Converter {
	return func(in iter.Seq2[e24.Sample, error]) iter.Seq2[e24.Sample, error] {
		if window <= 1 {
			return in
		}
		return func(yield func(e24.Sample, error) bool) {
			avg := NewAverager(window)
			for s, err := range in {
				if err != nil {
					if !yield(s, err) {
						return
					}
					continue
				}
				if out, ok := avg.Add(s); ok {
					if !yield(out, nil) {
						return
					}
				}
			}
			for _, out := range avg.Flush() {
				if !yield(out, nil) {
					return
				}
			}
		}
	}
}
