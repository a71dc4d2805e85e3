package sample

import (
	"iter"

	"github.com/itohio/gole24/pkg/e24"
)

// Converter transforms a sequence of decoded samples. Errors from the input
// are passed through unchanged.
type Converter func(in iter.Seq2[e24.Sample, error]) iter.Seq2[e24.Sample, error]

// Chain returns a converter applying cs in order. Nil converters are skipped.
func Chain(cs ...Converter) Converter {
	return func(in iter.Seq2[e24.Sample, error]) iter.Seq2[e24.Sample, error] {
		for _, c := range cs {
			if c != nil {
				in = c(in)
			}
		}
		return in
	}
}

// NewChannelFilter creates a converter that drops samples of channels outside mask.
func NewChannelFilter(mask e24.ChannelMask) Converter {
	return func(in iter.Seq2[e24.Sample, error]) iter.Seq2[e24.Sample, error] {
		return func(yield func(e24.Sample, error) bool) {
			for s, err := range in {
				if err == nil && !mask.Has(s.Channel) {
					continue
				}
				if !yield(s, err) {
					return
				}
			}
		}
	}
}
