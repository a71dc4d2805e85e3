package output

import (
	"errors"

	"github.com/itohio/gole24/pkg/e24"
)

// Output is a destination for decoded samples.
type Output interface {
	Publish(e24.Sample) error
	Close() error
}

// Multi fans every sample out to all outputs.
type Multi []Output

// Publish sends s to every output, even when an earlier one fails.
func (m Multi) Publish(s e24.Sample) error {
	var errs []error
	for _, o := range m {
		if err := o.Publish(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every output.
func (m Multi) Close() error {
	var errs []error
	for _, o := range m {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
