package console

import (
	"fmt"
	"io"
	"os"

	"github.com/itohio/gole24/pkg/e24"
	"github.com/itohio/gole24/pkg/output"
)

// ConsoleOutput prints one formatted sample per line.
type ConsoleOutput struct {
	w io.Writer
}

// New creates a console output writing to w, or to stdout when w is nil.
func New(w io.Writer) output.Output {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) Publish(s e24.Sample) error {
	_, err := fmt.Fprintln(c.w, e24.FormatSample(s))
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
