// Package rotate stores samples as text under a daily directory with one file
// per hour: <dir>/<YYYY-MM-DD>/<HH>.txt, in UTC.
package rotate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"

	"github.com/itohio/gole24/pkg/e24"
	"github.com/itohio/gole24/pkg/output"
)

const (
	dayLayout  = "2006-01-02"
	hourLayout = "15"
	lineLayout = "15:04:05.000000"
)

// Writer appends samples to the file of the hour they were taken in.
type Writer struct {
	dir  string
	path string
	f    *os.File
	w    *bufio.Writer
}

// New creates a rotating writer rooted at dir. Directories and files are
// created on demand.
func New(dir string) output.Output {
	return &Writer{dir: dir}
}

// Path returns the file a sample taken at t is stored in.
func Path(dir string, t time.Time) string {
	t = t.UTC()
	return filepath.Join(dir, t.Format(dayLayout), t.Format(hourLayout)+".txt")
}

// Line formats s as "HH:MM:SS.ffffff <channel> <value>".
func Line(s e24.Sample) string {
	return fmt.Sprintf("%s %d %d", s.Timestamp.UTC().Format(lineLayout), s.Channel, int64(s.Value))
}

func (r *Writer) Publish(s e24.Sample) error {
	if err := r.rotate(Path(r.dir, s.Timestamp)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(r.w, Line(s)); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	return r.w.Flush()
}

func (r *Writer) rotate(path string) error {
	if path == r.path && r.f != nil {
		return nil
	}
	if err := r.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	glog.V(1).Infof("rotate: writing to %s", path)
	r.path, r.f, r.w = path, f, bufio.NewWriter(f)
	return nil
}

func (r *Writer) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.w.Flush()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	r.path, r.f, r.w = "", nil, nil
	return err
}
