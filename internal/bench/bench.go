package bench

import (
	"fmt"
	"io"
	"time"
)

// Timing is the wall clock duration of one configuration
type Timing struct {
	Description string
	Elapsed     time.Duration
}

// Seconds returns the elapsed time in seconds
func (t Timing) Seconds() float64 {
	return t.Elapsed.Seconds()
}

// String formats t as a report line, without the newline
func (t Timing) String() string {
	return fmt.Sprintf("\t%s :%.4fs", t.Description, t.Seconds())
}

// Measure runs fn once and times it. The timing is returned even when fn fails.
func Measure(description string, fn func() error) (Timing, error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if elapsed < 0 {
		elapsed = 0
	}

	return Timing{Description: description, Elapsed: elapsed}, err
}

// Report prints each timing as soon as it is measured
type Report struct {
	w io.Writer
}

// NewReport returns a report writing to w
func NewReport(w io.Writer) *Report {
	return &Report{w: w}
}

// Run measures fn and prints the line. The error of fn is returned as is,
// and nothing is printed for a failed run.
func (r *Report) Run(description string, fn func() error) error {
	t, err := Measure(description, fn)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(r.w, t.String())
	return err
}
