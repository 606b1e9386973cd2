// Package trace loads inter-arrival delay traces for replay.
//
// A trace file holds one non-negative delay per line, expressed in seconds.
// Blank lines and lines starting with '#' are skipped. Values are scaled by
// [Options.Scale] and optionally truncated to [Options.Limit] entries:
//
//	seq, err := trace.Load("arrivals.txt", trace.Options{Scale: 0.5, Limit: 1000})
//	if err != nil {
//		return err
//	}
//	fmt.Println(seq.Len(), seq.Total())
//
// Loading fails fast on the first malformed value so that nothing is ever
// dispatched against a partially-read trace.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrEmpty is returned when a trace yields no delays.
var ErrEmpty = errors.New("trace contains no delays")

// ParseError reports a malformed trace line.
type ParseError struct {
	Line  int
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace line %d: invalid delay %q: %v", e.Line, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	errNegative  = errors.New("delay must be >= 0")
	errNotFinite = errors.New("delay must be finite")
	errOverflow  = errors.New("delay exceeds the longest representable wait after scaling")
)

// Options control how raw trace values are turned into delays.
type Options struct {
	Scale float64 // multiplier applied to each value (0 means 1)
	Limit int     // maximum number of values to read (0 means all)
}

func (o Options) normalize() (Options, error) {
	if o.Scale == 0 {
		o.Scale = 1
	}
	if o.Scale < 0 || math.IsNaN(o.Scale) || math.IsInf(o.Scale, 0) {
		return o, fmt.Errorf("delay scale must be a positive finite number, got %g", o.Scale)
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	return o, nil
}

// Sequence is an ordered, read-only list of delays in seconds.
type Sequence struct {
	delays []float64
}

// NewSequence copies delays into a Sequence after validating them.
func NewSequence(delays []float64) (Sequence, error) {
	out := make([]float64, len(delays))
	for i, d := range delays {
		if err := checkDelay(d); err != nil {
			return Sequence{}, fmt.Errorf("delay[%d]: %w", i, err)
		}
		out[i] = d
	}
	return Sequence{delays: out}, nil
}

// Len returns the number of delays.
func (s Sequence) Len() int { return len(s.delays) }

// At returns the i-th delay in seconds.
func (s Sequence) At(i int) float64 { return s.delays[i] }

// Duration returns the i-th delay as a time.Duration.
func (s Sequence) Duration(i int) time.Duration {
	return secondsToDuration(s.delays[i])
}

// Total returns the sum of all delays, i.e. the planned replay length.
func (s Sequence) Total() time.Duration {
	var sum float64
	for _, d := range s.delays {
		sum += d
	}
	return secondsToDuration(sum)
}

// Values returns a copy of the delays.
func (s Sequence) Values() []float64 {
	return append([]float64(nil), s.delays...)
}

// Load reads and parses a trace file.
func Load(path string, opts Options) (Sequence, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Sequence{}, errors.New("trace file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return Sequence{}, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	seq, err := Read(f, opts)
	if err != nil {
		return Sequence{}, fmt.Errorf("%s: %w", path, err)
	}
	return seq, nil
}

// Read parses a trace from r.
func Read(r io.Reader, opts Options) (Sequence, error) {
	opts, err := opts.normalize()
	if err != nil {
		return Sequence{}, err
	}

	var delays []float64
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if opts.Limit > 0 && len(delays) >= opts.Limit {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return Sequence{}, &ParseError{Line: lineNum, Value: line, Err: err}
		}
		if err := checkDelay(value); err != nil {
			return Sequence{}, &ParseError{Line: lineNum, Value: line, Err: err}
		}
		scaled := value * opts.Scale
		if math.IsInf(scaled, 0) || secondsToDuration(scaled) == math.MaxInt64 {
			return Sequence{}, &ParseError{Line: lineNum, Value: line, Err: errOverflow}
		}
		delays = append(delays, scaled)
	}
	if err := scanner.Err(); err != nil {
		return Sequence{}, fmt.Errorf("read trace: %w", err)
	}
	if len(delays) == 0 {
		return Sequence{}, ErrEmpty
	}
	return Sequence{delays: delays}, nil
}

func checkDelay(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return errNotFinite
	}
	if d < 0 {
		return errNegative
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	ns := s * float64(time.Second)
	if ns > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}
