package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/torosent/tracefire/internal/replay"
)

// File names written into the output directory.
const (
	DelaysFile    = "actual_delays.txt"
	LatenciesFile = "latencies.txt"
	ResultsFile   = "results.jsonl"
	ManifestFile  = "run.yaml"
	lockFile      = ".tracefire.lock"
)

// ErrOutputLocked is returned when another replay holds the output directory.
var ErrOutputLocked = errors.New("output directory is locked by another replay")

// Manifest is the run.yaml document.
type Manifest struct {
	RunID       string    `yaml:"run_id"`
	Target      string    `yaml:"target"`
	Method      string    `yaml:"method"`
	TraceFile   string    `yaml:"trace_file"`
	DelayScale  float64   `yaml:"delay_scale"`
	Start       time.Time `yaml:"start"`
	End         time.Time `yaml:"end"`
	DurationSec float64   `yaml:"duration_seconds"`
	Planned     int       `yaml:"planned"`
	Launched    int       `yaml:"launched"`
	Succeeded   int       `yaml:"succeeded"`
	Failed      int       `yaml:"failed"`
	Unresolved  int       `yaml:"unresolved"`
	Abandoned   int       `yaml:"abandoned"`
	Late        int       `yaml:"late"`
	Interrupted bool      `yaml:"interrupted"`
}

// resultLine is one results.jsonl entry.
type resultLine struct {
	Index        int     `json:"index"`
	DispatchedAt string  `json:"dispatched_at"`
	OffsetSec    float64 `json:"offset_s"`
	ScheduledSec float64 `json:"scheduled_s"`
	LagMs        float64 `json:"lag_ms"`
	LatencyMs    float64 `json:"latency_ms"`
	Success      bool    `json:"success"`
	Status       int     `json:"status,omitempty"`
	BytesRead    int64   `json:"bytes_read"`
	Error        string  `json:"error,omitempty"`
}

// Sink writes the result files of one run into a directory it holds an
// exclusive lock on.
type Sink struct {
	dir   string
	lock  *flock.Flock
	runID string
}

// OpenSink creates dir if needed and locks it for this run.
func OpenSink(dir string) (*Sink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, ErrOutputLocked)
	}
	return &Sink{dir: dir, lock: lock, runID: ulid.Make().String()}, nil
}

// RunID identifies this run in run.yaml and the JSON report.
func (s *Sink) RunID() string {
	return s.runID
}

func (s *Sink) Dir() string {
	return s.dir
}

// Write stores the result files for res. The manifest's run id, counts and
// time markers are filled from the sink and res.
func (s *Sink) Write(res replay.Result, m Manifest) error {
	if err := s.writeFile(DelaysFile, func(w *bufio.Writer) error {
		for _, d := range res.Dispatches {
			if _, err := fmt.Fprintf(w, "%.9f\n", d.Gap.Seconds()); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.writeFile(LatenciesFile, func(w *bufio.Writer) error {
		for _, r := range res.Records {
			if _, err := fmt.Fprintf(w, "%.9f %.9f\n", r.Offset.Seconds(), millis(r.Latency)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := s.writeFile(ResultsFile, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		for i, r := range res.Records {
			line := resultLine{
				Index:        r.Index,
				DispatchedAt: r.DispatchedAt.UTC().Format(time.RFC3339Nano),
				OffsetSec:    r.Offset.Seconds(),
				LatencyMs:    millis(r.Latency),
				Success:      r.Success(),
				Status:       r.StatusCode,
				BytesRead:    r.BytesRead,
			}
			if i < len(res.Dispatches) {
				line.ScheduledSec = res.Dispatches[i].Scheduled.Seconds()
				line.LagMs = millis(res.Dispatches[i].Lag())
			}
			if r.Err != nil {
				line.Error = r.Err.Error()
			}
			if err := enc.Encode(line); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	m.RunID = s.runID
	m.Start = res.Start
	m.End = res.End
	m.DurationSec = res.Duration().Seconds()
	m.Planned = res.Planned
	m.Launched = res.Launched()
	m.Succeeded = res.Succeeded()
	m.Failed = res.Failed
	m.Unresolved = res.Unresolved
	m.Abandoned = res.Abandoned
	m.Late = res.Late
	m.Interrupted = res.Interrupted
	return s.writeFile(ManifestFile, func(w *bufio.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	})
}

func (s *Sink) writeFile(name string, fill func(w *bufio.Writer) error) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

// Close releases the directory lock.
func (s *Sink) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
