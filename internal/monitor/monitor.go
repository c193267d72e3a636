// Package monitor periodically writes the server's recording status to a
// file and, while a round is recorded, a performance row to the database.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dumfing/skirmish/internal/logging"
	"github.com/dumfing/skirmish/internal/model"
	"github.com/dumfing/skirmish/internal/round"

	"gorm.io/gorm"
)

// StatusFileName is created in Dependencies.StatusDir.
const StatusFileName = "status.txt"

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = time.Second

// QueueLengthProvider is implemented by backends with write queues.
type QueueLengthProvider interface {
	QueueLengths() model.WriteQueueLengths
}

// Recording is the part of the worker manager the monitor reads.
type Recording interface {
	Active() bool
	LastWriteDuration() time.Duration
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	DB           *gorm.DB // optional; no rows are written without it
	LogManager   *logging.SlogManager
	RoundContext *round.Context
	Recording    Recording
	Queues       QueueLengthProvider // optional
	Clients      func() int
	EventQueue   func() int
	Metrics      func(context.Context) (map[string]float64, error) // optional
	StatusDir    string
	Interval     time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.RoundContext == nil {
		deps.RoundContext = round.NewContext()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the status lines and the matching performance row.
func (s *Service) GetProgramStatus(writeQueues, lastWrite bool) (output []string, perf model.ServerPerformance) {
	perf = model.ServerPerformance{
		Time:    time.Now(),
		RoundID: s.deps.RoundContext.GetRound().ID,
	}
	if s.deps.Clients != nil {
		perf.Clients = s.deps.Clients()
	}
	if s.deps.EventQueue != nil {
		perf.EventQueue = s.deps.EventQueue()
	}
	if s.deps.Queues != nil {
		perf.WriteQueueLengths = s.deps.Queues.QueueLengths()
	}
	if s.deps.Recording != nil {
		perf.LastWriteDurationMs = float32(s.deps.Recording.LastWriteDuration().Microseconds()) / 1000
	}

	output = append(output, fmt.Sprintf("round=%d level=%q state=%s clients=%d events=%d",
		perf.RoundID, s.deps.RoundContext.GetLevel().Name, s.deps.RoundContext.State(), perf.Clients, perf.EventQueue))
	if writeQueues {
		output = append(output, marshalStatus(perf.WriteQueueLengths))
	}
	if lastWrite {
		output = append(output, marshalStatus(perf.LastWriteDurationMs))
	}
	if line := s.metricsLine(); line != "" {
		output = append(output, line)
	}
	return output, perf
}

func (s *Service) metricsLine() string {
	if s.deps.Metrics == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.Interval)
	defer cancel()
	snap, err := s.deps.Metrics(ctx)
	if err != nil {
		return fmt.Sprintf("metrics error=%q", err.Error())
	}
	if len(snap) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("metrics")
	for _, name := range slices.Sorted(maps.Keys(snap)) {
		fmt.Fprintf(&b, " %s=%.3f", name, snap[name])
	}
	return b.String()
}

func marshalStatus(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(b)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	var statusFile *os.File
	if s.deps.StatusDir != "" {
		f, err := os.Create(filepath.Join(s.deps.StatusDir, StatusFileName))
		if err != nil {
			return fmt.Errorf("error creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(statusFile, s.stopChan, s.done)
	return nil
}

func (s *Service) run(statusFile *os.File, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()
	if statusFile != nil {
		defer statusFile.Close()
	}

	logger := s.deps.LogManager.Logger()
	logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			lines, perf := s.GetProgramStatus(true, true)

			if statusFile != nil {
				if err := writeStatus(statusFile, lines); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}

			if s.deps.DB == nil || s.deps.Recording == nil || !s.deps.Recording.Active() || perf.RoundID == 0 {
				continue
			}
			if err := s.deps.DB.Create(&perf).Error; err != nil {
				logger.Error("Error writing performance row", "error", err)
			}
		}
	}
}

func writeStatus(f *os.File, lines []string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}
