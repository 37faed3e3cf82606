package mealscore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// AttemptLogger is the interface for recording generation attempts.
type AttemptLogger interface {
	LogAttempt(attempt AttemptLog) error
}

// NewAttemptLogFilePath returns a file path based on a cleaned up model name or id to make it easier to identify logs produced with various models.
func NewAttemptLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.NewReplacer(":", "_", "/", "_").Replace(strings.ToLower(model)),
	)
}

// AttemptLog represents one stage of a validate-and-repair run.
type AttemptLog struct {
	RunID     string        `json:"run_id"`
	Stage     string        `json:"stage"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration_ns"`
	RawLength int           `json:"raw_length"`
	Problems  []string      `json:"problems,omitempty"`
	Accepted  bool          `json:"accepted"`
	Error     string        `json:"error,omitempty"`
}

// FileAttemptLogger accumulates attempts and writes them on Flush.
// It is safe for concurrent use.
type FileAttemptLogger struct {
	mu       sync.Mutex
	attempts []AttemptLog
	writer   io.Writer
}

// NewFileAttemptLogger creates a new file-based attempt logger
func NewFileAttemptLogger(writer io.Writer) *FileAttemptLogger {
	return &FileAttemptLogger{
		attempts: make([]AttemptLog, 0),
		writer:   writer,
	}
}

// LogAttempt buffers the attempt (does not flush immediately)
func (fl *FileAttemptLogger) LogAttempt(attempt AttemptLog) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.attempts = append(fl.attempts, attempt)
	return nil
}

// Flush writes all accumulated attempts to the writer
func (fl *FileAttemptLogger) Flush() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"assessment_session": map[string]any{
			"timestamp": time.Now(),
			"attempts":  fl.attempts,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal attempt log: %w", err)
	}

	if _, err := fl.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write attempt log: %w", err)
	}

	fl.attempts = fl.attempts[:0]
	return nil
}

// NoOpAttemptLogger discards all attempts
type NoOpAttemptLogger struct{}

func NewNoOpAttemptLogger() *NoOpAttemptLogger {
	return &NoOpAttemptLogger{}
}

func (nop *NoOpAttemptLogger) LogAttempt(attempt AttemptLog) error {
	return nil
}

// StdoutAttemptLogger writes each attempt as a JSON line (for Lambda/CloudWatch)
type StdoutAttemptLogger struct {
	out io.Writer
}

func NewStdoutAttemptLogger() *StdoutAttemptLogger {
	return &StdoutAttemptLogger{out: os.Stdout}
}

// LogAttempt writes the attempt as a JSON line
func (l *StdoutAttemptLogger) LogAttempt(attempt AttemptLog) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(l.out, string(data))
	return err
}
