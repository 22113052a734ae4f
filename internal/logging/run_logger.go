package logging

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// RunLogger adapts one task run's stdout/stderr streams into a single
// ordered log file and, for stderr, a warning on the operational
// logger: procrun's LineSink contract reports one stream at a time from
// concurrent reader goroutines, so writes to the file are serialized.
type RunLogger struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// NewRunLogger opens path for appending wrapper output, truncating any
// previous content from an earlier attempt at the same run.
func NewRunLogger(path string) (*RunLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &RunLogger{f: f, w: bufio.NewWriter(f), path: path}, nil
}

// Path returns the underlying log file's path.
func (l *RunLogger) Path() string {
	return l.path
}

// Stdout appends a stdout line to the run's log file and echoes it at
// info level on the operational logger.
func (l *RunLogger) Stdout(line string) {
	l.write(line)
	Op().Info("wrapper stdout", "line", line)
}

// Stderr appends a stderr line to the run's log file and echoes it at
// warning level on the operational logger, since wrapper diagnostics
// usually mean something the operator should notice without opening
// the per-run log.
func (l *RunLogger) Stderr(line string) {
	l.write(line)
	Op().Warn("wrapper stderr", "line", line)
}

func (l *RunLogger) write(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, line)
}

// Close flushes and closes the run's log file.
func (l *RunLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
