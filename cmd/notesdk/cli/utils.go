package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/srbot/notesdk/sdk/task"
)

// NormalizePath expands environment variables and a leading ~.
func NormalizePath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

// processConfigPath resolves a directory argument to the config file in it.
func processConfigPath(path string) string {
	path = NormalizePath(path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, defaultConfigFileName)
	}
	return filepath.Clean(path)
}

func checkConcurrency(n int) error {
	if n < 1 {
		return fmt.Errorf("--concurrency must be at least 1, got %d", n)
	}
	return nil
}

// printer serializes output from concurrent polls.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) tick(tk task.Tick) {
	p.Printf("   [%s] attempt %d: %s (%ds elapsed, %ds left)\n",
		tk.TaskID, tk.Attempt, tk.Status.State, tk.ElapsedSec, tk.RemainingSec)
}

func (p *printer) status(st *task.Status) {
	p.Printf("Task %s:\n", st.TaskID)
	p.Printf("   Status: %s\n", st.State)
	if st.InfoHash != "" {
		p.Printf("   Info hash: %s\n", st.InfoHash)
	}
	if created := st.Created(); !created.IsZero() {
		p.Printf("   Created: %s\n", created.Format(time.RFC3339))
	}
	if done, ok := st.Completed(); ok {
		p.Printf("   Completed: %s\n", done.Format(time.RFC3339))
	}
	if st.Error != "" {
		p.Printf("   Error: %s\n", st.Error)
	}
	if st.State != task.StateCompleted || len(st.Result) == 0 {
		return
	}
	if st.IsCalibrationResult() {
		if res, err := st.CalibrationResult(); err == nil {
			p.result(res)
		}
		return
	}
	if name, err := st.Filename(); err == nil {
		p.Printf("   Filename: %s\n", name)
	}
}

func (p *printer) result(res *task.CalibrationResult) {
	p.Printf("   Calibrated: %d/%d (%d failed)\n", res.SuccessCount, res.Total, res.FailCount)
	for _, item := range res.Results {
		mark := "ok"
		if !item.Success {
			mark = "failed"
		}
		line := fmt.Sprintf("   - %s %s", item.InfoHash, mark)
		if item.Filename != "" {
			line += " -> " + item.Filename
		}
		if item.Error != "" {
			line += " (" + item.Error + ")"
		}
		p.Printf("%s\n", line)
	}
}
