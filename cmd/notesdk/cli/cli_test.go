package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srbot/notesdk/sdk/config"
)

const calibrationBody = `{"success":true,"total":2,"success_count":1,"fail_count":1,"results":[` +
	`{"success":true,"info_hash":"AAA","filename":"a.iso"},{"success":false,"info_hash":"BBB","error":"no peers"}]}`

type fakeAPI struct {
	submits atomic.Int32
	syncs   atomic.Int32
}

func (f *fakeAPI) start(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/calibrate/async", func(w http.ResponseWriter, r *http.Request) {
		f.submits.Add(1)
		_, _ = io.WriteString(w, `{"success":true,"task_id":"t-1","status":"pending"}`)
	})
	mux.HandleFunc("GET /api/calibrate/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"success":false,"error":"Task not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"task_id":"`+id+`","status":"completed","created_at":1700000000.5,"result":`+calibrationBody+`}`)
	})
	mux.HandleFunc("POST /api/calibrate/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.syncs.Add(1)
		_, _ = io.WriteString(w, calibrationBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProfileCommand(t *testing.T) {
	out, err := run(t, "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "Online: true")
	assert.Contains(t, out, "Type: 4g")
	assert.Contains(t, out, "Timeout: 5s")
	assert.Contains(t, out, "Retries: 1")
}

func TestSubmitCommand(t *testing.T) {
	api := &fakeAPI{}
	base := api.start(t)

	out, err := run(t, "--base-url", base, "submit", "--note", "42")
	require.NoError(t, err)
	assert.Equal(t, "t-1\n", out)
	assert.Equal(t, int32(1), api.submits.Load())

	_, err = run(t, "--base-url", base, "submit")
	assert.Error(t, err)
	_, err = run(t, "--base-url", base, "submit", "--note", "1", "--info-hash", "AAA")
	assert.Error(t, err)
}

func TestStatusCommand(t *testing.T) {
	api := &fakeAPI{}
	base := api.start(t)

	out, err := run(t, "--base-url", base, "status", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Task abc:")
	assert.Contains(t, out, "Status: completed")
	assert.Contains(t, out, "Calibrated: 1/2 (1 failed)")
	assert.Contains(t, out, "BBB failed (no peers)")

	_, err = run(t, "--base-url", base, "status", "missing")
	assert.Error(t, err)
}

func TestPollCommand(t *testing.T) {
	api := &fakeAPI{}
	base := api.start(t)

	out, err := run(t, "--base-url", base, "poll", "--quiet", "a", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "Task a:")
	assert.Contains(t, out, "Task b:")

	out, err = run(t, "--base-url", base, "poll", "--quiet", "a", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out, "Task missing:")
}

func TestCalibrateCommand(t *testing.T) {
	api := &fakeAPI{}
	base := api.start(t)

	out, err := run(t, "--base-url", base, "calibrate", "--quiet", "--note", "1,2", "--rate", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "Note 1 (async task t-1):")
	assert.Contains(t, out, "Note 2 (async task t-1):")
	assert.Equal(t, int32(2), api.submits.Load())
	assert.Equal(t, int32(0), api.syncs.Load())

	out, err = run(t, "--base-url", base, "calibrate", "--sync", "--note", "3", "--rate", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "Note 3 (sync):")
	assert.Equal(t, int32(1), api.syncs.Load())

	_, err = run(t, "--base-url", base, "calibrate")
	assert.Error(t, err)
}

func TestConcurrencyMustBePositive(t *testing.T) {
	api := &fakeAPI{}
	base := api.start(t)

	for _, args := range [][]string{
		{"--base-url", base, "poll", "--quiet", "--concurrency", "0", "a"},
		{"--base-url", base, "calibrate", "--quiet", "--note", "1", "--concurrency", "-1"},
	} {
		done := make(chan error, 1)
		go func() {
			_, err := run(t, args...)
			done <- err
		}()
		select {
		case err := <-done:
			require.Error(t, err)
			assert.Contains(t, err.Error(), "--concurrency")
		case <-time.After(5 * time.Second):
			t.Fatalf("%v did not return", args)
		}
	}
	assert.Equal(t, int32(0), api.submits.Load())
}

func TestConfigInitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "notesdk.yml")

	out, err := run(t, "--base-url", "https://notes.example", "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://notes.example", cfg.BaseURL)

	_, err = run(t, "config", "init", path)
	assert.Error(t, err)
	_, err = run(t, "config", "init", "--force", path)
	assert.NoError(t, err)
}

func TestConfigFileIsUsed(t *testing.T) {
	api := &fakeAPI{}
	base := api.start(t)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.BaseURL = base
	require.NoError(t, config.Write(filepath.Join(dir, defaultConfigFileName), cfg))

	// A directory resolves to the default file name inside it.
	out, err := run(t, "--config", dir, "submit", "--info-hash", "AAA")
	require.NoError(t, err)
	assert.Equal(t, "t-1\n", out)
}

func TestNormalizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("NOTESDK_TEST_DIR", "/srv/notes")

	assert.Equal(t, filepath.Join(home, "x.yml"), NormalizePath("~/x.yml"))
	assert.Equal(t, "/srv/notes/c.yml", NormalizePath("$NOTESDK_TEST_DIR/c.yml"))
	assert.Equal(t, "/a/b", NormalizePath("/a/./b/"))
}
