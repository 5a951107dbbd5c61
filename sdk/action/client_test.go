package action_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/srbot/notesdk/sdk/action"
	"github.com/srbot/notesdk/sdk/config"
	"github.com/srbot/notesdk/sdk/event"
	"github.com/srbot/notesdk/sdk/net"
	"github.com/srbot/notesdk/sdk/netprofile"
	"github.com/srbot/notesdk/sdk/netprofile/mocks"
	"github.com/srbot/notesdk/sdk/task"
)

const resultBody = `{"success":true,"total":1,"success_count":1,"fail_count":0,"results":[{"success":true,"info_hash":"AAA","filename":"a.iso"}]}`

type server struct {
	submitCode int
	submitBody string
	hits       atomic.Int32
	syncHits   atomic.Int32

	mu     sync.Mutex
	tokens []string
}

func (s *server) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/calibrate/async", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		s.tokens = append(s.tokens, r.Header.Get("X-CSRFToken"))
		s.mu.Unlock()
		w.WriteHeader(s.submitCode)
		_, _ = io.WriteString(w, s.submitBody)
	})
	mux.HandleFunc("GET /api/calibrate/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		switch r.PathValue("id") {
		case "hash-task":
			_, _ = io.WriteString(w, `{"success":true,"task_id":"hash-task","status":"completed","result":"movie.mkv"}`)
		default:
			_, _ = io.WriteString(w, `{"success":true,"task_id":"`+r.PathValue("id")+`","status":"completed","result":`+resultBody+`}`)
		}
	})
	mux.HandleFunc("POST /api/calibrate/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.syncHits.Add(1)
		_, _ = io.WriteString(w, resultBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.CSRF.Token = "tok"
	cfg.Tasks.PollInterval = 10 * time.Millisecond
	return cfg
}

func TestCalibrateNoteAsync(t *testing.T) {
	s := &server{submitCode: http.StatusOK, submitBody: `{"success":true,"task_id":"t-1","status":"pending"}`}
	srv := s.start(t)

	client, err := action.NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []event.EventType
	client.SubscribeToAllEvents(func(e event.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	out, err := client.CalibrateNote(context.Background(), 7, task.PollOptions{})
	require.NoError(t, err)
	client.Close()

	assert.Equal(t, "t-1", out.TaskID)
	assert.False(t, out.Sync)
	assert.Equal(t, 1, out.Result.SuccessCount)
	assert.Equal(t, int32(0), s.syncHits.Load())
	assert.Empty(t, client.ActiveSessions())
	s.mu.Lock()
	assert.Equal(t, []string{"tok"}, s.tokens)
	s.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, event.TaskSubmitted)
	assert.Contains(t, seen, event.TaskCompleted)
}

func TestCalibrateNoteFallsBackToSync(t *testing.T) {
	s := &server{submitCode: http.StatusServiceUnavailable, submitBody: `{"success":false,"error":"queue full"}`}
	srv := s.start(t)

	cfg := testConfig(srv.URL)
	cfg.Tasks.SubmitRetries = 0
	client, err := action.NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	out, err := client.CalibrateNote(context.Background(), 7, task.PollOptions{})
	require.NoError(t, err)

	assert.True(t, out.Sync)
	assert.Empty(t, out.TaskID)
	assert.Equal(t, "a.iso", out.Result.Results[0].Filename)
	assert.Equal(t, int32(1), s.syncHits.Load())
}

func TestCalibrateInfoHash(t *testing.T) {
	s := &server{submitCode: http.StatusOK, submitBody: `{"success":true,"task_id":"hash-task"}`}
	srv := s.start(t)

	client, err := action.NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	defer client.Close()

	name, err := client.CalibrateInfoHash(context.Background(), "ABC", task.PollOptions{})
	require.NoError(t, err)
	assert.Equal(t, "movie.mkv", name)

	_, err = client.CalibrateInfoHash(context.Background(), " ", task.PollOptions{})
	assert.ErrorIs(t, err, action.ErrEmptyInfoHash)
}

func TestOfflineNeverTouchesNetwork(t *testing.T) {
	s := &server{submitCode: http.StatusOK, submitBody: `{"success":true,"task_id":"t-1"}`}
	srv := s.start(t)

	ctrl := gomock.NewController(t)
	cond := mocks.NewMockConditions(ctrl)
	cond.EXPECT().Online(gomock.Any()).Return(false).AnyTimes()
	cond.EXPECT().Signal(gomock.Any()).Return(netprofile.Signal{}).AnyTimes()

	client, err := action.NewClient(testConfig(srv.URL), action.WithConditions(cond))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.CalibrateNote(context.Background(), 7, task.PollOptions{})
	assert.ErrorIs(t, err, net.ErrNetworkUnavailable)

	_, err = client.FetchWithRetry(context.Background(), srv.URL+"/anything", net.Request{})
	assert.ErrorIs(t, err, net.ErrNetworkUnavailable)
	assert.Equal(t, int32(0), s.hits.Load())
	assert.False(t, client.Online(context.Background()))
}

func TestConnectionProfileFromConfig(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Network.Timeouts["3g"] = 12 * time.Second

	cond := netprofile.StaticConditions{Sig: netprofile.Signal{Available: true, EffectiveType: "3g"}}
	client, err := action.NewClient(cfg, action.WithConditions(cond))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	assert.Equal(t, netprofile.Kind3G, client.DetectConnectionType(ctx))
	assert.Equal(t, 12*time.Second, client.APITimeout(ctx))
	assert.Equal(t, 2, client.RetryCount(ctx))
	assert.False(t, client.WatchNetwork(ctx))
}

func TestInvalidInputs(t *testing.T) {
	bad := config.Default()
	bad.BaseURL = ""
	_, err := action.NewClient(bad)
	assert.Error(t, err)

	client, err := action.NewClient(testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.CalibrateNote(context.Background(), 0, task.PollOptions{})
	assert.ErrorIs(t, err, action.ErrInvalidNoteID)
	_, err = client.FetchWithRetry(context.Background(), "", net.Request{})
	assert.ErrorIs(t, err, action.ErrEmptyURL)
}

func TestCalibrateNoteSync(t *testing.T) {
	s := &server{submitCode: http.StatusOK}
	srv := s.start(t)

	client, err := action.NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	defer client.Close()

	res, err := client.CalibrateNoteSync(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, int32(1), s.syncHits.Load())

	_, err = client.CalibrateNoteSync(context.Background(), -1)
	assert.ErrorIs(t, err, action.ErrInvalidNoteID)
}
