package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/srbot/notesdk/pkg/logtrace"
	"github.com/srbot/notesdk/sdk/net"
)

// NotePayload asks the server to calibrate every magnet link of a note.
type NotePayload struct {
	NoteID int64 `json:"note_id"`
}

// InfoHashPayload asks the server to resolve the filename of one torrent.
type InfoHashPayload struct {
	InfoHash string `json:"info_hash"`
}

// CalibrationItem is the outcome for one magnet link.
type CalibrationItem struct {
	Success  bool   `json:"success"`
	InfoHash string `json:"info_hash"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CalibrationResult is the payload of a finished note calibration.
type CalibrationResult struct {
	Success      bool              `json:"success"`
	Total        int               `json:"total"`
	SuccessCount int               `json:"success_count"`
	FailCount    int               `json:"fail_count"`
	Results      []CalibrationItem `json:"results"`
	Error        string            `json:"error,omitempty"`
}

// CalibrationError is a calibration the server ran but could not complete.
type CalibrationError struct {
	NoteID     int64
	StatusCode int
	Message    string
	Err        error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration of note %d failed: %s", e.NoteID, e.Message)
}

func (e *CalibrationError) Unwrap() error { return e.Err }

func (c *Client) SubmitNoteCalibration(ctx context.Context, noteID int64) (string, error) {
	if noteID <= 0 {
		return "", &SubmissionError{Message: "note id must be positive"}
	}
	ctx = logtrace.CtxWithOrigin(ctx, "calibrate")
	return c.Submit(ctx, NotePayload{NoteID: noteID})
}

func (c *Client) SubmitInfoHashCalibration(ctx context.Context, infoHash string) (string, error) {
	infoHash = strings.TrimSpace(infoHash)
	if infoHash == "" {
		return "", &SubmissionError{Message: "info hash must be a non-empty string"}
	}
	ctx = logtrace.CtxWithOrigin(ctx, "calibrate")
	return c.Submit(ctx, InfoHashPayload{InfoHash: infoHash})
}

// CalibrateSync runs a note calibration inside a single request. It is the
// fallback when the asynchronous endpoint is not usable. A non-positive
// timeout uses the client default.
func (c *Client) CalibrateSync(ctx context.Context, noteID int64, timeout time.Duration) (*CalibrationResult, error) {
	if c.endpoints.CalibrateSync == "" {
		return nil, fmt.Errorf("task: synchronous calibration endpoint not configured")
	}
	timeout = orDuration(timeout, c.syncTimeout)

	endpoint := strings.TrimRight(c.endpoints.CalibrateSync, "/") + "/" + strconv.FormatInt(noteID, 10)
	h := http.Header{}
	h.Set("Accept", "application/json")

	logtrace.Info(ctx, "Running synchronous calibration", logtrace.Fields{
		logtrace.FieldModule: "task",
		logtrace.FieldNoteID: noteID,
	})
	resp, err := c.fetcher.FetchWithRetry(ctx, endpoint, net.Request{Method: http.MethodPost, Header: h},
		net.WithTimeout(timeout),
		net.WithMaxRetries(c.syncRetries),
	)
	if err != nil {
		var httpErr *net.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &CalibrationError{NoteID: noteID, StatusCode: httpErr.StatusCode, Message: serverMessage(httpErr.Body, httpErr.Status), Err: err}
		}
		return nil, err
	}

	var result CalibrationResult
	decodeErr := resp.JSON(&result)
	if !resp.OK() {
		msg := result.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, &CalibrationError{NoteID: noteID, StatusCode: resp.StatusCode, Message: msg, Err: resp.Err()}
	}
	if decodeErr != nil {
		return nil, &CalibrationError{NoteID: noteID, StatusCode: resp.StatusCode, Message: "malformed response", Err: decodeErr}
	}
	if !result.Success {
		return &result, &CalibrationError{NoteID: noteID, StatusCode: resp.StatusCode, Message: nonEmpty(result.Error, "calibration unsuccessful")}
	}
	return &result, nil
}

// CalibrationResult decodes the result of a completed note calibration.
func (s *Status) CalibrationResult() (*CalibrationResult, error) {
	var r CalibrationResult
	if err := s.DecodeResult(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Filename decodes the result of a completed info-hash calibration.
func (s *Status) Filename() (string, error) {
	var name string
	if err := s.DecodeResult(&name); err != nil {
		return "", err
	}
	return name, nil
}

// IsCalibrationResult reports whether the result payload is an object.
func (s *Status) IsCalibrationResult() bool {
	return len(s.Result) > 0 && json.Get(s.Result).ValueType() == json.ObjectValue
}

// serverMessage extracts the "error" field of a JSON error body.
func serverMessage(body []byte, fallback string) string {
	if len(body) == 0 {
		return fallback
	}
	if msg := json.Get(body, "error").ToString(); msg != "" {
		return msg
	}
	return fallback
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
