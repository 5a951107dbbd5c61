package net

import (
	"net/http"

	json "github.com/json-iterator/go"
)

// Response is a fully buffered HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Err returns an *HTTPError unless the status is 2xx.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &HTTPError{URL: r.URL, StatusCode: r.StatusCode, Status: r.Status, Body: r.Body}
}
