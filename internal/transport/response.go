package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// FailureStatus is the status code reported for transport-level failures.
const FailureStatus = http.StatusInternalServerError

// Body is a decoded JSON response object.
type Body map[string]any

// ParseBody decodes b as a JSON object. Anything else yields an empty Body.
func ParseBody(b []byte) Body {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return Body{}
	}
	return m
}

// Success reports the boolean "success" field.
func (b Body) Success() bool {
	v, _ := b["success"].(bool)
	return v
}

// Message returns the "msg" field as text.
func (b Body) Message() string {
	switch v := b["msg"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Response is the uniform shape of every remote call.
type Response struct {
	StatusCode int
	Body       Body
	Content    []byte
	stream     io.ReadCloser
}

// OK reports a 200 status.
func (r Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Stream returns the streamed body of a download. It is never nil; the caller
// must close it.
func (r Response) Stream() io.ReadCloser {
	if r.stream == nil {
		return io.NopCloser(bytes.NewReader(r.Content))
	}
	return r.stream
}

// Close releases a streamed body, if any.
func (r Response) Close() error {
	if r.stream == nil {
		return nil
	}
	return r.stream.Close()
}

// Result is either a well-formed Response or a transport failure. On failure
// Err is set and Response holds the synthetic 500 reply with an empty body.
type Result struct {
	Response
	URL string
	Err error
}

// Failed reports whether the call never produced an HTTP response.
func (r Result) Failed() bool {
	return r.Err != nil
}

func failure(url string, err error) Result {
	return Result{
		Response: Response{
			StatusCode: FailureStatus,
			Body:       Body{},
			Content:    []byte{},
		},
		URL: url,
		Err: err,
	}
}
