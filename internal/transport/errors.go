package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RequestError carries a non-success response. Code is the server's
// error enum and Message its free-form text; neither is user-facing
// without translation by the caller.
type RequestError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *RequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Code != "":
		return e.Code
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func newRequestError(resp *http.Response) *RequestError {
	reqErr := &RequestError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || json.Unmarshal(raw, reqErr) != nil || (reqErr.Code == "" && reqErr.Message == "") {
		// non-JSON error body, fall back to the status text
		reqErr.Message = http.StatusText(resp.StatusCode)
	}

	return reqErr
}

// StatusOf returns the HTTP status carried by err, or zero if err is
// not a RequestError.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// CodeOf returns the server error enum carried by err, if any.
func CodeOf(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code
	}
	return ""
}

func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}
