package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind separates failures that never reached the backend from failures the
// backend answered.
type Kind int

const (
	KindApplication Kind = iota + 1 // non-2xx response received
	KindNetwork                     // no response: refused, reset, aborted or timed out
)

func (k Kind) String() string {
	switch k {
	case KindApplication:
		return "application"
	case KindNetwork:
		return "network"
	}
	return "unknown"
}

// ErrCanceled marks a request abandoned by its caller. It is not a failure:
// stores neither notify nor roll forward on it. errors.Is(err, context.Canceled)
// also holds for every canceled request.
var ErrCanceled = errors.New("request canceled")

// Error uniform {message, status?} failure shape
type Error struct {
	Kind    Kind
	Status  int // 0 for network errors
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNetwork reports whether err is a network-class failure.
func IsNetwork(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindNetwork
}

// IsCanceled reports whether err is a benign cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Message returns the user-facing message carried by err.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func canceled() error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Canceled)
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: "network error: " + err.Error(), Err: err}
}

// applicationError extracts the message from a JSON error body. ASP.NET style
// problem details ("title"/"detail") are understood as well.
func applicationError(status int, body []byte) *Error {
	var payload struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Detail != "":
			msg = payload.Detail
		case payload.Title != "":
			msg = payload.Title
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		msg = text
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d %s", status, http.StatusText(status))
	}
	return &Error{Kind: KindApplication, Status: status, Message: msg}
}
