// Package store holds the resource stores: cache-first, network-backed access
// to each backend entity type with single-flight reads and optimistic writes.
//
// Every cached read comes in two forms. Get blocks until the value is known and
// honours ctx as its cancellation handle. Watch attaches to the same cache slot,
// delivers its current value at once and every later change, and starts a load
// in the background when the slot is still empty.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"routemaster/internal/api"
	"routemaster/internal/metrics"

	"go.uber.org/zap"
)

// ErrNotFound backend answered 2xx without the requested entity.
var ErrNotFound = errors.New("entity not found")

// Backend is the transport the stores talk to; *api.Client implements it.
type Backend interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Put(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string, query url.Values, body any) error
}

// canceledErr wraps a caller's ctx error so api.IsCanceled holds for it.
func canceledErr(err error) error {
	if err == nil {
		err = context.Canceled
	}
	return fmt.Errorf("%w: %w", api.ErrCanceled, err)
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Notifier surfaces user-facing messages (toast, banner, CLI stderr).
type Notifier interface {
	Notify(severity Severity, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(severity Severity, message string)

func (f NotifierFunc) Notify(severity Severity, message string) { f(severity, message) }

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(severity Severity, message string) {
	if n.Logger == nil {
		return
	}
	if severity == SeverityError {
		n.Logger.Warn(message, zap.String("severity", string(severity)))
		return
	}
	n.Logger.Info(message, zap.String("severity", string(severity)))
}

// Options shared by every store.
type Options struct {
	Notifier Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

type base struct {
	client   Backend
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
	bg       *background
}

func newBase(client Backend, opts Options, name string) base {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("store", name))
	notifier := opts.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return base{
		client:   client,
		notifier: notifier,
		logger:   logger,
		metrics:  opts.Metrics,
		bg:       newBackground(logger),
	}
}

// handleError is the uniform failure path. It logs err, notifies the user and
// wraps err with op. Cancellation is passed through untouched and never notified.
func (b *base) handleError(err error, op, fallback string, fields ...zap.Field) error {
	if api.IsCanceled(err) {
		b.logger.Debug("Operation canceled", append(fields, zap.String("op", op))...)
		return err
	}
	b.logger.Error("Operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
	b.notifier.Notify(SeverityError, userMessage(err, fallback))
	return fmt.Errorf("%s: %w", op, err)
}

func (b *base) notifySuccess(message string) {
	b.notifier.Notify(SeveritySuccess, message)
}

// userMessage picks the operation's own message, else whatever the error carries.
func userMessage(err error, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if msg := api.Message(err); msg != "" {
		return msg
	}
	return "Unknown error occurred"
}

// background runs follow-up refreshes that outlive the call that triggered them.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newBackground(logger *zap.Logger) *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel, logger: logger}
}

// Go runs fn on the store's background context. Errors are logged only; fn is
// expected to have notified already.
func (b *background) Go(name string, fn func(ctx context.Context) error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		if err := fn(b.ctx); err != nil && !api.IsCanceled(err) {
			b.logger.Warn("Background refresh failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until every started task returned.
func (b *background) Wait() { b.wg.Wait() }

// Close cancels running tasks and waits for them. Later Go calls are dropped.
func (b *background) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
	b.wg.Wait()
}

// watchLoad kicks off the first load of an empty slot on behalf of a watcher.
// Failures reach the watcher through its error callback.
func (b *base) watchLoad(name string, empty bool, load func(ctx context.Context) error) {
	if !empty {
		return
	}
	b.bg.Go(name, load)
}
