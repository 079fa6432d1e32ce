// Package asyncstore provides a uniform asynchronous facade over
// loam.Store: every call submits a job to a single background worker
// instead of executing inline, and the calling goroutine waits until its
// job has run (or its context is done), then gets the job's return
// values directly.
package asyncstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/basincode/loam"
)

// job is one unit of work handed to the single worker goroutine. Each
// job's fn closes over whatever it needs from the call site and reports
// its result on done.
type job struct {
	fn   func()
	done chan struct{}
}

// Store wraps a *loam.Store with a single-actor job queue: every
// operation runs on the same goroutine, in submission order, so the
// underlying Store's critical section is never contended from this
// package's own concurrency, only from whatever direct callers of the
// wrapped *loam.Store might also exist.
type Store struct {
	inner *loam.Store

	queue  chan job
	wg     sync.WaitGroup
	closed chan struct{}
}

// New starts the worker goroutine and returns a Store wrapping inner.
// queueDepth bounds how many pending jobs the queue buffers before a
// call blocks on handing its job over; 0 means synchronous handoff.
func New(inner *loam.Store, queueDepth int) *Store {
	s := &Store{
		inner:  inner,
		queue:  make(chan job, queueDepth),
		closed: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Store) run() {
	defer s.wg.Done()
	for j := range s.queue {
		j.fn()
		close(j.done)
	}
}

// submit enqueues fn and blocks until it has run, unless ctx is
// cancelled first. Cancellation before the job is accepted onto the
// queue keeps it from running. Once accepted, the job always runs to
// completion on the worker goroutine; a cancellation after that point
// only stops the caller from waiting, and the job's result is dropped.
func (s *Store) submit(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j := job{fn: fn, done: make(chan struct{})}
	select {
	case <-s.closed:
		return fmt.Errorf("asyncstore: %w", loam.ErrClosed)
	default:
	}
	select {
	case s.queue <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return fmt.Errorf("asyncstore: %w", loam.ErrClosed)
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IngestDocument runs loam.Store.IngestDocument on the worker goroutine.
func (s *Store) IngestDocument(ctx context.Context, doc loam.Document, isLocal bool) (loam.IngestResult, error) {
	var (
		result loam.IngestResult
		err    error
	)
	if subErr := s.submit(ctx, func() {
		result, err = s.inner.IngestDocument(ctx, doc, isLocal)
	}); subErr != nil {
		return 0, subErr
	}
	return result, err
}

// Set runs loam.Store.Set on the worker goroutine.
func (s *Store) Set(ctx context.Context, keypair loam.Keypair, docToSet loam.Document) (loam.IngestResult, error) {
	var (
		result loam.IngestResult
		err    error
	)
	if subErr := s.submit(ctx, func() {
		result, err = s.inner.Set(ctx, keypair, docToSet)
	}); subErr != nil {
		return 0, subErr
	}
	return result, err
}

// Documents runs loam.Store.Documents on the worker goroutine.
func (s *Store) Documents(ctx context.Context, query loam.Query) ([]loam.Document, error) {
	var (
		docs []loam.Document
		err  error
	)
	if subErr := s.submit(ctx, func() {
		docs, err = s.inner.Documents(ctx, query)
	}); subErr != nil {
		return nil, subErr
	}
	return docs, err
}

// Paths runs loam.Store.Paths on the worker goroutine.
func (s *Store) Paths(ctx context.Context, query loam.Query) ([]string, error) {
	var (
		paths []string
		err   error
	)
	if subErr := s.submit(ctx, func() {
		paths, err = s.inner.Paths(ctx, query)
	}); subErr != nil {
		return nil, subErr
	}
	return paths, err
}

// Contents runs loam.Store.Contents on the worker goroutine.
func (s *Store) Contents(ctx context.Context, query loam.Query) ([]string, error) {
	var (
		contents []string
		err      error
	)
	if subErr := s.submit(ctx, func() {
		contents, err = s.inner.Contents(ctx, query)
	}); subErr != nil {
		return nil, subErr
	}
	return contents, err
}

// Authors runs loam.Store.Authors on the worker goroutine.
func (s *Store) Authors(ctx context.Context) ([]string, error) {
	var (
		authors []string
		err     error
	)
	if subErr := s.submit(ctx, func() {
		authors, err = s.inner.Authors(ctx)
	}); subErr != nil {
		return nil, subErr
	}
	return authors, err
}

// GetDocument runs loam.Store.GetDocument on the worker goroutine.
func (s *Store) GetDocument(ctx context.Context, path string) (loam.Document, bool, error) {
	var (
		doc   loam.Document
		found bool
		err   error
	)
	if subErr := s.submit(ctx, func() {
		doc, found, err = s.inner.GetDocument(ctx, path)
	}); subErr != nil {
		return loam.Document{}, false, subErr
	}
	return doc, found, err
}

// GetContent runs loam.Store.GetContent on the worker goroutine.
func (s *Store) GetContent(ctx context.Context, path string) (string, bool, error) {
	var (
		content string
		found   bool
		err     error
	)
	if subErr := s.submit(ctx, func() {
		content, found, err = s.inner.GetContent(ctx, path)
	}); subErr != nil {
		return "", false, subErr
	}
	return content, found, err
}

// ExpireNow runs loam.Store.ExpireNow on the worker goroutine.
func (s *Store) ExpireNow(ctx context.Context) (int, error) {
	var (
		n   int
		err error
	)
	if subErr := s.submit(ctx, func() {
		n, err = s.inner.ExpireNow(ctx)
	}); subErr != nil {
		return 0, subErr
	}
	return n, err
}

// Subscribe registers obs directly against the wrapped Store; observer
// dispatch happens synchronously inside whatever goroutine performed
// the ingest (the worker, for calls made through this facade), not on a
// separate notification channel.
func (s *Store) Subscribe(obs loam.Observer) (unsubscribe func()) {
	return s.inner.Subscribe(obs)
}

// Close drains the job queue, stops the worker, and closes the
// underlying Store. A second call returns loam.ErrAlreadyClosed.
func (s *Store) Close(ctx context.Context, opt loam.CloseOption) error {
	select {
	case <-s.closed:
		return loam.ErrAlreadyClosed
	default:
	}

	var err error
	subErr := s.submit(ctx, func() {
		err = s.inner.Close(ctx, opt)
	})
	close(s.closed)
	close(s.queue)
	s.wg.Wait()
	if subErr != nil {
		return subErr
	}
	return err
}
