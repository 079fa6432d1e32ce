package loam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/basincode/loam/internal/config"
	"github.com/basincode/loam/internal/logging"
	"github.com/basincode/loam/internal/metrics"
)

// IngestResult is the outcome of IngestDocument or Set.
type IngestResult int

const (
	// Ignored means the slot already held a document that was equal or
	// newer; no write occurred and no event was published.
	Ignored IngestResult = iota
	// Accepted means the document was written and an event published.
	Accepted
)

func (r IngestResult) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "ignored"
}

// Option configures a Store at construction time. Every Option is
// optional: a Store built with none is fully usable in unit tests.
type Option func(*Store)

// WithClock overrides the store's notion of "now" (microseconds since
// epoch) for every time-dependent decision: ingestion checks, expiry,
// and the set() bump. Tests use this instead of sleeping.
func WithClock(clock func() int64) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger attaches a structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics attaches a prometheus recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Store) { s.metrics = r }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// WithDefaultLimit overrides the Limit a Paths/Documents query gets when
// it specifies none (Limit == 0 means "no limit specified", not "zero
// results"). Open seeds this from internal/config.Default(); use
// OpenFromEnv to seed it from the process environment instead.
func WithDefaultLimit(n int) Option {
	return func(s *Store) { s.defaultLimit = n }
}

// Store is the workspace-scoped storage engine: it holds a Driver and a
// set of Validators, enforces the ingestion merge rule, and serves
// queries. A *Store is safe for concurrent use.
type Store struct {
	driver       Driver
	validators   map[string]Validator
	workspace    string
	clock        func() int64
	defaultLimit int

	observers observerSet
	logger    *logging.Logger
	metrics   *metrics.Recorder
	tracer    trace.Tracer

	mu     sync.RWMutex
	closed bool
}

// Open constructs a Store bound to one workspace and one driver. At
// least one validator is required, and at least one validator must
// accept the workspace address, or Open fails with a ValidationError
// wrapping the first rejecting validator's message.
func Open(ctx context.Context, driver Driver, validators []Validator, workspace string, opts ...Option) (*Store, error) {
	if len(validators) == 0 {
		return nil, ErrNoValidators
	}

	byFormat := make(map[string]Validator, len(validators))
	for _, v := range validators {
		byFormat[v.Format()] = v
	}

	var firstErr error
	accepted := false
	for _, v := range validators {
		if err := v.CheckWorkspaceIsValid(workspace); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		accepted = true
		break
	}
	if !accepted {
		return nil, &ValidationError{Reason: fmt.Errorf("%w: %v", ErrWorkspaceRejected, firstErr)}
	}

	s := &Store{
		driver:       driver,
		validators:   byFormat,
		workspace:    workspace,
		clock:        nil,
		defaultLimit: config.Default().DefaultLimit,
		logger:       logging.Nop(),
		metrics:      metrics.Nop(),
		tracer:       tracenoop.NewTracerProvider().Tracer("loam"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := driver.Begin(ctx, workspace); err != nil {
		return nil, fmt.Errorf("loam: driver begin: %w", err)
	}
	return s, nil
}

// OpenFromEnv reads LOAM_* environment variables via internal/config,
// constructs the selected Driver (LOAM_DRIVER, LOAM_SQLITE_PATH), and
// opens a Store against it with LOAM_DEFAULT_LIMIT as the default query
// limit and a logger built from LOAM_LOG_LEVEL/LOAM_LOG_FORMAT. opts are
// applied after the environment-derived options, so they take priority.
func OpenFromEnv(ctx context.Context, validators []Validator, workspace string, opts ...Option) (*Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loam: loading config: %w", err)
	}

	driver, err := NewDriver(DriverConfig{Kind: cfg.Driver, SQLitePath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("loam: constructing driver: %w", err)
	}

	logger, err := logging.NewLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("loam: constructing logger: %w", err)
	}

	envOpts := append([]Option{WithDefaultLimit(cfg.DefaultLimit), WithLogger(logger)}, opts...)
	return Open(ctx, driver, validators, workspace, envOpts...)
}

func (s *Store) now() int64 {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UnixMicro()
}

// IsClosed reports whether Close has been called successfully.
func (s *Store) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close marks the store closed and releases the driver. A second call
// returns ErrAlreadyClosed.
func (s *Store) Close(ctx context.Context, opt CloseOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	if err := s.driver.Close(ctx, opt); err != nil {
		return fmt.Errorf("loam: driver close: %w", err)
	}
	s.closed = true
	return nil
}

// ---- read operations ----

// Authors returns the sorted, deduplicated set of authors with at least
// one live document.
func (s *Store) Authors(ctx context.Context) ([]string, error) {
	ctx, span := s.startSpan(ctx, "loam.authors")
	defer span.End()
	defer s.timeQuery("authors")()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	authors, err := s.driver.Authors(ctx, s.now())
	return authors, s.endSpan(span, err)
}

// Paths returns the sorted, deduplicated paths matching query. LimitBytes
// is ignored for this operation (see Driver.PathQuery).
func (s *Store) Paths(ctx context.Context, query Query) ([]string, error) {
	ctx, span := s.startSpan(ctx, "loam.paths")
	defer span.End()
	defer s.timeQuery("paths")()

	cleaned, ok := query.CleanUp()
	if !ok {
		return nil, nil
	}
	if cleaned.Limit == 0 {
		cleaned.Limit = s.defaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	paths, err := s.driver.PathQuery(ctx, cleaned, s.now())
	return paths, s.endSpan(span, err)
}

// Documents returns documents matching query, sorted in history order,
// with Limit/LimitBytes applied.
func (s *Store) Documents(ctx context.Context, query Query) ([]Document, error) {
	ctx, span := s.startSpan(ctx, "loam.documents")
	defer span.End()
	defer s.timeQuery("documents")()

	cleaned, ok := query.CleanUp()
	if !ok {
		return nil, nil
	}
	if cleaned.Limit == 0 {
		cleaned.Limit = s.defaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	docs, err := s.driver.DocumentQuery(ctx, cleaned, s.now())
	return docs, s.endSpan(span, err)
}

// Contents returns the Content field of each document matching query, in
// the same order Documents would.
func (s *Store) Contents(ctx context.Context, query Query) ([]string, error) {
	docs, err := s.Documents(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Content
	}
	return out, nil
}

// GetDocument returns the latest live document at path, or ok=false if
// none exists.
func (s *Store) GetDocument(ctx context.Context, path string) (doc Document, ok bool, err error) {
	docs, err := s.Documents(ctx, Query{Path: &path, History: HistoryLatest, Limit: 1})
	if err != nil {
		return Document{}, false, err
	}
	if len(docs) == 0 {
		return Document{}, false, nil
	}
	return docs[0], true, nil
}

// GetContent returns the Content of the latest live document at path, or
// ok=false if none exists.
func (s *Store) GetContent(ctx context.Context, path string) (content string, ok bool, err error) {
	doc, ok, err := s.GetDocument(ctx, path)
	if err != nil || !ok {
		return "", ok, err
	}
	return doc.Content, true, nil
}

// ExpireNow forces an eager expiry sweep, returning how many documents
// were reclaimed. The store never starts background goroutines itself;
// a caller that wants periodic reclamation calls this on a timer.
func (s *Store) ExpireNow(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.driver.RemoveExpiredDocs(ctx, s.now())
	s.metrics.ObserveExpiredReclaimed(n)
	return n, err
}

// ---- config pass-through (§6.3) ----

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.driver.SetConfig(ctx, key, value)
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	return s.driver.GetConfig(ctx, key)
}

func (s *Store) DeleteConfig(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.driver.DeleteConfig(ctx, key)
}

func (s *Store) DeleteAllConfig(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.driver.DeleteAllConfig(ctx)
}

// ---- write observer (§6.1) ----

// Subscribe registers obs to receive every accepted write's WriteEvent,
// synchronously, in ingest-completion order. The returned function
// unregisters it.
func (s *Store) Subscribe(obs Observer) (unsubscribe func()) {
	return s.observers.subscribe(obs)
}

// ---- write operations ----

// IngestDocument validates and merges doc into the store per the
// last-write-wins discipline described in SPEC_FULL.md §4.1. isLocal is
// forwarded verbatim into the resulting WriteEvent.
func (s *Store) IngestDocument(ctx context.Context, doc Document, isLocal bool) (IngestResult, error) {
	ctx, span := s.startSpan(ctx, "loam.ingest")
	defer span.End()

	validator, ok := s.validators[doc.Format]
	if !ok {
		err := validationErr(doc, ErrUnknownFormat)
		s.metrics.ObserveWrite(metrics.OutcomeInvalid)
		s.logger.Warn("document rejected", zap.String("format", doc.Format), zap.String("path", doc.Path), zap.String("author", doc.Author), zap.Error(err))
		return 0, s.endSpan(span, err)
	}

	now := s.now()
	if err := validator.CheckDocumentIsValid(doc, now); err != nil {
		verr := validationErr(doc, err)
		s.metrics.ObserveWrite(metrics.OutcomeInvalid)
		s.logger.Warn("document rejected", zap.String("format", doc.Format), zap.String("path", doc.Path), zap.String("author", doc.Author), zap.Error(verr))
		return 0, s.endSpan(span, verr)
	}
	if doc.Workspace != s.workspace {
		verr := validationErr(doc, fmt.Errorf("document workspace %q does not match store workspace %q", doc.Workspace, s.workspace))
		s.metrics.ObserveWrite(metrics.OutcomeInvalid)
		s.logger.Warn("document rejected", zap.String("format", doc.Format), zap.String("path", doc.Path), zap.String("author", doc.Author), zap.Error(verr))
		return 0, s.endSpan(span, verr)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, s.endSpan(span, ErrClosed)
	}
	accepted, isLatest, stored, err := s.ingestLocked(ctx, doc, now)
	s.mu.Unlock()
	if err != nil {
		return 0, s.endSpan(span, err)
	}

	if !accepted {
		s.metrics.ObserveWrite(metrics.OutcomeIgnored)
		s.logger.Debug("document ignored", zap.String("path", doc.Path), zap.String("author", doc.Author))
		return Ignored, s.endSpan(span, nil)
	}

	s.metrics.ObserveWrite(metrics.OutcomeAccepted)
	s.logger.Info("document accepted",
		zap.String("path", stored.Path), zap.String("author", stored.Author),
		zap.Bool("is_local", isLocal), zap.Bool("is_latest", isLatest))
	s.observers.publish(WriteEvent{Kind: DocumentWrite, IsLocal: isLocal, IsLatest: isLatest, Document: stored})
	return Accepted, s.endSpan(span, nil)
}

// ingestLocked performs §4.1 steps 4-8: it must run under s.mu so the
// predecessor read, the upsert, and the isLatest read are one atomic
// step (SPEC_FULL.md §5).
func (s *Store) ingestLocked(ctx context.Context, doc Document, now int64) (accepted, isLatest bool, stored Document, err error) {
	predecessors, err := s.driver.DocumentQuery(ctx, Query{
		Path:    &doc.Path,
		Author:  &doc.Author,
		History: HistoryAll,
		Limit:   1,
	}, now)
	if err != nil {
		return false, false, Document{}, err
	}

	if len(predecessors) == 1 && !doc.supersedes(predecessors[0]) {
		return false, false, Document{}, nil
	}

	stored, err = s.driver.UpsertDocument(ctx, doc)
	if err != nil {
		return false, false, Document{}, err
	}

	latest, err := s.driver.DocumentQuery(ctx, Query{
		Path:    &doc.Path,
		History: HistoryLatest,
		Limit:   1,
	}, now)
	if err != nil {
		return false, false, Document{}, err
	}
	isLatest = len(latest) == 1 && latest[0].Author == stored.Author && latest[0].rankKey() == stored.rankKey()

	return true, isLatest, stored, nil
}

// Set is the local-write helper: it bumps the timestamp to guarantee a
// local author's writes always supersede their own prior writes within
// the same clock tick, delegates signing to the validator, then ingests.
func (s *Store) Set(ctx context.Context, keypair Keypair, docToSet Document) (IngestResult, error) {
	ctx, span := s.startSpan(ctx, "loam.set")
	defer span.End()

	validator, ok := s.validators[docToSet.Format]
	if !ok {
		err := validationErr(docToSet, ErrUnknownFormat)
		return 0, s.endSpan(span, err)
	}

	now := s.now()
	shouldBump := docToSet.Timestamp == 0
	if !shouldBump {
		if err := validator.CheckTimestampIsOk(docToSet.Timestamp, docToSet.DeleteAfter, now); err != nil {
			return 0, s.endSpan(span, validationErr(docToSet, err))
		}
	}

	unsigned := docToSet
	unsigned.Workspace = s.workspace
	unsigned.Author = keypair.Author()
	unsigned.ContentHash = ContentHash(unsigned.Content)
	unsigned.Signature = ""
	if shouldBump {
		unsigned.Timestamp = now
	}

	if shouldBump {
		var lifespan *int64
		if unsigned.DeleteAfter != nil {
			d := *unsigned.DeleteAfter - unsigned.Timestamp
			lifespan = &d
		}

		latest, found, err := s.GetDocument(ctx, unsigned.Path)
		if err != nil {
			return 0, s.endSpan(span, err)
		}
		if found && latest.Timestamp >= unsigned.Timestamp {
			unsigned.Timestamp = latest.Timestamp + 1
		}
		if lifespan != nil {
			deleteAfter := unsigned.Timestamp + *lifespan
			unsigned.DeleteAfter = &deleteAfter
		}
	}

	signed, err := validator.SignDocument(keypair, unsigned)
	if err != nil {
		return 0, s.endSpan(span, err)
	}

	result, err := s.IngestDocument(ctx, signed, true)
	return result, s.endSpan(span, err)
}

// ---- observability plumbing ----

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("loam.workspace", s.workspace)))
}

func (s *Store) endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Store) timeQuery(op string) func() {
	start := time.Now()
	return func() {
		s.metrics.ObserveQuery(op, time.Since(start).Seconds())
	}
}
