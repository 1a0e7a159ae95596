package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default service settings.
const (
	DefaultImportTimeout = 15 * time.Minute
	DefaultSessionTTL    = 30 * time.Minute
	DefaultPreviewRows   = 5
)

// ServiceConfig tunes a Service. Zero values select the defaults.
type ServiceConfig struct {
	PreviewRows     int
	MaxMatriculeSeq int
	// MatriculeYear pins the year of generated matricules; 0 uses Now.
	MatriculeYear int
	Timeout       time.Duration
	SessionTTL    time.Duration
	MaxConcurrent int
	MaxWaitTime   time.Duration
	// Now returns the current time; tests pin it.
	Now    func() time.Time
	Logger *slog.Logger
}

// Service provides the student import pipeline: Prepare reads and
// validates a file, StartImport commits it row by row in the background.
// RunImport is the synchronous core shared with the operator CLI.
type Service struct {
	store     Store
	allocator *MatriculeAllocator
	resolver  *Resolver
	limiter   *ImportLimiter
	cfg       ServiceConfig
	log       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*importSession
}

// ImportSession is a snapshot of one import session.
type ImportSession struct {
	ID        string           `json:"sessionId"`
	TenantID  string           `json:"ecoleId"`
	FileName  string           `json:"fileName"`
	State     ImportState      `json:"state"`
	Header    []string         `json:"header"`
	Preview   []ImportRow      `json:"preview"`
	Total     int              `json:"total"`
	Report    ValidationReport `json:"report"`
	CreatedAt time.Time        `json:"createdAt"`
}

type importSession struct {
	ImportSession

	rows     []ImportRow
	cancel   context.CancelFunc
	progress ImportProgress
	result   *ImportOutcome
	done     chan struct{}

	listenerMu sync.Mutex
	listeners  []chan ImportProgress
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg ServiceConfig) *Service {
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = DefaultPreviewRows
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultImportTimeout
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:     store,
		allocator: NewMatriculeAllocator(store, cfg.MaxMatriculeSeq),
		resolver:  NewResolver(store),
		limiter:   NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		cfg:       cfg,
		log:       logger,
		sessions:  make(map[string]*importSession),
	}
}

// Store returns the store the service writes to.
func (s *Service) Store() Store {
	return s.store
}

// LimiterStatus reports the import slots in use.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Prepare reads fileName from r and validates it. Parse errors and missing
// required columns are returned as errors and leave no session behind.
// Otherwise the session is kept in state Ready, or Blocked when any row
// failed validation.
func (s *Service) Prepare(ctx context.Context, tenantID, fileName string, r io.Reader) (*ImportSession, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}

	sess := &importSession{
		ImportSession: ImportSession{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			FileName:  fileName,
			State:     StateValidating,
			CreatedAt: s.cfg.Now(),
		},
		done: make(chan struct{}),
	}
	log := s.log.With("session_id", sess.ID, "tenant_id", tenantID, "file", fileName)

	sheet, err := ReadSpreadsheet(r, fileName)
	if err != nil {
		log.Warn("import file rejected", "error", err)
		return nil, err
	}

	report := ValidateRows(sheet.Header, sheet.Rows)
	if report.Structural {
		log.Warn("import file missing columns", "errors", len(report.Errors))
		return nil, report.Err()
	}
	for _, w := range report.Warnings {
		log.Info("import validation warning", "row", w.Row, "message", w.Message)
	}

	sess.Header = sheet.Header
	sess.rows = sheet.Rows
	sess.Total = len(sheet.Rows)
	sess.Report = report
	sess.Preview = sheet.Rows[:min(s.cfg.PreviewRows, len(sheet.Rows))]
	if report.OK() {
		sess.State = StateReady
	} else {
		sess.State = StateBlocked
	}
	sess.progress = ImportProgress{SessionID: sess.ID, State: sess.State, Total: sess.Total}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	s.scheduleCleanup(sess.ID)

	log.Info("import file validated",
		"rows", sess.Total,
		"state", sess.State,
		"errors", len(report.Errors),
		"truncated", report.Truncated,
	)
	snapshot := sess.ImportSession
	return &snapshot, nil
}

// Session returns a snapshot of the tenant's session.
func (s *Service) Session(tenantID, sessionID string) (*ImportSession, error) {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	snapshot := sess.ImportSession
	s.mu.RUnlock()
	return &snapshot, nil
}

// StartImport commits a Ready session in the background. Blocked sessions
// return ErrValidationBlocked; a tenant already importing gets
// ErrImportInProgress. Use SubscribeProgress and Result to follow the run.
func (s *Service) StartImport(ctx context.Context, tenantID, sessionID string) error {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return err
	}

	s.mu.RLock()
	state := sess.State
	s.mu.RUnlock()
	switch state {
	case StateReady:
	case StateBlocked:
		return sess.Report.Err()
	default:
		return fmt.Errorf("%w: session is %s", ErrInvalidState, state)
	}

	if err := s.limiter.Acquire(ctx, tenantID); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)

	s.mu.Lock()
	if sess.State != StateReady {
		s.mu.Unlock()
		cancel()
		s.limiter.Release(tenantID)
		return fmt.Errorf("%w: session is %s", ErrInvalidState, sess.State)
	}
	sess.State = StateImporting
	sess.cancel = cancel
	sess.progress = ImportProgress{SessionID: sess.ID, State: StateImporting, Current: 0, Total: sess.Total}
	s.mu.Unlock()

	go func() {
		defer s.limiter.Release(tenantID)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in import",
					"session_id", sess.ID,
					"tenant_id", tenantID,
					"panic", r,
				)
				s.finish(sess, &ImportOutcome{
					SessionID: sess.ID,
					State:     StateFailed,
					Total:     sess.Total,
					Error:     fmt.Sprintf("internal error: %v", r),
				})
			}
		}()
		s.process(runCtx, sess)
	}()

	return nil
}

func (s *Service) process(ctx context.Context, sess *importSession) {
	log := s.log.With("session_id", sess.ID, "tenant_id", sess.TenantID)

	outcome := s.runRows(ctx, log, sess.TenantID, sess.rows, func(p ImportProgress) {
		s.mu.Lock()
		p.SessionID = sess.ID
		sess.progress = p
		s.mu.Unlock()
		sess.notifyProgress(p)
	})
	outcome.SessionID = sess.ID

	s.finish(sess, &outcome)
}

// finish records the outcome, wakes result waiters and closes listeners.
func (s *Service) finish(sess *importSession, outcome *ImportOutcome) {
	s.mu.Lock()
	if sess.result != nil {
		s.mu.Unlock()
		return
	}
	sess.result = outcome
	sess.State = outcome.State
	sess.progress.State = outcome.State
	final := sess.progress
	s.mu.Unlock()

	sess.notifyProgress(final)
	sess.closeListeners()
	close(sess.done)
	s.scheduleCleanup(sess.ID)
}

// SubscribeProgress returns a channel receiving progress updates. The
// current progress is sent at once; the channel is closed when the
// session reaches a terminal state. Sessions that were never started
// return ErrInvalidState.
func (s *Service) SubscribeProgress(tenantID, sessionID string) (<-chan ImportProgress, error) {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()

	s.mu.RLock()
	current := sess.progress
	state := sess.State
	s.mu.RUnlock()

	terminal := state.Terminal()
	if state != StateImporting && !terminal {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, state)
	}

	ch := make(chan ImportProgress, 16)
	ch <- current
	if terminal {
		close(ch)
		return ch, nil
	}
	sess.listeners = append(sess.listeners, ch)
	return ch, nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(tenantID, sessionID string) (ImportProgress, error) {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return ImportProgress{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.progress, nil
}

// Result blocks until the session's import finishes or ctx is done.
func (s *Service) Result(ctx context.Context, tenantID, sessionID string) (*ImportOutcome, error) {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	state := sess.State
	s.mu.RUnlock()
	if state != StateImporting && !state.Terminal() {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, state)
	}

	select {
	case <-sess.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.result, nil
}

// CancelImport stops a running import after the row in flight. Rows
// already committed stay committed.
func (s *Service) CancelImport(tenantID, sessionID string) error {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return err
	}

	s.mu.RLock()
	state, cancel := sess.State, sess.cancel
	s.mu.RUnlock()
	if state != StateImporting || cancel == nil {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, state)
	}
	cancel()
	return nil
}

// Discard drops a session that is not importing, letting the operator
// start over with a corrected file.
func (s *Service) Discard(tenantID, sessionID string) error {
	sess, err := s.lookup(tenantID, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.State == StateImporting {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, sess.State)
	}
	delete(s.sessions, sessionID)
	return nil
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) lookup(tenantID, sessionID string) (*importSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok || sess.TenantID != tenantID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// scheduleCleanup forgets the session after the TTL unless it is
// importing; finish schedules a new cleanup once the run ends.
func (s *Service) scheduleCleanup(sessionID string) {
	time.AfterFunc(s.cfg.SessionTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sess, ok := s.sessions[sessionID]; ok && sess.State != StateImporting {
			delete(s.sessions, sessionID)
		}
	})
}

// notifyProgress sends progress to all listeners without blocking.
func (sess *importSession) notifyProgress(p ImportProgress) {
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()

	for _, ch := range sess.listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

func (sess *importSession) closeListeners() {
	sess.listenerMu.Lock()
	defer sess.listenerMu.Unlock()

	for _, ch := range sess.listeners {
		close(ch)
	}
	sess.listeners = nil
}

// IsFileError reports whether err rejects the uploaded file itself:
// unreadable, empty or missing a required column.
func IsFileError(err error) bool {
	return errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrInvalidFile) ||
		errors.Is(err, ErrMissingColumns)
}
