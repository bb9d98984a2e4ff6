// Package sentinel runs the pipeline from a test_decoding line source to a
// key/value sink: lines are decoded into transactions, each transaction is
// adapted into key/value events, passed through the processor chain and
// written to the sink in batches. A batch never splits a transaction.
package sentinel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/processor"
	"github.com/web3tea/pgcdc-sentinel/sink"
	"github.com/web3tea/pgcdc-sentinel/telemetry"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// StatusReporter is notified of every status change.
type StatusReporter interface {
	ReportStatus(status Status, message string)
}

// OnError selects what the pipeline does with a line, transaction or event
// that fails to decode, adapt or process. Sink failures always stop the run.
type OnError string

const (
	OnErrorHalt OnError = "halt"
	OnErrorSkip OnError = "skip"
)

func (o OnError) Valid() bool {
	return o == OnErrorHalt || o == OnErrorSkip
}

// MaxLineSize bounds a single source line.
const MaxLineSize = 64 << 20

// ErrSinkFailed marks a failed sink write or flush. The batch is not retried.
var ErrSinkFailed = errors.New("sink failed")

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (l *noopLogger) Debugf(format string, args ...any) {}
func (l *noopLogger) Infof(format string, args ...any)  {}
func (l *noopLogger) Warnf(format string, args ...any)  {}
func (l *noopLogger) Errorf(format string, args ...any) {}

// LineDecoder turns source lines into committed transactions.
type LineDecoder interface {
	Decode(line string) (*wal2json.Change, error)
	InTransaction() bool
}

// ChangeAdapter turns a committed transaction into key/value events.
type ChangeAdapter interface {
	HandleChange(ctx context.Context, c *wal2json.Change) ([]*keyvalue.Event, error)
}

type Sentinel struct {
	Decoder   LineDecoder
	Adapter   ChangeAdapter
	Processor processor.Processor
	Sink      sink.Sink

	BatchSize     int
	FlushInterval time.Duration

	onError OnError
	logger  Logger
	metrics *telemetry.Metrics

	pending []*keyvalue.Event
	lineNo  int

	cancel context.CancelFunc
	done   chan struct{}
	runErr error
	runMu  sync.Mutex

	statusReporter StatusReporter

	status   Status
	statusMu sync.RWMutex
}

func NewSentinel(decoder LineDecoder, adapter ChangeAdapter, proc processor.Processor, sink sink.Sink, options ...Option) *Sentinel {
	s := &Sentinel{
		Decoder:       decoder,
		Adapter:       adapter,
		Processor:     proc,
		Sink:          sink,
		BatchSize:     1000,
		FlushInterval: time.Second * 5,
		onError:       OnErrorHalt,
		logger:        &noopLogger{},
		metrics:       telemetry.Noop(),
		status:        StatusIdle,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Run reads r line by line until it is exhausted or ctx is done. Events of
// committed transactions still buffered are written before Run returns.
func (s *Sentinel) Run(ctx context.Context, r io.Reader) error {
	s.setStatus(StatusStarting, "")
	if err := s.Sink.Init(ctx); err != nil {
		s.setStatus(StatusError, err.Error())
		return fmt.Errorf("failed to init %s sink: %w", s.Sink.Type(), err)
	}
	s.setStatus(StatusRunning, "")

	err := s.loop(ctx, r)
	if !errors.Is(err, ErrSinkFailed) {
		if ferr := s.flush(context.WithoutCancel(ctx)); ferr != nil && err == nil {
			err = ferr
		}
	}
	if s.Decoder.InTransaction() {
		s.logger.Warnf("Source ended inside a transaction, its events are discarded")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		s.setStatus(StatusError, err.Error())
		return err
	}
	s.setStatus(StatusStopped, "")
	return nil
}

type sourceLine struct {
	text string
	err  error
	eof  bool
}

func (s *Sentinel) loop(ctx context.Context, r io.Reader) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan sourceLine)
	go readLines(readCtx, r, lines)

	var tick <-chan time.Time
	if s.FlushInterval > 0 {
		ticker := time.NewTicker(s.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			if err := s.flush(ctx); err != nil {
				return err
			}
		case l := <-lines:
			if l.err != nil {
				return fmt.Errorf("failed to read source: %w", l.err)
			}
			if l.eof {
				return nil
			}
			if err := s.handleLine(ctx, l.text); err != nil {
				return err
			}
		}
	}
}

func readLines(ctx context.Context, r io.Reader, out chan<- sourceLine) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	send := func(l sourceLine) bool {
		select {
		case out <- l:
			return true
		case <-ctx.Done():
			return false
		}
	}
	for scanner.Scan() {
		if !send(sourceLine{text: scanner.Text()}) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		send(sourceLine{err: err})
		return
	}
	send(sourceLine{eof: true})
}

func (s *Sentinel) handleLine(ctx context.Context, line string) error {
	s.lineNo++
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return nil
	}
	s.metrics.Lines.Inc()

	change, err := s.Decoder.Decode(line)
	if err != nil {
		return s.fail("decode", fmt.Errorf("line %d: %w", s.lineNo, err))
	}
	if change == nil {
		return nil
	}
	s.metrics.Changes.Inc()
	return s.handleChange(ctx, change)
}

func (s *Sentinel) handleChange(ctx context.Context, change *wal2json.Change) error {
	events, err := s.Adapter.HandleChange(ctx, change)
	if err != nil {
		return s.fail("adapt", fmt.Errorf("transaction %d: %w", change.Xid, err))
	}

	// a processor failure drops the transaction as a whole
	processed := make([]*keyvalue.Event, 0, len(events))
	dropped := 0
	for _, event := range events {
		out, err := s.Processor.Process(event)
		if err != nil {
			return s.fail("process", fmt.Errorf("transaction %d: %w", change.Xid, err))
		}
		if out == nil {
			dropped++
			continue
		}
		processed = append(processed, out)
	}
	s.metrics.Dropped.Add(float64(dropped))
	s.pending = append(s.pending, processed...)
	s.logger.Debugf("Transaction %d produced %d events", change.Xid, len(processed))

	if len(s.pending) >= s.BatchSize {
		return s.flush(ctx)
	}
	return nil
}

// fail counts err against stage and returns it unless failures are skipped.
func (s *Sentinel) fail(stage string, err error) error {
	s.metrics.Errors.With(stage).Inc()
	if s.onError == OnErrorSkip {
		s.logger.Warnf("Skipping after %s failure: %v", stage, err)
		return nil
	}
	s.logger.Errorf("Stopping after %s failure: %v", stage, err)
	return err
}

func (s *Sentinel) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	start := time.Now()
	if err := s.Sink.Write(ctx, s.pending); err != nil {
		s.metrics.Errors.With("sink").Inc()
		err = errors.Mark(errors.Wrapf(err, "write %d events to %s sink", len(s.pending), s.Sink.Type()), ErrSinkFailed)
		s.pending = s.pending[:0]
		return err
	}
	if err := s.Sink.Flush(ctx); err != nil {
		s.metrics.Errors.With("sink").Inc()
		s.pending = s.pending[:0]
		return errors.Mark(errors.Wrapf(err, "flush %s sink", s.Sink.Type()), ErrSinkFailed)
	}
	s.metrics.SinkWrite.Observe(time.Since(start).Seconds())

	for _, e := range s.pending {
		s.metrics.Events.With(string(e.Kind)).Inc()
	}
	s.logger.Debugf("Wrote %d events to %s sink", len(s.pending), s.Sink.Type())
	s.pending = s.pending[:0]
	return nil
}

// Start runs the pipeline over r in the background.
func (s *Sentinel) Start(ctx context.Context, r io.Reader) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done != nil {
		return fmt.Errorf("sentinel already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		err := s.Run(runCtx, r)

		s.runMu.Lock()
		s.runErr = err
		s.runMu.Unlock()
	}()
	return nil
}

// Done is closed when a pipeline started with Start has returned.
func (s *Sentinel) Done() <-chan struct{} {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.done
}

// Stop cancels a pipeline started with Start and waits for it to return.
func (s *Sentinel) Stop() error {
	s.runMu.Lock()
	done, cancel := s.done, s.cancel
	s.runMu.Unlock()

	if done == nil {
		return fmt.Errorf("sentinel not started")
	}

	s.setStatus(StatusStopping, "")
	cancel()
	<-done

	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runErr
}

func (s *Sentinel) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Sentinel) setStatus(status Status, message string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	s.status = status
	if s.statusReporter != nil {
		s.statusReporter.ReportStatus(status, message)
	}
}
