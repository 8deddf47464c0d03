// Package session runs one navigation session as an actor: a single goroutine
// owns the SessionState, generation workers and the minimum-loading timer
// report back into it tagged with the request token.
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/navigation"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

// ErrClosed is returned by calls on a closed controller.
var ErrClosed = errors.New("session: controller closed")

// ContentRequester resolves lesson artifacts (the orchestrator).
type ContentRequester interface {
	Handle(ctx context.Context, cmd command.RequestContentCommand) (*command.RequestContentResult, error)
}

// Config contains controller timings.
type Config struct {
	// MinLoadingDuration keeps the loading view up at least this long.
	MinLoadingDuration time.Duration

	// GenerationTimeout bounds one content request end to end.
	GenerationTimeout time.Duration
}

// DefaultConfig returns default timings.
func DefaultConfig() Config {
	return Config{
		MinLoadingDuration: 2 * time.Second,
		GenerationTimeout:  60 * time.Second,
	}
}

// Controller owns one session.
type Controller struct {
	id      string
	key     string
	machine *navigation.Machine
	content ContentRequester
	clock   timeutil.Clock
	config  Config
	log     *logger.Logger

	inbox chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	work  sync.WaitGroup

	// Unix nanos of the last client call; read by the idle sweeper.
	lastActive atomic.Int64

	// Owned by the loop goroutine. closing is set by Close; tasks that reach
	// the loop after it fail with ErrClosed and start no workers.
	closing    bool
	state      navigation.SessionState
	result     *command.RequestContentResult
	cancelWork context.CancelFunc
}

// NewController starts the session loop from the given state. The session
// has no opener key; Registry.Open issues one.
func NewController(
	id string,
	initial navigation.SessionState,
	machine *navigation.Machine,
	content ContentRequester,
	clock timeutil.Clock,
	log *logger.Logger,
	config Config,
) *Controller {
	return newController(id, "", initial, machine, content, clock, log, config)
}

func newController(
	id, key string,
	initial navigation.SessionState,
	machine *navigation.Machine,
	content ContentRequester,
	clock timeutil.Clock,
	log *logger.Logger,
	config Config,
) *Controller {
	def := DefaultConfig()
	if config.MinLoadingDuration < 0 {
		config.MinLoadingDuration = 0
	}
	if config.GenerationTimeout <= 0 {
		config.GenerationTimeout = def.GenerationTimeout
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	c := &Controller{
		id:      id,
		key:     key,
		machine: machine,
		content: content,
		clock:   clock,
		config:  config,
		log:     log.With(logger.Component("session"), logger.SessionID(id)),
		inbox:   make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		state:   initial,
	}
	c.touch()
	go c.loop()
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Key returns the secret handed to whoever opened the session.
func (c *Controller) Key() string { return c.key }

// HoldsKey reports whether key is the session's opener key. Sessions without
// a key accept none.
func (c *Controller) HoldsKey(key string) bool {
	if c.key == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.key), []byte(key)) == 1
}

// LastActive returns the time of the last client call.
func (c *Controller) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Controller) touch() {
	c.lastActive.Store(c.clock.Now().UnixNano())
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.quit:
			return
		}
	}
}

// call runs fn on the loop goroutine and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	c.touch()
	finished := make(chan struct{})
	closed := false
	task := func() {
		defer close(finished)
		if c.closing {
			closed = true
			return
		}
		fn()
	}
	select {
	case c.inbox <- task:
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	if closed {
		return ErrClosed
	}
	return nil
}

// post hands fn to the loop without waiting. Dropped after Close.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.quit:
	}
}

// ════════════════════════════════════════════════════════════════════════════
// PUBLIC API
// ════════════════════════════════════════════════════════════════════════════

// Dispatch applies a navigation event. Leaving CONTENT_LOADING cancels the
// running request; its late result is discarded.
func (c *Controller) Dispatch(ctx context.Context, ev navigation.Event) (navigation.SessionState, error) {
	var (
		out navigation.SessionState
		err error
	)
	if cerr := c.call(ctx, func() { out, err = c.apply(ev) }); cerr != nil {
		return navigation.SessionState{}, cerr
	}
	return out, err
}

// RequestContent confirms a content type and starts the request. It returns
// the CONTENT_LOADING state immediately; completion arrives asynchronously.
func (c *Controller) RequestContent(ctx context.Context, ct curriculum.ContentType) (navigation.SessionState, error) {
	var (
		out navigation.SessionState
		err error
	)
	if cerr := c.call(ctx, func() { out, err = c.start(ct) }); cerr != nil {
		return navigation.SessionState{}, cerr
	}
	return out, err
}

// State returns a snapshot of the session state.
func (c *Controller) State(ctx context.Context) (navigation.SessionState, error) {
	var out navigation.SessionState
	if err := c.call(ctx, func() { out = c.state }); err != nil {
		return navigation.SessionState{}, err
	}
	return out, nil
}

// Lesson returns the delivered artifact while the session is in LESSON_VIEW.
func (c *Controller) Lesson(ctx context.Context) (*command.RequestContentResult, error) {
	var out *command.RequestContentResult
	err := c.call(ctx, func() {
		if c.state.View == navigation.ViewLessonView && c.result != nil {
			r := *c.result
			r.Record = c.result.Record.Clone()
			out = &r
		}
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, shared.ErrContentNotFound
	}
	return out, nil
}

// Close stops the loop and waits for workers. Requests racing with Close
// either finish starting before it or fail with ErrClosed. Safe to call more
// than once.
func (c *Controller) Close() {
	c.once.Do(func() {
		_ = c.call(context.Background(), func() {
			c.closing = true
			if c.cancelWork != nil {
				c.cancelWork()
				c.cancelWork = nil
			}
		})
		close(c.quit)
		c.work.Wait()
		<-c.done
	})
}

// ════════════════════════════════════════════════════════════════════════════
// LOOP-OWNED LOGIC
// ════════════════════════════════════════════════════════════════════════════

func (c *Controller) apply(ev navigation.Event) (navigation.SessionState, error) {
	prev := c.state
	next, err := c.machine.Navigate(prev, ev)
	if err != nil {
		return prev, err
	}
	c.state = next

	if prev.IsLoading() && !next.IsLoading() && next.View != navigation.ViewLessonView {
		c.stopWork()
	}
	if next.View != navigation.ViewLessonView && next.View != navigation.ViewContentLoading {
		c.result = nil
	}
	return next, nil
}

func (c *Controller) stopWork() {
	if c.cancelWork != nil {
		c.cancelWork()
		c.cancelWork = nil
	}
}

func (c *Controller) start(ct curriculum.ContentType) (navigation.SessionState, error) {
	if !c.state.IsAuthenticated() && !c.state.IsLoading() {
		return c.state, fmt.Errorf("request content: %w", shared.ErrUnauthorized)
	}

	next, err := c.apply(navigation.ConfirmContentType(ct))
	if err != nil {
		return next, err
	}

	token := next.RequestToken
	cmd := command.RequestContentCommand{
		Selector:      next.Selector,
		Language:      next.Language,
		ContentType:   ct,
		UserID:        next.Identity.UserID,
		CorrelationID: fmt.Sprintf("%s/%d", c.id, token),
	}

	workCtx, cancel := context.WithTimeout(context.Background(), c.config.GenerationTimeout)
	c.stopWork()
	c.cancelWork = cancel
	c.result = nil

	c.work.Add(2)
	go func() {
		defer c.work.Done()
		defer cancel()
		res, err := c.content.Handle(workCtx, cmd)
		c.post(func() { c.finish(token, res, err) })
	}()
	go func() {
		defer c.work.Done()
		select {
		case <-c.clock.After(c.config.MinLoadingDuration):
			c.post(func() { c.signal(navigation.MinDurationElapsed(token)) })
		case <-c.quit:
		}
	}()

	c.log.Debug("content request started",
		logger.ContentType(string(ct)),
		logger.Int64("token", int64(token)),
	)
	return next, nil
}

// finish routes a worker result into the machine. Stale results are dropped.
func (c *Controller) finish(token uint64, res *command.RequestContentResult, err error) {
	if token != c.state.RequestToken || !c.state.IsLoading() {
		c.log.Debug("discarding stale content result", logger.Int64("token", int64(token)))
		return
	}

	if err != nil {
		reason := shared.ErrorCode(err)
		if shared.IsGenerationFailed(err) {
			reason = string(curriculum.FailureReasonOf(err))
		}
		c.log.Info("content request failed", logger.String("reason", reason), logger.Err(err))
		c.signal(navigation.GenerationFailed(token, reason))
		return
	}

	c.result = res
	c.signal(navigation.GenerationDone(token))
}

func (c *Controller) signal(ev navigation.Event) {
	if _, err := c.apply(ev); err != nil && !shared.IsStale(err) {
		c.log.Warn("session signal rejected", logger.String("event", string(ev.Kind)), logger.Err(err))
	}
}
