package taskmanager

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const DefaultMaxTasks = 4096

// CooperativeConfig configures a Cooperative manager.
type CooperativeConfig struct {
	// MaxTasks bounds units that are queued or running. Zero selects
	// DefaultMaxTasks.
	MaxTasks int `validate:"gte=0"`

	Provisioner Provisioner `validate:"-"`
	Logger      *log.Logger `validate:"-"`
}

// Cooperative runs units one at a time from a single control loop. A unit
// keeps the loop until it returns or reaches a suspension point. Blocking
// units suspend only to await another unit; otherwise they hold the loop for
// their whole run.
type Cooperative struct {
	maxTasks    int
	provisioner Provisioner
	logger      *log.Logger

	mu     sync.Mutex
	closed bool
	tasks  map[string]*task
	queue  []*task
	wg     sync.WaitGroup

	wake     chan struct{}
	parked   chan struct{}
	stop     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
}

var (
	_ Manager    = (*Cooperative)(nil)
	_ SingleLoop = (*Cooperative)(nil)
)

func NewCooperative(cfg CooperativeConfig) (*Cooperative, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxTasks == 0 {
		cfg.MaxTasks = DefaultMaxTasks
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger()
	}

	m := &Cooperative{
		maxTasks:    cfg.MaxTasks,
		provisioner: cfg.Provisioner,
		logger:      cfg.Logger,
		tasks:       make(map[string]*task),
		wake:        make(chan struct{}, 1),
		parked:      make(chan struct{}),
		stop:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	go m.loop()
	return m, nil
}

func (m *Cooperative) loop() {
	defer close(m.loopDone)
	for {
		t := m.next()
		if t == nil {
			select {
			case <-m.wake:
				continue
			case <-m.stop:
				return
			}
		}

		t.resume <- struct{}{}
		<-m.parked
	}
}

func (m *Cooperative) next() *task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	t := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return t
}

func (m *Cooperative) enqueue(t *task) {
	m.mu.Lock()
	m.queue = append(m.queue, t)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Cooperative) Spawn(ctx context.Context, d Descriptor) (*Handle, error) {
	if err := d.validate(); err != nil {
		return nil, &SchedulingError{Name: d.Name, Err: err}
	}

	m.mu.Lock()
	full := len(m.tasks) >= m.maxTasks
	m.mu.Unlock()
	if full {
		return nil, &SchedulingError{Name: d.Name, Err: ErrCapacityExhausted}
	}

	t, err := newTask(ctx, d, m, m, m.provisioner)
	if err != nil {
		return nil, err
	}
	t.resume = make(chan struct{}, 1)

	m.mu.Lock()
	switch {
	case m.closed:
		err = ErrManagerClosed
	case len(m.tasks) >= m.maxTasks:
		err = ErrCapacityExhausted
	}
	if err != nil {
		m.mu.Unlock()
		t.reclaim(m.logger)
		return nil, &SchedulingError{Name: d.Name, Err: err}
	}
	m.tasks[t.id] = t
	m.wg.Add(1)
	m.mu.Unlock()

	h := newHandle(t)
	m.logger.Debug("spawn", "task", t.label(), "type", t.typ)

	go func() {
		defer m.wg.Done()
		<-t.resume

		err := t.execute()
		t.reclaim(m.logger)

		m.mu.Lock()
		delete(m.tasks, t.id)
		m.mu.Unlock()

		if err != nil {
			m.logger.Debug("unit ended", "task", t.label(), "err", err)
		}
		t.finish(err)
		m.parked <- struct{}{}
	}()

	m.enqueue(t)
	return h, nil
}

// Sleep suspends the calling unit when ctx belongs to a unit of m, so other
// units keep running. Otherwise it simply waits.
func (m *Cooperative) Sleep(ctx context.Context, d time.Duration) error {
	if env, ok := EnvFromContext(ctx); ok && env.Manager == m {
		return env.Block(ctx, func() error { return sleep(ctx, d) })
	}
	return sleep(ctx, d)
}

func (m *Cooperative) Parallelism() int { return 1 }

func (m *Cooperative) SingleLoop() bool { return true }

// Active returns the number of units that have not finished.
func (m *Cooperative) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Shutdown refuses new units, cancels queued and running ones and waits for
// them to end. The control loop stops once every unit has ended.
func (m *Cooperative) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, t := range m.tasks {
		t.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.stopOnce.Do(func() { close(m.stop) })
		<-m.loopDone
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Cooperative) yield(ctx context.Context, t *task) error {
	if t.typ.Blocking() {
		return ctx.Err()
	}
	m.enqueue(t)
	m.parked <- struct{}{}
	<-t.resume
	return ctx.Err()
}

func (m *Cooperative) block(ctx context.Context, t *task, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.typ.Blocking() {
		return fn()
	}

	m.parked <- struct{}{}
	err := fn()
	m.enqueue(t)
	<-t.resume
	return err
}

func (m *Cooperative) await(ctx context.Context, t *task, h *Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-h.Done():
		return h.Err()
	default:
	}

	m.parked <- struct{}{}
	err := h.Wait(ctx)
	m.enqueue(t)
	<-t.resume
	return err
}
