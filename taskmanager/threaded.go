package taskmanager

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxBlocking    = 1024
	DefaultMaxCooperative = 10000
)

// ThreadedConfig configures a Threaded manager. Zero limits select the
// defaults.
type ThreadedConfig struct {
	// MaxBlocking bounds concurrently running blocking units. Each holds an
	// OS thread.
	MaxBlocking int `validate:"gte=0"`
	// MaxCooperative bounds concurrently running cooperative units.
	MaxCooperative int `validate:"gte=0"`

	Provisioner Provisioner `validate:"-"`
	Logger      *log.Logger `validate:"-"`
}

// Threaded runs each unit on its own goroutine. Blocking units lock their
// goroutine to an OS thread; cooperative units share the Go scheduler and
// treat Yield as a scheduling hint.
type Threaded struct {
	blocking    *semaphore.Weighted
	cooperative *semaphore.Weighted
	provisioner Provisioner
	logger      *log.Logger

	mu     sync.Mutex
	closed bool
	tasks  map[string]*task
	wg     sync.WaitGroup
}

var _ Manager = (*Threaded)(nil)

func NewThreaded(cfg ThreadedConfig) (*Threaded, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxBlocking == 0 {
		cfg.MaxBlocking = DefaultMaxBlocking
	}
	if cfg.MaxCooperative == 0 {
		cfg.MaxCooperative = DefaultMaxCooperative
	}
	if cfg.Logger == nil {
		cfg.Logger = defaultLogger()
	}

	return &Threaded{
		blocking:    semaphore.NewWeighted(int64(cfg.MaxBlocking)),
		cooperative: semaphore.NewWeighted(int64(cfg.MaxCooperative)),
		provisioner: cfg.Provisioner,
		logger:      cfg.Logger,
		tasks:       make(map[string]*task),
	}, nil
}

func (m *Threaded) Spawn(ctx context.Context, d Descriptor) (*Handle, error) {
	if err := d.validate(); err != nil {
		return nil, &SchedulingError{Name: d.Name, Err: err}
	}

	sem := m.cooperative
	if d.Type.Blocking() {
		sem = m.blocking
	}
	if !sem.TryAcquire(1) {
		return nil, &SchedulingError{Name: d.Name, Err: ErrCapacityExhausted}
	}

	t, err := newTask(ctx, d, m, m, m.provisioner)
	if err != nil {
		sem.Release(1)
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		t.reclaim(m.logger)
		sem.Release(1)
		return nil, &SchedulingError{Name: d.Name, Err: ErrManagerClosed}
	}
	m.tasks[t.id] = t
	m.wg.Add(1)
	m.mu.Unlock()

	h := newHandle(t)
	m.logger.Debug("spawn", "task", t.label(), "type", t.typ)

	go func() {
		defer m.wg.Done()
		if t.typ.Blocking() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}

		err := t.execute()
		t.reclaim(m.logger)

		m.mu.Lock()
		delete(m.tasks, t.id)
		m.mu.Unlock()
		sem.Release(1)

		if err != nil {
			m.logger.Debug("unit ended", "task", t.label(), "err", err)
		}
		t.finish(err)
	}()

	return h, nil
}

func (m *Threaded) Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func (m *Threaded) Parallelism() int {
	return runtime.GOMAXPROCS(0)
}

// Active returns the number of units that have not finished.
func (m *Threaded) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Shutdown refuses new units, cancels running ones and waits for them to
// end or for ctx to be done.
func (m *Threaded) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, t := range m.tasks {
		t.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Threaded) yield(ctx context.Context, t *task) error {
	if !t.typ.Blocking() {
		runtime.Gosched()
	}
	return ctx.Err()
}

func (m *Threaded) block(ctx context.Context, t *task, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

func (m *Threaded) await(ctx context.Context, t *task, h *Handle) error {
	return h.Wait(ctx)
}
