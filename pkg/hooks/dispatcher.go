package hooks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tarsy-dev/tarsy/pkg/history"
)

// maxConsecutiveFailures disables a hook until it next succeeds below the
// cutoff. A hook that keeps failing (dead DB, closed publisher) must not
// keep burning time on every interaction.
const maxConsecutiveFailures = 5

type registration struct {
	hook     Hook
	failures int
	disabled bool
}

// Dispatcher routes interactions to registered hooks by kind. Safe for
// concurrent use; register everything at startup.
type Dispatcher struct {
	mu    sync.Mutex
	hooks map[Kind][]*registration
	pre   []PreHook
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		hooks: make(map[Kind][]*registration),
	}
}

// Register subscribes a hook to all kinds it declares.
func (d *Dispatcher) Register(hook Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, kind := range hook.Kinds() {
		d.hooks[kind] = append(d.hooks[kind], &registration{hook: hook})
	}
}

// RegisterPre appends a pre-hook. Pre-hooks run sequentially before the
// concurrent hooks, in registration order.
func (d *Dispatcher) RegisterPre(pre PreHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pre = append(d.pre, pre)
}

// Execute runs op inside the interaction context: stamps the request id and
// start/end microseconds, computes the duration, records the outcome, then
// dispatches to hooks. Returns op's error unchanged; hook failures are
// logged, never returned.
func (d *Dispatcher) Execute(ctx context.Context, in *Interaction, op func(context.Context) error) error {
	in.RequestID = uuid.New().String()
	in.StartTimeUs = history.NowUs()

	err := op(ctx)

	in.EndTimeUs = history.NowUs()
	in.DurationMs = (in.EndTimeUs - in.StartTimeUs) / 1000
	in.Success = err == nil
	if err != nil {
		msg := err.Error()
		in.ErrorMessage = &msg
	}
	d.stampRecord(in)

	// Hooks must run even when op failed because ctx was cancelled.
	d.Dispatch(context.WithoutCancel(ctx), in)

	return err
}

// stampRecord copies identity and outcome onto the underlying history
// record so persistence sees what the pipeline measured.
func (d *Dispatcher) stampRecord(in *Interaction) {
	switch {
	case in.LLM != nil:
		in.LLM.ID = in.RequestID
		in.LLM.Success = in.Success
		in.LLM.ErrorMessage = in.ErrorMessage
		if in.LLM.DurationMs == nil {
			duration := in.DurationMs
			in.LLM.DurationMs = &duration
		}
	case in.MCP != nil:
		in.MCP.ID = in.RequestID
		in.MCP.Success = in.Success
		in.MCP.ErrorMessage = in.ErrorMessage
		if in.MCP.DurationMs == nil {
			duration := in.DurationMs
			in.MCP.DurationMs = &duration
		}
	}
}

// Dispatch runs pre-hooks sequentially, then the kind's hooks concurrently.
// Panics are recovered and counted as failures.
func (d *Dispatcher) Dispatch(ctx context.Context, in *Interaction) {
	d.mu.Lock()
	pre := make([]PreHook, len(d.pre))
	copy(pre, d.pre)
	var active []*registration
	for _, reg := range d.hooks[in.Kind] {
		if !reg.disabled {
			active = append(active, reg)
		}
	}
	d.mu.Unlock()

	for _, p := range pre {
		d.runPre(ctx, p, in)
	}

	var wg sync.WaitGroup
	for _, reg := range active {
		wg.Add(1)
		go func(reg *registration) {
			defer wg.Done()
			d.runHook(ctx, reg, in)
		}(reg)
	}
	wg.Wait()
}

func (d *Dispatcher) runPre(ctx context.Context, pre PreHook, in *Interaction) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Pre-hook panicked", "hook", pre.Name(), "kind", in.Kind, "panic", r)
		}
	}()
	pre.Process(ctx, in)
}

func (d *Dispatcher) runHook(ctx context.Context, reg *registration, in *Interaction) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Hook panicked", "hook", reg.hook.Name(), "kind", in.Kind, "panic", r)
				err = errHookPanic
			}
		}()
		err = reg.hook.OnInteraction(ctx, in)
	}()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		reg.failures = 0
		return
	}

	reg.failures++
	slog.Warn("Hook failed", "hook", reg.hook.Name(), "kind", in.Kind,
		"consecutive_failures", reg.failures, "error", err)
	if reg.failures >= maxConsecutiveFailures {
		reg.disabled = true
		slog.Error("Hook disabled after repeated failures",
			"hook", reg.hook.Name(), "failures", reg.failures)
	}
}

type hookPanicError struct{}

func (hookPanicError) Error() string { return "hook panicked" }

var errHookPanic = hookPanicError{}
