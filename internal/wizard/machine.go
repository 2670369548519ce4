package wizard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/api/schemas"
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
	"github.com/xkilldash9x/fleetpm/internal/browser/wait"
	"github.com/xkilldash9x/fleetpm/internal/config"
)

// ErrDuplicateAction is returned when a transition's action was already
// issued during the same invocation.
var ErrDuplicateAction = errors.New("action already issued in this invocation")

// maxSteps bounds one invocation; the longest legal path has ten steps.
const maxSteps = 16

// StepError is a failed wizard step. Reason is what ends up in the
// vehicle's failed outcome.
type StepError struct {
	Step   string
	Screen State
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed (screen %s): %v", e.Step, e.Screen, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Reason is "unexpected_screen" when the page matched no known screen, and
// the step name otherwise.
func (e *StepError) Reason() string {
	if errors.Is(e.Err, browser.ErrUnexpectedScreen) {
		return schemas.ReasonUnexpectedScreen
	}
	return e.Step
}

// Options tunes the machine.
type Options struct {
	// StepTimeout bounds the wait for each step's entry signal and controls.
	StepTimeout time.Duration
	// EnableTimeout bounds the wait for a disabled control to become enabled.
	EnableTimeout time.Duration
	// RenderFloor is waited before reading screens known to render in stages.
	RenderFloor      time.Duration
	CompletionNote   string
	CompletionSettle time.Duration
	Opcode           string
	// CDKKeyword marks a Lighthouse status whose PM must be closed in CDK.
	CDKKeyword string
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(t config.TimeoutsConfig, w config.WorkflowConfig) Options {
	return Options{
		StepTimeout:      t.Wait,
		EnableTimeout:    t.EnableWait,
		RenderFloor:      t.RenderFloor,
		CompletionNote:   w.CompletionNote,
		CompletionSettle: w.CompletionSettle,
		Opcode:           w.Opcode,
		CDKKeyword:       w.CDKKeyword,
	}
}

// Request identifies the vehicle a wizard invocation works on.
type Request struct {
	VehicleID string
	// Lighthouse is the vehicle's availability status, used for the CDK check.
	Lighthouse string
}

// Result describes a finished invocation.
type Result struct {
	Status schemas.OutcomeStatus
	// Path lists the screens observed before each step, in order.
	Path []State
	// Actions lists the transitions whose actions were issued, in order.
	Actions []string
}

// Machine walks the wizard for one vehicle at a time.
type Machine struct {
	resolver *locator.Resolver
	driver   browser.Driver
	clock    wait.Clock
	opts     Options
	logger   *zap.Logger
}

// NewMachine creates a Machine. Zero options fall back to conservative defaults.
func NewMachine(resolver *locator.Resolver, opts Options, logger *zap.Logger) *Machine {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 8 * time.Second
	}
	if opts.EnableTimeout <= 0 {
		opts.EnableTimeout = 5 * time.Second
	}
	if opts.CompletionNote == "" {
		opts.CompletionNote = "Done"
	}
	if opts.Opcode == "" {
		opts.Opcode = "PM Gas"
	}
	return &Machine{
		resolver: resolver,
		driver:   resolver.Driver(),
		clock:    resolver.Clock(),
		opts:     opts,
		logger:   logger.Named("wizard"),
	}
}

// Observe infers the current screen from a fresh signature.
func (m *Machine) Observe(ctx context.Context) (State, browser.Signature, error) {
	sig, err := m.driver.Signature(ctx, Probes)
	if err != nil {
		return Unknown, nil, err
	}
	return Infer(sig), sig, nil
}

// Create runs the creation path starting from the work items panel with no
// open PM item. It ends in created, skipped_no_complaint or
// skipped_cdk_required; any failed step is returned as a *StepError.
func (m *Machine) Create(ctx context.Context, req Request) (Result, error) {
	return m.newRun(req).drive(ctx, NoOpenItem)
}

// Complete opens the open PM item and marks it complete.
func (m *Machine) Complete(ctx context.Context, req Request) (Result, error) {
	return m.newRun(req).drive(ctx, OpenItemExists)
}

// step is one row of the wizard table.
type step struct {
	name string
	// accept lists the screens that satisfy the entry signal.
	accept []State
	// floor delays the first read for screens that render in stages.
	floor bool
	run   func(ctx context.Context, r *run, observed State) (schemas.OutcomeStatus, error)
}

// run is the state of a single invocation. The ledger makes every action
// once-only for the lifetime of the run.
type run struct {
	m       *Machine
	req     Request
	fsm     *fsm.FSM
	ledger  map[string]bool
	path    []State
	actions []string
	logger  *zap.Logger
}

func (m *Machine) newRun(req Request) *run {
	r := &run{
		m:      m,
		req:    req,
		ledger: map[string]bool{},
		logger: m.logger.With(zap.String("vehicle", req.VehicleID)),
	}
	r.fsm = fsm.NewFSM(string(Unknown), events(), fsm.Callbacks{
		"before_event": wrapEvent(r.guard),
		"enter_state":  wrapEvent(r.entered),
	})
	return r
}

func (r *run) drive(ctx context.Context, start State) (Result, error) {
	r.fsm.SetState(string(start))
	for i := 0; i < maxSteps; i++ {
		current := State(r.fsm.Current())
		switch current {
		case Created:
			return r.result(schemas.StatusCreated), nil
		case Completed:
			return r.result(schemas.StatusCompleted), nil
		}

		st, ok := steps[current]
		if !ok {
			return r.result(""), &StepError{Step: string(current), Screen: current, Err: fmt.Errorf("no step handles %s", current)}
		}

		observed, satisfied, err := r.await(ctx, st)
		if err != nil {
			return r.result(""), err
		}
		r.path = append(r.path, observed)
		if !satisfied && !(st.name == stepAssociation && observed == ComplaintAssociation) {
			return r.result(""), r.timeout(st, observed)
		}

		status, err := st.run(ctx, r, observed)
		if err != nil {
			return r.result(""), r.stepErr(st.name, err)
		}
		if status != "" {
			return r.result(status), nil
		}
	}
	return r.result(""), &StepError{Step: "wizard", Screen: State(r.fsm.Current()), Err: errors.New("step limit exceeded")}
}

func (r *run) result(status schemas.OutcomeStatus) Result {
	return Result{Status: status, Path: r.path, Actions: r.actions}
}

// await polls the page until it shows one of the step's accepted screens.
// It returns the last observed screen either way; only probe faults are errors.
func (r *run) await(ctx context.Context, st step) (State, bool, error) {
	var floor time.Duration
	if st.floor {
		floor = r.m.opts.RenderFloor
	}
	observed, status, err := wait.Until(ctx, r.m.clock,
		wait.Options{Timeout: r.m.opts.StepTimeout, Interval: r.m.resolver.Interval(), Floor: floor},
		func(ctx context.Context) (State, bool, error) {
			s, _, err := r.m.Observe(ctx)
			if err != nil {
				return Unknown, false, err
			}
			return s, slices.Contains(st.accept, s), nil
		})
	if err != nil {
		return observed, false, r.stepErr(st.name, err)
	}
	return observed, status == wait.Satisfied, nil
}

func (r *run) timeout(st step, observed State) error {
	if observed == Unknown {
		return &StepError{Step: st.name, Screen: observed, Err: fmt.Errorf("%w: waited %v for %v", browser.ErrUnexpectedScreen, r.m.opts.StepTimeout, st.accept)}
	}
	return &StepError{Step: st.name, Screen: observed, Err: fmt.Errorf("waited %v for %v: %w", r.m.opts.StepTimeout, st.accept, browser.ErrTimedOut)}
}

func (r *run) stepErr(name string, err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{Step: name, Screen: State(r.fsm.Current()), Err: err}
}

// fire performs a transition, running act exactly once as part of it.
func (r *run) fire(ctx context.Context, event string, act action) error {
	if !r.fsm.Can(event) {
		return fmt.Errorf("transition %s is not legal from %s", event, r.fsm.Current())
	}
	return unwrapEventErr(r.fsm.Event(ctx, event, act))
}

// guard claims the event in the ledger and runs its action. A second claim,
// or a failed action, cancels the transition.
func (r *run) guard(ctx context.Context, e *fsm.Event) error {
	if r.ledger[e.Event] {
		e.Cancel(fmt.Errorf("%w: %s", ErrDuplicateAction, e.Event))
		return nil
	}
	r.ledger[e.Event] = true
	r.actions = append(r.actions, e.Event)

	if len(e.Args) == 0 {
		return nil
	}
	act, _ := e.Args[0].(action)
	if act == nil {
		return nil
	}
	if err := act(ctx); err != nil {
		e.Cancel(err)
	}
	return nil
}

func (r *run) entered(_ context.Context, e *fsm.Event) error {
	r.logger.Debug("Wizard transition.", zap.String("event", e.Event), zap.String("from", e.Src), zap.String("to", e.Dst))
	return nil
}

func (r *run) click(t locator.Target) action {
	return func(ctx context.Context) error {
		return r.m.resolver.Click(ctx, t, r.m.opts.StepTimeout)
	}
}

func (r *run) clickWhenEnabled(t locator.Target) action {
	return func(ctx context.Context) error {
		return r.m.resolver.ClickWhenEnabled(ctx, t, r.m.opts.StepTimeout, r.m.opts.EnableTimeout)
	}
}

// dismiss closes whatever dialog is open, if it can. Failures are logged only.
func (r *run) dismiss(ctx context.Context) error {
	err := r.m.resolver.Click(ctx, Dismiss, 0)
	if errors.Is(err, browser.ErrSessionLost) {
		return err
	}
	if err != nil {
		r.logger.Debug("No dialog dismiss control found.", zap.Error(err))
	}
	return nil
}

// done clicks Done (or an equivalent) on the wizard's final dialog. No
// visible dialog means the wizard already closed itself.
func (r *run) done(ctx context.Context) error {
	open, err := r.m.resolver.Present(ctx, Dialog)
	if err != nil {
		return err
	}
	if !open {
		return nil
	}
	err = r.m.resolver.Click(ctx, Done, r.m.opts.StepTimeout)
	if err == nil || !(errors.Is(err, browser.ErrNotFound) || errors.Is(err, browser.ErrTimedOut)) {
		return err
	}
	r.logger.Debug("Done not found; trying the dialog close control.")
	if err := r.m.resolver.Click(ctx, Dismiss, r.m.opts.StepTimeout); err != nil {
		return &StepError{Step: "done", Screen: Finalize, Err: err}
	}
	return nil
}
