// File: internal/orchestrator/orchestrator.go
// Description: Runs the PM workflow for each vehicle in turn. Components are
// injected through small interfaces so the whole flow runs against a scripted
// page in tests.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/fleetpm/api/schemas"
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
	"github.com/xkilldash9x/fleetpm/internal/browser/wait"
	"github.com/xkilldash9x/fleetpm/internal/config"
	"github.com/xkilldash9x/fleetpm/internal/eligibility"
	"github.com/xkilldash9x/fleetpm/internal/results"
	"github.com/xkilldash9x/fleetpm/internal/wizard"
)

// ErrBaselineLost halts a run when the search screen cannot be recovered.
var ErrBaselineLost = errors.New("baseline screen could not be recovered")

// Failure reasons produced here rather than by a wizard step.
const (
	reasonWorkItemsTab = "work_items_tab"
	reasonWorkItems    = "work_items"
	reasonWizard       = "wizard"
)

// Wizard walks the work item dialogs.
type Wizard interface {
	Create(ctx context.Context, req wizard.Request) (wizard.Result, error)
	Complete(ctx context.Context, req wizard.Request) (wizard.Result, error)
}

// StatusReader reads the vehicle properties panel.
type StatusReader interface {
	Read(ctx context.Context) (schemas.VehicleStatusSnapshot, error)
}

// Baseline returns the app to the vehicle search screen.
type Baseline interface {
	EnsureBaseline(ctx context.Context) (bool, error)
}

// Sink receives every outcome exactly once.
type Sink interface {
	Write(o schemas.Outcome) error
}

// ArtifactStore keeps the screenshot and page source of a failed vehicle.
type ArtifactStore interface {
	Save(vehicleID, step string, png []byte, html string) ([]string, error)
}

// Recorder receives outcome metrics.
type Recorder interface {
	ObserveOutcome(status, step string, d time.Duration)
}

// Options holds the workflow rules and waits.
type Options struct {
	RunID            string
	ThresholdDefault int
	RecencyWindow    time.Duration
	SkipRentable     bool
	// LookupTimeout bounds the wait for the properties panel to echo the MVA.
	LookupTimeout time.Duration
	StepTimeout   time.Duration
	// TileWait bounds the wait for the first work item tile; an empty panel
	// costs exactly this long.
	TileWait    time.Duration
	RenderFloor time.Duration
	// VehicleInterval is the minimum spacing between vehicle starts.
	VehicleInterval time.Duration
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg config.Interface, runID string) Options {
	t, w := cfg.Timeouts(), cfg.Workflow()
	return Options{
		RunID:            runID,
		ThresholdDefault: w.ThresholdDefault,
		RecencyWindow:    w.RecencyWindow(),
		SkipRentable:     w.SkipRentable,
		LookupTimeout:    t.VehicleLookup,
		StepTimeout:      t.Wait,
		TileWait:         t.PerCandidate,
		RenderFloor:      t.RenderFloor,
		VehicleInterval:  w.VehicleInterval,
	}
}

// Deps are the collaborators of an Orchestrator. Sink, Metrics and
// Artifacts may be nil.
type Deps struct {
	Resolver  *locator.Resolver
	Wizard    Wizard
	Reader    StatusReader
	Baseline  Baseline
	Sink      Sink
	Metrics   Recorder
	Artifacts ArtifactStore
}

// Orchestrator processes vehicles one at a time on a single session.
type Orchestrator struct {
	resolver  *locator.Resolver
	clock     wait.Clock
	wizard    Wizard
	reader    StatusReader
	baseline  Baseline
	sink      Sink
	metrics   Recorder
	artifacts ArtifactStore
	limiter   *rate.Limiter
	opts      Options
	logger    *zap.Logger
}

// New creates an Orchestrator.
func New(deps Deps, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Resolver == nil || deps.Wizard == nil || deps.Reader == nil || deps.Baseline == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 8 * time.Second
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 15 * time.Second
	}
	if opts.TileWait <= 0 {
		opts.TileWait = 2 * time.Second
	}

	limit := rate.Inf
	if opts.VehicleInterval > 0 {
		limit = rate.Every(opts.VehicleInterval)
	}
	return &Orchestrator{
		resolver:  deps.Resolver,
		clock:     deps.Resolver.Clock(),
		wizard:    deps.Wizard,
		reader:    deps.Reader,
		baseline:  deps.Baseline,
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		artifacts: deps.Artifacts,
		limiter:   rate.NewLimiter(limit, 1),
		opts:      opts,
		logger:    logger.Named("orchestrator"),
	}, nil
}

// Run processes ids in order. Cancelling ctx stops the run before the next
// vehicle; a vehicle already started runs to its outcome. A lost session or
// an unrecoverable baseline halts the run and is returned with the partial
// summary.
func (o *Orchestrator) Run(ctx context.Context, ids []string) (*results.Summary, error) {
	summary := results.NewSummary(o.opts.RunID, o.clock.Now())
	defer func() { summary.Finished = o.clock.Now() }()

	// Vehicle work is not interrupted midway.
	work := context.WithoutCancel(ctx)

	o.logger.Info("Run starting.", zap.String("run_id", o.opts.RunID), zap.Int("vehicles", len(ids)))
	for i, id := range ids {
		halt := func(reason string, err error) (*results.Summary, error) {
			summary.Halted = reason
			summary.Remaining = len(ids) - i
			o.logger.Error("Run halted.", zap.String("reason", reason), zap.Int("remaining", summary.Remaining), zap.Error(err))
			return summary, err
		}

		if err := ctx.Err(); err != nil {
			return halt("canceled", err)
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return halt("canceled", err)
		}

		ok, err := o.baseline.EnsureBaseline(work)
		if err != nil {
			return halt(haltReason(err), fmt.Errorf("baseline before vehicle %s: %w", id, err))
		}
		if !ok {
			return halt("baseline_lost", fmt.Errorf("before vehicle %s: %w", id, ErrBaselineLost))
		}

		outcome, err := o.ProcessVehicle(work, id)
		o.record(summary, outcome)
		if err != nil {
			summary.Halted = haltReason(err)
			summary.Remaining = len(ids) - i - 1
			o.logger.Error("Run halted.", zap.String("reason", summary.Halted), zap.Int("remaining", summary.Remaining), zap.Error(err))
			return summary, fmt.Errorf("vehicle %s: %w", id, err)
		}
	}
	o.logger.Info("Run finished.", zap.String("summary", summary.String()))
	return summary, nil
}

func haltReason(err error) string {
	if errors.Is(err, browser.ErrSessionLost) {
		return schemas.ReasonSessionLost
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}

func (o *Orchestrator) record(summary *results.Summary, outcome schemas.Outcome) {
	summary.Add(outcome)

	fields := []zap.Field{
		zap.String("vehicle", outcome.VehicleID),
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", outcome.Duration),
	}
	if outcome.Reason != "" {
		fields = append(fields, zap.String("reason", outcome.Reason))
	}
	if outcome.Gate != nil {
		fields = append(fields, zap.Bool("eligible", outcome.Gate.Eligible), zap.String("gate", outcome.Gate.Reason))
	}
	o.logger.Info("Vehicle outcome.", fields...)

	if o.sink != nil {
		if err := o.sink.Write(outcome); err != nil {
			o.logger.Error("Failed to persist outcome.", zap.String("vehicle", outcome.VehicleID), zap.Error(err))
		}
	}
	if o.metrics != nil {
		step := ""
		if outcome.IsFailure() {
			step = outcome.Reason
		}
		o.metrics.ObserveOutcome(string(outcome.Status), step, outcome.Duration)
	}
}

// ProcessVehicle runs the workflow for one vehicle, starting from the search
// screen. Failures become a failed outcome; the returned error is non-nil only
// when the session is gone and the run cannot continue.
func (o *Orchestrator) ProcessVehicle(ctx context.Context, id string) (schemas.Outcome, error) {
	start := o.clock.Now()
	v := &vehicle{o: o, id: id, logger: o.logger.With(zap.String("vehicle", id))}

	outcome, err := v.process(ctx)
	outcome.VehicleID = id
	outcome.StartedAt = start
	outcome.Duration = o.clock.Now().Sub(start)
	return outcome, err
}

// vehicle is the state of one ProcessVehicle call.
type vehicle struct {
	o        *Orchestrator
	id       string
	snapshot *schemas.VehicleStatusSnapshot
	gate     *schemas.GateDecision
	logger   *zap.Logger
}

func (v *vehicle) outcome(status schemas.OutcomeStatus) schemas.Outcome {
	out := schemas.NewOutcome(v.id, status)
	out.Snapshot, out.Gate = v.snapshot, v.gate
	return out
}

// fail converts err into a failed outcome. A lost session is also returned
// so the run stops; any other failure leaves a screenshot and page source
// behind for the operator.
func (v *vehicle) fail(ctx context.Context, reason string, err error) (schemas.Outcome, error) {
	out := v.outcome(schemas.StatusFailed)
	out.Reason = reason
	if errors.Is(err, browser.ErrSessionLost) {
		out.Reason = schemas.ReasonSessionLost
		v.logger.Error("Session lost.", zap.String("step", reason), zap.Error(err))
		return out, err
	}
	out.Artifacts = v.capture(ctx, reason)
	v.logger.Warn("Vehicle failed.", zap.String("step", reason), zap.Strings("artifacts", out.Artifacts), zap.Error(err))
	return out, nil
}

// capture saves what the page looks like right now. Capture errors are
// logged and never change the outcome.
func (v *vehicle) capture(ctx context.Context, step string) []string {
	store := v.o.artifacts
	if store == nil {
		return nil
	}
	c, ok := v.o.resolver.Driver().(browser.Capturer)
	if !ok {
		return nil
	}

	png, err := c.Screenshot(ctx)
	if err != nil {
		v.logger.Debug("Screenshot unavailable.", zap.Error(err))
	}
	html, err := c.PageSource(ctx)
	if err != nil {
		v.logger.Debug("Page source unavailable.", zap.Error(err))
	}
	paths, err := store.Save(v.id, step, png, html)
	if err != nil {
		v.logger.Warn("Failed to save failure artifacts.", zap.Error(err))
	}
	return paths
}

func (v *vehicle) process(ctx context.Context) (schemas.Outcome, error) {
	o := v.o
	v.logger.Info("Processing vehicle.")

	if err := v.lookup(ctx); err != nil {
		return v.fail(ctx, schemas.ReasonVehicleLookup, err)
	}

	snap, err := o.reader.Read(ctx)
	if errors.Is(err, browser.ErrSessionLost) {
		return v.fail(ctx, schemas.ReasonSessionLost, err)
	}
	if err != nil {
		v.logger.Warn("Vehicle properties unreadable; continuing with unknown values.", zap.Error(err))
	}
	decision := eligibility.Evaluate(snap, o.opts.ThresholdDefault)
	v.snapshot, v.gate = &snap, &decision
	level := zap.InfoLevel
	if !decision.Eligible {
		level = zap.WarnLevel
	}
	v.logger.Log(level, "Eligibility evaluated.",
		zap.Bool("eligible", decision.Eligible),
		zap.String("reason", decision.Reason),
		zap.String("lighthouse", snap.Lighthouse),
		zap.Stringer("buffer", snap.BufferMiles()),
	)

	if o.opts.SkipRentable && snap.Rentable {
		v.logger.Info("Lighthouse status is Rentable; skipping.")
		return v.outcome(schemas.StatusSkippedRentable), nil
	}

	if err := v.openWorkItems(ctx); err != nil {
		return v.fail(ctx, reasonWorkItemsTab, err)
	}
	tiles, err := v.listTiles(ctx)
	if err != nil {
		return v.fail(ctx, reasonWorkItems, err)
	}

	req := wizard.Request{VehicleID: v.id, Lighthouse: snap.Lighthouse}
	now := o.clock.Now()
	switch {
	case hasPM(tiles, func(t schemas.WorkItemTile) bool { return t.State == schemas.TileOpen }):
		v.logger.Info("Open PM work item found; completing it.")
		return v.runWizard(ctx, o.wizard.Complete, req)
	case hasPM(tiles, func(t schemas.WorkItemTile) bool {
		return t.State == schemas.TileComplete && t.CreatedWithin(now, o.opts.RecencyWindow)
	}):
		v.logger.Info("Recent completed PM work item found; nothing to do.", zap.Duration("window", o.opts.RecencyWindow))
		return v.outcome(schemas.StatusVerifiedRecent), nil
	default:
		v.logger.Info("No open or recent PM work item; creating one.")
		return v.runWizard(ctx, o.wizard.Create, req)
	}
}

func hasPM(tiles []schemas.WorkItemTile, match func(schemas.WorkItemTile) bool) bool {
	for _, t := range tiles {
		if t.IsPM() && match(t) {
			return true
		}
	}
	return false
}

func (v *vehicle) runWizard(ctx context.Context, walk func(context.Context, wizard.Request) (wizard.Result, error), req wizard.Request) (schemas.Outcome, error) {
	res, err := walk(ctx, req)
	if err != nil {
		var se *wizard.StepError
		if errors.As(err, &se) {
			return v.fail(ctx, se.Reason(), err)
		}
		return v.fail(ctx, reasonWizard, err)
	}
	if res.Status == "" {
		return v.fail(ctx, reasonWizard, errors.New("wizard finished without a status"))
	}
	v.logger.Debug("Wizard finished.", zap.Strings("actions", res.Actions))
	return v.outcome(res.Status), nil
}

// lookup enters the MVA and waits for the properties panel to echo it.
func (v *vehicle) lookup(ctx context.Context) error {
	o := v.o
	if err := o.resolver.Type(ctx, SearchInput, v.id, o.opts.StepTimeout); err != nil {
		return fmt.Errorf("enter mva: %w", err)
	}
	res, err := o.resolver.Resolve(ctx, MVAEcho(v.id), o.opts.LookupTimeout)
	if err != nil {
		return err
	}
	if res.Status != locator.Found {
		return fmt.Errorf("properties panel never showed %s: %w", v.id, browser.ErrTimedOut)
	}
	return nil
}

// openWorkItems selects the Work Items tab and waits for it to become active.
func (v *vehicle) openWorkItems(ctx context.Context) error {
	o := v.o
	if err := o.resolver.Click(ctx, WorkItemsTab, o.opts.StepTimeout); err != nil {
		return err
	}
	status, err := wait.For(ctx, o.clock, wait.Options{Timeout: o.opts.StepTimeout, Interval: o.resolver.Interval()},
		func(ctx context.Context) (bool, error) {
			return o.resolver.Present(ctx, WorkItemsTabSelected)
		})
	if err != nil {
		return err
	}
	if status != wait.Satisfied {
		return fmt.Errorf("work items tab not selected: %w", browser.ErrTimedOut)
	}
	return nil
}

// listTiles takes a snapshot of the work item cards after the panel renders.
func (v *vehicle) listTiles(ctx context.Context) ([]schemas.WorkItemTile, error) {
	o := v.o
	panel, err := o.resolver.Resolve(ctx, WorkItemsPanel, o.opts.StepTimeout)
	if err != nil {
		return nil, err
	}
	if panel.Status != locator.Found {
		return nil, panel.Err(WorkItemsPanel.Name)
	}
	if err := wait.Sleep(ctx, o.clock, o.opts.RenderFloor); err != nil {
		return nil, err
	}

	els, _, err := o.resolver.All(ctx, Tiles, o.opts.TileWait)
	if err != nil {
		return nil, err
	}
	tiles := make([]schemas.WorkItemTile, 0, len(els))
	for _, el := range els {
		created, known := schemas.ParseCreatedAt(el.Field(fieldCreated))
		tile := schemas.WorkItemTile{
			Ref:          el.Ref,
			State:        schemas.ParseTileState(el.Field(fieldState)),
			Type:         el.Field(fieldType),
			Complaint:    el.Field(fieldComplaint),
			CreatedAt:    created,
			CreatedKnown: known,
		}
		tiles = append(tiles, tile)
		v.logger.Debug("Work item tile.", zap.String("type", tile.Type), zap.String("state", string(tile.State)), zap.Bool("pm", tile.IsPM()))
	}
	v.logger.Info("Work items listed.", zap.Int("count", len(tiles)))
	return tiles, nil
}
