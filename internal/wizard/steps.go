package wizard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/api/schemas"
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
	"github.com/xkilldash9x/fleetpm/internal/browser/wait"
)

// Step names double as failure reasons.
const (
	stepAddWorkItem     = "add_work_item"
	stepAssociation     = "complaint_association"
	stepSelectComplaint = "select_complaint"
	stepNewComplaint    = "new_complaint"
	stepDrivability     = "drivability"
	stepComplaintType   = "complaint_type"
	stepSubmitComplaint = "submit_complaint"
	stepMileage         = "mileage"
	stepOpcode          = "opcode"
	stepCreate          = "create_work_item"
	stepOpenItem        = "open_work_item"
	stepMarkComplete    = "mark_complete"
)

// steps is keyed by the state the machine believes it is in. Each step
// re-checks the page before acting.
var steps = map[State]step{
	NoOpenItem: {
		name:   stepAddWorkItem,
		accept: []State{NoOpenItem},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evStartCreate, r.click(AddWorkItem))
		},
	},
	ComplaintAssociation: {
		name:   stepAssociation,
		accept: []State{ComplaintSelected, ComplaintCreation},
		floor:  true,
		run:    associate,
	},
	ComplaintSelected: {
		name:   stepSelectComplaint,
		accept: []State{ComplaintSelected},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evUseComplaint, func(ctx context.Context) error {
				if err := r.m.resolver.Click(ctx, PMComplaint, r.m.opts.StepTimeout); err != nil {
					return err
				}
				return r.clickWhenEnabled(Next)(ctx)
			})
		},
	},
	ComplaintCreation: {
		name:   stepNewComplaint,
		accept: []State{ComplaintCreation},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evNewComplaint, r.click(NewComplaint))
		},
	},
	Drivability: {
		name:   stepDrivability,
		accept: []State{Drivability},
		floor:  true,
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evAnswerDrivable, r.answerDrivable)
		},
	},
	ComplaintType: {
		name:   stepComplaintType,
		accept: []State{ComplaintType},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evChooseType, r.click(PMComplaintType))
		},
	},
	AdditionalInfo: {
		name:   stepSubmitComplaint,
		accept: []State{AdditionalInfo},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evSubmitComplaint, r.clickWhenEnabled(SubmitComplaint))
		},
	},
	Mileage: {
		name:   stepMileage,
		accept: []State{Mileage},
		floor:  true,
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			// The mileage value is left as the app pre-fills it.
			return "", r.fire(ctx, evConfirmMileage, r.clickWhenEnabled(Next))
		},
	},
	Opcode: {
		name: stepOpcode,
		// A preselected opcode shows up as Finalize; the tile is still verified.
		accept: []State{Opcode, Finalize},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evChooseOpcode, r.chooseOpcode)
		},
	},
	Finalize: {
		name:   stepCreate,
		accept: []State{Finalize},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evCreate, func(ctx context.Context) error {
				if err := r.clickWhenEnabled(CreateWorkItem)(ctx); err != nil {
					return err
				}
				r.logger.Info("PM work item created.")
				return r.done(ctx)
			})
		},
	},
	OpenItemExists: {
		name: stepOpenItem,
		// The card may already be expanded from an earlier attempt.
		accept: []State{OpenItemExists, MarkComplete},
		floor:  true,
		run: func(ctx context.Context, r *run, observed State) (schemas.OutcomeStatus, error) {
			if observed == MarkComplete {
				r.logger.Debug("Open PM card is already expanded.")
				r.fsm.SetState(string(MarkComplete))
				return "", nil
			}
			return "", r.fire(ctx, evOpenItem, r.openCard)
		},
	},
	MarkComplete: {
		name:   stepMarkComplete,
		accept: []State{MarkComplete},
		run: func(ctx context.Context, r *run, _ State) (schemas.OutcomeStatus, error) {
			return "", r.fire(ctx, evMarkComplete, r.markComplete)
		},
	},
}

// associate decides between reusing a PM complaint and creating one. With no
// PM complaint, a vehicle whose status names the CDK keyword is backed out,
// and one with no way to add a complaint is skipped.
func associate(ctx context.Context, r *run, observed State) (schemas.OutcomeStatus, error) {
	if observed == ComplaintSelected {
		return "", r.fire(ctx, evFoundComplaint, nil)
	}

	if schemas.ContainsToken(r.req.Lighthouse, r.m.opts.CDKKeyword) {
		r.logger.Warn("No PM complaint to associate; PM must be closed out in CDK.", zap.String("lighthouse", r.req.Lighthouse))
		return schemas.StatusSkippedCDKRequired, r.dismiss(ctx)
	}
	if observed != ComplaintCreation {
		r.logger.Warn("No PM complaint to associate and no way to add one.")
		return schemas.StatusSkippedNoComplaint, r.dismiss(ctx)
	}
	return "", r.fire(ctx, evNoComplaint, nil)
}

// answerDrivable answers Yes. Some app versions need an explicit Next on the
// drivability page; others advance on their own.
func (r *run) answerDrivable(ctx context.Context) error {
	if err := r.click(DrivableYes)(ctx); err != nil {
		return err
	}
	if err := wait.Sleep(ctx, r.m.clock, r.m.opts.RenderFloor); err != nil {
		return err
	}
	if state, _, err := r.m.Observe(ctx); err != nil || state != Drivability {
		return err
	}
	present, err := r.m.resolver.Present(ctx, DrivabilityNext)
	if err != nil || !present {
		return err
	}
	return r.clickWhenEnabled(DrivabilityNext)(ctx)
}

// chooseOpcode selects the configured opcode tile unless it is already
// selected, then waits for the selection to show.
func (r *run) chooseOpcode(ctx context.Context) error {
	tile := OpcodeTile(r.m.opts.Opcode)
	res, err := r.m.resolver.Resolve(ctx, tile, r.m.opts.StepTimeout)
	if err != nil {
		return err
	}
	if res.Status != locator.Found {
		return res.Err(tile.Name)
	}
	if res.Element.HasClass("selected") {
		return nil
	}
	if err := r.m.driver.Click(ctx, res.Element); err != nil {
		return err
	}

	status, err := wait.For(ctx, r.m.clock, wait.Options{Timeout: r.m.opts.EnableTimeout, Interval: r.m.resolver.Interval()},
		func(ctx context.Context) (bool, error) {
			els, err := r.m.driver.Find(ctx, res.Query)
			if err != nil || len(els) == 0 {
				return false, err
			}
			return els[0].HasClass("selected"), nil
		})
	if err != nil {
		return err
	}
	if status != wait.Satisfied {
		return fmt.Errorf("opcode %q not selected after click: %w", r.m.opts.Opcode, browser.ErrTimedOut)
	}
	return nil
}

// openCard clicks the title bar of the first open PM card.
func (r *run) openCard(ctx context.Context) error {
	res, err := r.m.resolver.Resolve(ctx, OpenPMCard, r.m.opts.StepTimeout)
	if err != nil {
		return err
	}
	if res.Status != locator.Found {
		return res.Err(OpenPMCard.Name)
	}
	return r.m.resolver.Click(ctx, CardHeader(res.Element.Ref), r.m.opts.StepTimeout)
}

// markComplete enters the completion note and submits it once, then waits
// for the dialog to close plus a settle period for the backend to catch up.
func (r *run) markComplete(ctx context.Context) error {
	noteOpen, err := r.m.resolver.Present(ctx, CompletionNote)
	if err != nil {
		return err
	}
	if !noteOpen {
		if err := r.click(MarkCompleteButton)(ctx); err != nil {
			return err
		}
	}
	if err := r.m.resolver.Type(ctx, CompletionNote, r.m.opts.CompletionNote, r.m.opts.StepTimeout); err != nil {
		return err
	}
	if err := r.clickWhenEnabled(CompleteWorkItem)(ctx); err != nil {
		return err
	}

	status, err := wait.For(ctx, r.m.clock, wait.Options{Timeout: r.m.opts.StepTimeout, Interval: r.m.resolver.Interval()},
		func(ctx context.Context) (bool, error) {
			open, err := r.m.resolver.Present(ctx, CompletionNote)
			return !open, err
		})
	if err != nil {
		return err
	}
	if status != wait.Satisfied {
		return fmt.Errorf("completion dialog did not close: %w", browser.ErrTimedOut)
	}

	r.logger.Info("PM work item marked complete; waiting for the backend to settle.", zap.Duration("settle", r.m.opts.CompletionSettle))
	return wait.Sleep(ctx, r.m.clock, r.m.opts.CompletionSettle)
}
