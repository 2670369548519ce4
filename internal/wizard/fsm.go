package wizard

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// Transition events. Each one is issued at most once per invocation.
const (
	evStartCreate     = "start_create"
	evOpenItem        = "open_item"
	evFoundComplaint  = "found_complaint"
	evNoComplaint     = "no_complaint"
	evUseComplaint    = "use_complaint"
	evNewComplaint    = "new_complaint"
	evAnswerDrivable  = "answer_drivable"
	evChooseType      = "choose_type"
	evSubmitComplaint = "submit_complaint"
	evConfirmMileage  = "confirm_mileage"
	evChooseOpcode    = "choose_opcode"
	evCreate          = "create"
	evMarkComplete    = "mark_complete"
)

func events() fsm.Events {
	e := func(name string, src State, dst State) fsm.EventDesc {
		return fsm.EventDesc{Name: name, Src: []string{string(src)}, Dst: string(dst)}
	}
	return fsm.Events{
		e(evStartCreate, NoOpenItem, ComplaintAssociation),
		e(evOpenItem, OpenItemExists, MarkComplete),
		e(evFoundComplaint, ComplaintAssociation, ComplaintSelected),
		e(evNoComplaint, ComplaintAssociation, ComplaintCreation),
		e(evUseComplaint, ComplaintSelected, Mileage),
		e(evNewComplaint, ComplaintCreation, Drivability),
		e(evAnswerDrivable, Drivability, ComplaintType),
		e(evChooseType, ComplaintType, AdditionalInfo),
		e(evSubmitComplaint, AdditionalInfo, Mileage),
		e(evConfirmMileage, Mileage, Opcode),
		e(evChooseOpcode, Opcode, Finalize),
		e(evCreate, Finalize, Created),
		e(evMarkComplete, MarkComplete, Completed),
	}
}

// action is the UI side effect attached to a transition.
type action func(ctx context.Context) error

// wrapEvent adapts an error-returning callback to fsm.Callback.
func wrapEvent(fn func(ctx context.Context, e *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, e *fsm.Event) {
		if err := fn(ctx, e); err != nil {
			e.Err = err
		}
	}
}

// unwrapEventErr strips the fsm wrapper from an error raised by a callback.
func unwrapEventErr(err error) error {
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) && canceled.Err != nil {
		return canceled.Err
	}
	return err
}
