// Package wizard drives the multi-dialog PM work item flow. The current step
// is never stored: it is inferred from a signature of the page before every
// action, and a looplab/fsm table decides which transitions are legal.
package wizard

import (
	"github.com/xkilldash9x/fleetpm/internal/browser"
)

// State names one screen of the work item wizard.
type State string

const (
	NoOpenItem           State = "no_open_item"
	OpenItemExists       State = "open_item_exists"
	ComplaintAssociation State = "complaint_association"
	ComplaintSelected    State = "complaint_selected"
	ComplaintCreation    State = "complaint_creation"
	Drivability          State = "drivability"
	ComplaintType        State = "complaint_type"
	AdditionalInfo       State = "additional_info"
	Mileage              State = "mileage"
	Opcode               State = "opcode"
	Finalize             State = "finalize"
	MarkComplete         State = "mark_complete"
	Created              State = "created"
	Completed            State = "completed"
	Unknown              State = "unknown"
)

// Terminal reports whether s ends a wizard invocation.
func (s State) Terminal() bool { return s == Created || s == Completed }

func (s State) String() string { return string(s) }

// Probe names used in page signatures.
const (
	probeAddWorkItem     = "add_work_item"
	probeOpenPMTile      = "open_pm_tile"
	probeMarkComplete    = "mark_complete"
	probeCompletionNote  = "completion_note"
	probeAssociation     = "association"
	probePMComplaint     = "pm_complaint"
	probeNewComplaint    = "new_complaint"
	probeDrivable        = "drivable"
	probeComplaintType   = "complaint_type"
	probeSubmitComplaint = "submit_complaint"
	probeMileage         = "mileage"
	probeOpcodeTile      = "opcode_tile"
	probeOpcodeSelected  = "opcode_selected"
	probeCreateWorkItem  = "create_work_item"
)

// Probes is the fixed set of queries whose visible counts make up a
// signature. Each probe is the cheapest shape that identifies its screen.
var Probes = map[string]browser.Query{
	probeAddWorkItem:     AddWorkItem.Candidates[0],
	probeOpenPMTile:      OpenPMCard.Candidates[0],
	probeMarkComplete:    MarkCompleteButton.Candidates[0],
	probeCompletionNote:  CompletionNote.Candidates[0],
	probeAssociation:     browser.XPath("//div[contains(@class,'complaintItem')] | //div[contains(@class,'bp6-dialog')]//*[self::h1 or self::h4][contains(normalize-space(),'Complaint')]"),
	probePMComplaint:     PMComplaint.Candidates[0],
	probeNewComplaint:    browser.XPath("//button[normalize-space()='Add New Complaint' or normalize-space()='Create New Complaint']"),
	probeDrivable:        browser.XPath("//button[@data-testid='drivable-yes'] | //div[contains(@class,'drivable-options-container')]//button"),
	probeComplaintType:   browser.XPath("//button[contains(@class,'damage-option-button')]"),
	probeSubmitComplaint: SubmitComplaint.Candidates[0],
	probeMileage:         browser.XPath("//div[contains(@class,'bp6-dialog')]//*[self::h1 or self::h2 or self::h3 or self::h4 or self::label][contains(normalize-space(),'Mileage') or contains(normalize-space(),'Odometer')]"),
	probeOpcodeTile:      browser.XPath("//div[contains(@class,'opCodeItem')]"),
	probeOpcodeSelected:  browser.XPath("//div[contains(@class,'opCodeItem') and contains(@class,'selected')]"),
	probeCreateWorkItem:  CreateWorkItem.Candidates[0],
}

// Infer maps a signature onto the screen it shows. Dialogs are checked
// before the work items panel because the panel stays rendered beneath them.
func Infer(sig browser.Signature) State {
	switch {
	case sig.Has(probeCompletionNote):
		return MarkComplete
	case sig.Has(probeCreateWorkItem) && (sig.Has(probeOpcodeSelected) || !sig.Has(probeOpcodeTile)):
		return Finalize
	case sig.Has(probeOpcodeTile):
		return Opcode
	case sig.Has(probeMileage):
		return Mileage
	case sig.Has(probeSubmitComplaint):
		return AdditionalInfo
	case sig.Has(probeComplaintType):
		return ComplaintType
	case sig.Has(probeDrivable):
		return Drivability
	case sig.Has(probePMComplaint):
		return ComplaintSelected
	case sig.Has(probeNewComplaint):
		return ComplaintCreation
	case sig.Has(probeAssociation):
		return ComplaintAssociation
	case sig.Has(probeMarkComplete):
		return MarkComplete
	case sig.Has(probeOpenPMTile):
		return OpenItemExists
	case sig.Has(probeAddWorkItem):
		return NoOpenItem
	default:
		return Unknown
	}
}
