package wizard

import (
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
)

// Every control the wizard touches, with its known DOM shapes in priority order.
var (
	AddWorkItem = locator.NewTarget("add work item",
		browser.XPath("//button[normalize-space()='Add Work Item']"),
		browser.XPath("//button[.//span[normalize-space()='Add Work Item']]"),
	)

	OpenPMCard = locator.NewTarget("open pm card",
		browser.XPath("//div[contains(@class,'scan-record__')][.//div[contains(@class,'scan-record-header-title-right__')][normalize-space()='Open']][.//div[contains(@class,'scan-record-header-title__')][contains(normalize-space(),'PM')] or ./div[contains(@class,'scan-record-row-2__')][contains(.,'PM')]]"),
		browser.XPath("//div[contains(@class,'scan-record__') and ./div[contains(@class,'scan-record-header__')] and ./div[contains(@class,'scan-record-row-2__') and contains(., 'PM')]][.//*[normalize-space()='Open']]"),
	)

	PMComplaint = locator.NewTarget("pm complaint",
		browser.XPath("//div[contains(@class,'complaintItem')][.//*[normalize-space()='PM' or normalize-space()='PM Hard Hold - PM']]"),
		browser.XPath("//button[contains(@class,'complaint')][.//h1[normalize-space()='PM' or normalize-space()='PM Hard Hold - PM']]"),
	)

	NewComplaint = locator.NewTarget("add new complaint",
		browser.XPath("//button[normalize-space()='Add New Complaint']"),
		browser.XPath("//button[normalize-space()='Create New Complaint']"),
	)

	DrivableYes = locator.NewTarget("drivable yes",
		browser.CSS("button[data-testid='drivable-yes']"),
		browser.XPath("//div[contains(@class,'drivable-options-container')]//button[.//h1[normalize-space()='Yes']]"),
		browser.XPath("//button[.//h1[normalize-space()='Yes']]"),
	)

	DrivabilityNext = locator.NewTarget("drivability next",
		browser.CSS("button[data-testid='drivability-next']"),
	)

	PMComplaintType = locator.NewTarget("pm complaint type",
		browser.XPath("//button[contains(@class,'damage-option-button')][.//h1[normalize-space()='PM']]"),
		browser.XPath("//button[normalize-space()='PM']"),
	)

	SubmitComplaint = locator.NewTarget("submit complaint",
		browser.XPath("//button[normalize-space()='Submit Complaint']"),
		browser.XPath("//button[.//span[normalize-space()='Submit Complaint']]"),
	)

	Next = locator.NewTarget("next",
		browser.CSS("button.fleet-operations-pwa__nextButton__153vo4c"),
		browser.XPath("//button[.//p[normalize-space()='Next']]"),
		browser.XPath("//*[@role='button' and .//p[normalize-space()='Next']]"),
		browser.XPath("//button[normalize-space()='Next']"),
	)

	CreateWorkItem = locator.NewTarget("create work item",
		browser.XPath("//button[normalize-space()='Create Work Item']"),
		browser.CSS("button[data-testid='opcode-create']"),
	)

	Done = locator.NewTarget("done",
		browser.XPath("//div[contains(@class,'bp6-dialog')]//button[normalize-space()='Done']"),
		browser.XPath("//div[contains(@class,'bp6-dialog')]//span[normalize-space()='Done']/ancestor::button[1]"),
		browser.XPath("//div[contains(@class,'bp6-dialog')]//*[@role='button' and normalize-space()='Done']"),
		browser.XPath("//div[contains(@class,'bp6-dialog')]//button[normalize-space()='Finish']"),
		browser.XPath("//div[contains(@class,'bp6-dialog')]//button[normalize-space()='Close']"),
	)

	Dismiss = locator.NewTarget("dismiss dialog",
		browser.XPath("//div[contains(@class,'bp6-dialog')]//button[contains(@class,'close') or @aria-label='Close']"),
		browser.XPath("//div[contains(@class,'bp6-dialog')]//button[normalize-space()='Cancel']"),
	)

	Dialog = locator.NewTarget("dialog",
		browser.CSS("div.bp6-dialog"),
	)

	MarkCompleteButton = locator.NewTarget("mark complete",
		browser.XPath("//button[normalize-space()='Mark Complete']"),
		browser.CSS("button[class*='mark-complete-button']"),
	)

	CompletionNote = locator.NewTarget("completion note",
		browser.CSS("div.bp6-dialog textarea.bp6-text-area"),
		browser.CSS("textarea.bp6-text-area"),
	)

	CompleteWorkItem = locator.NewTarget("complete work item",
		browser.XPath("//div[contains(@class,'bp6-dialog')]//button[normalize-space()='Complete Work Item']"),
		browser.CSS("button[class*='submit-button']"),
	)
)

// cardHeaderExpr is the clickable title bar of a work item card.
const cardHeaderExpr = "./div[contains(@class,'scan-record-header__')]"

// CardHeader targets the title bar inside the card with the given ref.
func CardHeader(cardRef string) locator.Target {
	return locator.NewTarget("card header", browser.XPath(cardHeaderExpr).Within(cardRef))
}

// OpcodeTile targets the opcode tile whose label is exactly name.
func OpcodeTile(name string) locator.Target {
	lit := browser.QuoteXPath(name)
	return locator.NewTarget("opcode "+name,
		browser.XPath("//div[contains(@class,'opCodeItem')][.//div[contains(@class,'opCodeText')][normalize-space()="+lit+"]]"),
		browser.XPath("//*[contains(@class,'opCodeText')][normalize-space()="+lit+"]/ancestor::div[contains(@class,'opCodeItem')][1]"),
	)
}
