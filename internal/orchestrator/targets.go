package orchestrator

import (
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
)

// Tile fields extracted relative to each work item card.
const (
	fieldType      = "type"
	fieldState     = "state"
	fieldComplaint = "complaint"
	fieldCreated   = "created"
)

var (
	SearchInput = locator.NewTarget("mva input",
		browser.CSS("input.bp6-input[placeholder*='Enter MVA']"),
		browser.XPath("//input[@type='text' and contains(@placeholder,'MVA')]"),
		browser.XPath("//div[@role='tabpanel' and @aria-hidden='false']//input[@type='text']"),
	)

	WorkItemsTab = locator.NewTarget("work items tab",
		browser.CSS("div.bp6-tab[data-tab-id='workItems']"),
	)
	WorkItemsTabSelected = locator.NewTarget("work items tab selected",
		browser.CSS("div.bp6-tab[data-tab-id='workItems'][aria-selected='true']"),
	)
	WorkItemsPanel = locator.NewTarget("work items panel",
		browser.CSS("div.bp6-tab-panel[id*='workItems'][aria-hidden='false']"),
	)

	Tiles = locator.NewTarget("work item tiles",
		tileQuery(browser.XPath("//div[contains(@class,'bp6-tab-panel') and contains(@id,'workItems') and @aria-hidden='false']//div[contains(@class,'scan-record__')]")),
		tileQuery(browser.CSS("div[class*='scan-record__'][class*='bp6-card']")),
	)
)

func tileQuery(q browser.Query) browser.Query {
	return q.
		WithField(fieldType, ".//div[contains(@class,'scan-record-header-title__')]").
		WithField(fieldState, ".//div[contains(@class,'scan-record-header-title-right__')]").
		WithField(fieldComplaint, "./div[contains(@class,'scan-record-row-2__')]").
		WithField(fieldCreated, ".//*[starts-with(normalize-space(),'Created At')]")
}

// MVAEcho targets the properties panel once it shows id. Only the last 8
// digits are compared so that leading zeros in the panel do not matter.
func MVAEcho(id string) locator.Target {
	last8 := id
	if len(last8) > 8 {
		last8 = last8[len(last8)-8:]
	}
	lit := browser.QuoteXPath(last8)
	return locator.NewTarget("mva echo",
		browser.XPath("//div[contains(@class,'vehicle-properties-container')]//div[contains(@class,'vehicle-property__')]"+
			"[div[contains(@class,'vehicle-property-name')][normalize-space()='MVA']]"+
			"/div[contains(@class,'vehicle-property-value')][contains(normalize-space(),"+lit+")]"),
		browser.XPath("//div[contains(@class,'vehicle-properties-container')]//div[contains(@class,'vehicle-property-value')][contains(normalize-space(),"+lit+")]"),
	)
}
