package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/fleetpm/internal/browser"
)

func sig(probes ...string) browser.Signature {
	s := browser.Signature{}
	for _, p := range probes {
		s[p] = 1
	}
	return s
}

func TestInfer(t *testing.T) {
	tests := []struct {
		name string
		sig  browser.Signature
		want State
	}{
		{"empty page", sig(), Unknown},
		{"work items panel", sig(probeAddWorkItem), NoOpenItem},
		{"open pm card", sig(probeAddWorkItem, probeOpenPMTile), OpenItemExists},
		{"expanded card", sig(probeAddWorkItem, probeOpenPMTile, probeMarkComplete), MarkComplete},
		{"completion dialog over the card", sig(probeOpenPMTile, probeMarkComplete, probeCompletionNote), MarkComplete},
		{"association with nothing to pick", sig(probeAddWorkItem, probeAssociation), ComplaintAssociation},
		{"existing pm complaint", sig(probeAssociation, probePMComplaint, probeNewComplaint), ComplaintSelected},
		{"only add new complaint", sig(probeAssociation, probeNewComplaint), ComplaintCreation},
		{"drivability", sig(probeAddWorkItem, probeDrivable), Drivability},
		{"complaint type", sig(probeComplaintType), ComplaintType},
		{"additional info", sig(probeSubmitComplaint), AdditionalInfo},
		{"mileage", sig(probeMileage), Mileage},
		{"opcode not selected", sig(probeOpcodeTile, probeCreateWorkItem), Opcode},
		{"opcode selected", sig(probeOpcodeTile, probeOpcodeSelected, probeCreateWorkItem), Finalize},
		{"create without tiles", sig(probeCreateWorkItem), Finalize},
		{"zero counts do not match", browser.Signature{probeAddWorkItem: 0}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Infer(tt.sig))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, Created.Terminal())
	assert.True(t, Completed.Terminal())
	assert.False(t, Finalize.Terminal())
	assert.False(t, Unknown.Terminal())
}

func TestEventsCoverEveryStep(t *testing.T) {
	sources := map[State]bool{}
	for _, e := range events() {
		for _, src := range e.Src {
			sources[State(src)] = true
		}
	}
	for state := range steps {
		assert.True(t, sources[state], "no transition leaves %s", state)
	}
}
