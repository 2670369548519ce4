// internal/observability/metrics_test.go
package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveOutcome("created", "", 30*time.Second)
	m.ObserveOutcome("created", "", 25*time.Second)
	m.ObserveOutcome("failed", "opcode", 12*time.Second)
	m.ObserveRecovery("back", true)
	m.ObserveRecovery("reauth", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomesTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stepFailures.WithLabelValues("opcode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("reauth", "failed")))

	t.Run("independent registries", func(t *testing.T) {
		other := NewMetrics()
		assert.Equal(t, 0.0, testutil.ToFloat64(other.outcomesTotal.WithLabelValues("created")))
	})

	t.Run("textfile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fleetpm.prom")
		require.NoError(t, m.WriteTextfile(path))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `fleetpm_vehicle_outcomes_total{status="created"} 2`)
		assert.Contains(t, string(content), `fleetpm_step_failures_total{step="opcode"} 1`)
	})

	t.Run("empty path is a no-op", func(t *testing.T) {
		assert.NoError(t, m.WriteTextfile(""))
	})
}
