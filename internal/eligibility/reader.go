package eligibility

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/fleetpm/api/schemas"
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
)

// Property labels on the vehicle properties panel.
const (
	LabelLighthouse      = "Lighthouse"
	LabelOdometer        = "Wizard Odometer"
	LabelNextService     = "Next PM Mileage"
	LabelServiceInterval = "PM Interval"
	LabelMVA             = "MVA"
)

const (
	fieldName  = "name"
	fieldValue = "value"
)

// Properties is every name/value row of the vehicle properties panel.
var Properties = locator.NewTarget("vehicle properties",
	browser.XPath("//div[contains(@class,'vehicle-properties-container')]//div[contains(@class,'vehicle-property__')]").
		WithField(fieldName, "./div[contains(@class,'vehicle-property-name')]").
		WithField(fieldValue, "./div[contains(@class,'vehicle-property-value')]"),
	browser.XPath("//div[contains(@class,'vehicle-property__')]").
		WithField(fieldName, "./div[contains(@class,'vehicle-property-name')]").
		WithField(fieldValue, "./div[contains(@class,'vehicle-property-value')]"),
)

// Reader builds a VehicleStatusSnapshot from the properties panel.
type Reader struct {
	resolver *locator.Resolver
	timeout  time.Duration
	logger   *zap.Logger
}

// NewReader creates a Reader that waits up to timeout for the panel.
func NewReader(resolver *locator.Resolver, timeout time.Duration, logger *zap.Logger) *Reader {
	return &Reader{resolver: resolver, timeout: timeout, logger: logger.Named("eligibility")}
}

// Read takes one snapshot of the panel. Fields that are missing or not
// numeric are left unknown. A panel that never renders yields an all-unknown
// snapshot; only driver faults are returned as errors.
func (r *Reader) Read(ctx context.Context) (schemas.VehicleStatusSnapshot, error) {
	var snap schemas.VehicleStatusSnapshot

	rows, res, err := r.resolver.All(ctx, Properties, r.timeout)
	if err != nil {
		return snap, err
	}
	if res.Status != locator.Found {
		r.logger.Warn("Vehicle properties panel did not render.", zap.Stringer("status", res.Status))
		return snap, nil
	}

	props := make(map[string]string, len(rows))
	for _, row := range rows {
		name := normalizeLabel(row.Field(fieldName))
		if name == "" {
			continue
		}
		if _, dup := props[name]; !dup {
			props[name] = strings.TrimSpace(row.Field(fieldValue))
		}
	}

	snap.Lighthouse = lookup(props, LabelLighthouse)
	snap.Rentable = schemas.IsRentableStatus(snap.Lighthouse)
	snap.Odometer = schemas.ParseMiles(lookup(props, LabelOdometer))
	snap.NextService = schemas.ParseMiles(lookup(props, LabelNextService))
	snap.ServiceInterval = schemas.ParseMiles(lookup(props, LabelServiceInterval))

	r.logger.Debug("Vehicle status read.",
		zap.String("lighthouse", snap.Lighthouse),
		zap.Stringer("odometer", snap.Odometer),
		zap.Stringer("next_service", snap.NextService),
		zap.Stringer("interval", snap.ServiceInterval),
	)
	return snap, nil
}

// lookup matches a label exactly first, then as a prefix, since some rows
// carry a suffix such as "Lighthouse Status".
func lookup(props map[string]string, label string) string {
	key := normalizeLabel(label)
	if v, ok := props[key]; ok {
		return v
	}
	for name, v := range props {
		if strings.HasPrefix(name, key) {
			return v
		}
	}
	return ""
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
