package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"antenatal-agent/internal/domain"
)

// FacilityWriter upserts one facility into the county directory.
type FacilityWriter interface {
	PutFacility(ctx context.Context, f domain.Facility) error
}

// MigoriFacilities is the initial referral directory for Migori County.
var MigoriFacilities = []domain.Facility{
	migori("Migori County Referral Hospital", "0800 723 253", "0800 723 253", 1),
	migori("Ombo Mission Hospital", "0722 123 456", "", 2),
	migori("Isebania Sub-County Hospital", "0733 456 789", "", 3),
	migori("Awendo Sub-County Hospital", "0744 567 890", "", 4),
	migori("Rongo Sub-County Hospital", "0755 678 901", "", 5),
	migori("Macalder Mission Hospital", "0766 789 012", "", 6),
	migori("Kehancha Sub-County Hospital", "0777 890 123", "", 7),
}

func migori(name, phone, emergencyLine string, priority int) domain.Facility {
	return domain.Facility{
		Name:                 name,
		County:               "Migori",
		PhoneNumber:          phone,
		EmergencyLine:        emergencyLine,
		Active:               true,
		HasEmergencyServices: true,
		Verified:             true,
		DisplayPriority:      priority,
	}
}

// LoadFacilities writes every facility in order and stops at the first
// failure. Facilities are keyed by county and name, so loading twice is safe.
func LoadFacilities(ctx context.Context, w FacilityWriter, facilities []domain.Facility, logger *slog.Logger) (int, error) {
	if w == nil {
		return 0, errors.New("seed: facility writer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	for i, f := range facilities {
		if err := w.PutFacility(ctx, f); err != nil {
			return i, fmt.Errorf("seed: put facility %q: %w", f.Name, err)
		}
		logger.Info("facility seeded", "name", f.Name, "county", f.County, "priority", f.DisplayPriority)
	}
	return len(facilities), nil
}
