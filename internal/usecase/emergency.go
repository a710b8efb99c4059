package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"antenatal-agent/internal/domain"
)

const maxEmergencyFacilities = 5

type emergencyTemplate struct {
	header         string
	footer         string
	facilityHeader string
	fallback       string
}

var emergencyTemplates = map[string]emergencyTemplate{
	domain.LanguageEnglish: {
		header: "URGENT: This sounds like it could be a danger sign that requires immediate " +
			"medical attention. Please do the following right away:\n\n" +
			"1. Go to your nearest health facility immediately or call emergency services.\n" +
			"2. If you cannot travel, ask someone nearby to help you get to the hospital.\n" +
			"3. Do NOT wait to see if symptoms improve on their own.\n\n",
		footer: "\n\nThis is educational information, not medical diagnosis. " +
			"Always consult your healthcare provider for medical advice.",
		facilityHeader: "Nearest facilities:\n",
		fallback: "Nearest facilities in Migori County:\n" +
			"- Migori County Referral Hospital: 0800 723 253\n" +
			"- Ombo Mission Hospital\n" +
			"- Isebania Sub-County Hospital",
	},
	domain.LanguageSwahili: {
		header: "DHARURA: Hii inaonekana kama dalili ya hatari inayohitaji matibabu ya haraka. " +
			"Tafadhali fanya yafuatayo mara moja:\n\n" +
			"1. Nenda hospitali iliyo karibu nawe mara moja au piga simu ya dharura.\n" +
			"2. Ikiwa huwezi kusafiri, mwombe mtu aliye karibu akusaidie kwenda hospitalini.\n" +
			"3. USISUBIRI kuona kama dalili zitaboreshwa zenyewe.\n\n",
		footer: "\n\nHii ni taarifa ya kielimu, si utambuzi wa kimatibabu. " +
			"Daima wasiliana na mtoa huduma wako wa afya kwa ushauri wa kimatibabu.",
		facilityHeader: "Hospitali za karibu:\n",
		fallback: "Hospitali za karibu katika Kaunti ya Migori:\n" +
			"- Hospitali ya Rufaa ya Kaunti ya Migori: 0800 723 253\n" +
			"- Hospitali ya Ombo Mission\n" +
			"- Hospitali ya Isebania Sub-County",
	},
}

func emergencyTemplateFor(language string) emergencyTemplate {
	if t, ok := emergencyTemplates[language]; ok {
		return t
	}
	return emergencyTemplates[domain.LanguageEnglish]
}

type FacilityFinder interface {
	EmergencyFacilities(ctx context.Context, county string, limit int) ([]domain.Facility, error)
}

// EmergencyResponder builds the urgent-care message for one county.
type EmergencyResponder struct {
	facilities FacilityFinder
	county     string
	logger     *slog.Logger
}

func NewEmergencyResponder(f FacilityFinder, county string, logger *slog.Logger) (*EmergencyResponder, error) {
	if f == nil {
		return nil, errors.New("usecase: facility finder must not be nil")
	}
	county = strings.TrimSpace(county)
	if county == "" {
		return nil, errors.New("usecase: county must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmergencyResponder{facilities: f, county: county, logger: logger}, nil
}

// Message returns header, facility contacts and disclaimer. The contact block
// falls back to a fixed list when the lookup errors or finds nothing.
func (r *EmergencyResponder) Message(ctx context.Context, language string) string {
	t := emergencyTemplateFor(language)
	return t.header + r.contactBlock(ctx, t) + t.footer
}

func (r *EmergencyResponder) contactBlock(ctx context.Context, t emergencyTemplate) string {
	facilities, err := r.facilities.EmergencyFacilities(ctx, r.county, maxEmergencyFacilities)
	if err != nil {
		r.logger.Error("emergency facility lookup failed, using fallback contacts", "county", r.county, "err", err)
		return t.fallback
	}
	if len(facilities) == 0 {
		r.logger.Warn("no emergency facilities found, using fallback contacts", "county", r.county)
		return t.fallback
	}
	return formatFacilityBlock(facilities, t.facilityHeader)
}

func formatFacilityBlock(facilities []domain.Facility, header string) string {
	lines := make([]string, 0, len(facilities))
	for _, f := range facilities {
		lines = append(lines, f.ContactLine())
	}
	return header + strings.Join(lines, "\n")
}
