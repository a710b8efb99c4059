package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"antenatal-agent/internal/domain"
)

type fakeFacilities struct {
	list   []domain.Facility
	err    error
	county string
	limit  int
}

func (f *fakeFacilities) EmergencyFacilities(_ context.Context, county string, limit int) ([]domain.Facility, error) {
	f.county = county
	f.limit = limit
	return f.list, f.err
}

func migoriFacilities() []domain.Facility {
	return []domain.Facility{
		{Name: "Migori County Referral Hospital", County: "Migori", PhoneNumber: "0800 723 253", DisplayPriority: 1},
		{Name: "Ombo Mission Hospital", County: "Migori", EmergencyLine: "0722 123 456", DisplayPriority: 2},
		{Name: "Uriri Health Centre", County: "Migori", DisplayPriority: 3},
	}
}

func newTestResponder(t *testing.T, f FacilityFinder) *EmergencyResponder {
	t.Helper()
	r, err := NewEmergencyResponder(f, "Migori", nil)
	require.NoError(t, err)
	return r
}

func TestNewEmergencyResponder_Validation(t *testing.T) {
	_, err := NewEmergencyResponder(nil, "Migori", nil)
	require.Error(t, err)
	_, err = NewEmergencyResponder(&fakeFacilities{}, " ", nil)
	require.Error(t, err)
}

func TestEmergencyMessage_WithFacilities(t *testing.T) {
	f := &fakeFacilities{list: migoriFacilities()}
	msg := newTestResponder(t, f).Message(context.Background(), domain.LanguageEnglish)

	require.True(t, strings.HasPrefix(msg, "URGENT:"))
	require.Contains(t, msg, "Nearest facilities:\n"+
		"- Migori County Referral Hospital: 0800 723 253\n"+
		"- Ombo Mission Hospital: 0722 123 456\n"+
		"- Uriri Health Centre")
	require.True(t, strings.HasSuffix(msg, "Always consult your healthcare provider for medical advice."))
	require.Equal(t, "Migori", f.county)
	require.Equal(t, maxEmergencyFacilities, f.limit)
}

func TestEmergencyMessage_Swahili(t *testing.T) {
	msg := newTestResponder(t, &fakeFacilities{list: migoriFacilities()}).Message(context.Background(), domain.LanguageSwahili)
	require.True(t, strings.HasPrefix(msg, "DHARURA:"))
	require.Contains(t, msg, "Hospitali za karibu:\n- Migori County Referral Hospital")
	require.Contains(t, msg, "Daima wasiliana")
}

func TestEmergencyMessage_FallbackContacts(t *testing.T) {
	for name, f := range map[string]*fakeFacilities{
		"empty": {},
		"error": {err: errors.New("dynamodb down")},
	} {
		msg := newTestResponder(t, f).Message(context.Background(), domain.LanguageEnglish)
		require.Contains(t, msg, "Nearest facilities in Migori County:\n- Migori County Referral Hospital: 0800 723 253", name)

		msg = newTestResponder(t, f).Message(context.Background(), domain.LanguageSwahili)
		require.Contains(t, msg, "Hospitali za karibu katika Kaunti ya Migori:", name)
	}
}
