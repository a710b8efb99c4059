package domain

import (
	"errors"
	"time"
)

// ErrSubscriberExists is returned by stores when a platform id is already
// enrolled.
var ErrSubscriberExists = errors.New("subscriber already exists")

const (
	LanguageEnglish = "en"
	LanguageSwahili = "sw"

	CohortIntervention = "intervention"
	CohortControl      = "control"
)

// RegistrationState is derived from Subscriber fields on every read. It is
// never persisted.
type RegistrationState string

const (
	StateAwaitingConsent        RegistrationState = "AWAITING_CONSENT"
	StateAwaitingName           RegistrationState = "AWAITING_NAME"
	StateAwaitingGestationalAge RegistrationState = "AWAITING_GESTATIONAL_AGE"
	StateRegistered             RegistrationState = "REGISTERED"
)

// Subscriber is a person enrolled through the messaging channel, keyed by the
// platform-assigned id.
type Subscriber struct {
	ID                   string
	PhoneNumber          string
	PlatformID           string
	Name                 *string
	Cohort               string
	GestationalAgeWeeks  *int
	ExpectedDeliveryDate *time.Time
	Active               bool
	Language             string
	ConsentGiven         bool
	ConsentGivenAt       *time.Time
	RegistrationComplete bool
	EnrolledAt           time.Time
}

// RegistrationState computes the onboarding step from the persisted flags.
func (s Subscriber) RegistrationState() RegistrationState {
	switch {
	case !s.ConsentGiven:
		return StateAwaitingConsent
	case s.Name == nil:
		return StateAwaitingName
	case s.GestationalAgeWeeks == nil || !s.RegistrationComplete:
		return StateAwaitingGestationalAge
	default:
		return StateRegistered
	}
}

// CurrentGestationalAge adds the whole weeks elapsed since enrollment to the
// gestational age reported at enrollment. Nil until the age is known.
func (s Subscriber) CurrentGestationalAge(now time.Time) *int {
	if s.GestationalAgeWeeks == nil {
		return nil
	}
	weeks := *s.GestationalAgeWeeks
	if !s.EnrolledAt.IsZero() && now.After(s.EnrolledAt) {
		weeks += int(now.Sub(s.EnrolledAt).Hours()/24) / 7
	}
	return &weeks
}

// PreferredLanguage falls back to English for unknown or empty preferences.
func (s Subscriber) PreferredLanguage() string {
	if s.Language == LanguageSwahili {
		return LanguageSwahili
	}
	return LanguageEnglish
}
