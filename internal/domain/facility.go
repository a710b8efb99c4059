package domain

// Facility is a health facility used for emergency referrals.
type Facility struct {
	Name                 string
	County               string
	PhoneNumber          string
	EmergencyLine        string
	Active               bool
	HasEmergencyServices bool
	Verified             bool
	DisplayPriority      int
}

// ContactLine renders the facility as a single referral line, preferring the
// main phone number over the emergency line.
func (f Facility) ContactLine() string {
	line := "- " + f.Name
	switch {
	case f.PhoneNumber != "":
		line += ": " + f.PhoneNumber
	case f.EmergencyLine != "":
		line += ": " + f.EmergencyLine
	}
	return line
}
