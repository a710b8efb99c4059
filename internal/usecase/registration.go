package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"antenatal-agent/internal/domain"
)

const (
	minGestationalWeeks = 1
	maxGestationalWeeks = 42
	termWeeks           = 40
)

var (
	affirmativeReplies = map[string]bool{"yes": true, "ndiyo": true, "ndio": true}
	negativeReplies    = map[string]bool{"no": true, "hapana": true}
)

type registrationPrompts struct {
	welcome      string
	askName      string
	declined     string
	consentAgain string
	nameAgain    string
	askWeeks     string // %s name
	weeksAgain   string
	registered   string // %d weeks, %s delivery date
	dateLayout   string
}

var promptsByLanguage = map[string]registrationPrompts{
	domain.LanguageEnglish: {
		welcome: "Welcome to the Antenatal Education Chatbot! I am here to help you with " +
			"information about your pregnancy journey.\n\n" +
			"This is a research study chatbot that provides educational information about " +
			"maternal health based on WHO and Kenya Ministry of Health guidelines.\n\n" +
			"Important: This is educational information, not medical diagnosis. Always " +
			"consult your healthcare provider for medical advice.\n\n" +
			"Do you consent to participate in this study and receive antenatal education " +
			"messages? Please reply YES or NO.",
		askName:      "Thank you for consenting to participate! What is your name?",
		declined:     "Thank you for your response. You can message us anytime if you change your mind. Take care, Mama!",
		consentAgain: "Please reply YES or NO to consent to participate in the study.",
		nameAgain:    "Please reply with your name so we can get started.",
		askWeeks:     "Nice to meet you, %s! How many weeks pregnant are you? Please reply with a number (for example: 20).",
		weeksAgain:   "Please enter a valid number of weeks (between 1 and 42). For example: 20",
		registered: "You are registered! You are %d weeks pregnant. " +
			"Your expected delivery date is approximately %s.\n\n" +
			"You can now ask me any questions about your pregnancy. I can help with:\n" +
			"- Nutrition and diet\n" +
			"- Danger signs to watch for\n" +
			"- Birth preparedness\n" +
			"- Common discomforts\n" +
			"- ANC appointments\n" +
			"- Newborn care\n\n" +
			"Just type your question and I will do my best to help you, Mama!",
		dateLayout: "January 02, 2006",
	},
	domain.LanguageSwahili: {
		welcome: "Karibu kwenye Chatbot ya Elimu ya Ujauzito! Niko hapa kukusaidia na " +
			"habari kuhusu safari yako ya ujauzito.\n\n" +
			"Hii ni chatbot ya utafiti inayotoa habari za kielimu kuhusu afya ya mama " +
			"kulingana na miongozo ya WHO na Wizara ya Afya ya Kenya.\n\n" +
			"Muhimu: Hii ni habari ya kielimu, si utambuzi wa kimatibabu. Daima " +
			"wasiliana na mtoa huduma wako wa afya kwa ushauri wa kimatibabu.\n\n" +
			"Je, unakubali kushiriki katika utafiti huu na kupokea ujumbe wa elimu ya " +
			"ujauzito? Tafadhali jibu NDIYO au HAPANA.",
		askName:      "Asante kwa kukubali kushiriki! Jina lako ni nani?",
		declined:     "Asante kwa jibu lako. Unaweza kututumia ujumbe wakati wowote ukibadilisha nia. Jitunze, Mama!",
		consentAgain: "Tafadhali jibu NDIYO au HAPANA ili kukubali kushiriki katika utafiti.",
		nameAgain:    "Tafadhali tuma jina lako ili tuanze.",
		askWeeks:     "Nimefurahi kukufahamu, %s! Una ujauzito wa wiki ngapi? Tafadhali jibu kwa namba (kwa mfano: 20).",
		weeksAgain:   "Tafadhali weka idadi sahihi ya wiki (kati ya 1 na 42). Kwa mfano: 20",
		registered: "Umesajiliwa! Una ujauzito wa wiki %d. " +
			"Tarehe yako ya kujifungua inakadiriwa kuwa %s.\n\n" +
			"Sasa unaweza kuniuliza maswali yoyote kuhusu ujauzito wako. Ninaweza kukusaidia na:\n" +
			"- Lishe na chakula\n" +
			"- Dalili za hatari za kuangalia\n" +
			"- Maandalizi ya kujifungua\n" +
			"- Usumbufu wa kawaida wa ujauzito\n" +
			"- Mahudhurio ya kliniki (ANC)\n" +
			"- Utunzaji wa mtoto mchanga\n\n" +
			"Andika swali lako nami nitajitahidi kukusaidia, Mama!",
		dateLayout: "02/01/2006",
	},
}

func promptsFor(language string) registrationPrompts {
	if p, ok := promptsByLanguage[language]; ok {
		return p
	}
	return promptsByLanguage[domain.LanguageEnglish]
}

// WelcomeMessage is the consent prompt sent to a brand new subscriber.
func WelcomeMessage(language string) string {
	return promptsFor(language).welcome
}

// Advance moves an unregistered subscriber one step through onboarding and
// returns the updated subscriber with the reply to send. Unrecognized replies
// leave the subscriber untouched and re-prompt. A registered subscriber is
// returned unchanged with an empty reply.
func Advance(sub domain.Subscriber, reply string, now time.Time) (domain.Subscriber, string) {
	p := promptsFor(sub.PreferredLanguage())
	trimmed := strings.TrimSpace(reply)
	normalized := strings.ToLower(trimmed)

	switch sub.RegistrationState() {
	case domain.StateAwaitingConsent:
		switch {
		case affirmativeReplies[normalized]:
			at := now
			sub.ConsentGiven = true
			sub.ConsentGivenAt = &at
			return sub, p.askName
		case negativeReplies[normalized]:
			sub.Active = false
			return sub, p.declined
		default:
			return sub, p.consentAgain
		}

	case domain.StateAwaitingName:
		if trimmed == "" {
			return sub, p.nameAgain
		}
		name := trimmed
		sub.Name = &name
		return sub, fmt.Sprintf(p.askWeeks, name)

	case domain.StateAwaitingGestationalAge:
		weeks, ok := parseGestationalWeeks(normalized)
		if !ok {
			return sub, p.weeksAgain
		}
		edd := ExpectedDeliveryDate(now, weeks)
		sub.GestationalAgeWeeks = &weeks
		sub.ExpectedDeliveryDate = &edd
		sub.RegistrationComplete = true
		return sub, fmt.Sprintf(p.registered, weeks, edd.Format(p.dateLayout))
	}
	return sub, ""
}

// parseGestationalWeeks reads the first whitespace-delimited token as a week
// count in [1, 42].
func parseGestationalWeeks(text string) (int, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, false
	}
	weeks, err := strconv.Atoi(fields[0])
	if err != nil || weeks < minGestationalWeeks || weeks > maxGestationalWeeks {
		return 0, false
	}
	return weeks, true
}

// ExpectedDeliveryDate is today's date plus the weeks remaining to term.
func ExpectedDeliveryDate(now time.Time, weeks int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, 7*(termWeeks-weeks))
}
