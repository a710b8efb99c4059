package usecase

import (
	"fmt"
	"strings"

	"antenatal-agent/internal/domain"
)

const noContextLine = "No additional context available."

type trimesterBand struct {
	from, to int
	guidance string
}

// Inclusive, non-overlapping week ranges.
var trimesterBands = []trimesterBand{
	{1, 12, "First trimester: Focus on nutrition (folate, iron), managing morning sickness, " +
		"first ANC visit importance, and avoiding harmful substances."},
	{13, 26, "Second trimester: Focus on balanced diet, fetal movement awareness, " +
		"anomaly screening, dental care, and preparing for birth."},
	{27, 40, "Third trimester: Focus on birth preparedness, recognizing labor signs, " +
		"danger signs awareness, breastfeeding preparation, and newborn care."},
}

func trimesterGuidance(weeks int) (string, bool) {
	for _, b := range trimesterBands {
		if weeks >= b.from && weeks <= b.to {
			return b.guidance, true
		}
	}
	return "", false
}

func buildPolicyPrompt() string {
	return strings.Join([]string{
		"You are a maternal health education assistant serving pregnant women in rural Kenya. " +
			"Your role is to provide accurate, culturally appropriate antenatal information based on " +
			"WHO and Kenya Ministry of Health guidelines.",
		"",
		"CRITICAL RULES:",
		criticalRules(),
		"",
		"CONTENT AREAS YOU CAN HELP WITH:",
		contentAreas(),
		"",
		"DISCLAIMER: Include this reminder periodically:",
		"\"This is educational information, not medical diagnosis. Always consult your healthcare " +
			"provider for medical advice.\"",
		"",
		"Respond in a warm, supportive tone. Address the user as \"Mama\" when appropriate. " +
			"If the user writes in Swahili, respond in Swahili. If in English, respond in English.",
	}, "\n")
}

func criticalRules() string {
	return strings.Join([]string{
		"1. If you detect ANY danger sign (bleeding, severe headache, reduced fetal movement, " +
			"convulsions, high fever, severe abdominal pain, water breaking, swelling of face/hands), " +
			"IMMEDIATELY advise seeking urgent medical care at the nearest health facility.",
		"2. Never diagnose conditions or prescribe treatments.",
		"3. Always encourage ANC (antenatal care) attendance and completing all recommended visits.",
		"4. Keep responses under 200 words for readability on mobile phones.",
		"5. Use simple, clear language appropriate for secondary school education level.",
		"6. Be culturally sensitive to practices in rural Kenya while correcting harmful myths.",
		"7. When unsure about medical specifics, advise consulting a healthcare provider.",
	}, "\n")
}

func contentAreas() string {
	return strings.Join([]string{
		"- Danger signs recognition and when to seek emergency care",
		"- Nutrition and dietary guidance during pregnancy",
		"- Physical activity recommendations",
		"- Birth preparedness and complication readiness",
		"- Common pregnancy discomforts and safe management",
		"- ANC appointment importance and schedule",
		"- Newborn care preparation",
		"- Breastfeeding education",
	}, "\n")
}

// buildContextBlock renders the per-subscriber signals injected after the
// policy prompt.
func buildContextBlock(gestationalAge *int, language string, dangerSign bool) string {
	var parts []string
	if gestationalAge != nil {
		parts = append(parts, fmt.Sprintf("User's current gestational age: %d weeks.", *gestationalAge))
		if g, ok := trimesterGuidance(*gestationalAge); ok {
			parts = append(parts, "Trimester guidance: "+g)
		}
	}
	if language == domain.LanguageSwahili {
		parts = append(parts, "User prefers Swahili. Respond in Swahili.")
	}
	if dangerSign {
		parts = append(parts, "ALERT: Danger sign keywords detected in the user's message. "+
			"Prioritize advising immediate medical care before any other information.")
	}
	if len(parts) == 0 {
		return noContextLine
	}
	return strings.Join(parts, "\n")
}

func buildPromptMessages(in GenerateInput, history []string) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildPolicyPrompt()},
		{Role: domain.RoleSystem, Content: buildContextBlock(in.GestationalAgeWeeks, in.Language, in.DangerSign)},
	}
	if len(history) > 0 {
		messages = append(messages, domain.ChatMessage{
			Role:    domain.RoleSystem,
			Content: "Recent conversation history:\n" + strings.Join(history, "\n"),
		})
	}
	return append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: strings.TrimSpace(in.Text),
	})
}
