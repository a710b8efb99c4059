// Package dangersign flags obstetric danger signs in free text using
// word-boundary anchored phrase patterns. English and Swahili patterns are
// always scanned together; no language detection is attempted.
package dangersign

import "regexp"

const (
	CategoryBleeding       = "bleeding"
	CategoryHeadacheVision = "headache_vision"
	CategoryFever          = "fever"
	CategoryFetalMovement  = "fetal_movement"
	CategoryAbdominalPain  = "abdominal_pain"
	CategoryWaterBreaking  = "water_breaking"
	CategoryConvulsions    = "convulsions"
	CategorySwelling       = "swelling"
)

type category struct {
	name     string
	patterns []*regexp.Regexp
}

// categories is scanned in slice order so result ordering is stable.
var categories = []category{
	{CategoryBleeding, compile(
		`\b(heavy\s+)?bleeding\b`,
		`\bexcessive\s+blood\b`,
		`\bblood\s+(clots?|loss)\b`,
		`\bkutoka\s+damu\b`,
		`\bdamu\s+nyingi\b`,
	)},
	{CategoryHeadacheVision, compile(
		`\bsevere\s+headache\b`,
		`\bblurred?\s+vision\b`,
		`\bvision\s+(is\s+)?blurred?\b`,
		`\bseeing\s+(spots?|stars?)\b`,
		`\bkichwa\s+kuuma\b`,
		`\bmacho\s+kuona\s+vibaya\b`,
	)},
	{CategoryFever, compile(
		`\bhigh\s+fever\b`,
		`\bsevere\s+fever\b`,
		`\bchills\b`,
		`\bhoma\s+kali\b`,
		`\bbaridi\s+mwilini\b`,
	)},
	{CategoryFetalMovement, compile(
		`\breduced\s+fetal\s+movement\b`,
		`\bno\s+(fetal\s+)?movement\b`,
		`\bbaby\s+(not\s+moving|stopped?\s+moving|isn'?t\s+moving)\b`,
		`\bcan'?t\s+feel\s+(the\s+)?baby\b`,
		`\bmtoto\s+ha(tembei|chezi)\b`,
	)},
	{CategoryAbdominalPain, compile(
		`\bsevere\s+(abdominal\s+)?pain\b`,
		`\bstomach\s+pain\b`,
		`\bsharp\s+pain\b`,
		`\btumbo\s+kuuma\s+sana\b`,
	)},
	{CategoryWaterBreaking, compile(
		`\bwater\s+(break(ing|s)?|broke)\b`,
		`\bfluid\s+(leaking|leakage|gushing)\b`,
		`\bleaking\s+fluid\b`,
		`\bmaji\s+ya(mekatika|kutoka)\b`,
	)},
	{CategoryConvulsions, compile(
		`\bconvulsion\b`,
		`\bseizure\b`,
		`\bloss\s+of\s+consciousness\b`,
		`\bfaint(ed|ing)\b`,
		`\bpassed?\s+out\b`,
		`\bdegedege\b`,
		`\bkupoteza\s+fahamu\b`,
	)},
	{CategorySwelling, compile(
		`\bsevere\s+swelling\b`,
		`\bswollen\s+(face|hands?|feet)\b`,
		`\bkuvimba\s+sana\b`,
	)},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// Result is the outcome of classifying one message.
type Result struct {
	Detected bool
	// Categories holds each matched category once, in scan order.
	Categories []string
	// Keywords holds the literal text of every recorded match.
	Keywords []string
}

// Classify scans text against every category. The first matching pattern of a
// category records it; remaining patterns of that category are skipped.
func Classify(text string) Result {
	res := Result{Categories: []string{}, Keywords: []string{}}
	if text == "" {
		return res
	}
	for _, c := range categories {
		for _, p := range c.patterns {
			m := p.FindString(text)
			if m == "" {
				continue
			}
			res.Categories = append(res.Categories, c.name)
			res.Keywords = append(res.Keywords, m)
			break
		}
	}
	res.Detected = len(res.Categories) > 0
	return res
}
