package medchat

import "regexp"

type phiPattern struct {
	name string
	re   *regexp.Regexp
}

// Checked in this order; the order is reported back to the caller.
var phiPatterns = []phiPattern{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"phone", regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(?\d{3}\)?[-.\s]?)?\d{3}[-.\s]?\d{4}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`)},
	{"mrn", regexp.MustCompile(`(?i)\b(?:MRN|medical\s*record\s*(?:number|#|no))\s*[:=#]?\s*\d{4,}`)},
	{"dob", regexp.MustCompile(`(?i)\b(?:DOB|date\s*of\s*birth|born\s*on|birthday)\s*[:=]?\s*(?:\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}|\w+\s+\d{1,2},?\s+\d{4})`)},
	{"address", regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Boulevard|Blvd|Drive|Dr|Road|Rd|Lane|Ln|Way|Court|Ct|Place|Pl)\b(?:\s*(?:#|Apt|Suite|Ste|Unit)\s*\w+)?`)},
	{"patient_name", regexp.MustCompile(`(?i)\b(?:patient(?:\s+name)?|pt)\s*[:=]\s*[A-Z][a-z]+\s+[A-Z][a-z]+`)},
}

// An emergency rule fires when every one of its expressions matches.
// Word stems (suicid, anaphyla, allerg, overdos) match as prefixes.
var emergencyRules = [][]*regexp.Regexp{
	{
		regexp.MustCompile(`(?i)\bchest\s+pain\b`),
		regexp.MustCompile(`(?i)\b(?:shortness\s+of\s+breath|SOB|can'?t\s+breathe|difficulty\s+breathing)\b`),
	},
	{regexp.MustCompile(`(?i)\b(?:heart\s+attack|cardiac\s+arrest|myocardial\s+infarction)\b.*\b(?:happening|right\s+now|having|currently|am\s+having)\b`)},
	{regexp.MustCompile(`(?i)\b(?:stroke|CVA)\b.*\b(?:happening|right\s+now|signs|symptoms|having)\b`)},
	{regexp.MustCompile(`(?i)\b(?:face\s+droop|arm\s+weak|slurred\s+speech|sudden\s+numbness|sudden\s+confusion)\b`)},
	{regexp.MustCompile(`(?i)\b(?:suicid|kill\s+myself\b|end\s+my\s+life\b|want\s+to\s+die\b|self[- ]?harm|cut\s+myself\b|overdose\s+on\b)`)},
	{regexp.MustCompile(`(?i)\b(?:anaphyla|throat\s+(?:closing|swelling)\b|can'?t\s+(?:breathe|swallow)\b).*\b(?:allerg|reaction\b|epipen\b)`)},
	{regexp.MustCompile(`(?i)\b(?:bleeding\s+(?:heavily|profusely|won'?t\s+stop)|massive\s+(?:blood\s+loss|hemorrhage))\b`)},
	{regexp.MustCompile(`(?i)\b(?:poison|overdos|ingested\b|swallowed\b).*\b(?:child|toddler|baby|accidentally|too\s+many|pills)\b`)},
}

// DetectPHI returns the kinds of protected health information found in prompt.
func DetectPHI(prompt string) []string {
	var found []string
	for _, p := range phiPatterns {
		if p.re.MatchString(prompt) {
			found = append(found, p.name)
		}
	}
	return found
}

// IsEmergency reports whether prompt describes an emergency that must be
// answered with emergency guidance instead of inference.
func IsEmergency(prompt string) bool {
	for _, rule := range emergencyRules {
		if matchesAll(rule, prompt) {
			return true
		}
	}
	return false
}

func matchesAll(rule []*regexp.Regexp, s string) bool {
	for _, re := range rule {
		if !re.MatchString(s) {
			return false
		}
	}
	return true
}
