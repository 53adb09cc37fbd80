package guard

import "regexp"

var crisisPattern = regexp.MustCompile(`(?i)\b(` +
	`kill(ing)? myself|` +
	`suicid(e|al)|` +
	`self[- ]?harm(ing)?|` +
	`end(ing)? my (own )?life|` +
	`want(ed)? to die|` +
	`hurt(ing)? myself|` +
	`unalive|` +
	`take my (own )?life` +
	`)\b`)

// DetectCrisis reports whether message expresses self-harm intent. It runs
// before anything else in the pipeline.
func DetectCrisis(message string) bool {
	return crisisPattern.MatchString(message)
}
