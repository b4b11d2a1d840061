package ingest

import "regexp"

// urlPattern matches http(s) URLs made of unreserved, reserved and percent-encoded characters.
// Note that [$-_] is a range and covers digits, upper case letters and most punctuation.
var urlPattern = regexp.MustCompile(`https?://(?:[a-zA-Z0-9]|[$-_@.&+]|[!*\(\),]|%[0-9a-fA-F]{2})+`)

// ExtractURLs returns every URL in text in order of appearance, repeats included.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}
