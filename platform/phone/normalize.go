// Package phone normalizes contact numbers before they reach the WhatsApp
// gateway.
package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion applies to numbers stored without a country prefix.
const DefaultRegion = "BR"

// Parse returns the E.164 form of input and whether it is a valid number
// for region.
func Parse(input, region string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return "", false
	}
	return phonenumbers.Format(number, phonenumbers.E164), true
}

// NormalizeE164 is Parse that falls back to the trimmed input, so legacy
// numbers the library rejects are still attempted.
func NormalizeE164(input, region string) string {
	if e164, ok := Parse(input, region); ok {
		return e164
	}
	return strings.TrimSpace(input)
}

// Digits is the bare number gateways address chats by: E.164 without the
// plus, or the input's digits when it cannot be parsed.
func Digits(input, region string) string {
	if e164, ok := Parse(input, region); ok {
		return strings.TrimPrefix(e164, "+")
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, input)
}
