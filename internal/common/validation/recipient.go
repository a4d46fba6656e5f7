package validation

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// IsValidEmail applies a syntax check only; deliverability is the provider's
// concern.
func IsValidEmail(email string) bool {
	return len(email) <= 500 && emailRegex.MatchString(email)
}

// IsValidMobile reports whether phone is an internationally formatted number
// that can receive SMS.
func IsValidMobile(phone string) bool {
	num, ok := parseInternational(phone)
	if !ok || !phonenumbers.IsValidNumber(num) {
		return false
	}
	switch phonenumbers.GetNumberType(num) {
	case phonenumbers.MOBILE, phonenumbers.FIXED_LINE_OR_MOBILE:
		return true
	}
	return false
}

// PhoneRegion returns the ISO 3166 alpha-2 region implied by the dialing code
// of phone, or "" when it cannot be determined.
func PhoneRegion(phone string) string {
	num, ok := parseInternational(phone)
	if !ok {
		return ""
	}
	region := phonenumbers.GetRegionCodeForNumber(num)
	if region == "" || region == "ZZ" || region == "001" {
		return ""
	}
	return region
}

func parseInternational(phone string) (*phonenumbers.PhoneNumber, bool) {
	phone = strings.TrimSpace(phone)
	if !strings.HasPrefix(phone, "+") {
		return nil, false
	}
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return nil, false
	}
	return num, true
}
