package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// ValidateStringEquals builds an ozzo rule asserting two fields match
func ValidateStringEquals(expected string) func(any) error {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return goerrors.New("values do not match", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
		}
		return nil
	}
}

// NormalizeEmail lowercases and trims an address for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone parses a phone number and renders it in E.164. The
// region applies when the input has no country prefix; empty input is
// passed through since phone is optional.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}

	if region == "" {
		region = "US"
	}

	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// defaultDisposableDomains seeds the classifier with frequently seen
// throwaway providers. Deployments extend the list through
// AutherConfig.DisposableEmailDomains.
var defaultDisposableDomains = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"tempmail.com",
	"temp-mail.org",
	"throwawaymail.com",
	"yopmail.com",
	"sharklasers.com",
	"getnada.com",
	"trashmail.com",
}

// DisposableEmailClassifier flags addresses from throwaway providers
type DisposableEmailClassifier struct {
	domains map[string]struct{}
}

func NewDisposableEmailClassifier(extra ...string) *DisposableEmailClassifier {
	domains := make(map[string]struct{}, len(defaultDisposableDomains)+len(extra))
	for _, d := range defaultDisposableDomains {
		domains[strings.ToLower(d)] = struct{}{}
	}
	for _, d := range extra {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains[d] = struct{}{}
		}
	}

	return &DisposableEmailClassifier{domains: domains}
}

// IsDisposable reports whether the address belongs to a known
// throwaway provider. Malformed addresses are not flagged here, the
// email format rule rejects them first.
func (c *DisposableEmailClassifier) IsDisposable(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}

	domain := strings.ToLower(email[at+1:])
	_, found := c.domains[domain]
	return found
}
