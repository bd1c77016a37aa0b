package auth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// IdentifierKind says which column a login identifier is looked up by.
type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierPhone IdentifierKind = "phone"
)

// Identifier is a normalised login identifier.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// String returns the normalised value.
func (id Identifier) String() string { return id.Value }

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[^@\s]+\.[^@\s]+$`)

// IdentifierNormalizer canonicalises emails and phone numbers so that
// signup and login agree on the stored form.
type IdentifierNormalizer struct {
	region string
}

// NewIdentifierNormalizer returns a normalizer that reads national phone
// numbers as belonging to region (ISO 3166-1 alpha-2, e.g. "VN").
func NewIdentifierNormalizer(region string) *IdentifierNormalizer {
	return &IdentifierNormalizer{region: strings.ToUpper(strings.TrimSpace(region))}
}

// Email trims and lower-cases an email address.
func (n *IdentifierNormalizer) Email(raw string) (Identifier, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(v) {
		return Identifier{}, ErrInvalidEmail
	}
	return Identifier{Kind: IdentifierEmail, Value: v}, nil
}

// Phone parses a phone number and formats it as E.164.
func (n *IdentifierNormalizer) Phone(raw string) (Identifier, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), n.region)
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %w", ErrInvalidPhone, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return Identifier{}, ErrInvalidPhone
	}
	return Identifier{Kind: IdentifierPhone, Value: phonenumbers.Format(num, phonenumbers.E164)}, nil
}

// Login picks the identifier from a login request. Exactly one of email
// and phone must be non-blank.
func (n *IdentifierNormalizer) Login(email, phone string) (Identifier, error) {
	hasEmail := strings.TrimSpace(email) != ""
	hasPhone := strings.TrimSpace(phone) != ""

	switch {
	case hasEmail && hasPhone:
		return Identifier{}, ErrAmbiguousIdentifier
	case hasEmail:
		return n.Email(email)
	case hasPhone:
		return n.Phone(phone)
	default:
		return Identifier{}, ErrIdentifierRequired
	}
}
