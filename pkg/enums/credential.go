package enums

import "fmt"

// CredentialType identifies which marketplace API a credential unlocks.
type CredentialType string

const (
	CredentialTypeSeller      CredentialType = "ozon"
	CredentialTypePerformance CredentialType = "performance"
)

var validCredentialTypes = []CredentialType{
	CredentialTypeSeller,
	CredentialTypePerformance,
}

// String implements fmt.Stringer.
func (c CredentialType) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CredentialType.
func (c CredentialType) IsValid() bool {
	for _, candidate := range validCredentialTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCredentialType converts raw input into a CredentialType.
func ParseCredentialType(value string) (CredentialType, error) {
	for _, candidate := range validCredentialTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credential type %q", value)
}
