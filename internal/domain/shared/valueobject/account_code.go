package valueobject

import (
	"fmt"
	"regexp"
	"strings"
)

var accountCodePattern = regexp.MustCompile(`^\d{4}(-\d{2})*$`)

// AccountCode is a hierarchical chart-of-accounts code such as 1000 or 1000-01-02.
// The first four digits are the root; each -NN segment descends one level.
type AccountCode struct {
	value string
}

// NewAccountCode validates and creates an account code
func NewAccountCode(code string) (AccountCode, error) {
	code = strings.TrimSpace(code)
	if !accountCodePattern.MatchString(code) {
		return AccountCode{}, fmt.Errorf("invalid account code %q: expected NNNN or NNNN-NN[-NN...]", code)
	}
	return AccountCode{value: code}, nil
}

// String returns the code
func (c AccountCode) String() string {
	return c.value
}

// IsZero reports whether the code is unset
func (c AccountCode) IsZero() bool {
	return c.value == ""
}

// Depth is 0 for a root code and grows by one per segment
func (c AccountCode) Depth() int {
	return strings.Count(c.value, "-")
}

// Parent returns the enclosing code, or false for a root code
func (c AccountCode) Parent() (AccountCode, bool) {
	i := strings.LastIndex(c.value, "-")
	if i < 0 {
		return AccountCode{}, false
	}
	return AccountCode{value: c.value[:i]}, true
}

// IsDescendantOf reports whether c sits below other in the hierarchy
func (c AccountCode) IsDescendantOf(other AccountCode) bool {
	return other.value != "" && strings.HasPrefix(c.value, other.value+"-")
}

// MarshalText implements encoding.TextMarshaler
func (c AccountCode) MarshalText() ([]byte, error) {
	return []byte(c.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *AccountCode) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = AccountCode{}
		return nil
	}
	parsed, err := NewAccountCode(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
