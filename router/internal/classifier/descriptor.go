package classifier

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultThreshold is the Transaction Threshold used when none is configured.
	DefaultThreshold int64 = 1000
	// MaxThreshold is the largest accepted threshold (a 32-bit signed integer).
	MaxThreshold int64 = math.MaxInt32
)

// ErrNegativeThreshold is returned for a threshold that is not an integer
// between 0 and MaxThreshold.
var ErrNegativeThreshold = errors.New("threshold must be a non-negative integer")

// PropertyDescriptor describes one configurable processor property.
type PropertyDescriptor struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Required     bool   `json:"required"`
	DefaultValue string `json:"default_value"`

	validate func(string) error
}

// Validate checks a raw property value.
func (p PropertyDescriptor) Validate(value string) error {
	if p.Required && strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", p.Name)
	}
	if p.validate == nil {
		return nil
	}
	if err := p.validate(value); err != nil {
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	return nil
}

// Relationship is a named output route.
type Relationship struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var (
	// ThresholdProperty is the Transaction Threshold property.
	ThresholdProperty = PropertyDescriptor{
		Name:         "Transaction Threshold",
		Description:  "The monetary threshold for flagging fraudulent transactions.",
		Required:     true,
		DefaultValue: strconv.FormatInt(DefaultThreshold, 10),
		validate: func(s string) error {
			_, err := ParseThreshold(s)
			return err
		},
	}

	RelFraud = Relationship{
		Name:        string(ChannelFraud),
		Description: "Transactions identified as fraudulent.",
	}

	RelNonFraud = Relationship{
		Name:        string(ChannelNonFraud),
		Description: "Transactions identified as non-fraudulent.",
	}
)

// ParseThreshold parses and validates a non-negative 32-bit integer threshold.
func ParseThreshold(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNegativeThreshold, s)
	}
	if err := CheckThreshold(v); err != nil {
		return 0, err
	}
	return v, nil
}

// CheckThreshold rejects thresholds outside 0..MaxThreshold.
func CheckThreshold(v int64) error {
	if v < 0 || v > MaxThreshold {
		return fmt.Errorf("%w: %d", ErrNegativeThreshold, v)
	}
	return nil
}
