package classifier

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/txnroute/txnroute/pkg/types"
)

// Status values written to transaction.status.
const (
	StatusFraud    = "fraud"
	StatusNonFraud = "non-fraud"
)

// Channel is an output route for a classified record.
type Channel string

const (
	ChannelFraud    Channel = "fraud"
	ChannelNonFraud Channel = "non-fraud"
)

// Channels lists both output channels in a stable order.
var Channels = []Channel{ChannelFraud, ChannelNonFraud}

// Reason explains why a record was dropped.
type Reason string

const (
	ReasonMissingAmount     Reason = "missing_amount"
	ReasonUnparseableAmount Reason = "unparseable_amount"
)

// Kind distinguishes the two Outcome variants.
type Kind int

const (
	KindRouted Kind = iota
	KindDropped
)

func (k Kind) String() string {
	switch k {
	case KindRouted:
		return types.OutcomeRouted
	case KindDropped:
		return types.OutcomeDropped
	default:
		return "unknown"
	}
}

// Outcome is the result of classifying one record.
//
// When Kind is KindRouted, Channel and Attributes are set; Attributes is a
// copy of the input with transaction.status added. When Kind is KindDropped,
// Reason and Err are set and Attributes is nil.
type Outcome struct {
	Kind       Kind
	Channel    Channel
	Reason     Reason
	Attributes map[string]string
	Amount     float64
	Category   string
	Err        error
}

// Routed reports whether the record must be forwarded to Channel.
func (o Outcome) Routed() bool { return o.Kind == KindRouted }

// Status returns the transaction.status value written for a routed record.
func (o Outcome) Status() string {
	if o.Kind != KindRouted {
		return ""
	}
	return o.Attributes[types.AttrStatus]
}

// Classifier applies the threshold rule. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	log *slog.Logger
}

// New returns a Classifier logging to logger, or to slog.Default() when nil.
func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{log: logger}
}

// Classify decides the route for a record's attributes. attrs is not
// modified. threshold must already be validated as non-negative.
func (c *Classifier) Classify(attrs map[string]string, threshold int64) Outcome {
	raw, ok := attrs[types.AttrAmount]
	category := attrs[types.AttrCategory]

	if !ok {
		c.log.Warn("transaction amount attribute is missing")
		return Outcome{
			Kind:     KindDropped,
			Reason:   ReasonMissingAmount,
			Category: category,
			Err:      fmt.Errorf("attribute %q is missing", types.AttrAmount),
		}
	}

	amount, err := ParseAmount(raw)
	if err != nil {
		c.log.Error("failed to parse transaction amount", "amount", raw, "err", err)
		return Outcome{
			Kind:     KindDropped,
			Reason:   ReasonUnparseableAmount,
			Category: category,
			Err:      err,
		}
	}

	out := Outcome{
		Kind:       KindRouted,
		Amount:     amount,
		Category:   category,
		Attributes: make(map[string]string, len(attrs)+1),
	}
	maps.Copy(out.Attributes, attrs)

	if amount > float64(threshold) {
		out.Channel = ChannelFraud
		out.Attributes[types.AttrStatus] = StatusFraud
	} else {
		out.Channel = ChannelNonFraud
		out.Attributes[types.AttrStatus] = StatusNonFraud
	}
	return out
}

// ParseAmount parses a transaction amount. Leading and trailing ASCII
// control characters and spaces are ignored. Besides decimal and
// hexadecimal floating literals with an optional trailing d, D, f or F, the
// only special forms are [+-]NaN and [+-]Infinity, spelled exactly. Values
// outside the float64 range parse to ±Inf rather than failing.
func ParseAmount(s string) (float64, error) {
	v := strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })

	sign, body := "", v
	if body != "" && (body[0] == '+' || body[0] == '-') {
		sign, body = body[:1], body[1:]
	}
	switch body {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		if sign == "-" {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	}
	// strconv also accepts inf, infinity and nan in any case.
	if lower := strings.ToLower(body); strings.HasPrefix(lower, "inf") || strings.HasPrefix(lower, "nan") {
		return 0, fmt.Errorf("parse amount %q: invalid syntax", s)
	}

	if n := len(v); n > 1 {
		switch v[n-1] {
		case 'd', 'D', 'f', 'F':
			if prev := v[n-2]; (prev >= '0' && prev <= '9') || prev == '.' {
				v = v[:n-1]
			}
		}
	}
	if strings.Contains(v, "_") {
		return 0, fmt.Errorf("parse amount %q: invalid syntax", s)
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return f, nil
		}
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return f, nil
}
