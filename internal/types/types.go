package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Order sides used throughout the pipeline.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// ErrValidation marks malformed input that must never reach the proposal
// queue. Wrap with Invalidf so callers can errors.Is against it.
var ErrValidation = errors.New("validation failed")

// Invalidf builds a validation error with a descriptive message.
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Context carries everything a single trigger knows about itself. It is
// built per trigger, handed to the rule engine and never persisted.
type Context struct {
	InvokedBy     string `json:"invoked_by"`
	Gamer         string `json:"gamer"`
	Holder        string `json:"holder,omitempty"`
	Quantity      int64  `json:"quantity,omitempty"`
	PortfolioName string `json:"portfolio_name,omitempty"`
	IsBuy         bool   `json:"is_buy,omitempty"`

	// RuleID is bound by the engine once a rule matches, before dispatch.
	RuleID string `json:"rule_id,omitempty"`
}

// NormalizeAddress validates a hex wallet address and returns its canonical
// lowercase form. All stored addresses go through this.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", Invalidf("invalid address %q", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}
