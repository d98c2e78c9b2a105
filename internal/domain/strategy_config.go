package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	defaultUnwindCooldown = 100 * time.Second
	defaultEntryTimeout   = 30 * time.Second
)

// StrategyConfig is the hot-reloadable parameter set of one swap-arb bot. It
// travels as a JSON blob through the config store.
type StrategyConfig struct {
	ExchangeA             string    `json:"exchange_a"`
	ExchangeB             string    `json:"exchange_b"`
	ExchangeAMarkets      []string  `json:"exchange_a_market_list"`
	ExchangeBMarkets      []string  `json:"exchange_b_market_list"`
	LongLegExecutionMode  OrderKind `json:"long_leg_execution_mode"`
	ShortLegExecutionMode OrderKind `json:"short_leg_execution_mode"`
	UpperBoundEntryBp     float64   `json:"upper_bound_entry_bp"`
	LowerBoundEntryBp     float64   `json:"lower_bound_entry_bp"`
	ExitBp                float64   `json:"exit_bp"`
	MaxTradeSizeUSD       float64   `json:"max_trade_size_usd"`
	MaxPosition           int       `json:"max_position"`
	Leverage              int       `json:"leverage"`
	IsDepthCheck          bool      `json:"is_depth_check"`
	DepthPct              float64   `json:"depth_pct"`
	DepthThresholdBp      float64   `json:"depth_threshold_bp"`
	MaxAbsSpreadBp        float64   `json:"max_abs_spread_bp"`
	UnwindCooldownSec     int       `json:"unwind_cooldown_sec"`
	EntryTimeoutSec       int       `json:"entry_timeout_sec"`
	IsTrading             bool      `json:"is_trading"`
}

// InstrumentPair links the venue-native spellings of one instrument.
type InstrumentPair struct {
	Symbol string // canonical
	VenueA string
	VenueB string
}

// DecodeStrategyConfig parses a config blob as stored in the config store.
func DecodeStrategyConfig(blob []byte) (StrategyConfig, error) {
	var cfg StrategyConfig
	if err := json.Unmarshal(blob, &cfg); err != nil {
		return StrategyConfig{}, fmt.Errorf("strategy config: decode: %w", err)
	}
	return cfg, nil
}

// Encode serialises the config for the config store.
func (c StrategyConfig) Encode() ([]byte, error) {
	return json.MarshalIndent(c, "", "    ")
}

// Validate reports every obviously invalid parameter.
func (c StrategyConfig) Validate() error {
	var errs []string
	if c.ExchangeA == "" || c.ExchangeB == "" {
		errs = append(errs, "exchange_a and exchange_b must be set")
	}
	if c.ExchangeA != "" && c.ExchangeA == c.ExchangeB {
		errs = append(errs, "exchange_a and exchange_b must differ")
	}
	if len(c.ExchangeAMarkets) != len(c.ExchangeBMarkets) {
		errs = append(errs, fmt.Sprintf("market lists differ in length (%d vs %d)",
			len(c.ExchangeAMarkets), len(c.ExchangeBMarkets)))
	}
	if c.UpperBoundEntryBp <= 0 {
		errs = append(errs, "upper_bound_entry_bp must be > 0")
	}
	if c.LowerBoundEntryBp > 0 {
		errs = append(errs, "lower_bound_entry_bp must be <= 0")
	}
	if c.ExitBp <= 0 {
		errs = append(errs, "exit_bp must be > 0")
	}
	if c.MaxTradeSizeUSD <= 0 {
		errs = append(errs, "max_trade_size_usd must be > 0")
	}
	if c.MaxPosition < 1 {
		errs = append(errs, "max_position must be >= 1")
	}
	for _, m := range []OrderKind{c.LongLegExecutionMode, c.ShortLegExecutionMode} {
		if m != "" && m != OrderKindMarket && m != OrderKindLimit {
			errs = append(errs, fmt.Sprintf("unknown execution mode %q", m))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("strategy config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Pairs zips the two venue market lists by position into instrument pairs.
func (c StrategyConfig) Pairs() []InstrumentPair {
	n := min(len(c.ExchangeAMarkets), len(c.ExchangeBMarkets))
	out := make([]InstrumentPair, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, InstrumentPair{
			Symbol: CanonicalSymbol(c.ExchangeAMarkets[i]),
			VenueA: c.ExchangeAMarkets[i],
			VenueB: c.ExchangeBMarkets[i],
		})
	}
	return out
}

// EntryLowerBp is the negative entry threshold. Zero means symmetric with the
// upper bound.
func (c StrategyConfig) EntryLowerBp() float64 {
	if c.LowerBoundEntryBp == 0 {
		return -c.UpperBoundEntryBp
	}
	return c.LowerBoundEntryBp
}

// UnwindCooldown is the minimum time between two unwinds of one symbol.
func (c StrategyConfig) UnwindCooldown() time.Duration {
	if c.UnwindCooldownSec <= 0 {
		return defaultUnwindCooldown
	}
	return time.Duration(c.UnwindCooldownSec) * time.Second
}

// EntryTimeout bounds how long a symbol may stay ENTERING without the
// reconciler observing the paired position.
func (c StrategyConfig) EntryTimeout() time.Duration {
	if c.EntryTimeoutSec <= 0 {
		return defaultEntryTimeout
	}
	return time.Duration(c.EntryTimeoutSec) * time.Second
}

// ExecutionMode returns the configured order kind for a leg side. Buy legs
// follow the long-leg mode, sell legs the short-leg mode.
func (c StrategyConfig) ExecutionMode(side OrderSide) OrderKind {
	mode := c.ShortLegExecutionMode
	if side == OrderSideBuy {
		mode = c.LongLegExecutionMode
	}
	if mode == "" {
		return OrderKindMarket
	}
	return mode
}

// FieldChange is one differing field between two configs.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

func (f FieldChange) String() string {
	return fmt.Sprintf("%s: %s -> %s", f.Field, f.Old, f.New)
}

// Diff compares c against prev field by field and returns the changed fields
// in declaration order.
func (c StrategyConfig) Diff(prev StrategyConfig) []FieldChange {
	var out []FieldChange
	str := func(name, old, cur string) {
		if old != cur {
			out = append(out, FieldChange{Field: name, Old: old, New: cur})
		}
	}
	num := func(name string, old, cur float64) {
		if old != cur {
			out = append(out, FieldChange{Field: name, Old: fmtFloat(old), New: fmtFloat(cur)})
		}
	}
	list := func(name string, old, cur []string) {
		if !slices.Equal(old, cur) {
			out = append(out, FieldChange{Field: name, Old: "[" + strings.Join(old, ",") + "]", New: "[" + strings.Join(cur, ",") + "]"})
		}
	}

	str("exchange_a", prev.ExchangeA, c.ExchangeA)
	str("exchange_b", prev.ExchangeB, c.ExchangeB)
	list("exchange_a_market_list", prev.ExchangeAMarkets, c.ExchangeAMarkets)
	list("exchange_b_market_list", prev.ExchangeBMarkets, c.ExchangeBMarkets)
	str("long_leg_execution_mode", string(prev.LongLegExecutionMode), string(c.LongLegExecutionMode))
	str("short_leg_execution_mode", string(prev.ShortLegExecutionMode), string(c.ShortLegExecutionMode))
	num("upper_bound_entry_bp", prev.UpperBoundEntryBp, c.UpperBoundEntryBp)
	num("lower_bound_entry_bp", prev.LowerBoundEntryBp, c.LowerBoundEntryBp)
	num("exit_bp", prev.ExitBp, c.ExitBp)
	num("max_trade_size_usd", prev.MaxTradeSizeUSD, c.MaxTradeSizeUSD)
	num("max_position", float64(prev.MaxPosition), float64(c.MaxPosition))
	num("leverage", float64(prev.Leverage), float64(c.Leverage))
	str("is_depth_check", strconv.FormatBool(prev.IsDepthCheck), strconv.FormatBool(c.IsDepthCheck))
	num("depth_pct", prev.DepthPct, c.DepthPct)
	num("depth_threshold_bp", prev.DepthThresholdBp, c.DepthThresholdBp)
	num("max_abs_spread_bp", prev.MaxAbsSpreadBp, c.MaxAbsSpreadBp)
	num("unwind_cooldown_sec", float64(prev.UnwindCooldownSec), float64(c.UnwindCooldownSec))
	num("entry_timeout_sec", float64(prev.EntryTimeoutSec), float64(c.EntryTimeoutSec))
	str("is_trading", strconv.FormatBool(prev.IsTrading), strconv.FormatBool(c.IsTrading))
	return out
}

// FormatChanges renders changes one per line for notifications.
func FormatChanges(changes []FieldChange) string {
	lines := make([]string, len(changes))
	for i, ch := range changes {
		lines[i] = ch.String()
	}
	return strings.Join(lines, "\n")
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
