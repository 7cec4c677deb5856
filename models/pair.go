package models

import (
	"fmt"
	"strings"
)

// Pair identifies the (base, quote) instrument a piece of data belongs to.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// Label is the text shown on the active pair header.
func (p Pair) Label() string {
	if p.Base == "" {
		return "-/" + p.Quote
	}
	return p.Base + "/" + p.Quote
}

func (p Pair) IsZero() bool {
	return p.Base == "" && p.Quote == ""
}

// CanonicalCode upper-cases and trims a currency code.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PairSnapshot is a point-in-time copy of the active pair state.
type PairSnapshot struct {
	Pair
	UserOverride   bool `json:"user_override"`
	PricePrecision int  `json:"price_precision"`
}
