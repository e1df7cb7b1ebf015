package billing

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
)

// codeSuggestionMinRatio is the minimum similarity for a "did you mean" hint.
const codeSuggestionMinRatio = .5

// Convert converts `amount` between two of the school's currencies.
//
// Stored exchange rates are relative to the school's default currency
// ("1 default unit = ExchangeRate units of this currency"), so conversions
// between two non-default currencies route through the default as a base.
// A supplied liveRate ("1 `from` unit = liveRate `to` units") bypasses the
// stored rates entirely.
//
// `from` and `to` match a currency's ID or (case-insensitively) its code.
// An unknown currency yields ErrCurrencyNotFound: callers decide whether to
// fall back to the unconverted amount. No rounding is applied here.
func Convert(amount float64, from, to string, currencies []Currency, liveRate ...float64) (float64, error) {
	if from == to {
		return amount, nil
	}

	fromCurr, err := findCurrency(from, currencies)
	if err != nil {
		return 0, err
	}
	toCurr, err := findCurrency(to, currencies)
	if err != nil {
		return 0, err
	}
	if fromCurr.ID == toCurr.ID {
		return amount, nil
	}

	if len(liveRate) > 0 {
		return amount * liveRate[0], nil
	}

	switch {
	case fromCurr.IsDefault:
		return amount * toCurr.ExchangeRate, nil
	case toCurr.IsDefault:
		if fromCurr.ExchangeRate <= 0 {
			return 0, errors.Wrapf(ErrBadExchangeRate, "currency %s", fromCurr.Code)
		}
		return amount / fromCurr.ExchangeRate, nil
	default:
		if fromCurr.ExchangeRate <= 0 {
			return 0, errors.Wrapf(ErrBadExchangeRate, "currency %s", fromCurr.Code)
		}
		return amount / fromCurr.ExchangeRate * toCurr.ExchangeRate, nil
	}
}

// DefaultCurrency returns the school's default currency. When several are
// marked default (an invariant violation the data layer should prevent) the
// first marked one wins; callers are expected to warn via CountDefaults.
func DefaultCurrency(currencies []Currency) (Currency, error) {
	for _, c := range currencies {
		if c.IsDefault {
			return c, nil
		}
	}
	return Currency{}, ErrNoDefaultCurrency
}

// CountDefaults reports how many currencies are marked default; anything
// other than 1 means conversions are not well-defined.
func CountDefaults(currencies []Currency) int {
	var n int
	for _, c := range currencies {
		if c.IsDefault {
			n++
		}
	}
	return n
}

func findCurrency(idOrCode string, currencies []Currency) (Currency, error) {
	for _, c := range currencies {
		if c.ID == idOrCode || strings.EqualFold(c.Code, idOrCode) {
			return c, nil
		}
	}
	err := errors.Wrap(ErrCurrencyNotFound, idOrCode)
	if hint := closestCode(idOrCode, currencies); hint != "" {
		err = errors.Wrap(ErrCurrencyNotFound, fmt.Sprintf("%s (did you mean %q?)", idOrCode, hint))
	}
	return Currency{}, err
}

// closestCode suggests the most similar known code for typo'd lookups.
func closestCode(idOrCode string, currencies []Currency) string {
	target := strings.Split(strings.ToUpper(idOrCode), "")
	var best string
	bestRatio := codeSuggestionMinRatio
	for _, c := range currencies {
		ratio := difflib.NewMatcher(target, strings.Split(strings.ToUpper(c.Code), "")).QuickRatio()
		if ratio > bestRatio {
			best, bestRatio = c.Code, ratio
		}
	}
	return best
}
