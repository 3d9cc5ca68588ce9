package models

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate      = validator.New()
	tickerPattern = regexp.MustCompile(`^[A-Z0-9.]{1,10}$`)
)

func init() {
	validate.RegisterValidation("ticker", func(fl validator.FieldLevel) bool {
		return tickerPattern.MatchString(fl.Field().String())
	})
}

// NormalizeSymbol trims and upper-cases a ticker as typed by a viewer.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateSymbol checks a single normalized ticker.
func ValidateSymbol(symbol string) error {
	return validate.Var(symbol, "required,ticker")
}

// ValidateSymbols checks a non-empty batch of normalized tickers.
func ValidateSymbols(symbols []string) error {
	return validate.Var(symbols, "required,min=1,dive,required,ticker")
}
