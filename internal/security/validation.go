// Package security validates untrusted identifiers and masks credentials
// before they reach logs or notifications.
package security

import (
	"regexp"
	"strings"

	"daily-equity-trader/internal/errors"
)

var (
	// LSE style tickers: VOD.L, BT.A.L, RDSB.L, 0R2V.IL. Tickers become
	// file names, so path separators and ".." never pass.
	tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9&-]{0,11}(\.[A-Z0-9]{1,4}){0,2}$`)

	// apiKeyPatterns match credentials in free text.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|access[_-]?token|auth[_-]?token|bearer)[=:\s]+["']?([A-Za-z0-9_\-\.]{20,})["']?`),
		regexp.MustCompile(`(sk-[A-Za-z0-9_\-]{20,})`), // OpenAI keys
	}
)

const maxTickerLen = 20

// ValidateTicker checks that ticker is an upper-case exchange symbol.
func ValidateTicker(ticker string) error {
	switch {
	case ticker == "":
		return errors.NewValidationError("ticker", ticker, "ticker cannot be empty")
	case len(ticker) > maxTickerLen:
		return errors.NewValidationError("ticker", ticker, "ticker too long (max 20 characters)")
	case !tickerPattern.MatchString(ticker):
		return errors.NewValidationError("ticker", ticker, "invalid ticker format")
	}
	return nil
}

// NormalizeTicker trims and upper-cases a ticker, then validates it.
func NormalizeTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	return ticker, ValidateTicker(ticker)
}

// MaskSensitive masks credentials found in input.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, MaskCredential)
	}
	return result
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
