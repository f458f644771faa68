package monobank

import (
	"strconv"
	"strings"
)

// Numeric ISO 4217 codes used by the acquiring API.
const (
	CcyUAH = 980
	CcyUSD = 840
	CcyEUR = 978
)

// CurrencyCode maps a numeric ISO 4217 code to its alphabetic code. Unknown
// codes are returned as their decimal string.
func CurrencyCode(ccy int) string {
	switch ccy {
	case CcyUAH, 0:
		return "UAH"
	case CcyUSD:
		return "USD"
	case CcyEUR:
		return "EUR"
	default:
		return strconv.Itoa(ccy)
	}
}

// CurrencyNumber is the inverse of CurrencyCode for the supported currencies.
func CurrencyNumber(code string) (int, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "UAH":
		return CcyUAH, true
	case "USD":
		return CcyUSD, true
	case "EUR":
		return CcyEUR, true
	default:
		return 0, false
	}
}
