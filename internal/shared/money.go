package shared

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Centavos represents a monetary amount in integer cents (MXN centavos).
// All arithmetic and comparisons happen on this type; floats only appear
// at the JSON boundary and in display percentages.
type Centavos int64

// CentavosFromFloat converts a decimal amount (e.g. 1234.56) to cents.
func CentavosFromFloat(amount float64) Centavos {
	return Centavos(math.Round(amount * 100))
}

// Float64 returns the decimal representation for JSON payloads.
func (c Centavos) Float64() float64 {
	return float64(c) / 100
}

// String formats the amount with two fractional digits.
func (c Centavos) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

var mxnPrinter = message.NewPrinter(language.MustParse("es-MX"))

// FormatMXN renders the amount for user-facing text, with es-MX digit
// grouping: FormatMXN(1234567) == "$12,345.67 MXN".
func FormatMXN(c Centavos) string {
	return mxnPrinter.Sprintf("$%v MXN",
		number.Decimal(c.Float64(), number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// PercentOf returns c as a percentage of total, for display only.
// A zero total yields 0 rather than NaN.
func (c Centavos) PercentOf(total Centavos) float64 {
	if total == 0 {
		return 0
	}
	return float64(c) / float64(total) * 100
}
