package shared

import "fmt"

// FormatFolio renders a human readable sequential identifier,
// e.g. REQ-2025-012 or OC-2025-003.
func FormatFolio(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}
