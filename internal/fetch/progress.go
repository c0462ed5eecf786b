// SPDX-License-Identifier: MPL-2.0

package fetch

import "fmt"

var byteUnits = [...]string{"B", "KB", "MB", "GB"}

type (
	// Progress receives transfer updates for a single download.
	Progress interface {
		// Add records n more bytes written.
		Add(n int64)
		// Finish is called once the transfer ends, successfully or not.
		Finish()
	}

	// ProgressFunc creates a Progress for the named item. total is -1 when the
	// size is not known in advance.
	ProgressFunc func(name string, total int64) Progress

	progressWriter struct{ p Progress }
)

func (w progressWriter) Write(b []byte) (int, error) {
	w.p.Add(int64(len(b)))
	return len(b), nil
}

// FormatBytes renders a byte count with two decimals in the largest unit
// up to GB that keeps the value at or above 1. Zero renders as "0 B".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	value := float64(n)
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	return fmt.Sprintf("%.2f %s", value, byteUnits[unit])
}
