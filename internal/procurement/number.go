package procurement

import (
	"fmt"
	"regexp"
	"time"
)

// PONumberPattern matches generated purchase order numbers.
var PONumberPattern = regexp.MustCompile(`^PO-\d{4}-\d{4,}$`)

// FormatPONumber renders PO-YYMM-NNNN for the seq-th order of at's month.
func FormatPONumber(at time.Time, seq int) string {
	return fmt.Sprintf("PO-%s-%04d", at.Format("0601"), seq)
}

// monthBounds returns [start of month, start of next month) in UTC.
func monthBounds(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
