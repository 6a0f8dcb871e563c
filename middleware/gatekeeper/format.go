// utilitários pequenos para formatação de valores numéricos em headers.

package gatekeeper

import (
	"math"
	"strconv"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatFloat(v float64) string {
	// sem notação científica para valores comuns
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// retryAfterSeconds arredonda para cima, com mínimo de 1s.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// untilNextUTCDay é quanto falta para a cota diária zerar.
func untilNextUTCDay(now time.Time) time.Duration {
	end, err := domain.DayOf(now).End()
	if err != nil {
		return 24 * time.Hour
	}
	return end.Sub(now)
}
