package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// TimeCodeGenerator builds PREFIX + year + six digits taken from the
// current microsecond. Retries shift the digits by a random offset.
type TimeCodeGenerator struct{}

func (TimeCodeGenerator) Generate(prefix string, now time.Time, attempt int) string {
	suffix := now.UnixMicro() % 1_000_000
	if attempt > 0 {
		suffix = (suffix + rand.Int64N(1_000_000)) % 1_000_000
	}
	return strings.ToUpper(fmt.Sprintf("%s%04d%06d", prefix, now.Year(), suffix))
}
