package request

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration parses the wire form of a request duration. The UI writes
// plain numbers meaning hours ("4", "0.5") and some API clients write an
// ISO-8601 subset ("PT1H", "PT30M", "P1D").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}

	if hours, err := strconv.ParseFloat(s, 64); err == nil {
		if hours <= 0 {
			return 0, errors.Errorf("duration must be positive, got %q", s)
		}
		return time.Duration(hours * float64(time.Hour)), nil
	}

	m := isoDuration.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return 0, errors.Errorf("unrecognised duration %q", s)
	}
	var d time.Duration
	for i, unit := range []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, errors.Wrapf(err, "parsing duration %q", s)
		}
		d += time.Duration(n) * unit
	}
	if d == 0 {
		return 0, errors.Errorf("duration %q is zero", s)
	}
	return d, nil
}
