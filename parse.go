package cron

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	cronlib "github.com/robfig/cron/v3"
)

// starBit is the flag robfig/cron sets on a field written as "*" or "?".
const starBit = 1 << 63

var (
	standardParser = cronlib.NewParser(
		cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
	)
	secondsParser = cronlib.NewParser(
		cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
	)
)

// ParseSpec parses a five-field cron expression or a descriptor such as
// "@daily". A leading "TZ=Zone " or "CRON_TZ=Zone " pins the time zone.
func ParseSpec(expr string) (*SpecSchedule, error) {
	return parseWith(standardParser, expr)
}

// ParseSpecWithSeconds is ParseSpec with a leading seconds field.
func ParseSpecWithSeconds(expr string) (*SpecSchedule, error) {
	return parseWith(secondsParser, expr)
}

func parseWith(p cronlib.Parser, expr string) (*SpecSchedule, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "@every") {
		return nil, errors.Errorf("%q is an interval, not a calendar schedule", expr)
	}

	sched, err := p.Parse(sundayAsZero(expr))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", expr)
	}
	rs, ok := sched.(*cronlib.SpecSchedule)
	if !ok {
		return nil, errors.Errorf("%q is not a calendar schedule", expr)
	}

	s := &SpecSchedule{
		second:  rs.Second &^ starBit,
		minute:  rs.Minute &^ starBit,
		hour:    rs.Hour &^ starBit,
		dom:     rs.Dom &^ starBit,
		month:   rs.Month &^ starBit,
		dow:     rs.Dow &^ starBit,
		domStar: rs.Dom&starBit != 0,
		dowStar: rs.Dow&starBit != 0,
	}
	if strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=") {
		s.location = rs.Location
	}
	if s.Next(probeTime).IsZero() {
		return nil, errors.Wrapf(ErrUnsatisfiable, "parse %q", expr)
	}
	return s, nil
}

// sundayAsZero rewrites 7 in the day-of-week field to 0, which is all
// robfig/cron accepts for Sunday. "5-7" becomes "5-6,0".
func sundayAsZero(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) == 0 || strings.HasPrefix(fields[len(fields)-1], "@") {
		return expr
	}
	last := len(fields) - 1
	parts := strings.Split(fields[last], ",")
	for i, part := range parts {
		parts[i] = dowPart(part)
	}
	fields[last] = strings.Join(parts, ",")
	return strings.Join(fields, " ")
}

func dowPart(part string) string {
	rng, step, stepped := strings.Cut(part, "/")
	if rng == "7" {
		return "0"
	}
	lo, hi, ok := strings.Cut(rng, "-")
	if !ok || hi != "7" {
		return part
	}
	from, err := strconv.Atoi(lo)
	if err != nil || from < 0 || from > 7 {
		return part
	}
	if from == 7 {
		return "0"
	}

	every := 1
	if stepped {
		if every, err = strconv.Atoi(step); err != nil || every <= 0 {
			return part
		}
	}
	out := lo + "-6"
	if stepped {
		out += "/" + step
	}
	if (7-from)%every == 0 {
		out += ",0"
	}
	return out
}
