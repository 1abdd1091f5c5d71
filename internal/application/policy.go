package application

import (
	"fmt"
	"strings"
	"time"
)

// UnmatchedOwnerPolicy decides who owns a materialized booking when the
// template's teacher name matches no profile.
type UnmatchedOwnerPolicy string

const (
	// OwnerPolicySkip leaves the occurrence unmaterialized.
	OwnerPolicySkip UnmatchedOwnerPolicy = "skip"
	// OwnerPolicyAssignToCreator assigns the template creator.
	OwnerPolicyAssignToCreator UnmatchedOwnerPolicy = "assignToCreator"
	// OwnerPolicyAssignToAdmin assigns the template creator, then any administrator.
	OwnerPolicyAssignToAdmin UnmatchedOwnerPolicy = "assignToAdmin"
)

// ParseUnmatchedOwnerPolicy accepts the configuration spelling of a policy.
func ParseUnmatchedOwnerPolicy(value string) (UnmatchedOwnerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "skip":
		return OwnerPolicySkip, nil
	case "assigntocreator":
		return OwnerPolicyAssignToCreator, nil
	case "", "assigntoadmin":
		return OwnerPolicyAssignToAdmin, nil
	}
	return "", fmt.Errorf("unknown unmatched template owner policy %q", value)
}

// Policy holds the institutional booking rules.
type Policy struct {
	Location *time.Location
	// OpensAt and ClosesAt bound the operating hours [OpensAt, ClosesAt) in
	// minutes after local midnight.
	OpensAt              int
	ClosesAt             int
	AllowWeekendBookings bool
	UnmatchedOwnerPolicy UnmatchedOwnerPolicy
	// LookaheadWeeks is the number of weeks, starting with the current one,
	// covered by a materialization run.
	LookaheadWeeks int
}

// DefaultPolicy returns operating hours 07:30-22:30, weekends allowed, and
// the admin fallback for unmatched template owners.
func DefaultPolicy() Policy {
	return Policy{
		Location:             time.UTC,
		OpensAt:              7*60 + 30,
		ClosesAt:             22*60 + 30,
		AllowWeekendBookings: true,
		UnmatchedOwnerPolicy: OwnerPolicyAssignToAdmin,
		LookaheadWeeks:       2,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Location == nil {
		p.Location = def.Location
	}
	if p.OpensAt == 0 && p.ClosesAt == 0 {
		p.OpensAt, p.ClosesAt = def.OpensAt, def.ClosesAt
	}
	if p.UnmatchedOwnerPolicy == "" {
		p.UnmatchedOwnerPolicy = def.UnmatchedOwnerPolicy
	}
	if p.LookaheadWeeks <= 0 {
		p.LookaheadWeeks = def.LookaheadWeeks
	}
	return p
}

// withinOperatingHours reports whether [start, end) fits inside the local
// operating hours of start's day.
func (p Policy) withinOperatingHours(start, end time.Time) bool {
	local := start.In(p.Location)
	y, m, d := local.Date()
	opens := time.Date(y, m, d, 0, p.OpensAt, 0, 0, p.Location)
	closes := time.Date(y, m, d, 0, p.ClosesAt, 0, 0, p.Location)
	return !start.Before(opens) && !end.After(closes)
}

func (p Policy) isWeekend(t time.Time) bool {
	switch t.In(p.Location).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// FormatClock renders minutes after midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock parses HH:MM into minutes after midnight.
func ParseClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
