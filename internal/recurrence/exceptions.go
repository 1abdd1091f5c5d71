package recurrence

import "time"

// Exception cancels one occurrence of a template.
type Exception struct {
	ID                string
	TemplateID        string
	WeekStart         time.Time
	Reason            string
	ResolvedBookingID string
}

// ExceptionSet indexes exceptions by (template, week).
type ExceptionSet struct {
	byKey map[string]Exception
}

// NewExceptionSet indexes the given exceptions. When several exceptions share
// a key the first one wins.
func NewExceptionSet(exceptions []Exception) ExceptionSet {
	set := ExceptionSet{byKey: make(map[string]Exception, len(exceptions))}
	for _, ex := range exceptions {
		key := exceptionKey(ex.TemplateID, ex.WeekStart)
		if _, exists := set.byKey[key]; exists {
			continue
		}
		set.byKey[key] = ex
	}
	return set
}

// Lookup returns the exception recorded for the template in the given week.
func (s ExceptionSet) Lookup(templateID string, weekStart time.Time) (Exception, bool) {
	if s.byKey == nil {
		return Exception{}, false
	}
	ex, ok := s.byKey[exceptionKey(templateID, weekStart)]
	return ex, ok
}

// Len returns the number of indexed exceptions.
func (s ExceptionSet) Len() int {
	return len(s.byKey)
}

// Overlay annotates the occurrence as cancelled when an exception exists for
// its template and week. The occurrence is returned, never dropped.
func (s ExceptionSet) Overlay(occ Occurrence) Occurrence {
	ex, ok := s.Lookup(occ.TemplateID, occ.WeekStart)
	occ.Cancelled = ok
	if ok {
		occ.CancelReason = ex.Reason
		occ.ExceptionID = ex.ID
	} else {
		occ.CancelReason = ""
		occ.ExceptionID = ""
	}
	return occ
}

// Overlay applies exceptions to a single occurrence.
func (e *Engine) Overlay(occ Occurrence, exceptions []Exception) Occurrence {
	return NewExceptionSet(exceptions).Overlay(occ)
}

// CivilDate formats t as a date in its own location.
func CivilDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a civil date as local midnight in the engine location.
func (e *Engine) ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, value, e.Location())
}

func exceptionKey(templateID string, weekStart time.Time) string {
	return templateID + "|" + CivilDate(weekStart)
}
