package application

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/example/room-timetable/internal/persistence"
	"github.com/example/room-timetable/internal/recurrence"
	"github.com/example/room-timetable/internal/timetable"
)

// memoryStore implements every repository port in memory.
type memoryStore struct {
	mu         sync.Mutex
	rooms      map[string]Room
	profiles   []UserProfile
	bookings   map[string]Booking
	templates  map[string]Template
	exceptions []TemplateException

	createErr   error
	insertErr   error
	profilesErr error
	resolveErr  error
	created     []Booking
	updated     []Booking
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		rooms:     make(map[string]Room),
		bookings:  make(map[string]Booking),
		templates: make(map[string]Template),
	}
}

func (m *memoryStore) addRoom(room Room) {
	m.rooms[room.ID] = room
}

func (m *memoryStore) addBooking(b Booking) {
	m.bookings[b.ID] = b
}

func (m *memoryStore) addTemplate(t Template) {
	m.templates[t.ID] = t
}

func (m *memoryStore) GetRoom(ctx context.Context, id string) (Room, error) {
	room, ok := m.rooms[id]
	if !ok {
		return Room{}, persistence.ErrNotFound
	}
	return room, nil
}

func (m *memoryStore) ListProfiles(ctx context.Context) ([]UserProfile, error) {
	if m.profilesErr != nil {
		return nil, m.profilesErr
	}
	out := make([]UserProfile, len(m.profiles))
	copy(out, m.profiles)
	return out, nil
}

func (m *memoryStore) GetBooking(ctx context.Context, id string) (Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	return b, nil
}

func (m *memoryStore) ListConfirmedByRoom(ctx context.Context, roomID string, from, to time.Time) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.RoomID != roomID || b.Status != BookingStatusConfirmed {
			continue
		}
		if b.Start.Before(from) || !b.Start.Before(to) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (m *memoryStore) ListConfirmedByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.OwnerID != ownerID || b.Status != BookingStatusConfirmed {
			continue
		}
		if !b.Start.Before(to) || !from.Before(b.End) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (m *memoryStore) CreateBooking(ctx context.Context, booking Booking) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bookings[booking.ID]; exists {
		return persistence.ErrDuplicate
	}
	m.bookings[booking.ID] = booking
	m.created = append(m.created, booking)
	return nil
}

func (m *memoryStore) UpdateBooking(ctx context.Context, booking Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bookings[booking.ID]; !exists {
		return persistence.ErrNotFound
	}
	m.bookings[booking.ID] = booking
	m.updated = append(m.updated, booking)
	return nil
}

func (m *memoryStore) DeleteBooking(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bookings[id]; !exists {
		return persistence.ErrNotFound
	}
	delete(m.bookings, id)
	return nil
}

func (m *memoryStore) FindMaterialized(ctx context.Context, templateID string, week time.Time) (Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.TemplateID == templateID && b.GeneratedForWeek.Equal(week) {
			return b, true, nil
		}
	}
	return Booking{}, false, nil
}

func (m *memoryStore) InsertMaterialized(ctx context.Context, booking Booking) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.TemplateID == booking.TemplateID && b.GeneratedForWeek.Equal(booking.GeneratedForWeek) {
			return false, nil
		}
	}
	m.bookings[booking.ID] = booking
	m.created = append(m.created, booking)
	return true, nil
}

func (m *memoryStore) CreateTemplate(ctx context.Context, template Template) error {
	m.templates[template.ID] = template
	return nil
}

func (m *memoryStore) UpdateTemplate(ctx context.Context, template Template) error {
	if _, ok := m.templates[template.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.templates[template.ID] = template
	return nil
}

func (m *memoryStore) GetTemplate(ctx context.Context, id string) (Template, error) {
	tpl, ok := m.templates[id]
	if !ok {
		return Template{}, persistence.ErrNotFound
	}
	return tpl, nil
}

func (m *memoryStore) ListTemplates(ctx context.Context, roomID string, includeInactive bool) ([]Template, error) {
	var out []Template
	for _, tpl := range m.templates {
		if roomID != "" && tpl.RoomID != roomID {
			continue
		}
		if !tpl.Active && !includeInactive {
			continue
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) CreateException(ctx context.Context, exception TemplateException) error {
	for _, ex := range m.exceptions {
		if ex.TemplateID == exception.TemplateID && ex.WeekStart.Equal(exception.WeekStart) {
			return persistence.ErrDuplicate
		}
	}
	m.exceptions = append(m.exceptions, exception)
	return nil
}

func (m *memoryStore) ListExceptionsForWeek(ctx context.Context, templateIDs []string, week time.Time) ([]TemplateException, error) {
	wanted := make(map[string]struct{}, len(templateIDs))
	for _, id := range templateIDs {
		wanted[id] = struct{}{}
	}
	var out []TemplateException
	for _, ex := range m.exceptions {
		if _, ok := wanted[ex.TemplateID]; ok && ex.WeekStart.Equal(week) {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (m *memoryStore) ListExceptions(ctx context.Context, templateID string) ([]TemplateException, error) {
	var out []TemplateException
	for _, ex := range m.exceptions {
		if ex.TemplateID == templateID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (m *memoryStore) ResolveMaterialized(ctx context.Context, exception TemplateException, cancelledAt time.Time) (bool, error) {
	if m.resolveErr != nil {
		return false, m.resolveErr
	}
	recorded := m.CreateException(ctx, exception) == nil

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[exception.ResolvedBookingID]; ok && (b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed) {
		b.Status = BookingStatusCancelled
		b.UpdatedAt = cancelledAt
		m.bookings[b.ID] = b
		m.updated = append(m.updated, b)
	}
	return recorded, nil
}

func (m *memoryStore) countMaterialized(templateID string, week time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.bookings {
		if b.TemplateID == templateID && b.GeneratedForWeek.Equal(week) {
			count++
		}
	}
	return count
}

func sortBookings(bookings []Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].Start.Equal(bookings[j].Start) {
			return bookings[i].Start.Before(bookings[j].Start)
		}
		return bookings[i].ID < bookings[j].ID
	})
}

type notifierStub struct {
	mu         sync.Mutex
	err        error
	recipients [][]string
	summaries  []BookingSummary
}

func (n *notifierStub) Notify(ctx context.Context, recipients []string, summary BookingSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = append(n.recipients, recipients)
	n.summaries = append(n.summaries, summary)
	return n.err
}

var errStorageDown = errors.New("storage unavailable")

// at returns a UTC instant in January 2024.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func monday(day int) time.Time {
	return at(day, 0, 0)
}

type harness struct {
	store        *memoryStore
	notifier     *notifierStub
	timetable    *TimetableService
	admission    *AdmissionService
	templates    *TemplateService
	materializer *MaterializationService
	now          time.Time
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	h := &harness{
		store:    newMemoryStore(),
		notifier: &notifierStub{},
		now:      at(1, 6, 0),
	}
	seq := 0
	nextID := func() string {
		seq++
		return "gen-" + strconv.Itoa(seq)
	}
	clock := func() time.Time { return h.now }

	engine := recurrence.NewEngine(time.UTC)
	h.timetable = NewTimetableService(h.store, h.store, h.store, h.store, timetable.NewMerger(engine), nil)
	h.admission = NewAdmissionService(h.store, h.store, h.timetable, h.notifier, policy, nextID, clock, nil)
	h.templates = NewTemplateService(h.store, h.store, h.store, h.store, h.store, engine, nextID, clock, nil)
	h.materializer = NewMaterializationService(h.store, h.store, h.store, h.store, h.timetable, policy, nextID, clock, nil)

	h.store.addRoom(Room{ID: "room-a", Name: "Room A", Capacity: 30, Active: true})
	h.store.addRoom(Room{ID: "room-b", Name: "Room B", Capacity: 20, Active: true})
	h.store.profiles = []UserProfile{
		{ID: "admin-1", FullName: "Ada Admin", IsAdmin: true},
		{ID: "teacher-1", FullName: "Grace Hopper"},
		{ID: "owner-1", FullName: "Olive Owner"},
	}
	return h
}

// biweeklyWednesday is the template from the documented scenario: Wednesday
// 08:30-09:30 every other week from Monday 2024-01-01.
func biweeklyWednesday() Template {
	return Template{
		ID:                  "tpl-wed",
		RoomID:              "room-a",
		TeacherName:         "grace  HOPPER",
		Title:               "Algebra",
		Weekday:             2,
		StartMinute:         8*60 + 30,
		DurationMinutes:     60,
		RepeatIntervalWeeks: 2,
		EffectiveFrom:       monday(1),
		Active:              true,
		CreatedBy:           "admin-1",
	}
}
