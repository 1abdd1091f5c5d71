package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-timetable/internal/scheduler"
)

// AdmissionService is the single path that creates or modifies bookings. It
// runs the validation chain, decides the initial status, and fires the
// notification hook after a confirmation.
type AdmissionService struct {
	rooms       RoomCatalog
	bookings    BookingRepository
	timetable   *TimetableService
	notifier    Notifier
	policy      Policy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAdmissionService wires dependencies for booking admission. Start from
// DefaultPolicy when building policy.
func NewAdmissionService(rooms RoomCatalog, bookings BookingRepository, timetable *TimetableService, notifier Notifier, policy Policy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AdmissionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AdmissionService{
		rooms:       rooms,
		bookings:    bookings,
		timetable:   timetable,
		notifier:    notifier,
		policy:      policy.normalized(),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// admissionCheck is one run of the validation chain.
type admissionCheck struct {
	room      Room
	ownerID   string
	interval  scheduler.Interval
	excludeID string
	checkPast bool
}

// TryBook validates the request and persists a pending or confirmed booking.
// On rejection nothing is written and the error carries a Reason.
func (s *AdmissionService) TryBook(ctx context.Context, req BookingRequest) (Booking, error) {
	if s == nil {
		return Booking{}, fmt.Errorf("AdmissionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "admission", "try_book", "room_id", req.RoomID)

	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		ownerID = req.Principal.UserID
	}
	if ownerID != req.Principal.UserID && !req.Principal.IsAdmin {
		logOutcome(ctx, logger, "booking rejected", ErrUnauthorized)
		return Booking{}, ErrUnauthorized
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(req.RoomID) == "" {
		vErr.add("room_id", "room is required")
	}
	if ownerID == "" {
		vErr.add("owner_id", "owner is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		vErr.add("title", "title is required")
	}
	if vErr.HasErrors() {
		logOutcome(ctx, logger, "booking rejected", vErr)
		return Booking{}, vErr
	}

	room, err := s.loadRoom(ctx, req.RoomID)
	if err != nil {
		logOutcome(ctx, logger, "booking rejected", err)
		return Booking{}, err
	}

	check := admissionCheck{
		room:      room,
		ownerID:   ownerID,
		interval:  scheduler.NewInterval(req.Start, req.End),
		checkPast: true,
	}
	if err := s.admit(ctx, check); err != nil {
		logOutcome(ctx, logger, "booking rejected", err)
		return Booking{}, err
	}

	now := s.now()
	booking := Booking{
		ID:        s.idGenerator(),
		RoomID:    room.ID,
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(req.Title),
		Notes:     req.Notes,
		Start:     req.Start,
		End:       req.End,
		Status:    BookingStatusConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if room.RequiresApproval {
		booking.Status = BookingStatusPending
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "booking insert rejected", mapped)
		return Booking{}, mapped
	}

	logger.InfoContext(ctx, "booking admitted", "booking_id", booking.ID, "status", booking.Status)
	if booking.Status == BookingStatusConfirmed {
		s.notify(ctx, logger, room, booking)
	}
	return booking, nil
}

// UpdateBooking edits a booking's time or content. The past-time check is
// skipped when the start is unchanged; the booking's own prior interval never
// conflicts with the edit.
func (s *AdmissionService) UpdateBooking(ctx context.Context, upd BookingUpdate) (Booking, error) {
	if s == nil {
		return Booking{}, fmt.Errorf("AdmissionService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "admission", "update_booking", "booking_id", upd.BookingID)

	current, err := s.loadOwnedBooking(ctx, upd.Principal, upd.BookingID)
	if err != nil {
		logOutcome(ctx, logger, "booking update rejected", err)
		return Booking{}, err
	}
	if current.Status != BookingStatusPending && current.Status != BookingStatusConfirmed {
		logOutcome(ctx, logger, "booking update rejected", ErrInvalidTransition)
		return Booking{}, ErrInvalidTransition
	}

	title := strings.TrimSpace(upd.Title)
	if title == "" {
		title = current.Title
	}
	start, end := upd.Start, upd.End
	if start.IsZero() {
		start = current.Start
	}
	if end.IsZero() {
		end = current.End
	}

	room, err := s.loadRoom(ctx, current.RoomID)
	if err != nil {
		logOutcome(ctx, logger, "booking update rejected", err)
		return Booking{}, err
	}

	check := admissionCheck{
		room:      room,
		ownerID:   current.OwnerID,
		interval:  scheduler.NewInterval(start, end),
		excludeID: current.ID,
		checkPast: !start.Equal(current.Start),
	}
	if err := s.admit(ctx, check); err != nil {
		logOutcome(ctx, logger, "booking update rejected", err)
		return Booking{}, err
	}

	updated := current
	updated.Title = title
	if upd.Notes != nil {
		updated.Notes = *upd.Notes
	}
	updated.Start = start
	updated.End = end
	updated.UpdatedAt = s.now()

	if err := s.bookings.UpdateBooking(ctx, updated); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "booking update rejected", mapped)
		return Booking{}, mapped
	}
	logger.InfoContext(ctx, "booking updated", "status", updated.Status)
	return updated, nil
}

// ApproveBooking confirms a pending booking after re-running the room and
// owner conflict checks.
func (s *AdmissionService) ApproveBooking(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	logger := serviceLogger(ctx, s.logger, "admission", "approve_booking", "booking_id", bookingID)
	if !principal.IsAdmin {
		logOutcome(ctx, logger, "approval rejected", ErrUnauthorized)
		return Booking{}, ErrUnauthorized
	}

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if booking.Status != BookingStatusPending {
		logOutcome(ctx, logger, "approval rejected", ErrInvalidTransition)
		return Booking{}, ErrInvalidTransition
	}

	room, err := s.loadRoomAnyState(ctx, booking.RoomID)
	if err != nil {
		return Booking{}, err
	}
	if err := s.checkConflicts(ctx, admissionCheck{room: room, ownerID: booking.OwnerID, interval: booking.Interval(), excludeID: booking.ID}); err != nil {
		logOutcome(ctx, logger, "approval rejected", err)
		return Booking{}, err
	}

	booking.Status = BookingStatusConfirmed
	booking.UpdatedAt = s.now()
	if err := s.bookings.UpdateBooking(ctx, booking); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "approval rejected", mapped)
		return Booking{}, mapped
	}

	logger.InfoContext(ctx, "booking approved")
	s.notify(ctx, logger, room, booking)
	return booking, nil
}

// DenyBooking rejects a pending booking.
func (s *AdmissionService) DenyBooking(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	if !principal.IsAdmin {
		return Booking{}, ErrUnauthorized
	}
	return s.transition(ctx, "deny_booking", bookingID, BookingStatusDenied, BookingStatusPending)
}

// CancelBooking cancels a pending or confirmed booking on behalf of its owner
// or an administrator.
func (s *AdmissionService) CancelBooking(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	if _, err := s.loadOwnedBooking(ctx, principal, bookingID); err != nil {
		return Booking{}, err
	}
	return s.transition(ctx, "cancel_booking", bookingID, BookingStatusCancelled, BookingStatusPending, BookingStatusConfirmed)
}

// DeleteBooking removes a booking row.
func (s *AdmissionService) DeleteBooking(ctx context.Context, principal Principal, bookingID string) error {
	logger := serviceLogger(ctx, s.logger, "admission", "delete_booking", "booking_id", bookingID)
	if _, err := s.loadOwnedBooking(ctx, principal, bookingID); err != nil {
		logOutcome(ctx, logger, "delete rejected", err)
		return err
	}
	if err := s.bookings.DeleteBooking(ctx, bookingID); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "delete failed", mapped)
		return mapped
	}
	logger.InfoContext(ctx, "booking deleted")
	return nil
}

func (s *AdmissionService) transition(ctx context.Context, operation, bookingID string, to BookingStatus, from ...BookingStatus) (Booking, error) {
	logger := serviceLogger(ctx, s.logger, "admission", operation, "booking_id", bookingID)

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		logOutcome(ctx, logger, "transition rejected", err)
		return Booking{}, err
	}
	allowed := false
	for _, status := range from {
		if booking.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		logOutcome(ctx, logger, "transition rejected", ErrInvalidTransition)
		return Booking{}, ErrInvalidTransition
	}

	booking.Status = to
	booking.UpdatedAt = s.now()
	if err := s.bookings.UpdateBooking(ctx, booking); err != nil {
		mapped := mapRepoError(err)
		logOutcome(ctx, logger, "transition failed", mapped)
		return Booking{}, mapped
	}
	logger.InfoContext(ctx, "booking status changed", "status", to)
	return booking, nil
}

// admit runs the validation chain in order; the first violation wins.
func (s *AdmissionService) admit(ctx context.Context, check admissionCheck) error {
	if !check.interval.Valid() {
		return newValidationError(ReasonInvalidInterval, "end", "start must be before end")
	}
	if !s.policy.withinOperatingHours(check.interval.Start, check.interval.End) {
		return newValidationError(ReasonOutsideOperatingHours, "start",
			fmt.Sprintf("booking must lie within operating hours %s-%s", FormatClock(s.policy.OpensAt), FormatClock(s.policy.ClosesAt)))
	}
	if !s.policy.AllowWeekendBookings && s.policy.isWeekend(check.interval.Start) {
		return newValidationError(ReasonWeekendNotAllowed, "start", "weekend bookings are not allowed")
	}
	if check.checkPast && check.interval.Start.Before(s.now()) {
		return newValidationError(ReasonStartInPast, "start", "start must not be in the past")
	}
	return s.checkConflicts(ctx, check)
}

func (s *AdmissionService) checkConflicts(ctx context.Context, check admissionCheck) error {
	return s.timetable.checkConflicts(ctx, scheduler.Candidate{
		RoomID:           check.room.ID,
		OwnerID:          check.ownerID,
		Interval:         check.interval,
		ExcludeBookingID: check.excludeID,
	})
}

func (s *AdmissionService) notify(ctx context.Context, logger *slog.Logger, room Room, booking Booking) {
	summary := BookingSummary{
		BookingID: booking.ID,
		RoomID:    room.ID,
		RoomName:  room.Name,
		Title:     booking.Title,
		Start:     booking.Start,
		End:       booking.End,
		Status:    booking.Status,
	}
	if err := s.notifier.Notify(ctx, []string{booking.OwnerID}, summary); err != nil {
		logger.WarnContext(ctx, "booking notification not dispatched", "booking_id", booking.ID, "error", err)
	}
}

func (s *AdmissionService) loadRoom(ctx context.Context, roomID string) (Room, error) {
	room, err := s.loadRoomAnyState(ctx, roomID)
	if err != nil {
		return Room{}, err
	}
	if !room.Active {
		return Room{}, newValidationError(ReasonRoomInactive, "room_id", "room is not active")
	}
	return room, nil
}

func (s *AdmissionService) loadRoomAnyState(ctx context.Context, roomID string) (Room, error) {
	room, err := s.rooms.GetRoom(ctx, strings.TrimSpace(roomID))
	if err != nil {
		if isNotFound(err) {
			return Room{}, newValidationError(ReasonInvalidInput, "room_id", "room does not exist")
		}
		return Room{}, err
	}
	return room, nil
}

func (s *AdmissionService) getBooking(ctx context.Context, bookingID string) (Booking, error) {
	if strings.TrimSpace(bookingID) == "" {
		return Booking{}, ErrNotFound
	}
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepoError(err)
	}
	return booking, nil
}

func (s *AdmissionService) loadOwnedBooking(ctx context.Context, principal Principal, bookingID string) (Booking, error) {
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if booking.OwnerID != principal.UserID && !principal.IsAdmin {
		return Booking{}, ErrUnauthorized
	}
	return booking, nil
}
