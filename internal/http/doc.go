// Package http exposes the timetable and booking engine over HTTP.
//
// The router exposes the following endpoints:
//   - GET /rooms/{roomID}/timetable?week=YYYY-MM-DD: the effective timetable of
//     a room for the week starting on the given Monday, as `slotDTO` entries.
//   - GET /rooms/{roomID}/availability?start=RFC3339&end=RFC3339&exclude=id:
//     room-level availability of an interval.
//   - POST /bookings, PUT /bookings/{bookingID}, DELETE /bookings/{bookingID}:
//     booking admission exchanging the `bookingDTO` payload defined in
//     booking_handler.go.
//   - POST /bookings/{bookingID}/approve, /deny, /cancel and
//     /cancel-occurrence: lifecycle transitions.
//   - GET /templates, POST /templates, PUT /templates/{templateID},
//     POST /templates/{templateID}/deactivate: template administration.
//   - GET and POST /templates/{templateID}/exceptions: cancelled weeks.
//   - POST /jobs/materialize: runs one materialization pass.
//
// The acting principal is read from the X-User-ID and X-User-Role headers set
// by the upstream gateway. Rejections carry a machine readable `reason`.
package http
