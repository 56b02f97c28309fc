// Package queue defines the domain events the booking engine emits and the
// RabbitMQ publisher and consumer that move them.  Transport is the
// collaborator's concern; the engine's contract is that each event fires
// exactly once per state transition, in the same order as the underlying
// commit.
package queue

// Queue names.  Both queues are declared durable and messages are published
// persistent so events survive a broker restart.
const (
	SpaceEventsQueue       = "space.events"
	ReservationEventsQueue = "reservation.events"
)

// SpaceUpdateEvent is published on every space status change so downstream
// consumers (space maps, dashboards) can update without polling.
type SpaceUpdateEvent struct {
	SpaceID     string `json:"space_id"`
	SpaceNumber int    `json:"space_number"`
	Status      string `json:"status"`
	TripID      string `json:"trip_id"`
}

// ReservationEventKind names a reservation lifecycle transition.
type ReservationEventKind string

const (
	ReservationCreated	ReservationEventKind = "created"
	ReservationCancel	ReservationEventKind = "cancellation"
	PaymentPending	ReservationEventKind = "payment_pending"
	PaymentApproved	ReservationEventKind = "payment_approved"
	PaymentRejected	ReservationEventKind = "payment_rejected"
	DeadlineExpired	ReservationEventKind = "deadline_expired"
)

// ReservationEvent is published once per reservation lifecycle transition.
// Amount is the reservation total as a decimal string.
type ReservationEvent struct {
	Kind          ReservationEventKind `json:"kind"`
	ReservationID string               `json:"reservation_id"`
	ClientID      string               `json:"client_id"`
	TripID        string               `json:"trip_id"`
	Amount        string               `json:"amount"`
	OccurredAt    string               `json:"occurred_at"`
}
