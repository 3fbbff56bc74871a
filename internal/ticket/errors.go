package ticket

import "errors"

var (
	// ErrConflict is returned by CreateTicket when the user already has
	// an open ticket.
	ErrConflict = errors.New("user already has an open ticket")

	// ErrChannelInUse is returned by CreateTicket when the channel id
	// already backs another ticket.
	ErrChannelInUse = errors.New("channel already backs a ticket")

	// ErrUnknownChannel is returned when a channel id does not belong to
	// any ticket.
	ErrUnknownChannel = errors.New("channel does not belong to a ticket")
)
