package modmail

import (
	"errors"
	"fmt"
)

// ErrChannelNotFound reports that a channel the router referenced no
// longer exists on the platform.
var ErrChannelNotFound = errors.New("channel not found")

// ProvisioningError is returned when a ticket channel could not be
// created. No ticket is registered in that case.
type ProvisioningError struct {
	User string
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision ticket channel for %s: %v", e.User, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// DeliveryError is returned when a direct message cannot reach a user,
// typically because they have DMs disabled.
type DeliveryError struct {
	User string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver direct message to %s: %v", e.User, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// AuthorizationError describes a staff command attempted by a member
// without the staff role.
type AuthorizationError struct {
	Actor   string
	Command string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s is not authorized to run %s", e.Actor, e.Command)
}
