package mail

import (
	"context"
	"errors"
	"fmt"
)

// Message is a single outgoing email
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// Mailer delivers messages. Transport failures are reported as
// *DeliveryError and are worth retrying; any other error is final.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// DeliveryError wraps a transport failure. The recipient is kept for
// callers but left out of the message, which ends up in job records.
type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("mail delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError reports whether err is, or wraps, a DeliveryError
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
