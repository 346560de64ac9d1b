package mqtt

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is against ConnectError and
// PublishError values.
var (
	ErrUnreachable       = errors.New("broker unreachable")
	ErrAuthRejected      = errors.New("broker rejected credentials")
	ErrSubscribeRejected = errors.New("subscription rejected")
	ErrPublishTimeout    = errors.New("timeout waiting for publish completion")
	ErrBrokerRejected    = errors.New("broker rejected publish")
	ErrPublishCanceled   = errors.New("publish canceled")
)

// ConnectKind classifies connection failures.
type ConnectKind int

const (
	Unreachable ConnectKind = iota
	AuthRejected
	SubscribeRejected
)

func (k ConnectKind) sentinel() error {
	switch k {
	case AuthRejected:
		return ErrAuthRejected
	case SubscribeRejected:
		return ErrSubscribeRejected
	default:
		return ErrUnreachable
	}
}

// ConnectError is returned when a connection to the broker cannot be
// established or the subscription cannot be set up.
type ConnectError struct {
	Kind   ConnectKind
	Broker string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect %s: %v", e.Broker, e.Kind.sentinel())
	}
	return fmt.Sprintf("connect %s: %v: %v", e.Broker, e.Kind.sentinel(), e.Err)
}

func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// PublishKind classifies publish failures.
type PublishKind int

const (
	Timeout PublishKind = iota
	BrokerRejected
	Canceled
)

func (k PublishKind) sentinel() error {
	switch k {
	case BrokerRejected:
		return ErrBrokerRejected
	case Canceled:
		return ErrPublishCanceled
	default:
		return ErrPublishTimeout
	}
}

// PublishError is returned when a connected client fails to hand a payload
// over to the broker.
type PublishError struct {
	Kind  PublishKind
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("publish %s: %v", e.Topic, e.Kind.sentinel())
	}
	return fmt.Sprintf("publish %s: %v: %v", e.Topic, e.Kind.sentinel(), e.Err)
}

func (e *PublishError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}
