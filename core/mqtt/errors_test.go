package mqtt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectErrorIs(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := fmt.Errorf("publisher: %w", &ConnectError{Kind: Unreachable, Broker: "tcp://localhost:1883", Err: cause})
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrAuthRejected))
	assert.Contains(t, err.Error(), "tcp://localhost:1883")

	var ce *ConnectError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, Unreachable, ce.Kind)
}

func TestPublishErrorIs(t *testing.T) {
	err := &PublishError{Kind: Timeout, Topic: "veh/params"}
	assert.True(t, errors.Is(err, ErrPublishTimeout))
	assert.False(t, errors.Is(err, ErrBrokerRejected))
	assert.Contains(t, err.Error(), "veh/params")

	rej := &PublishError{Kind: BrokerRejected, Topic: "veh/params", Err: errors.New("not authorized")}
	assert.True(t, errors.Is(rej, ErrBrokerRejected))
	assert.Contains(t, rej.Error(), "not authorized")
}
