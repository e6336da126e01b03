package kafka

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, splitBrokers(" , "))
}

func TestBrokerCheckWithoutBrokers(t *testing.T) {
	err := BrokerCheck("", time.Second)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestBrokerCheckUnreachable(t *testing.T) {
	// Reserve a port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = BrokerCheck(addr, 500*time.Millisecond)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kafka brokers reachable")
}
