//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deepname/internal/platform/kafka"
	"deepname/pkg/testutil/containers"
)

func TestBrokerCheckAgainstRedpanda(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	k := containers.GetManager().GetKafka(t)

	require.NoError(t, kafka.BrokerCheck(k.Brokers, 5*time.Second)(context.Background()))
}
