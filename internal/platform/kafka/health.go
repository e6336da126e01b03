package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// BrokerCheck returns a readiness check that asks the cluster for its broker
// list. Each probe opens a short-lived admin client so a stuck connection
// never outlives the check.
func BrokerCheck(brokers string, timeout time.Duration) func(ctx context.Context) error {
	seeds := splitBrokers(brokers)
	return func(ctx context.Context) error {
		if len(seeds) == 0 {
			return fmt.Errorf("kafka brokers not configured")
		}
		client, err := kgo.NewClient(
			kgo.SeedBrokers(seeds...),
			kgo.DialTimeout(timeout),
			kgo.RequestRetries(0),
		)
		if err != nil {
			return fmt.Errorf("kafka client: %w", err)
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		details, err := kadm.NewClient(client).ListBrokers(ctx)
		if err != nil {
			return fmt.Errorf("no kafka brokers reachable: %w", err)
		}
		if len(details) == 0 {
			return fmt.Errorf("kafka cluster reported no brokers")
		}
		return nil
	}
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
