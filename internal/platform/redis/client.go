// Package redis connects the nonce, verification record and rate limit stores
// to a shared Redis.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"deepname/internal/platform/config"
)

// Client is a go-redis client that knows the prefix every deepname key lives
// under.
type Client struct {
	*redis.Client
	prefix string
}

// New dials and pings Redis. It returns nil, nil when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // startup failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return Wrap(client, cfg.KeyPrefix), nil
}

// Wrap adapts an existing go-redis client. Tests use it with containers.
func Wrap(client *redis.Client, prefix string) *Client {
	return &Client{Client: client, prefix: prefix}
}

// Key joins parts with ':' under the configured prefix, so
// Key("siwe_nonce", n) is "deepname:siwe_nonce:<n>" with prefix "deepname:".
func (c *Client) Key(parts ...string) string {
	return c.prefix + strings.Join(parts, ":")
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Collector exposes the connection pool statistics at scrape time.
func (c *Client) Collector() prometheus.Collector {
	return &poolCollector{
		stats: c.PoolStats,
		hits: prometheus.NewDesc("deepname_redis_pool_hits_total",
			"Connections found idle in the pool", nil, nil),
		misses: prometheus.NewDesc("deepname_redis_pool_misses_total",
			"Connections that had to be dialed", nil, nil),
		timeouts: prometheus.NewDesc("deepname_redis_pool_timeouts_total",
			"Waits for a pooled connection that timed out", nil, nil),
		total: prometheus.NewDesc("deepname_redis_pool_conns",
			"Connections currently in the pool", nil, nil),
		idle: prometheus.NewDesc("deepname_redis_pool_idle_conns",
			"Idle connections currently in the pool", nil, nil),
	}
}

type poolCollector struct {
	stats                               func() *redis.PoolStats
	hits, misses, timeouts, total, idle *prometheus.Desc
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.hits
	ch <- p.misses
	ch <- p.timeouts
	ch <- p.total
	ch <- p.idle
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.stats()
	ch <- prometheus.MustNewConstMetric(p.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(p.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(p.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(p.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(p.idle, prometheus.GaugeValue, float64(s.IdleConns))
}
