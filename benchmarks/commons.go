package benchmarks

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	ignite "github.com/source-c/go-gridgain-thin"
)

const (
	EnvWarmupCount   = "WARMUPS"
	EnvIgniteHosts   = "IGNITE_HOSTS"
	defaultWarmupCnt = 3
)

// CacheBenchmarker runs f against a fresh client after warmups. cliCreate is called for every run, fixture
// prepares the cache before the timer is reset.
func CacheBenchmarker(b *testing.B, cliCreate func() (*ignite.Client, *ignite.Cache), fixture func(c *ignite.Cache), f func(b *testing.B, c *ignite.Cache)) {
	warmups := warmupCount()
	if warmups > 0 {
		b.Logf("Warmups: %d", warmups)
	}
	warmUp := func() {
		client, cache := cliCreate()
		defer func() {
			_ = client.Close(context.Background())
		}()
		for i := 0; i < warmups; i++ {
			f(b, cache)
		}
	}
	warmUp()

	cli, cache := cliCreate()
	defer func() {
		if err := cli.Close(context.Background()); err != nil {
			b.Log("Test warning, client not shutdown", err)
		}
	}()
	if fixture != nil {
		fixture(cache)
	}
	b.ResetTimer()
	f(b, cache)
}

// StartBenchClient connects to IGNITE_HOSTS and returns the named cache, the benchmark is skipped when no
// hosts are configured.
func StartBenchClient(b *testing.B, cacheName string, opts ...ignite.ClientConfigurationOption) (*ignite.Client, *ignite.Cache) {
	hosts := IgniteHosts()
	if len(hosts) == 0 {
		b.Skipf("%s is not set", EnvIgniteHosts)
	}
	opts = append([]ignite.ClientConfigurationOption{ignite.WithAddresses(hosts...)}, opts...)
	cli, err := ignite.Start(context.Background(), opts...)
	if err != nil {
		b.Fatalf("failed to connect to cluster: %s", err)
	}
	cache, err := cli.GetOrCreateCache(context.Background(), cacheName)
	if err != nil {
		_ = cli.Close(context.Background())
		b.Fatalf("failed to create cache: %s", err)
	}
	return cli, cache
}

func warmupCount() int {
	if s := getEnv(EnvWarmupCount); len(s) > 0 {
		if i, err := strconv.ParseInt(s, 10, 32); err != nil {
			panic(err)
		} else {
			return int(i)
		}
	}
	return defaultWarmupCnt
}

// IgniteHosts returns the ';' separated addresses of IGNITE_HOSTS.
func IgniteHosts() []string {
	if s := getEnv(EnvIgniteHosts); len(s) > 0 {
		return strings.Split(s, ";")
	}
	return nil
}

func getEnv(name string) string {
	if s := os.Getenv(name); len(s) > 0 {
		s = strings.TrimSpace(s)
		return s
	}
	return ""
}
