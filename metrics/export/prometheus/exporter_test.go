package prometheus

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zeroing/jwtauth"
	redisstore "github.com/zeroing/jwtauth/store/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

type fakeSource struct {
	snapshot jwtauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() jwtauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: jwtauth.MetricsSnapshot{
			Counters:   map[jwtauth.MetricID]uint64{},
			Histograms: map[jwtauth.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(exp); n != 0 {
		t.Fatalf("expected no metrics, got %d", n)
	}
}

func TestCollectCountersAndHistogram(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{
		snapshot: jwtauth.MetricsSnapshot{
			Counters: map[jwtauth.MetricID]uint64{
				jwtauth.MetricLoginSuccess: 7,
			},
			Histograms: map[jwtauth.MetricID][]uint64{
				jwtauth.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	expected := `
# HELP jwtauth_login_success_total Successful login attempts.
# TYPE jwtauth_login_success_total counter
jwtauth_login_success_total 7
# HELP jwtauth_audit_dropped_total Dropped audit events due to dispatcher backpressure.
# TYPE jwtauth_audit_dropped_total counter
jwtauth_audit_dropped_total 2
# HELP jwtauth_validate_latency_seconds Authenticate latency histogram.
# TYPE jwtauth_validate_latency_seconds histogram
jwtauth_validate_latency_seconds_bucket{le="0.005"} 1
jwtauth_validate_latency_seconds_bucket{le="0.01"} 3
jwtauth_validate_latency_seconds_bucket{le="0.025"} 6
jwtauth_validate_latency_seconds_bucket{le="0.05"} 10
jwtauth_validate_latency_seconds_bucket{le="0.1"} 15
jwtauth_validate_latency_seconds_bucket{le="0.25"} 21
jwtauth_validate_latency_seconds_bucket{le="0.5"} 28
jwtauth_validate_latency_seconds_bucket{le="+Inf"} 36
jwtauth_validate_latency_seconds_sum 0
jwtauth_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(exp, strings.NewReader(expected),
		"jwtauth_login_success_total",
		"jwtauth_audit_dropped_total",
		"jwtauth_validate_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected collector output: %v", err)
	}

	// Every counter definition plus the histogram and audit drops.
	if n := testutil.CollectAndCount(exp); n != 19 {
		t.Fatalf("expected 19 metrics, got %d", n)
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := jwtauth.DefaultConfig()
	cfg.JWT.Secret = "prometheus-exporter-secret-0123456789"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := jwtauth.New().WithConfig(cfg).WithStore(redisstore.NewStore(rdb, "prom")).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.CreateIdentity(ctx, "alice", "correct-password-123", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.IssueToken(ctx, "alice"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	srv := httptest.NewServer(NewExporter(engine).Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "jwtauth_token_issued_total 1") {
		t.Fatalf("expected issued counter in output, got:\n%s", body)
	}
}
