//go:build load
// +build load

package load

import (
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"

	"github.com/glebobos/LambdaTerminal/internal/config"
	"github.com/glebobos/LambdaTerminal/internal/server"
)

const (
	totalRequests = 1000
	workers       = 10
)

type result struct {
	duration time.Duration
	err      error
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return port
}

// TestHTTPLoad hammers the terminal endpoint with concurrent workers,
// each acting as a distinct identity, and reports latency percentiles.
func TestHTTPLoad(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Session.Backend = "memory"
	cfg.Logging.Level = "error"

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)
	go srv.Run()
	t.Cleanup(func() { srv.Close() })

	client := resty.New().
		SetBaseURL("http://127.0.0.1:" + cfg.Server.Port).
		SetTimeout(10 * time.Second)

	require.Eventually(t, func() bool {
		resp, err := client.R().Get("/health")
		return err == nil && resp.StatusCode() == http.StatusOK
	}, 10*time.Second, 100*time.Millisecond)

	results := runLoadTest(t, client)
	analyzeResults(t, results)
}

func runLoadTest(t *testing.T, client *resty.Client) []result {
	results := make([]result, 0, totalRequests)
	var mu sync.Mutex

	var completed atomic.Int32
	start := time.Now()

	var wg sync.WaitGroup
	requestsChan := make(chan int, totalRequests)

	for i := 0; i < totalRequests; i++ {
		requestsChan <- i
	}
	close(requestsChan)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			identity := fmt.Sprintf("198.51.100.%d", workerID)
			for range requestsChan {
				res := executeRequest(client, identity)

				mu.Lock()
				results = append(results, res)
				mu.Unlock()

				count := completed.Add(1)
				if count%100 == 0 {
					elapsed := time.Since(start)
					rps := float64(count) / elapsed.Seconds()
					t.Logf("Progress: %d/%d requests (%.2f req/sec)",
						count, totalRequests, rps)
				}
			}
		}(w)
	}

	wg.Wait()

	return results
}

func executeRequest(client *resty.Client, identity string) result {
	start := time.Now()

	resp, err := client.R().
		SetHeader("X-Forwarded-For", identity).
		SetQueryParam("command", "echo load").
		Get("/")
	if err == nil && resp.StatusCode() != http.StatusOK {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	return result{
		duration: time.Since(start),
		err:      err,
	}
}

func analyzeResults(t *testing.T, results []result) {
	require.NotEmpty(t, results)

	var (
		totalDuration time.Duration
		successCount  int
		errorCount    int
		durations     []time.Duration
	)

	for _, r := range results {
		totalDuration += r.duration
		if r.err == nil {
			successCount++
		} else {
			errorCount++
		}
		durations = append(durations, r.duration)
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	total := len(results)
	avgDuration := totalDuration / time.Duration(total)
	p50 := durations[total*50/100]
	p95 := durations[total*95/100]
	p99 := durations[total*99/100]
	maxDuration := durations[total-1]

	t.Logf("Total Requests:  %d", total)
	t.Logf("Successful:      %d (%.2f%%)", successCount, float64(successCount)/float64(total)*100)
	t.Logf("Failed:          %d (%.2f%%)", errorCount, float64(errorCount)/float64(total)*100)
	t.Logf("Average Latency: %v", avgDuration)
	t.Logf("P50 Latency:     %v", p50)
	t.Logf("P95 Latency:     %v", p95)
	t.Logf("P99 Latency:     %v", p99)
	t.Logf("Max Latency:     %v", maxDuration)

	require.Zero(t, errorCount, "load test should complete without errors")
}
