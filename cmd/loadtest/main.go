// Command loadtest drives concurrent traffic at the statistics endpoints and
// prints latency percentiles per endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type options struct {
	base        string
	workers     int
	duration    time.Duration
	rps         float64
	owner       string
	apiKey      string
	docs        []string
	collections []string
}

type target struct {
	endpoint string
	path     string
}

// sample is one finished request; status 0 means a transport error.
type sample struct {
	latency time.Duration
	status  int
}

type recorder struct {
	mu      sync.Mutex
	samples map[string][]sample
}

func (r *recorder) add(endpoint string, s sample) {
	r.mu.Lock()
	r.samples[endpoint] = append(r.samples[endpoint], s)
	r.mu.Unlock()
}

func main() {
	var o options
	var docs, cols string
	flag.StringVar(&o.base, "url", "http://localhost:8080", "base URL of the docstats service")
	flag.IntVar(&o.workers, "concurrency", 10, "concurrent workers")
	flag.DurationVar(&o.duration, "duration", 30*time.Second, "how long to run")
	flag.Float64Var(&o.rps, "rps", 0, "overall request rate cap, 0 for none")
	flag.StringVar(&o.owner, "owner", "1", "X-User-ID sent when no api key is given")
	flag.StringVar(&o.apiKey, "api-key", "", "X-API-Key to send")
	flag.StringVar(&docs, "docs", "", "comma-separated document ids; listed from the API when empty")
	flag.StringVar(&cols, "collections", "", "comma-separated collection ids")
	flag.Parse()
	o.base = strings.TrimRight(o.base, "/")
	o.docs = parseIDs(docs)
	o.collections = parseIDs(cols)

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "loadtest:", err)
		os.Exit(1)
	}
}

func run(o options, out io.Writer) error {
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: o.workers * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	if len(o.docs) == 0 {
		ids, err := listDocuments(client, o)
		if err != nil {
			return fmt.Errorf("listing documents: %w", err)
		}
		o.docs = ids
	}
	targets := buildTargets(o.docs, o.collections)
	if len(targets) == 0 {
		return fmt.Errorf("no documents or collections to request")
	}
	fmt.Fprintf(out, "%s: %d workers for %s over %d paths\n", o.base, o.workers, o.duration, len(targets))

	rec := &recorder{samples: map[string][]sample{}}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if o.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.rps), max(1, o.workers))
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.duration)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for w := range o.workers {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				t := targets[i%len(targets)]
				s := fire(ctx, client, o, t.path)
				if ctx.Err() != nil {
					return nil
				}
				rec.add(t.endpoint, s)
			}
		})
	}
	g.Wait()

	return report(out, rec, o.duration)
}

func buildTargets(docs, collections []string) []target {
	var ts []target
	for _, id := range docs {
		ts = append(ts,
			target{"document_statistics", "/api/v1/documents/" + id + "/statistics"},
			target{"huffman_encode", "/api/v1/documents/" + id + "/huffman"},
		)
	}
	for _, id := range collections {
		ts = append(ts, target{"collection_statistics", "/api/v1/collections/" + id + "/statistics"})
	}
	return ts
}

func parseIDs(s string) []string {
	var ids []string
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, part)
		}
	}
	return ids
}

func newRequest(ctx context.Context, o options, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+path, nil)
	if err != nil {
		return nil, err
	}
	if o.apiKey != "" {
		req.Header.Set("X-API-Key", o.apiKey)
	} else {
		req.Header.Set("X-User-ID", o.owner)
	}
	return req, nil
}

func fire(ctx context.Context, client *http.Client, o options, path string) sample {
	req, err := newRequest(ctx, o, path)
	if err != nil {
		return sample{}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start)}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return sample{latency: time.Since(start), status: resp.StatusCode}
}

func listDocuments(client *http.Client, o options) ([]string, error) {
	req, err := newRequest(context.Background(), o, "/api/v1/documents")
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Documents []struct {
			ID int64 `json:"id"`
		} `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	ids := make([]string, len(body.Documents))
	for i, d := range body.Documents {
		ids[i] = strconv.FormatInt(d.ID, 10)
	}
	return ids, nil
}

func report(out io.Writer, rec *recorder, d time.Duration) error {
	var total, failed int
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "endpoint\trequests\terrors\tp50\tp90\tp99\tmax\t")
	for _, name := range slices.Sorted(maps.Keys(rec.samples)) {
		samples := rec.samples[name]
		lat := make([]time.Duration, 0, len(samples))
		errs := 0
		for _, s := range samples {
			if s.status < 200 || s.status >= 300 {
				errs++
			}
			if s.status != 0 {
				lat = append(lat, s.latency)
			}
		}
		slices.Sort(lat)
		total += len(samples)
		failed += errs
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t\n", name, len(samples), errs,
			percentile(lat, 50), percentile(lat, 90), percentile(lat, 99), percentile(lat, 100))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if total == 0 {
		return fmt.Errorf("no requests completed; is the service running?")
	}
	fmt.Fprintf(out, "\n%d requests, %.2f%% errors, %.1f req/s\n",
		total, 100*float64(failed)/float64(total), float64(total)/d.Seconds())
	return nil
}

// percentile uses nearest rank on sorted latencies.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p*len(sorted)+99)/100 - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
