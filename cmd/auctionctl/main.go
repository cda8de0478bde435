package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"
)

const usage = `usage: auctionctl [global flags] <command> [flags]

commands:
  status                      show the live auction status
  create   -interval -increment [-mode -at -tz -initial]
  stop                        stop the auction (prices stay as they are)
  reset                       restore original prices
  discount -percent           apply a one-off storefront discount
  compare                     set compareAtPrice where missing
  logs     [-limit]           recent audit log
  poll     [-n -c]            hammer the status endpoint concurrently
`

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	adminToken := flag.String("admin-token", envOr("ADMIN_TOKEN", "dev-admin-token"), "admin token")
	timeout := flag.Duration("timeout", 2*time.Minute, "request timeout (price updates can be slow)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	c := newAPIClient(*baseURL, *adminToken, *timeout)
	if err := run(c, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *apiClient, cmd string, args []string) error {
	switch cmd {
	case "status":
		return show(c.call(http.MethodGet, "/api/auction-status", nil))

	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		interval := fs.Int("interval", 10, "minutes between steps")
		increment := fs.Float64("increment", 5, "discount added per step (percent)")
		mode := fs.String("mode", "immediate", "immediate or scheduled")
		at := fs.String("at", "", "scheduled start, e.g. 2026-03-10T09:00")
		tz := fs.String("tz", "", "IANA timezone for -at")
		initial := fs.Float64("initial", -1, "first-step discount, negative to use the default")
		_ = fs.Parse(args)

		body := map[string]any{
			"interval_minutes":           *interval,
			"discount_increment_percent": *increment,
			"start_mode":                 *mode,
			"scheduled_time":             *at,
			"timezone":                   *tz,
		}
		if *initial >= 0 {
			body["initial_discount_percent"] = *initial
		}
		return show(c.call(http.MethodPost, "/api/auctions", body))

	case "stop":
		return show(c.call(http.MethodPost, "/api/auctions/stop", nil))

	case "reset":
		return show(c.call(http.MethodPost, "/api/auctions/reset-prices", nil))

	case "discount":
		fs := flag.NewFlagSet("discount", flag.ExitOnError)
		percent := fs.Float64("percent", 0, "discount percent [0,100]")
		_ = fs.Parse(args)
		return show(c.call(http.MethodPost, "/api/auctions/manual-discount", map[string]any{"percent": *percent}))

	case "compare":
		return show(c.call(http.MethodPost, "/api/auctions/compare-prices", nil))

	case "logs":
		fs := flag.NewFlagSet("logs", flag.ExitOnError)
		limit := fs.Int("limit", 20, "number of entries")
		_ = fs.Parse(args)
		return show(c.call(http.MethodGet, fmt.Sprintf("/api/auction-logs?limit=%d", *limit), nil))

	case "poll":
		fs := flag.NewFlagSet("poll", flag.ExitOnError)
		n := fs.Int("n", 200, "total requests")
		conc := fs.Int("c", 50, "max concurrency")
		_ = fs.Parse(args)
		fmt.Printf("start status poll: requests=%d concurrency=%d\n", *n, *conc)
		printSummary(summarize(c.pollStatus(*n, *conc)))
		return nil
	}
	flag.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func show(data json.RawMessage, err error) error {
	if err != nil {
		return err
	}
	if len(data) == 0 {
		fmt.Println("ok")
		return nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(out.String())
	return nil
}

// printSummary 聚合输出不同状态码分布。
func printSummary(s pollSummary) {
	codes := make([]int, 0, len(s.ByStatus))
	for code := range s.ByStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Println("http status summary:")
	for _, code := range codes {
		fmt.Printf("  %d -> %d\n", code, s.ByStatus[code])
	}
	if s.Errors > 0 {
		fmt.Printf("  errors -> %d\n", s.Errors)
	}
	fmt.Printf("  max latency -> %s\n", s.Max)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
