// Standalone mock ping API for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pingagent run -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/pingagent/example/mockapi"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	failureRate := flag.Float64("failure-rate", 0.1, "fraction of pings answered with 503")
	flag.Parse()

	fmt.Printf("Mock ping API starting on %s\n", *addr)
	fmt.Printf("Rejecting %.0f%% of pings with 503\n", *failureRate*100)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	api := mockapi.New(*failureRate, slog.Default())
	if err := http.ListenAndServe(*addr, api.Handler()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
