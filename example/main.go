// Command example runs the agent against an in-process mock ping API.
//
//	go run ./example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pingagent"
	"github.com/jpalmerr/pingagent/example/mockapi"
)

func main() {
	// one ping in ten is rejected so failures show up in the logs
	api := mockapi.New(0.1, slog.Default())
	go func() {
		if err := http.ListenAndServe(":9999", api.Handler()); err != nil {
			slog.Error("mock api error", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	var devices []pingagent.Device
	for i, label := range []string{"Basement Rig", "Attic Rig", "Office NUC"} {
		d, err := pingagent.NewDevice(fmt.Sprintf("demo-%d", i+1), fmt.Sprintf("demo-token-%d", i+1), label)
		if err != nil {
			slog.Error("failed to create device", "error", err)
			os.Exit(1)
		}
		devices = append(devices, d)
	}

	agent, err := pingagent.New(
		pingagent.WithDevices(devices...),
		pingagent.WithBaseURL("http://localhost:9999"),
		pingagent.WithPacing(500*time.Millisecond),
		pingagent.WithCycleInterval(5*time.Second, 10*time.Second),
		pingagent.WithStatusPort(8080),
		pingagent.WithPingCallback(func(r pingagent.PingResult) {
			if !r.OK {
				fmt.Printf("  cycle %d: %s failed (%v)\n", r.Cycle, r.Label, r.Error)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create agent", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Ping agent demo")
	fmt.Println()
	fmt.Println("  Mock API:    http://localhost:9999/devices")
	fmt.Println("  Status API:  http://localhost:8080/api/status")
	fmt.Println("  Live stream: http://localhost:8080/api/sse")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Start(ctx); err != nil {
		slog.Error("agent error", "error", err)
		os.Exit(1)
	}
}
