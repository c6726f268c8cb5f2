package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/common"
	"github.com/coopernurse/gridscaler/pkg/db"
	"github.com/coopernurse/gridscaler/pkg/gateway"
	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	"os"
	"strconv"
	"strings"
	"time"
)

const usage = `gridscalectl - gridscaler Command Line Tool

Usage:
  gridscalectl status
  gridscalectl workers
  gridscalectl enable
  gridscalectl disable
  gridscalectl set [--max=<n>] [--min=<n>] [--no-max] [--no-min] [--ratio=<r>] [--idle=<minutes>] [--launch-timeout=<minutes>] [--interval=<ms>]
  gridscalectl launch <n>
  gridscalectl terminate <id>...
  gridscalectl terminate-launching <key>...
  gridscalectl config-url
  gridscalectl events [--type=<type>] [--limit=<n>] [--json]

Options:
  --max=<n>                   Maximum number of workers
  --min=<n>                   Minimum number of workers kept when down-scaling
  --no-max                    Remove the maximum workers cap
  --no-min                    Remove the minimum workers cap
  --ratio=<r>                 Ramp up speed ratio
  --idle=<minutes>            Minutes a worker must be idle before it is terminated
  --launch-timeout=<minutes>  Minutes to wait for a launched worker to join the grid
  --interval=<ms>             Polling interval in milliseconds
  --type=<type>               Only list events of this type
  --limit=<n>                 Maximum number of events to list [default: 20]
  --json                      Print events as JSON

Environment:
  GSCALE_ADMIN_URL            Admin API base URL (default http://127.0.0.1:8390)
`

func printStatus(s autoscaler.Status) {
	fmt.Printf("%-34s %v\n", "Enabled", s.Enabled)
	fmt.Printf("%-34s %v\n", "Scaling up", s.ScalingUp)
	fmt.Printf("%-34s %s\n", "Max workers cap", capStr(s.MaxWorkersCap))
	fmt.Printf("%-34s %s\n", "Min workers cap", capStr(s.MinWorkersCap))
	fmt.Printf("%-34s %g\n", "Ramp up speed ratio", s.RampUpSpeedRatio)
	fmt.Printf("%-34s %d\n", "Terminate after minutes idle", s.TerminateWorkerAfterMinutesIdle)
	fmt.Printf("%-34s %d\n", "Launching timeout minutes", s.LaunchingTimeoutMinutes)
	fmt.Printf("%-34s %d\n", "Polling interval ms", s.PollingIntervalMS)
	if len(s.LaunchingWorkers) > 0 {
		fmt.Println()
		printLaunching(s.LaunchingWorkers)
	}
}

func printLaunching(workers []autoscaler.LaunchingWorker) {
	fmt.Printf("%-30s  %-25s  %-15s\n", "Worker Key", "Instance", "Launched")
	fmt.Printf("------------------------------------------------------------------------\n")
	for _, w := range workers {
		fmt.Printf("%-30s  %-25s  %-15s\n", trunc(string(w.WorkerKey), 30), trunc(w.InstanceId, 25),
			humanize.Time(common.MillisToTime(w.LaunchingTime)))
	}
}

func capStr(v *int) string {
	if v == nil {
		return "none"
	}
	return strconv.Itoa(*v)
}

func setOptions(ctx context.Context, args docopt.Opts, client *gateway.Client) {
	patch := gateway.OptionsPatch{
		MaxWorkersCap:                   argIntPtr(args, "--max"),
		MinWorkersCap:                   argIntPtr(args, "--min"),
		RemoveMaxWorkersCap:             argBool(args, "--no-max"),
		RemoveMinWorkersCap:             argBool(args, "--no-min"),
		LaunchingTimeoutMinutes:         argIntPtr(args, "--launch-timeout"),
		PollingIntervalMS:               argIntPtr(args, "--interval"),
		TerminateWorkerAfterMinutesIdle: argIntPtr(args, "--idle"),
	}
	if s := argStr(args, "--ratio"); s != "" {
		ratio, err := strconv.ParseFloat(s, 64)
		checkErr(err, "Invalid --ratio")
		patch.RampUpSpeedRatio = &ratio
	}
	status, err := client.PutOptions(ctx, patch)
	checkErr(err, "PutOptions failed")
	printStatus(status)
}

func setEnabled(ctx context.Context, client *gateway.Client, enabled bool) {
	status, err := client.PutOptions(ctx, gateway.OptionsPatch{Enabled: &enabled})
	checkErr(err, "PutOptions failed")
	fmt.Printf("Autoscaler enabled: %v\n", status.Enabled)
}

func launch(ctx context.Context, args docopt.Opts, client *gateway.Client) {
	n, err := strconv.Atoi(argStr(args, "<n>"))
	checkErr(err, "Invalid instance count")
	workers, err := client.Launch(ctx, n)
	checkErr(err, "Launch failed")
	fmt.Printf("Launched %d of %d requested workers\n", len(workers), n)
	if len(workers) > 0 {
		printLaunching(workers)
	}
}

func workers(ctx context.Context, client *gateway.Client) {
	state, err := client.GridState(ctx)
	checkErr(err, "GridState failed")
	fmt.Printf("Queue empty: %v  CPU debt: %g\n\n", state.QueueEmpty, state.CPUDebt)
	if len(state.WorkerStates) == 0 {
		fmt.Println("No workers found")
		return
	}
	fmt.Printf("%-20s  %-20s  %-21s  %-6s  %-11s  %-15s\n", "Id", "Name", "Address", "Busy", "Terminating", "Idle Since")
	fmt.Printf("--------------------------------------------------------------------------------------------------------\n")
	for _, ws := range state.WorkerStates {
		idle := ""
		if ws.LastIdleTime != nil && !ws.Busy {
			idle = humanize.Time(common.MillisToTime(*ws.LastIdleTime))
		}
		addr := ws.RemoteAddress
		if ws.RemotePort > 0 {
			addr = fmt.Sprintf("%s:%d", addr, ws.RemotePort)
		}
		fmt.Printf("%-20s  %-20s  %-21s  %-6v  %-11v  %-15s\n", trunc(ws.Id, 20), trunc(ws.Name, 20),
			trunc(addr, 21), ws.Busy, ws.Terminating, idle)
	}
}

func terminate(ctx context.Context, args docopt.Opts, client *gateway.Client) {
	ids := argStrs(args, "<id>")
	terminating, err := client.TerminateByIds(ctx, ids)
	checkErr(err, "Terminate failed")
	fmt.Printf("Terminating %d of %d workers\n", len(terminating), len(ids))
	for _, w := range terminating {
		fmt.Printf("  %s  %s\n", w.Id, w.InstanceId)
	}
}

func terminateLaunching(ctx context.Context, args docopt.Opts, client *gateway.Client) {
	keys := make([]autoscaler.WorkerKey, 0)
	for _, k := range argStrs(args, "<key>") {
		keys = append(keys, autoscaler.WorkerKey(k))
	}
	terminated, err := client.TerminateLaunching(ctx, keys)
	checkErr(err, "TerminateLaunching failed")
	fmt.Printf("Terminated %d of %d launching workers\n", len(terminated), len(keys))
}

func events(ctx context.Context, args docopt.Opts, client *gateway.Client) {
	limit, err := strconv.ParseInt(argStr(args, "--limit"), 10, 64)
	checkErr(err, "Invalid --limit")
	out, err := client.ListEvents(ctx, db.ListEventsInput{Type: argStr(args, "--type"), Limit: limit})
	checkErr(err, "ListEvents failed")
	if argBool(args, "--json") {
		data, err := json.MarshalIndent(out.Events, "", "  ")
		checkErr(err, "json.Marshal failed")
		fmt.Println(string(data))
		return
	}
	if len(out.Events) == 0 {
		fmt.Println("No events found")
		return
	}
	fmt.Printf("%-24s  %-15s  %-60s\n", "Type", "When", "Payload")
	fmt.Printf("------------------------------------------------------------------------------------------------------\n")
	for _, e := range out.Events {
		fmt.Printf("%-24s  %-15s  %-60s\n", e.Type, humanize.Time(common.MillisToTime(e.Time)),
			trunc(payloadStr(e.Data), 60))
	}
}

func payloadStr(data []byte) string {
	var e struct {
		Payload json.RawMessage
	}
	if json.Unmarshal(data, &e) != nil || len(e.Payload) == 0 {
		return ""
	}
	return string(e.Payload)
}

////////////////////////////////////

func trunc(s string, max int) string {
	if len(s) > max {
		return s[0:max]
	}
	return s
}

func argBool(args docopt.Opts, key string) bool {
	b, _ := args.Bool(key)
	return b
}

func argStr(args docopt.Opts, key string) string {
	s, _ := args.String(key)
	return s
}

func argStrs(args docopt.Opts, key string) []string {
	if v, ok := args[key].([]string); ok {
		return v
	}
	return nil
}

func argIntPtr(args docopt.Opts, key string) *int {
	s := strings.TrimSpace(argStr(args, key))
	if s == "" {
		return nil
	}
	i, err := strconv.Atoi(s)
	checkErr(err, "Invalid "+key)
	return &i
}

func checkErr(err error, msg string) {
	if err != nil {
		fmt.Printf("ERROR: %s - %v\n", msg, err)
		os.Exit(1)
	}
}

func main() {
	args, err := docopt.ParseDoc(usage)
	if err != nil {
		fmt.Printf("ERROR parsing arguments: %v\n", err)
		os.Exit(1)
	}

	url := os.Getenv("GSCALE_ADMIN_URL")
	if url == "" {
		url = "http://127.0.0.1:8390"
	}
	client, err := gateway.NewClient(url, 5*time.Minute)
	checkErr(err, "Unable to create client")
	ctx := context.Background()

	if argBool(args, "status") {
		status, err := client.Status(ctx)
		checkErr(err, "Status failed")
		printStatus(status)
	} else if argBool(args, "workers") {
		workers(ctx, client)
	} else if argBool(args, "enable") {
		setEnabled(ctx, client, true)
	} else if argBool(args, "disable") {
		setEnabled(ctx, client, false)
	} else if argBool(args, "set") {
		setOptions(ctx, args, client)
	} else if argBool(args, "launch") {
		launch(ctx, args, client)
	} else if argBool(args, "terminate") {
		terminate(ctx, args, client)
	} else if argBool(args, "terminate-launching") {
		terminateLaunching(ctx, args, client)
	} else if argBool(args, "config-url") {
		u, err := client.ConfigUrl(ctx)
		checkErr(err, "ConfigUrl failed")
		fmt.Println(u)
	} else if argBool(args, "events") {
		events(ctx, args, client)
	} else {
		fmt.Printf("ERROR: unsupported command. args=%v\n", args)
		os.Exit(2)
	}
}
