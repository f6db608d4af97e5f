// Command nexusctl talks to a running nexus server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"llmnexus/internal/gateway/api"
)

const usage = `usage: nexusctl [-url URL] [-identity ID] <command> [flags]

commands:
  orchestrate -objective OBJ [-temperature T] [-max-tokens N] PROMPT...
  report      RUN_ID
  summary     [-run RUN_ID] [-identity-filter ID] [-model ID] [-since DUR] [-step SECONDS]
  health      MODEL_ID up|down
  models
`

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	global := flag.NewFlagSet("nexusctl", flag.ExitOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	baseURL := global.String("url", envOr("NEXUS_URL", "http://localhost:8081"), "nexus server URL")
	identity := global.String("identity", envOr("NEXUS_IDENTITY", os.Getenv("USER")), "caller identity")
	timeout := global.Duration("timeout", 2*time.Minute, "request timeout")
	_ = global.Parse(os.Args[1:])
	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	client := api.NewClient(http.DefaultClient, *baseURL, *identity)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmd, args := global.Arg(0), global.Args()[1:]
	var (
		out any
		err error
	)
	switch cmd {
	case "orchestrate":
		out, err = orchestrate(ctx, client, args)
	case "report":
		if len(args) != 1 {
			log.Fatal("report needs exactly one RUN_ID")
		}
		out, err = client.GetRunReport(ctx, &api.GetRunReportRequest{RunID: args[0]})
	case "summary":
		out, err = summary(ctx, client, args)
	case "health":
		if len(args) != 2 || (args[1] != "up" && args[1] != "down") {
			log.Fatal("health needs MODEL_ID and up|down")
		}
		out, err = client.SetModelHealth(ctx, &api.SetModelHealthRequest{ModelID: args[0], Healthy: args[1] == "up"})
	case "models":
		out, err = client.ListModels(ctx)
	default:
		global.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithField("command", cmd).Fatal(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}

func orchestrate(ctx context.Context, client *api.Client, args []string) (*api.OrchestrateResponse, error) {
	fs := flag.NewFlagSet("orchestrate", flag.ExitOnError)
	objective := fs.String("objective", "general", "general | coding | fast_response | cost_saving")
	temperature := fs.Float64("temperature", -1, "sampling temperature in [0, 2]; server default when unset")
	maxTokens := fs.Int("max-tokens", 0, "completion token cap; server default when unset")
	_ = fs.Parse(args)
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	req := &api.OrchestrateRequest{Objective: *objective, Prompt: prompt, MaxTokens: *maxTokens}
	if *temperature >= 0 {
		req.Temperature = temperature
	}
	return client.Orchestrate(ctx, req)
}

func summary(ctx context.Context, client *api.Client, args []string) (*api.SummarizeResponse, error) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	run := fs.String("run", "", "only this run")
	identity := fs.String("identity-filter", "", "only this identity")
	model := fs.String("model", "", "only this model")
	since := fs.Duration("since", 0, "only records newer than this")
	step := fs.Int("step", 60, "timeline step in seconds, 0 disables")
	_ = fs.Parse(args)
	req := &api.SummarizeRequest{RunID: *run, Identity: *identity, ModelID: *model, StepSeconds: *step}
	if *since > 0 {
		t := time.Now().Add(-*since)
		req.Since = &t
	}
	return client.Summarize(ctx, req)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
