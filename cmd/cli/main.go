package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"neurojudge/internal/cli/command"
	"neurojudge/internal/cli/config"
	httpclient "neurojudge/internal/cli/http"
	"neurojudge/internal/cli/repl"
	"neurojudge/internal/cli/state"
	"neurojudge/internal/common/mq"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	operator := flag.String("operator", "", "Name sent with administrative calls")
	token := flag.String("token", "", "Bearer token for administrative calls")
	statePath := flag.String("state", "", "Override state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	execLine := flag.String("c", "", "Run one command and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(2)
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	prefs, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load cli state failed: %v\n", err)
		os.Exit(2)
	}
	base := cfg.BaseURL
	if prefs.BaseURL != "" {
		base = prefs.BaseURL
	}
	if *baseURL != "" {
		base = *baseURL
	}
	if prefs.Operator == "" {
		prefs.Operator = cfg.Operator
	}
	if *operator != "" {
		prefs.Operator = *operator
	}

	var producer mq.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		queue, err := mq.NewKafkaQueue(cfg.Kafka.KafkaConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init kafka failed: %v\n", err)
			os.Exit(2)
		}
		defer func() { _ = queue.Close() }()
		producer = queue
	}

	client := httpclient.New(strings.TrimRight(base, "/"), cfg.Timeout, func() string {
		return prefs.Operator
	})
	if *token != "" {
		cfg.Token = *token
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("NEUROJUDGE_TOKEN")
	}
	client.SetToken(cfg.Token)
	session := repl.New(client, command.Registry(), producer, cfg.Kafka.RequeueTopic,
		&prefs, cfg.StatePath, cfg.PrettyJSON != nil && *cfg.PrettyJSON)

	ctx := context.Background()
	if *execLine != "" {
		if err := session.Execute(ctx, *execLine); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := session.Run(ctx, cfg.HistoryPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
