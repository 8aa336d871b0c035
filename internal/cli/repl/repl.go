package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"neurojudge/internal/cli/command"
	httpclient "neurojudge/internal/cli/http"
	"neurojudge/internal/cli/state"
	"neurojudge/internal/common/mq"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "neurojudge> "

// errExit ends the session.
var errExit = errors.New("exit")

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	producer   mq.Producer
	topic      string
	prefs      *state.Preferences
	statePath  string
	prettyJSON bool
	rl         *readline.Instance
	out        io.Writer
}

// New creates a session. producer may be nil, in which case Kafka commands
// are rejected.
func New(client *httpclient.Client, commands map[string]command.Command, producer mq.Producer, topic string,
	prefs *state.Preferences, statePath string, prettyJSON bool) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		producer:   producer,
		topic:      topic,
		prefs:      prefs,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        os.Stdout,
	}
}

// SetOutput redirects command output.
func (s *Session) SetOutput(w io.Writer) {
	s.out = w
}

// Run reads commands interactively until exit or EOF.
func (s *Session) Run(ctx context.Context, historyPath string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyPath,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl
	s.out = rl.Stdout()

	for {
		rl.SetPrompt(prompt)
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				s.printLine("bye")
				return nil
			}
			s.printLine("error: %v", err)
		}
	}
}

// Execute runs one input line.
func (s *Session) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if handled, err := s.handleSystemCommand(line); handled {
		return err
	}
	return s.handleCommand(ctx, line)
}

func (s *Session) completer() *readline.PrefixCompleter {
	services := map[string][]readline.PrefixCompleterInterface{}
	for _, key := range command.Keys(s.commands) {
		cmd := s.commands[key]
		services[cmd.Service] = append(services[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("operator")),
		readline.PcItem("show", readline.PcItem("config")),
	}
	for service, actions := range services {
		items = append(items, readline.PcItem(service, actions...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) handleSystemCommand(line string) (bool, error) {
	switch line {
	case "exit", "quit":
		return true, errExit
	case "help":
		s.printHelp()
		return true, nil
	}
	if strings.HasPrefix(line, "set ") {
		return true, s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true, nil
	}
	return false, nil
}

func (s *Session) handleSet(args string) error {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return fmt.Errorf("usage: set base|timeout|operator <value>")
	}
	switch parts[0] {
	case "base":
		s.client.SetBaseURL(parts[1])
		s.prefs.BaseURL = parts[1]
		s.printLine("base set to %s", parts[1])
	case "timeout":
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
		return nil
	case "operator":
		s.prefs.Operator = parts[1]
		s.printLine("operator set to %s", parts[1])
	default:
		return fmt.Errorf("unknown set command: %s", parts[0])
	}
	if s.statePath == "" {
		return nil
	}
	return state.Save(s.statePath, *s.prefs)
}

func (s *Session) handleShow(args string) {
	switch args {
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("operator: %s", s.prefs.Operator)
		s.printLine("statePath: %s", s.statePath)
		s.printLine("requeueTopic: %s (kafka %t)", s.topic, s.producer != nil)
	default:
		s.printLine("usage: show config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := tokens[0] + " " + tokens[1]
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params, err := command.ParseParams(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}

	if cmd.Transport == command.TransportKafka {
		return s.publish(ctx, cmd, params)
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) publish(ctx context.Context, cmd command.Command, params command.Params) error {
	if s.producer == nil {
		return fmt.Errorf("%s needs kafka brokers in the cli config", cmd.Key())
	}
	msg, err := command.BuildRequeue(cmd, params)
	if err != nil {
		return err
	}
	if s.prefs.Operator != "" {
		msg.SetHeader("operator", s.prefs.Operator)
	}
	if err := s.producer.Publish(ctx, s.topic, msg); err != nil {
		return fmt.Errorf("publish requeue failed: %w", err)
	}
	s.printLine("requeue published to %s for submission %s", s.topic, params.Get("id"))
	return nil
}

// promptMissing asks for required values interactively. Without a terminal
// the command fails validation instead.
func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	if s.rl == nil {
		return nil
	}
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		s.rl.SetPrompt(field.Prompt + ": ")
		value, err := s.rl.Readline()
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		params.Set(field.Name, strings.TrimSpace(value))
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|operator | show config")
	s.printLine("commands:")
	for _, key := range command.Keys(s.commands) {
		s.printLine("  %s", s.commands[key].Help)
	}
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
