package command

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"neurojudge/internal/common/mq"
	"neurojudge/internal/evaluator/model"
	"neurojudge/internal/evaluator/service"
)

var (
	idField   = Field{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldInt64, Required: true}
	flagField = Field{Name: "flag", Prompt: "flag (validated|executed)", Type: FieldFlag, Required: true}
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "status",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions",
			Help:         "status list",
		},
		{
			Service:      "status",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id/status",
			Help:         "status get id=123",
			Fields:       []Field{idField},
		},
		{
			Service:      "status",
			Action:       "flag",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id/status/:flag",
			Help:         "status flag id=123 flag=executed",
			Fields:       []Field{idField, flagField},
		},
		{
			Service:      "status",
			Action:       "clear",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/:id/status/:flag/clear",
			Help:         "status clear id=123 flag=executed [requeue=true]",
			Fields: []Field{
				idField,
				flagField,
				{Name: "requeue", Prompt: "requeue", Type: FieldBool},
			},
		},
		{
			Service:   "status",
			Action:    "requeue",
			Transport: TransportKafka,
			Help:      "status requeue id=123 flag=executed",
			Fields:    []Field{idField, flagField},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys lists registered command names in order.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for k := range commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks typed fields.
func Validate(cmd Command, params Params) error {
	params.Canonicalize(cmd.Fields)
	for _, field := range cmd.Fields {
		value := params.Get(field.Name)
		if value == "" {
			if field.Required {
				return fmt.Errorf("missing parameter: %s", field.Name)
			}
			continue
		}
		switch field.Type {
		case FieldInt64:
			n, err := ParseInt64(value)
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid %s: must be a positive integer", field.Name)
			}
		case FieldFlag:
			flag, err := model.ParseFlag(value)
			if err != nil {
				return err
			}
			params.Set(field.Name, string(flag))
		case FieldBool:
			if _, err := strconv.ParseBool(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	if err := Validate(cmd, params); err != nil {
		return RequestSpec{}, err
	}
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if requeue, _ := strconv.ParseBool(params.Get("requeue")); requeue {
		path += "?" + url.Values{"requeue": []string{"true"}}.Encode()
	}
	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
	}, nil
}

// BuildRequeue creates the message published for a Kafka requeue.
func BuildRequeue(cmd Command, params Params) (*mq.Message, error) {
	if err := Validate(cmd, params); err != nil {
		return nil, err
	}
	id, _ := ParseInt64(params.Get("id"))
	return service.NewRequeueMessage(service.RequeueRequest{ID: id, Flag: params.Get("flag")})
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id", "flag"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		}
	}
	return path, nil
}
