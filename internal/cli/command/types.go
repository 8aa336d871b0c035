package command

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt64
	FieldFlag
	FieldBool
)

// Transport selects how a command reaches the evaluator.
type Transport int

const (
	TransportHTTP Transport = iota
	TransportKafka
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
}

// Command defines a CLI command binding.
type Command struct {
	Service      string
	Action       string
	Method       string
	PathTemplate string
	Transport    Transport
	Help         string
	Fields       []Field
}

// Key is the "service action" name the command is registered under.
func (c Command) Key() string {
	return c.Service + " " + c.Action
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Params are key=value arguments. Keys are case-insensitive.
type Params map[string]string

func (p Params) Get(key string) string { return p[strings.ToLower(key)] }

func (p Params) Set(key, value string) { p[strings.ToLower(key)] = value }

// Canonicalize renames alias keys to their field name. An explicit field
// value wins over an alias.
func (p Params) Canonicalize(fields []Field) {
	for _, f := range fields {
		name := strings.ToLower(f.Name)
		for _, alias := range f.Aliases {
			a := strings.ToLower(alias)
			v, ok := p[a]
			if !ok {
				continue
			}
			delete(p, a)
			if _, set := p[name]; !set {
				p[name] = v
			}
		}
	}
}

func ParseInt64(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

// ParseParams splits key=value tokens; values may contain '='.
func ParseParams(tokens []string) (Params, error) {
	params := make(Params, len(tokens))
	for _, tok := range tokens {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			return nil, &ParamError{Token: tok}
		}
		params.Set(k, v)
	}
	return params, nil
}

// ParamError reports a token that is not key=value.
type ParamError struct {
	Token string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid param %q, want key=value", e.Token)
}
