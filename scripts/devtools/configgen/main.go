// Command configgen renders evaluator and cli configs from one dev profile so
// both sides share the admin token secret.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"neurojudge/internal/evaluator/auth"

	"gopkg.in/yaml.v3"
)

const (
	targetEvaluator = "evaluator"
	targetCLI       = "cli"
)

type Profile struct {
	OutputDir string                    `yaml:"outputDir"`
	Auth      AuthProfile               `yaml:"auth"`
	Services  map[string]ServiceProfile `yaml:"services"`
}

// AuthProfile is shared by the evaluator (secret, issuer) and the cli (a token
// issued for Operator).
type AuthProfile struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Operator string        `yaml:"operator"`
	TokenTTL time.Duration `yaml:"tokenTTL"`
}

type ServiceProfile struct {
	Kind      string                 `yaml:"kind"`
	Base      string                 `yaml:"base"`
	Output    string                 `yaml:"output"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

func main() {
	profilePath := flag.String("profile", "configs/dev-profile.yaml", "Path to config profile")
	outputDir := flag.String("output-dir", "", "Override output directory")
	flag.Parse()

	if err := run(*profilePath, *outputDir); err != nil {
		fmt.Fprintln(os.Stderr, "configgen:", err)
		os.Exit(1)
	}
}

func run(profilePath, outputDir string) error {
	profilePath, err := filepath.Abs(profilePath)
	if err != nil {
		return fmt.Errorf("resolve profile path: %w", err)
	}
	profile, err := loadProfile(profilePath)
	if err != nil {
		return err
	}
	if outputDir != "" {
		profile.OutputDir = outputDir
	}
	if profile.OutputDir == "" {
		return errors.New("output directory is required")
	}
	profileDir := filepath.Dir(profilePath)
	if !filepath.IsAbs(profile.OutputDir) {
		profile.OutputDir = filepath.Join(profileDir, profile.OutputDir)
	}

	names := make([]string, 0, len(profile.Services))
	for name := range profile.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path, err := render(profile, profileDir, name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}

// render merges one service's overrides and shared auth into its base config
// and writes the result, returning the output path.
func render(profile *Profile, profileDir, name string) (string, error) {
	service := profile.Services[name]
	if service.Base == "" {
		return "", errors.New("missing base config")
	}
	if !filepath.IsAbs(service.Base) {
		service.Base = filepath.Join(profileDir, service.Base)
	}

	cfg, err := loadYAML(service.Base)
	if err != nil {
		return "", err
	}
	cfg = normalizeValue(cfg)
	if len(service.Overrides) > 0 {
		if cfg, err = mergeMap(cfg, normalizeValue(service.Overrides)); err != nil {
			return "", fmt.Errorf("merge overrides: %w", err)
		}
	}
	if cfg, err = applySharedAuth(profile, service.target(name), cfg); err != nil {
		return "", err
	}

	out, err := resolveOutputPath(profile.OutputDir, service)
	if err != nil {
		return "", err
	}
	return out, writeYAML(out, cfg)
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(profile.Services) == 0 {
		return nil, fmt.Errorf("profile %s has no services", path)
	}
	return &profile, nil
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// resolveOutputPath defaults to the base file name inside outputDir.
func resolveOutputPath(outputDir string, service ServiceProfile) (string, error) {
	out := service.Output
	if out == "" {
		out = filepath.Base(service.Base)
	}
	switch {
	case out == "" || out == "." || out == string(filepath.Separator):
		return "", errors.New("output path is empty")
	case filepath.IsAbs(out):
		return out, nil
	}
	return filepath.Join(outputDir, out), nil
}

// normalizeValue converts yaml maps to map[string]interface{} recursively,
// stringifying non-string keys.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = normalizeValue(child)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			out[k] = normalizeValue(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, child := range t {
			out[i] = normalizeValue(child)
		}
		return out
	}
	return v
}

// mergeMap deep-merges override into a copy of base. Nested maps merge key by
// key; any other override value replaces the base value.
func mergeMap(base, override interface{}) (interface{}, error) {
	b, ok := base.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("base config is %T, want a map", base)
	}
	o, ok := override.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("override is %T, want a map", override)
	}
	out := make(map[string]interface{}, len(b)+len(o))
	for k, v := range b {
		out[k] = v
	}
	for k, ov := range o {
		bm, bIsMap := out[k].(map[string]interface{})
		om, oIsMap := ov.(map[string]interface{})
		if !bIsMap || !oIsMap {
			out[k] = ov
			continue
		}
		merged, err := mergeMap(bm, om)
		if err != nil {
			return nil, err
		}
		out[k] = merged
	}
	return out, nil
}

// target returns what the rendered file configures; kind defaults to the name.
func (s ServiceProfile) target(name string) string {
	if s.Kind != "" {
		return s.Kind
	}
	return name
}

func applySharedAuth(profile *Profile, target string, config interface{}) (interface{}, error) {
	if profile == nil || profile.Auth.Secret == "" {
		return config, nil
	}
	if target != targetEvaluator && target != targetCLI {
		return config, nil
	}
	root, ok := config.(map[string]interface{})
	if !ok {
		return nil, errors.New("service config is not a map")
	}

	if target == targetCLI {
		if profile.Auth.Operator == "" {
			return nil, errors.New("auth.operator is required to issue a cli token")
		}
		token, err := auth.NewTokenService(profile.Auth.Secret, profile.Auth.Issuer).
			Issue(profile.Auth.Operator, auth.RoleAdmin, profile.Auth.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue cli token failed: %w", err)
		}
		root["operator"] = profile.Auth.Operator
		root["token"] = token
		return root, nil
	}

	authCfg := childMap(childMap(root, "server"), "auth")
	authCfg["secret"] = profile.Auth.Secret
	if profile.Auth.Issuer != "" {
		authCfg["issuer"] = profile.Auth.Issuer
	}
	return root, nil
}

// childMap returns m[key], creating it when absent or not a map.
func childMap(m map[string]interface{}, key string) map[string]interface{} {
	child, ok := m[key].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		m[key] = child
	}
	return child
}
