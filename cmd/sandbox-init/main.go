//go:build linux

// Command sandbox-init is exec'd by the evaluator's sandbox runner. It reads
// a sandbox.InitRequest from stdin, confines itself, then replaces itself
// with the submission command.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"neurojudge/internal/evaluator/sandbox"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func main() {
	if err := run(os.Stdin); err != nil {
		fmt.Fprintln(os.Stderr, "sandbox-init:", err)
		os.Exit(1)
	}
}

func run(in io.Reader) error {
	req, err := decodeRequest(in)
	if err != nil {
		return err
	}
	spec := req.RunSpec
	if err := os.Chdir(spec.WorkDir); err != nil {
		return fmt.Errorf("chdir %s: %w", spec.WorkDir, err)
	}
	for _, l := range rlimits(spec.Limits) {
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("setrlimit %s: %w", l.name, err)
		}
	}
	if err := redirectStdio(spec.StdoutPath, spec.StderrPath); err != nil {
		return err
	}
	if req.Seccomp != "" {
		if err := loadSeccomp(req.Seccomp); err != nil {
			return err
		}
	}

	bin, err := exec.LookPath(spec.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", spec.Cmd[0], err)
	}
	return unix.Exec(bin, spec.Cmd, environ(spec.Env))
}

func decodeRequest(r io.Reader) (sandbox.InitRequest, error) {
	var req sandbox.InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return sandbox.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return sandbox.InitRequest{}, err
	}
	return req, nil
}

type rlimit struct {
	name     string
	resource int
	value    uint64
}

// rlimits lists the limits to install; zero fields are skipped.
func rlimits(l sandbox.ResourceLimit) []rlimit {
	const mb = 1 << 20
	var out []rlimit
	add := func(name string, resource int, v int64, scale int64) {
		if v > 0 {
			out = append(out, rlimit{name: name, resource: resource, value: uint64(v * scale)})
		}
	}
	if l.CPUTimeMs > 0 {
		// RLIMIT_CPU has second granularity; round up.
		add("cpu", unix.RLIMIT_CPU, (l.CPUTimeMs+999)/1000, 1)
	}
	add("as", unix.RLIMIT_AS, l.MemoryMB, mb)
	add("fsize", unix.RLIMIT_FSIZE, l.OutputMB, mb)
	add("stack", unix.RLIMIT_STACK, l.StackMB, mb)
	add("nproc", unix.RLIMIT_NPROC, l.PIDs, 1)
	return out
}

// redirectStdio points stdin at /dev/null and stdout/stderr at the given files.
func redirectStdio(stdoutPath, stderrPath string) error {
	targets := []struct {
		fd   int
		path string
		flag int
	}{
		{int(os.Stdin.Fd()), os.DevNull, os.O_RDONLY},
		{int(os.Stdout.Fd()), orDevNull(stdoutPath), os.O_CREATE | os.O_WRONLY | os.O_TRUNC},
		{int(os.Stderr.Fd()), orDevNull(stderrPath), os.O_CREATE | os.O_WRONLY | os.O_TRUNC},
	}
	for _, t := range targets {
		f, err := os.OpenFile(t.path, t.flag, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", t.path, err)
		}
		err = unix.Dup2(int(f.Fd()), t.fd)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("dup2 %s: %w", t.path, err)
		}
	}
	return nil
}

func orDevNull(path string) string {
	if path == "" {
		return os.DevNull
	}
	return path
}

func environ(env []string) []string {
	if len(env) == 0 {
		return []string{defaultPath}
	}
	return env
}

// seccompProfile is the subset of the OCI seccomp profile format we honour.
type seccompProfile struct {
	DefaultAction string `json:"defaultAction"`
	Syscalls      []struct {
		Names  []string `json:"names"`
		Action string   `json:"action"`
	} `json:"syscalls"`
}

func loadSeccomp(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	filter, err := buildFilter(data)
	if err != nil {
		return err
	}
	defer filter.Release()
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no_new_privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func buildFilter(profile []byte) (*seccomp.ScmpFilter, error) {
	var p seccompProfile
	if err := json.Unmarshal(profile, &p); err != nil {
		return nil, fmt.Errorf("parse seccomp profile: %w", err)
	}
	def, err := parseAction(p.DefaultAction)
	if err != nil {
		return nil, err
	}
	filter, err := seccomp.NewFilter(def)
	if err != nil {
		return nil, fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range p.Syscalls {
		action, err := parseAction(rule.Action)
		if err != nil {
			filter.Release()
			return nil, err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Profiles list syscalls absent on some architectures.
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				filter.Release()
				return nil, fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	return filter, nil
}

func parseAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	}
	return seccomp.ActInvalid, fmt.Errorf("unsupported seccomp action %q", action)
}
