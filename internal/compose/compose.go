// Package compose drives the docker compose stack a scenario deploys.
//
// The pipeline under test is orchestration glue as far as verification
// is concerned: this package only starts it, stops it, collects its
// logs, and probes file sizes inside containers. Command execution is
// injected so tests can run without docker.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OverrideFileName is the file WriteEnvOverride creates.
const OverrideFileName = "compose.override.yml"

// ExecFunc runs one external command and returns its combined output.
type ExecFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultExec(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Runner wraps docker compose for one scenario's stack.
type Runner struct {
	files   []string
	project string
	execFn  ExecFunc
	logger  *slog.Logger
}

// Option allows configuration of runner parameters.
type Option func(*Runner)

// WithProject sets the compose project name. Harness runs use the run
// ID so concurrent stacks cannot collide.
func WithProject(name string) Option {
	return func(r *Runner) {
		r.project = name
	}
}

// WithExec replaces the command executor. Tests inject recorders.
func WithExec(fn ExecFunc) Option {
	return func(r *Runner) {
		r.execFn = fn
	}
}

// WithLogger sets the logger for stack lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner for the given compose file.
func New(file string, opts ...Option) *Runner {
	r := &Runner{
		files:  []string{file},
		execFn: defaultExec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// composeArgs assembles the common docker compose argument prefix.
func (r *Runner) composeArgs(cmd ...string) []string {
	args := []string{"compose"}
	for _, f := range r.files {
		args = append(args, "-f", f)
	}
	if r.project != "" {
		args = append(args, "-p", r.project)
	}
	return append(args, cmd...)
}

func (r *Runner) run(ctx context.Context, cmd ...string) ([]byte, error) {
	args := r.composeArgs(cmd...)
	r.logger.Debug("docker", "args", strings.Join(args, " "))
	out, err := r.execFn(ctx, "docker", args...)
	if err != nil {
		return out, fmt.Errorf("docker compose %s: %w (output: %s)",
			cmd[0], err, trimOutput(out))
	}
	return out, nil
}

// Up starts the stack detached. With services given, only those are
// started; otherwise the whole file comes up.
func (r *Runner) Up(ctx context.Context, services ...string) error {
	r.logger.Info("starting pipeline stack",
		"file", r.files[0],
		"project", r.project,
		"services", strings.Join(services, ","))
	_, err := r.run(ctx, append([]string{"up", "-d"}, services...)...)
	return err
}

// Down tears the stack down, removing volumes and orphans so repeated
// runs start clean.
func (r *Runner) Down(ctx context.Context) error {
	r.logger.Info("tearing down pipeline stack",
		"file", r.files[0],
		"project", r.project)
	_, err := r.run(ctx, "down", "--volumes", "--remove-orphans")
	return err
}

// Logs returns the stack's collected container logs.
func (r *Runner) Logs(ctx context.Context) ([]byte, error) {
	return r.run(ctx, "logs", "--no-color")
}

// ExecSize reports the byte size of path inside a running service via
// wc -c. A file that does not exist yet reports size 0 with no error;
// all other failures surface so the caller can score the probe.
func (r *Runner) ExecSize(ctx context.Context, service, path string) (int64, error) {
	out, err := r.execFn(ctx, "docker", r.composeArgs("exec", "-T", service, "wc", "-c", path)...)
	text := string(out)
	if err != nil {
		if strings.Contains(text, "No such file or directory") {
			return 0, nil
		}
		return 0, fmt.Errorf("wc -c in %s: %w (output: %s)", service, err, trimOutput(out))
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("wc -c in %s: empty output", service)
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wc -c in %s: parsing %q: %w", service, fields[0], err)
	}
	return size, nil
}

// SizeProbe adapts ExecSize into the probe signature the watch package
// expects, bound to one service and path.
func (r *Runner) SizeProbe(service, path string) func(context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return r.ExecSize(ctx, service, path)
	}
}

// override file layout for docker compose -f stacking
type overrideFile struct {
	Services map[string]overrideService `yaml:"services"`
}

type overrideService struct {
	Environment map[string]string `yaml:"environment"`
}

// WriteEnvOverride writes a compose override file giving each listed
// service the same environment variables, and registers it so later
// compose commands include it. Returns the override file path.
func (r *Runner) WriteEnvOverride(dir string, services []string, env map[string]string) (string, error) {
	if len(services) == 0 {
		return "", fmt.Errorf("env overrides require at least one service")
	}

	override := overrideFile{Services: make(map[string]overrideService, len(services))}
	for _, svc := range services {
		override.Services[svc] = overrideService{Environment: env}
	}

	data, err := yaml.Marshal(override)
	if err != nil {
		return "", fmt.Errorf("marshaling env override: %w", err)
	}

	path := filepath.Join(dir, OverrideFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing env override: %w", err)
	}

	r.files = append(r.files, path)
	r.logger.Debug("env override written", "path", path, "services", strings.Join(services, ","))
	return path, nil
}

// trimOutput compacts command output for error messages.
func trimOutput(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > 400 {
		s = s[:400] + "..."
	}
	if s == "" {
		return "<none>"
	}
	return s
}
