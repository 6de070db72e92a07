package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// DockerConfig configures the container execution backend.
type DockerConfig struct {
	Image   string // Image providing the shell, e.g. "alpine:3.20"
	Memory  string // Docker memory limit (e.g. "256m")
	Network bool   // Whether network access is allowed
}

// DockerRunner runs each command in a throwaway container. The sandbox root
// is bind-mounted at the same path so the working directory resolved by the
// Workspace is valid inside the container too.
type DockerRunner struct {
	policy Policy
	cfg    DockerConfig
	root   string
	logger *slog.Logger
}

// NewDockerRunner creates a container runner that mounts root read-write.
func NewDockerRunner(policy Policy, cfg DockerConfig, root string, logger *slog.Logger) *DockerRunner {
	if policy.Shell == "" {
		policy.Shell = DefaultPolicy().Shell
	}
	if cfg.Memory == "" {
		cfg.Memory = "256m"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DockerRunner{policy: policy, cfg: cfg, root: root, logger: logger}
}

// Run executes req inside a fresh container.
func (d *DockerRunner) Run(ctx context.Context, req Request) Result {
	timeout := d.policy.ClampTimeout(req.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := "cmdbox-" + uuid.NewString()
	cmd := exec.CommandContext(runCtx, "docker", d.args(name, req)...)
	cmd.WaitDelay = waitDelay

	d.logger.Debug("executing command in container",
		slog.String("container", name),
		slog.String("image", d.cfg.Image),
		slog.String("dir", req.Dir),
		slog.Duration("timeout", timeout),
	)

	result := runCmd(runCtx, cmd, d.policy, timeout, d.logger)
	if result.TimedOut {
		// Killing the docker CLI leaves the container running.
		killCtx, killCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer killCancel()
		if err := exec.CommandContext(killCtx, "docker", "rm", "-f", name).Run(); err != nil {
			d.logger.Warn("removing timed out container",
				slog.String("container", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return result
}

func (d *DockerRunner) args(name string, req Request) []string {
	args := []string{
		"run", "--rm",
		"--name", name,
		"--memory", d.cfg.Memory,
		"-v", d.root + ":" + d.root,
		"-w", req.Dir,
	}
	if !d.cfg.Network {
		args = append(args, "--network=none")
	}
	for _, kv := range envPairs(req.Env) {
		args = append(args, "-e", kv)
	}
	args = append(args, d.cfg.Image, d.policy.Shell, "-c", req.Command)
	return args
}

// String describes the backend for logs.
func (d *DockerRunner) String() string {
	return fmt.Sprintf("docker(%s)", d.cfg.Image)
}
