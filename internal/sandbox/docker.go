package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// sandboxPort is the loopback port the in-container worker listens on.
const sandboxPort = 8421

// runContainer launches a long-lived container running the Strix sandbox
// worker, publishing sandboxPort to an ephemeral host port so the Runtime
// can reach it over loopback. Adapted from the teacher's one-shot
// `docker run` invocation style into a persistent server container: the
// worker keeps running until destroyContainer stops it, rather than
// exiting after one command.
func (r *Runtime) runContainer(ctx context.Context, scanID, token string, key []byte) (containerID, baseURL string, err error) {
	args := []string{
		"run", "-d",
		"--label", "strix.scan_id=" + scanID,
		"-e", "STRIX_SANDBOX_MODE=1",
		"-e", "STRIX_BEARER_TOKEN=" + token,
		"-e", "STRIX_SANDBOX_KEY=" + base64.StdEncoding.EncodeToString(key),
		"-p", fmt.Sprintf("127.0.0.1::%d", sandboxPort),
	}
	if !r.cfg.NetworkEnabled {
		args = append(args, "--network", "none")
	}
	args = append(args, r.cfg.Image)

	cmd := exec.CommandContext(ctx, "docker", args...)
	r.applyDockerHost(cmd)
	var out bytes.Buffer
	cmd.Stdout = &out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", "", fmt.Errorf("docker run: %w: %s", err, stderr.String())
	}
	containerID = strings.TrimSpace(out.String())

	hostPort, err := r.publishedPort(ctx, containerID)
	if err != nil {
		_ = r.destroyContainer(ctx, containerID)
		return "", "", err
	}
	return containerID, fmt.Sprintf("http://127.0.0.1:%d", hostPort), nil
}

func (r *Runtime) publishedPort(ctx context.Context, containerID string) (int, error) {
	format := fmt.Sprintf("{{(index (index .NetworkSettings.Ports \"%d/tcp\") 0).HostPort}}", sandboxPort)
	cmd := exec.CommandContext(ctx, "docker", "inspect", "--format", format, containerID)
	r.applyDockerHost(cmd)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("docker inspect: %w", err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(out.String()))
	if err != nil {
		return 0, fmt.Errorf("parsing published port: %w", err)
	}
	return port, nil
}

// destroyContainer force-removes a container. Idempotent: removing an
// already-gone container is not treated as an error.
func (r *Runtime) destroyContainer(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", containerID)
	r.applyDockerHost(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "No such container") {
			return nil
		}
		return fmt.Errorf("docker rm: %w: %s", err, stderr.String())
	}
	return nil
}
