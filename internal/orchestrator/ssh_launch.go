package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/crosslogic/tuna-orchestrator/internal/models"
)

// SSHRouterLauncher launches the router binary over SSH on an existing VM
// whose IP the caller supplies (the SkyServe controller in colocated
// mode), replacing the scp/ssh/setsid subprocess dance with a native
// client dial. It does not provision VMs: Launch with an empty target IP
// returns an error.
type SSHRouterLauncher struct {
	logger *zap.Logger

	// KeyPath is the private key used to authenticate to launched VMs,
	// the Go equivalent of auth_utils.get_or_generate_keys().
	KeyPath string
	// User is the SSH login user for launched VMs.
	User string
	// RouterBinaryPath is the local path to the compiled router binary
	// copied to the VM, replacing the source's meta_lb.py + gunicorn.
	RouterBinaryPath string
	// RemotePort is the port the router binds to on the VM.
	RemotePort int

	// dial is overridable in tests.
	dial func(addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// NewSSHRouterLauncher constructs a launcher using the real network dial.
func NewSSHRouterLauncher(keyPath, user, routerBinaryPath string, remotePort int, logger *zap.Logger) *SSHRouterLauncher {
	return &SSHRouterLauncher{
		logger:           logger,
		KeyPath:          keyPath,
		User:             user,
		RouterBinaryPath: routerBinaryPath,
		RemotePort:       remotePort,
		dial:             ssh.Dial,
	}
}

func (l *SSHRouterLauncher) clientConfig() (*ssh.ClientConfig, error) {
	keyBytes, err := os.ReadFile(l.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh_launch: reading private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ssh_launch: parsing private key: %w", err)
	}
	return &ssh.ClientConfig{
		User:            l.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // controller VMs are ephemeral and not pre-known
		Timeout:         30 * time.Second,
	}, nil
}

// Launch copies the router binary to the target VM and starts it
// detached (setsid-equivalent via nohup + background) so it survives the
// SSH session closing, with its env vars baked in at start time.
func (l *SSHRouterLauncher) Launch(ctx context.Context, req *models.DeployRequest, targetIP string) (*models.DeploymentResult, error) {
	if targetIP == "" {
		return nil, fmt.Errorf("ssh_launch: no target IP resolved for router VM")
	}

	cfg, err := l.clientConfig()
	if err != nil {
		return nil, err
	}

	client, err := l.dial(fmt.Sprintf("%s:22", targetIP), cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh_launch: dialing %s: %w", targetIP, err)
	}
	defer client.Close()

	if err := l.copyBinary(client); err != nil {
		return nil, fmt.Errorf("ssh_launch: copying router binary: %w", err)
	}

	startCmd := fmt.Sprintf(
		"nohup env PORT=%d TUNA_SERVICE_NAME=%s SKYSERVE_BASE_URL=http://127.0.0.1:30001 /tmp/tuna-router > /tmp/tuna-router.log 2>&1 < /dev/null & disown",
		l.RemotePort, req.ServiceName,
	)
	if err := l.runCommand(client, startCmd); err != nil {
		return nil, fmt.Errorf("ssh_launch: starting router: %w", err)
	}

	return &models.DeploymentResult{
		Provider:    "router",
		EndpointURL: fmt.Sprintf("http://%s:%d", targetIP, l.RemotePort),
		Metadata:    map[string]string{"controller_ip": targetIP},
	}, nil
}

func (l *SSHRouterLauncher) copyBinary(client *ssh.Client) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	content, err := os.ReadFile(l.RouterBinaryPath)
	if err != nil {
		return fmt.Errorf("reading router binary: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return err
	}
	if err := session.Start("cat > /tmp/tuna-router && chmod +x /tmp/tuna-router"); err != nil {
		return err
	}
	if _, err := stdin.Write(content); err != nil {
		return err
	}
	stdin.Close()
	return session.Wait()
}

func (l *SSHRouterLauncher) runCommand(client *ssh.Client, cmd string) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}

// PushConfig POSTs the resolved serverless/spot endpoints to the
// router's /router/config endpoint.
func (l *SSHRouterLauncher) PushConfig(ctx context.Context, routerURL string, cfg RouterPushConfig) error {
	body, err := json.Marshal(map[string]string{
		"serverless_url":        cfg.ServerlessURL,
		"serverless_auth_token": cfg.ServerlessAuthToken,
		"spot_url":              cfg.SpotURL,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, routerURL+"/router/config", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting router config: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("router config push returned status %d", resp.StatusCode)
	}
	return nil
}

// Teardown kills the router process with a pkill over SSH on the VM
// recorded as controller_ip in the router metadata. With no recorded IP
// it does nothing, and it never tears down a cluster.
func (l *SSHRouterLauncher) Teardown(ctx context.Context, rec *models.DeploymentRecord) error {
	controllerIP := rec.RouterMetadata["controller_ip"]
	if controllerIP == "" {
		l.logger.Warn("no controller IP recorded; skipping router process teardown",
			zap.String("service_name", rec.ServiceName))
		return nil
	}

	cfg, err := l.clientConfig()
	if err != nil {
		return err
	}
	client, err := l.dial(fmt.Sprintf("%s:22", controllerIP), cfg)
	if err != nil {
		// Non-fatal: the controller cluster is likely being torn down by
		// the spot provider regardless.
		l.logger.Warn("router teardown: could not dial controller", zap.Error(err))
		return nil
	}
	defer client.Close()

	if err := l.runCommand(client, "pkill -f tuna-router || true"); err != nil {
		l.logger.Warn("router teardown: pkill failed", zap.Error(err))
	}
	return nil
}
