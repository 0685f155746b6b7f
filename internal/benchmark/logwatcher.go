package benchmark

import (
	"bufio"
	"os/exec"
	"regexp"
	"sync"
	"time"
)

var (
	modelLoadPattern = regexp.MustCompile(`Loading model|Starting to load model|loading model weights`)
	readyPattern     = regexp.MustCompile(`Uvicorn running|Application startup complete|Started server process`)
)

// LogWatcher streams a provider's log command in the background and
// extracts the three cold-start phase timestamps as they appear.
type LogWatcher struct {
	mu     sync.Mutex
	phases LogPhases

	cmdArgs []string
	cmd     *exec.Cmd
	done    chan struct{}
}

// newLogWatcher builds a watcher around a log-tailing command; it does not
// start the command until Start is called.
func newLogWatcher(args []string) *LogWatcher {
	return &LogWatcher{cmdArgs: args}
}

// Start launches the log command and begins scanning its combined
// stdout/stderr in a background goroutine.
func (w *LogWatcher) Start() {
	w.done = make(chan struct{})
	cmd := exec.Command(w.cmdArgs[0], w.cmdArgs[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		close(w.done)
		return
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		close(w.done)
		return
	}
	w.cmd = cmd

	go func() {
		defer close(w.done)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			w.processLine(time.Now(), scanner.Text())
		}
		cmd.Wait()
	}()
}

func (w *LogWatcher) processLine(ts time.Time, line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phases.ContainerStart.IsZero() {
		w.phases.ContainerStart = ts
	}
	if w.phases.ModelLoadStart.IsZero() && modelLoadPattern.MatchString(line) {
		w.phases.ModelLoadStart = ts
	}
	if w.phases.Ready.IsZero() && readyPattern.MatchString(line) {
		w.phases.Ready = ts
	}
}

// Stop terminates the log command and waits (briefly) for the scan
// goroutine to exit.
func (w *LogWatcher) Stop() {
	if w.cmd != nil && w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	if w.done != nil {
		select {
		case <-w.done:
		case <-time.After(5 * time.Second):
		}
	}
}

// Phases returns a snapshot of the timestamps extracted so far.
func (w *LogWatcher) Phases() LogPhases {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phases
}

// CreateLogWatcher returns a log watcher for supported providers given the
// deployment metadata needed to address their log command, or nil if the
// provider has no verified log-tailing integration or the metadata it
// needs isn't available yet.
func CreateLogWatcher(provider string, metadata map[string]string) *LogWatcher {
	switch provider {
	case "modal":
		if appName := metadata["app_name"]; appName != "" {
			return newLogWatcher([]string{"modal", "app", "logs", appName})
		}
	case "cloudrun":
		svc, proj, region := metadata["service_name"], metadata["project_id"], metadata["region"]
		if svc != "" && proj != "" && region != "" {
			filter := `resource.type="cloud_run_revision" resource.labels.service_name="` + svc +
				`" resource.labels.location="` + region + `"`
			return newLogWatcher([]string{
				"gcloud", "logging", "tail", filter,
				"--project=" + proj, "--format=value(textPayload)",
			})
		}
	case "cerebrium":
		if svc := metadata["service_name"]; svc != "" {
			return newLogWatcher([]string{"cerebrium", "logs", svc, "--tail"})
		}
	case "baseten":
		modelID, deploymentID := metadata["model_id"], metadata["deployment_id"]
		if modelID != "" && deploymentID != "" {
			return newLogWatcher([]string{
				"truss", "model-logs",
				"--model-id", modelID, "--deployment-id", deploymentID, "--tail",
			})
		}
	}
	return nil
}
