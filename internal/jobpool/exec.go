package jobpool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"palisade/internal/model"
)

// ExecRunner launches each job as an isolated OS process running this
// binary's "job" subcommand. The only cross-process communication is a
// one-shot result file the training child writes before exiting.
type ExecRunner struct {
	// Binary is the executable to launch; defaults to the current binary.
	Binary string
	// WorkDir holds the per-job result files.
	WorkDir string
}

func NewExecRunner(workDir string) (*ExecRunner, error) {
	if workDir == "" {
		return nil, fmt.Errorf("work directory is required")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ExecRunner{Binary: binary, WorkDir: workDir}, nil
}

// buildArgs assembles the child-process argument list. Only training children
// receive a result file; attack jobs report nothing back to the pool.
func buildArgs(job Job, resultPath string) ([]string, error) {
	args := []string{"job", string(job.Kind)}
	switch job.Kind {
	case KindTraining:
		args = append(args,
			"--result-file", resultPath,
			"--main-agent", strconv.Itoa(job.MainAgentID),
			"--num-opponents", strconv.Itoa(job.NumOpponents),
		)
	case KindAttack:
		args = append(args,
			"--attacker-agent", strconv.Itoa(job.AttackerAgentID),
			"--victim-policy", job.VictimPolicy,
			"--victim-artifact", job.VictimArtifact,
		)
	default:
		return nil, fmt.Errorf("unsupported job kind: %s", job.Kind)
	}
	return append(args, job.TrialArgs...), nil
}

func (r *ExecRunner) Start(ctx context.Context, job Job) (Handle, error) {
	resultPath := filepath.Join(r.WorkDir, job.ID+".result.json")

	args, err := buildArgs(job, resultPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s job: %w", job.Kind, err)
	}

	h := &execHandle{cmd: cmd, resultPath: resultPath}
	go h.wait()
	return h, nil
}

type execHandle struct {
	cmd        *exec.Cmd
	resultPath string

	mu      sync.Mutex
	done    bool
	killed  bool
	waitErr error
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.waitErr = err
	h.done = true
	h.mu.Unlock()
}

func (h *execHandle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

func (h *execHandle) Status() model.JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case !h.done:
		return ""
	case h.killed:
		return model.JobStatusKilled
	case h.waitErr != nil:
		return model.JobStatusFailed
	default:
		return model.JobStatusSucceeded
	}
}

func (h *execHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.waitErr
}

func (h *execHandle) Result() (TrainingOutcome, error) {
	data, err := os.ReadFile(h.resultPath)
	if err != nil {
		return TrainingOutcome{}, fmt.Errorf("read job result: %w", err)
	}
	var outcome TrainingOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return TrainingOutcome{}, fmt.Errorf("decode job result: %w", err)
	}
	if outcome.RunID == "" || outcome.MainPolicy == "" {
		return TrainingOutcome{}, fmt.Errorf("job result is incomplete: %+v", outcome)
	}
	return outcome, nil
}

func (h *execHandle) Kill() error {
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// WriteResult is the child-process side of the one-shot handoff.
func WriteResult(path string, outcome TrainingOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
