// Package jobpool runs a bounded number of isolated training and attack jobs
// drawn from a FIFO queue. Each finished training job fans out a batch of
// attack jobs against its resulting artifact.
package jobpool

import (
	"context"

	"github.com/google/uuid"

	"palisade/internal/model"
)

type Kind string

const (
	KindTraining Kind = "training"
	KindAttack   Kind = "attack"
)

// Job is the tagged descriptor for one pool job. Training fields and attack
// fields are mutually exclusive by Kind.
type Job struct {
	ID   string
	Kind Kind

	// Training jobs.
	MainAgentID  int
	NumOpponents int

	// Attack jobs.
	AttackerAgentID int
	VictimPolicy    string
	VictimArtifact  string

	// TrialArgs are passed through verbatim to the child process.
	TrialArgs []string
}

// TrainingJob builds a training descriptor.
func TrainingJob(mainAgentID, numOpponents int, trialArgs []string) Job {
	return Job{
		ID:           uuid.NewString(),
		Kind:         KindTraining,
		MainAgentID:  mainAgentID,
		NumOpponents: numOpponents,
		TrialArgs:    append([]string(nil), trialArgs...),
	}
}

// AttackJob builds an attack descriptor against a finished training run's
// artifact.
func AttackJob(attackerAgentID int, victimPolicy, victimArtifact string, trialArgs []string) Job {
	return Job{
		ID:              uuid.NewString(),
		Kind:            KindAttack,
		AttackerAgentID: attackerAgentID,
		VictimPolicy:    victimPolicy,
		VictimArtifact:  victimArtifact,
		TrialArgs:       append([]string(nil), trialArgs...),
	}
}

// TrainingOutcome is the one-shot result handoff from a finished training
// process: the run identifier and the main policy name, which together name
// the victim for dependent attack jobs.
type TrainingOutcome struct {
	RunID      string `json:"run_id"`
	MainPolicy string `json:"main_policy"`
}

// Handle tracks one started job. Done is a non-blocking liveness check;
// Status and Result are only meaningful once Done reports true.
type Handle interface {
	Done() bool
	Status() model.JobStatus
	Err() error
	// Result returns the training outcome; attack jobs have none.
	Result() (TrainingOutcome, error)
	Kill() error
}

// Runner launches jobs into isolation. The production runner execs child OS
// processes; tests substitute an in-memory one.
type Runner interface {
	Start(ctx context.Context, job Job) (Handle, error)
}
