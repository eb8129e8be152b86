package jobpool

import (
	"context"
	"fmt"
	"time"

	"palisade/internal/model"
	"palisade/internal/storage"
)

const defaultPollInterval = 100 * time.Millisecond

type PoolConfig struct {
	Runner Runner
	// Store, when set, receives a terminal JobOutcome per job.
	Store storage.Store
	// NumProcesses bounds the concurrently occupied slots.
	NumProcesses int
	// NumAttacks is the attack fan-out per successfully finished training job.
	NumAttacks int
	// AttackTrialArgs are passed through to spawned attack jobs.
	AttackTrialArgs []string
	PollInterval    time.Duration
	Log             func(format string, args ...any)
}

// PoolStats summarizes a drained pool.
type PoolStats struct {
	Started   int
	Succeeded int
	Failed    int
	Killed    int
	Attacks   int
}

type slot struct {
	job    Job
	handle Handle
}

// Pool is the outer control loop: it polls a fixed set of slots, harvests
// completed jobs by exit status, fans out attack jobs for finished training
// runs and refills freed slots from the queue.
type Pool struct {
	cfg   PoolConfig
	log   func(format string, args ...any)
	queue []Job
	slots []*slot
	stats PoolStats
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.NumProcesses < 1 {
		return nil, fmt.Errorf("at least 1 process slot is required, got %d", cfg.NumProcesses)
	}
	if cfg.NumAttacks < 0 {
		return nil, fmt.Errorf("attacks per victim must be >= 0, got %d", cfg.NumAttacks)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	logFn := cfg.Log
	if logFn == nil {
		logFn = func(string, ...any) {}
	}
	return &Pool{
		cfg:   cfg,
		log:   logFn,
		slots: make([]*slot, cfg.NumProcesses),
	}, nil
}

// Enqueue appends jobs to the FIFO work queue.
func (p *Pool) Enqueue(jobs ...Job) {
	p.queue = append(p.queue, jobs...)
}

// QueueLen reports the number of queued, not yet started jobs.
func (p *Pool) QueueLen() int { return len(p.queue) }

// Run drains the queue. It returns when every slot is empty and no work is
// queued, or when the context is cancelled (running jobs are killed).
func (p *Pool) Run(ctx context.Context) (PoolStats, error) {
	for i := range p.slots {
		if err := p.fillSlot(ctx, i); err != nil {
			return p.stats, err
		}
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if p.drained() {
			return p.stats, nil
		}
		select {
		case <-ctx.Done():
			p.killAll()
			return p.stats, ctx.Err()
		case <-ticker.C:
		}
		if err := p.poll(ctx); err != nil {
			return p.stats, err
		}
	}
}

func (p *Pool) drained() bool {
	if len(p.queue) > 0 {
		return false
	}
	for _, s := range p.slots {
		if s != nil {
			return false
		}
	}
	return true
}

func (p *Pool) poll(ctx context.Context) error {
	for i, s := range p.slots {
		if s == nil {
			if err := p.fillSlot(ctx, i); err != nil {
				return err
			}
			continue
		}
		if !s.handle.Done() {
			continue
		}
		if err := p.harvest(ctx, i, s); err != nil {
			return err
		}
		if err := p.fillSlot(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// harvest inspects the finished job's exit status. Only a successful training
// job enqueues dependent attack jobs; a crashed child frees its slot, is not
// retried, and its attacks are never created.
func (p *Pool) harvest(ctx context.Context, i int, s *slot) error {
	status := s.handle.Status()
	outcome := model.JobOutcome{
		VersionedRecord: storage.Stamp(),
		JobID:           s.job.ID,
		Kind:            string(s.job.Kind),
		Status:          status,
		VictimRef:       s.job.VictimArtifact,
		FinishedAtUTC:   model.UTCNow(),
	}
	if err := s.handle.Err(); err != nil {
		outcome.Error = err.Error()
	}

	switch status {
	case model.JobStatusSucceeded:
		p.stats.Succeeded++
	case model.JobStatusKilled:
		p.stats.Killed++
	default:
		p.stats.Failed++
	}

	if s.job.Kind == KindTraining && status == model.JobStatusSucceeded {
		result, err := s.handle.Result()
		if err != nil {
			// The process exited cleanly but the result handoff is broken;
			// treat the job as failed and skip its attacks.
			p.stats.Succeeded--
			p.stats.Failed++
			outcome.Status = model.JobStatusFailed
			outcome.Error = err.Error()
			p.log("training job %s finished without a result: %v", s.job.ID, err)
		} else {
			outcome.RunID = result.RunID
			outcome.MainPolicy = result.MainPolicy
			p.log("training job %s finished run=%s policy=%s", s.job.ID, result.RunID, result.MainPolicy)
			p.enqueueAttacks(s.job, result)
		}
	}

	p.slots[i] = nil

	if p.cfg.Store != nil {
		if err := p.cfg.Store.SaveJobOutcome(ctx, outcome); err != nil {
			return fmt.Errorf("record job outcome: %w", err)
		}
	}
	return nil
}

func (p *Pool) enqueueAttacks(finished Job, result TrainingOutcome) {
	attacker := 1 - finished.MainAgentID
	for n := 0; n < p.cfg.NumAttacks; n++ {
		p.Enqueue(AttackJob(attacker, result.MainPolicy, result.RunID+":latest", p.cfg.AttackTrialArgs))
	}
	p.stats.Attacks += p.cfg.NumAttacks
}

func (p *Pool) fillSlot(ctx context.Context, i int) error {
	if len(p.queue) == 0 || p.slots[i] != nil {
		return nil
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	handle, err := p.cfg.Runner.Start(ctx, job)
	if err != nil {
		return fmt.Errorf("start job %s: %w", job.ID, err)
	}
	p.slots[i] = &slot{job: job, handle: handle}
	p.stats.Started++
	p.log("started %s job %s", job.Kind, job.ID)
	return nil
}

func (p *Pool) killAll() {
	for _, s := range p.slots {
		if s != nil {
			_ = s.handle.Kill()
		}
	}
}
