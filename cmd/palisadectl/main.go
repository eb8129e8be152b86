package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"palisade/internal/assign"
	"palisade/internal/jobpool"
	"palisade/internal/storage"
	"palisade/pkg/palisade"
)

const (
	artifactsDir = "artifacts"
	jobsDir      = "jobs"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "pbt":
		return runPBT(ctx, args[1:])
	case "attack":
		return runAttack(ctx, args[1:])
	case "train-attack":
		return runTrainAttack(ctx, args[1:])
	case "job":
		return runJob(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "checkpoints":
		return runCheckpoints(ctx, args[1:])
	case "outcomes":
		return runOutcomes(ctx, args[1:])
	case "assignment":
		return runAssignment(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: palisadectl <init|reset|pbt|attack|train-attack|job|runs|checkpoints|outcomes|assignment> [flags]", msg)
}

func openStore(kind, dbPath string) (storage.Store, error) {
	store, err := storage.NewStore(kind, dbPath)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	if err := store.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	resetter, ok := store.(storage.Resetter)
	if !ok {
		return fmt.Errorf("store backend %s does not support reset", *storeKind)
	}
	if err := resetter.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

// pbtFlags registers the shared PBT run flags on fs and returns a builder
// that assembles the request after parsing.
func pbtFlags(fs *flag.FlagSet) func() (palisade.PBTRequest, error) {
	configPath := fs.String("config", "", "optional run config JSON path")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	envKind := fs.String("env", "matrix", "environment kind: matrix|gridworld")
	scenario := fs.String("scenario", "rps", "environment scenario")
	mainAgent := fs.Int("main-agent", 0, "agent slot controlled by the main policy")
	numOpponents := fs.Int("num-opponents", 10, "initial opponent population size")
	experienceFactor := fs.Float64("experience-factor", 1.0, "opponent phase step scale relative to population size")
	growthInterval := fs.Int64("growth-interval", -1, "main-timestep interval between population growths (-1 disables)")
	maxOpponents := fs.Int("max-opponents", 0, "population growth cap (0 unbounded)")
	checkpointInterval := fs.Int64("checkpoint-interval", 10000, "main-timestep checkpoint cadence")
	evalInterval := fs.Int64("eval-interval", 1, "main-timestep eval snapshot cadence")
	maxTimesteps := fs.Int64("max-timesteps", 100000, "main-timestep training budget")
	limitPolicyCache := fs.Bool("limit-policy-cache", false, "bound worker-resident policies to the assigned share")
	workers := fs.Int("workers", 2, "rollout worker count")
	timestepsPerIter := fs.Int64("timesteps-per-iter", 0, "trainer timesteps per internal step (0 uses default)")
	episodesPerWorker := fs.Int("episodes-per-worker", 0, "episodes per worker per step (0 uses default)")
	horizon := fs.Int("horizon", 25, "episode termination horizon")
	seed := fs.Int64("seed", 1, "rng seed")
	baselines := fs.String("baselines", "", "comma-separated baseline artifact references")
	baselinePolicy := fs.String("baseline-policy", "", "policy name to load from each baseline artifact")
	artifactRoot := fs.String("artifact-root", artifactsDir, "checkpoint artifact root directory")

	return func() (palisade.PBTRequest, error) {
		req := palisade.PBTRequest{
			RunID:                 *runID,
			EnvKind:               *envKind,
			Scenario:              *scenario,
			MainAgentID:           *mainAgent,
			NumOpponents:          *numOpponents,
			ExperienceFactor:      *experienceFactor,
			GrowthInterval:        *growthInterval,
			MaxOpponents:          *maxOpponents,
			CheckpointInterval:    *checkpointInterval,
			EvalInterval:          *evalInterval,
			MaxTimesteps:          *maxTimesteps,
			LimitPolicyCache:      *limitPolicyCache,
			NumWorkers:            *workers,
			TimestepsPerIteration: *timestepsPerIter,
			EpisodesPerWorker:     *episodesPerWorker,
			Horizon:               *horizon,
			Seed:                  *seed,
			BaselinePolicy:        *baselinePolicy,
			ArtifactRoot:          *artifactRoot,
		}
		if *baselines != "" {
			req.BaselineArtifacts = strings.Split(*baselines, ",")
		}
		if *configPath == "" {
			return req, nil
		}
		fromConfig, err := loadPBTRequestFromConfig(*configPath)
		if err != nil {
			return palisade.PBTRequest{}, fmt.Errorf("load config: %w", err)
		}
		set := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
		// Config values replace flag defaults; flags the user passed
		// explicitly win over the config.
		mergePBTRequest(&req, fromConfig)
		overrideFromFlags(&req, set, map[string]any{
			"run-id":              *runID,
			"env":                 *envKind,
			"scenario":            *scenario,
			"main-agent":          *mainAgent,
			"num-opponents":       *numOpponents,
			"experience-factor":   *experienceFactor,
			"growth-interval":     *growthInterval,
			"max-opponents":       *maxOpponents,
			"checkpoint-interval": *checkpointInterval,
			"eval-interval":       *evalInterval,
			"max-timesteps":       *maxTimesteps,
			"limit-policy-cache":  *limitPolicyCache,
			"workers":             *workers,
			"timesteps-per-iter":  *timestepsPerIter,
			"episodes-per-worker": *episodesPerWorker,
			"horizon":             *horizon,
			"seed":                *seed,
			"baselines":           *baselines,
			"baseline-policy":     *baselinePolicy,
			"artifact-root":       *artifactRoot,
		})
		return req, nil
	}
}

func runPBT(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pbt", flag.ContinueOnError)
	build := pbtFlags(fs)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	req, err := build()
	if err != nil {
		return err
	}
	req.Store = store
	req.Log = logf

	summary, err := palisade.RunPBT(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("pbt completed run_id=%s main_policy=%s iterations=%d timesteps_main=%d timesteps_total=%d opponents=%d checkpoints=%d eval_generations=%d\n",
		summary.RunID,
		summary.MainPolicy,
		summary.Iterations,
		summary.TimestepsMain,
		summary.TimestepsTotal,
		summary.Opponents,
		summary.Checkpoints,
		summary.EvalGenerations,
	)
	return nil
}

func runAttack(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("attack", flag.ContinueOnError)
	envKind := fs.String("env", "matrix", "environment kind: matrix|gridworld")
	scenario := fs.String("scenario", "rps", "environment scenario")
	attackerAgent := fs.Int("attacker-agent", 1, "agent slot controlled by the attacker")
	victimPolicy := fs.String("victim-policy", "", "victim policy name inside the artifact")
	victimArtifact := fs.String("victim-artifact", "", "victim artifact reference (<run-id>:v<N> or <run-id>:latest)")
	iterations := fs.Int("iterations", 10, "attacker training iterations")
	workers := fs.Int("workers", 1, "rollout worker count")
	horizon := fs.Int("horizon", 25, "episode termination horizon")
	seed := fs.Int64("seed", 1, "rng seed")
	artifactRoot := fs.String("artifact-root", artifactsDir, "checkpoint artifact root directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *victimPolicy == "" {
		return errors.New("attack requires --victim-policy")
	}
	if *victimArtifact == "" {
		return errors.New("attack requires --victim-artifact")
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	summary, err := palisade.RunAttack(ctx, palisade.AttackRequest{
		EnvKind:         *envKind,
		Scenario:        *scenario,
		AttackerAgentID: *attackerAgent,
		VictimPolicy:    *victimPolicy,
		VictimArtifact:  *victimArtifact,
		Iterations:      *iterations,
		NumWorkers:      *workers,
		Horizon:         *horizon,
		Seed:            *seed,
		ArtifactRoot:    *artifactRoot,
		Store:           store,
		Log:             logf,
	})
	if err != nil {
		return err
	}
	fmt.Printf("attack completed run_id=%s attacker=%s victim=%s iterations=%d\n",
		summary.RunID,
		summary.AttackerPolicy,
		summary.VictimPolicy,
		summary.Iterations,
	)
	return nil
}

func runTrainAttack(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train-attack", flag.ContinueOnError)
	agents := fs.String("agents", "0", "comma-separated main-agent ids to train")
	numOpsList := fs.String("num-ops", "10", "comma-separated opponent counts to train")
	numTraining := fs.Int("num-training", 1, "training repetitions per (agent, opponent-count) pair")
	numAttacks := fs.Int("num-attacks", 0, "attack jobs per finished training run")
	numProcesses := fs.Int("num-processes", 2, "concurrent job process slots")
	workDir := fs.String("work-dir", jobsDir, "per-job result file directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	agentIDs, err := parseIntList(*agents)
	if err != nil {
		return fmt.Errorf("parse --agents: %w", err)
	}
	numOps, err := parseIntList(*numOpsList)
	if err != nil {
		return fmt.Errorf("parse --num-ops: %w", err)
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	// Trial flags forwarded to every child process so the children land on
	// the same store and artifact root as the parent.
	trialArgs := []string{
		"--store", *storeKind,
		"--db-path", *dbPath,
		"--artifact-root", artifactsDir,
	}
	trialArgs = append(trialArgs, fs.Args()...)

	stats, err := palisade.RunTrainAttack(ctx, palisade.TrainAttackRequest{
		Agents:       agentIDs,
		NumOpsList:   numOps,
		NumTraining:  *numTraining,
		NumAttacks:   *numAttacks,
		NumProcesses: *numProcesses,
		TrialArgs:    trialArgs,
		WorkDir:      *workDir,
		Store:        store,
		Log:          logf,
	})
	if err != nil {
		return err
	}
	fmt.Printf("train-attack completed started=%d succeeded=%d failed=%d killed=%d attacks=%d\n",
		stats.Started,
		stats.Succeeded,
		stats.Failed,
		stats.Killed,
		stats.Attacks,
	)
	return nil
}

// runJob is the child-process entry used by the exec runner. Training jobs
// write a one-shot result file before exiting; attack jobs only exit.
func runJob(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("job requires a kind: training|attack")
	}
	switch args[0] {
	case string(jobpool.KindTraining):
		return runJobTraining(ctx, args[1:])
	case string(jobpool.KindAttack):
		return runJobAttack(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown job kind: %s", args[0]))
	}
}

func runJobTraining(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("job training", flag.ContinueOnError)
	build := pbtFlags(fs)
	resultFile := fs.String("result-file", "", "one-shot result handoff path")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *resultFile == "" {
		return errors.New("job training requires --result-file")
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	req, err := build()
	if err != nil {
		return err
	}
	req.Store = store
	req.Log = logf

	summary, err := palisade.RunPBT(ctx, req)
	if err != nil {
		return err
	}
	return jobpool.WriteResult(*resultFile, jobpool.TrainingOutcome{
		RunID:      summary.RunID,
		MainPolicy: summary.MainPolicy,
	})
}

func runJobAttack(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("job attack", flag.ContinueOnError)
	envKind := fs.String("env", "matrix", "environment kind: matrix|gridworld")
	scenario := fs.String("scenario", "rps", "environment scenario")
	attackerAgent := fs.Int("attacker-agent", 1, "agent slot controlled by the attacker")
	victimPolicy := fs.String("victim-policy", "", "victim policy name inside the artifact")
	victimArtifact := fs.String("victim-artifact", "", "victim artifact reference")
	iterations := fs.Int("iterations", 10, "attacker training iterations")
	horizon := fs.Int("horizon", 25, "episode termination horizon")
	seed := fs.Int64("seed", 1, "rng seed")
	artifactRoot := fs.String("artifact-root", artifactsDir, "checkpoint artifact root directory")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	_, err = palisade.RunAttack(ctx, palisade.AttackRequest{
		EnvKind:         *envKind,
		Scenario:        *scenario,
		AttackerAgentID: *attackerAgent,
		VictimPolicy:    *victimPolicy,
		VictimArtifact:  *victimArtifact,
		Iterations:      *iterations,
		Horizon:         *horizon,
		Seed:            *seed,
		ArtifactRoot:    *artifactRoot,
		Store:           store,
		Log:             logf,
	})
	return err
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(runs) > *limit {
		runs = runs[:*limit]
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s mode=%s env=%s scenario=%s main_agent=%d opponents=%d timesteps_main=%d timesteps_total=%d iterations=%d checkpoints=%d eval_generations=%d finished_at=%s\n",
			r.RunID,
			r.Mode,
			r.EnvKind,
			r.Scenario,
			r.MainAgentID,
			r.Opponents,
			r.TimestepsMain,
			r.TimestepsTotal,
			r.Iterations,
			r.Checkpoints,
			r.EvalGenerations,
			r.FinishedAtUTC,
		)
	}
	return nil
}

func runCheckpoints(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkpoints", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	jsonOut := fs.Bool("json", false, "emit checkpoints as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("checkpoints requires --run-id")
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	checkpoints, err := store.ListCheckpoints(ctx, *runID)
	if err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		fmt.Println("no checkpoints found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(checkpoints)
	}

	for _, c := range checkpoints {
		fmt.Printf("ref=%s:v%d path=%s timestep_main=%d saved_at=%s\n",
			c.RunID,
			c.Version,
			c.Path,
			c.TimestepMain,
			c.SavedAtUTC,
		)
	}
	return nil
}

func runOutcomes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("outcomes", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit job outcomes as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "palisade.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	outcomes, err := store.ListJobOutcomes(ctx)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Println("no job outcomes found")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	for _, o := range outcomes {
		fmt.Printf("job_id=%s kind=%s status=%s run_id=%s main_policy=%s victim=%s error=%q finished_at=%s\n",
			o.JobID,
			o.Kind,
			o.Status,
			o.RunID,
			o.MainPolicy,
			o.VictimRef,
			o.Error,
			o.FinishedAtUTC,
		)
	}
	return nil
}

// runAssignment prints the opponent-to-worker distribution without running
// anything; handy for sizing a population against a worker count.
func runAssignment(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("assignment", flag.ContinueOnError)
	numOpponents := fs.Int("num-opponents", 10, "opponent population size")
	workers := fs.Int("workers", 2, "rollout worker count")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opponents := make([]string, *numOpponents)
	for i := range opponents {
		opponents[i] = "op_" + strconv.Itoa(i)
	}
	byWorker, err := assign.Distribute(opponents, *workers)
	if err != nil {
		return err
	}
	for idx, resident := range byWorker {
		if idx == 0 {
			fmt.Printf("worker=0 (coordinator) opponents=[]\n")
			continue
		}
		fmt.Printf("worker=%d opponents=%v\n", idx, resident)
	}
	return nil
}

func logf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("empty list")
	}
	return out, nil
}
