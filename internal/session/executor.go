package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robolab/trainerd/internal/config"
	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/logger"
)

const sessionPrefix = "train_job_"

// minPrefixLen is how many characters of the job id seed the session name.
const minPrefixLen = 8

// Sentinel is appended to the log file when the training process exits; the
// monitor extracts the exit code from it.
const Sentinel = "Job completed with exit code"

// Executor launches training processes inside detached sessions and never
// blocks on their completion.
type Executor struct {
	runner   Runner
	jobsDir  string
	workDir  string
	training config.TrainingConfig
	log      *logger.Logger
}

// NewExecutor creates an executor. It probes the session backend once and
// logs a warning when it is missing; jobs launched without it will be
// recorded in error state rather than failing the create call.
func NewExecutor(runner Runner, jobsCfg config.JobsConfig, trainingCfg config.TrainingConfig, log *logger.Logger) *Executor {
	if err := runner.Available(context.Background()); err != nil {
		log.WithError(err).Warn("session backend unavailable; job persistence may not work correctly")
	}
	return &Executor{
		runner:   runner,
		jobsDir:  jobsCfg.Dir,
		workDir:  jobsCfg.WorkDir,
		training: trainingCfg,
		log:      log,
	}
}

// LogPath returns the per-job log file path.
func (e *Executor) LogPath(jobID string) string {
	return filepath.Join(e.jobsDir, jobID+".log")
}

// SessionName derives the default session name from a prefix of the job id.
func SessionName(jobID string) string {
	return nameFor(jobID, minPrefixLen)
}

func nameFor(jobID string, n int) string {
	if len(jobID) > n {
		jobID = jobID[:n]
	}
	return sessionPrefix + jobID
}

// resolveName extends the job-id prefix until no live session claims the
// name, so two jobs sharing a prefix never collide.
func (e *Executor) resolveName(ctx context.Context, jobID string) (string, error) {
	for n := minPrefixLen; ; n++ {
		name := nameFor(jobID, n)
		alive, err := e.runner.Has(ctx, name)
		if err != nil {
			return "", err
		}
		if !alive {
			return name, nil
		}
		if n >= len(jobID) {
			return "", fmt.Errorf("session %s already exists for full job id", name)
		}
	}
}

// Kill terminates exactly the named session. Callers pass the session name
// recorded at launch; killing by job-id prefix could hit another job whose id
// shares the prefix.
func (e *Executor) Kill(ctx context.Context, sessionName string) error {
	alive, err := e.runner.Has(ctx, sessionName)
	if err != nil {
		return err
	}
	if !alive {
		return nil
	}
	return e.runner.Kill(ctx, sessionName)
}

// Has reports whether the named session is alive.
func (e *Executor) Has(ctx context.Context, name string) (bool, error) {
	return e.runner.Has(ctx, name)
}

// Launch starts the training command for jobID in a fresh detached session and
// returns the session name. The call returns as soon as the session exists.
func (e *Executor) Launch(ctx context.Context, jobID string, params domain.TrainingParams) (string, error) {
	name, err := e.resolveName(ctx, jobID)
	if err != nil {
		return "", err
	}

	logFile := e.LogPath(jobID)
	cmd := e.BuildCommand(params)

	// Redirect all output into the log file and append the completion
	// sentinel with the training command's own exit code. No pipeline here:
	// piping through tee would make $? the last pipeline member's status,
	// not the training command's.
	shell := fmt.Sprintf("cd %s && %s > %s 2>&1 ; echo \"%s $?\" >> %s",
		e.workDir, cmd, logFile, Sentinel, logFile)

	if err := e.runner.StartDetached(ctx, name, shell); err != nil {
		return "", err
	}

	e.log.WithFields(logger.Fields{
		logger.FieldJobID:   jobID,
		logger.FieldSession: name,
	}).Info("training session started")

	return name, nil
}

// BuildCommand renders the training command line, substituting configured
// defaults for unset parameters and appending additional args as --key=value.
func (e *Executor) BuildCommand(params domain.TrainingParams) string {
	policyPath := params.PolicyPath
	if policyPath == "" {
		policyPath = e.training.PolicyPath
	}
	batchSize := params.BatchSize
	if batchSize == 0 {
		batchSize = e.training.BatchSize
	}
	steps := params.Steps
	if steps == 0 {
		steps = e.training.Steps
	}
	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir = e.training.OutputDir
	}
	jobName := params.JobName
	if jobName == "" {
		jobName = e.training.JobName
	}
	device := params.PolicyDevice
	if device == "" {
		device = e.training.PolicyDevice
	}
	wandb := e.training.WandbEnable
	if params.WandbEnable != nil {
		wandb = *params.WandbEnable
	}

	args := []string{
		e.training.Script,
		fmt.Sprintf("--policy.path=%s", policyPath),
		fmt.Sprintf("--dataset.repo_id=%s", params.DatasetRepoID),
		fmt.Sprintf("--batch_size=%d", batchSize),
		fmt.Sprintf("--steps=%d", steps),
		fmt.Sprintf("--output_dir=%s", outputDir),
		fmt.Sprintf("--job_name=%s", jobName),
		fmt.Sprintf("--policy.device=%s", device),
		fmt.Sprintf("--wandb.enable=%t", wandb),
	}

	// Sorted for a deterministic command line.
	keys := make([]string, 0, len(params.AdditionalArgs))
	for k := range params.AdditionalArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("--%s=%v", k, params.AdditionalArgs[k]))
	}

	return strings.Join(args, " ")
}
