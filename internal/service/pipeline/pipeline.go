package pipeline

import (
	"context"
	"fmt"
	"strings"

	ps "github.com/mitchellh/go-ps"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/logger"
	"github.com/oshokin/clip2gif-packager/internal/platform"
	"github.com/oshokin/clip2gif-packager/internal/service/acquire"
	"github.com/oshokin/clip2gif-packager/internal/service/bundle"
	"github.com/oshokin/clip2gif-packager/internal/service/distribute"
	"github.com/oshokin/clip2gif-packager/internal/service/emubuild"
)

// Stage names in execution order.
const (
	StageResolve    = "resolve"
	StageAcquire    = "acquire"
	StageBuild      = "build"
	StageAssemble   = "assemble"
	StageDistribute = "distribute"
)

// Status classifies how a stage finished.
type Status int

const (
	// StatusOK means the stage finished cleanly.
	StatusOK Status = iota
	// StatusWarnings means the stage finished with non-fatal issues.
	StatusWarnings
	// StatusFailed means the stage aborted the run.
	StatusFailed
)

// String returns the operator-facing label.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarnings:
		return "warnings"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Stage    string
	Status   Status
	Warnings []string
	Err      error
}

// Summary is the full run report.
type Summary struct {
	Target   *platform.Target
	Stages   []StageResult
	Artifact *distribute.Artifact
}

// WarningCount totals the warnings across all stages.
func (s *Summary) WarningCount() int {
	count := 0
	for _, stage := range s.Stages {
		count += len(stage.Warnings)
	}

	return count
}

// Failed reports whether any stage aborted the run.
func (s *Summary) Failed() bool {
	for _, stage := range s.Stages {
		if stage.Status == StatusFailed {
			return true
		}
	}

	return false
}

// Options carries the resolved configuration for a run.
type Options struct {
	Config *config.Config
}

// Pipeline executes the packaging stages strictly in order: resolve the
// target, acquire helper binaries, run the build step under emulation
// when needed, assemble the package, produce the final artifact.
// A failed stage halts the run; warnings are carried into the summary.
type Pipeline struct {
	resolve   func(osName, requestedArch string) (*platform.Target, error)
	processes func() ([]ps.Process, error)
	buildStep func(ctx context.Context, target *platform.Target, build config.Build) error
	pack      func(ctx context.Context, cfg *config.Config, target *platform.Target,
		layout *bundle.Layout) (*distribute.Artifact, error)
}

// New returns a pipeline wired to the real stage implementations.
func New() *Pipeline {
	return &Pipeline{
		resolve:   platform.ResolveHost,
		processes: ps.Processes,
		buildStep: func(ctx context.Context, target *platform.Target, build config.Build) error {
			return emubuild.NewExecutor(target, build).RunBuildStep(ctx)
		},
		pack: func(ctx context.Context, cfg *config.Config, target *platform.Target,
			layout *bundle.Layout) (*distribute.Artifact, error) {
			return distribute.NewPackager(cfg, target).Package(ctx, layout)
		},
	}
}

// Run executes the full packaging pipeline and returns its summary. The
// returned error is nil when the run produced an artifact, even if stages
// reported warnings.
func (p *Pipeline) Run(ctx context.Context, opts *Options) (*Summary, error) {
	ctx = logger.WithName(ctx, "pipeline")
	cfg := opts.Config
	summary := &Summary{}

	target, err := p.resolveStage(ctx, cfg, summary)
	if err != nil {
		return summary, err
	}

	results, err := p.acquireStage(ctx, cfg, target, summary)
	if err != nil {
		return summary, err
	}

	if err = p.buildStage(ctx, cfg, target, summary); err != nil {
		return summary, err
	}

	layout, err := p.assembleStage(ctx, cfg, target, results, summary)
	if err != nil {
		return summary, err
	}

	if err = p.distributeStage(ctx, cfg, target, layout, summary); err != nil {
		return summary, err
	}

	p.logSummary(ctx, summary)

	return summary, nil
}

// Fetch runs the acquisition stage alone, pre-staging helper binaries for
// later packaging runs.
func (p *Pipeline) Fetch(ctx context.Context, opts *Options) (*Summary, error) {
	ctx = logger.WithName(ctx, "pipeline")
	cfg := opts.Config
	summary := &Summary{}

	target, err := p.resolveStage(ctx, cfg, summary)
	if err != nil {
		return summary, err
	}

	if _, err = p.acquireStage(ctx, cfg, target, summary); err != nil {
		return summary, err
	}

	p.logSummary(ctx, summary)

	return summary, nil
}

func (p *Pipeline) resolveStage(
	ctx context.Context,
	cfg *config.Config,
	summary *Summary,
) (*platform.Target, error) {
	target, err := p.resolve(cfg.TargetOS, cfg.TargetArch)
	if err != nil {
		p.record(ctx, summary, StageResolve, nil, err)

		return nil, fmt.Errorf("failed to resolve target platform: %w", err)
	}

	summary.Target = target

	if host := platform.DetectHost(ctx); host != nil {
		logger.InfoKV(ctx, "Host platform", "description", host.Description())
	}

	logger.InfoKV(ctx, "Resolved target",
		"os", target.OS,
		"arch", target.Arch,
		"emulation", target.NeedsEmulation())

	p.record(ctx, summary, StageResolve, nil, nil)

	return target, nil
}

func (p *Pipeline) acquireStage(
	ctx context.Context,
	cfg *config.Config,
	target *platform.Target,
	summary *Summary,
) ([]*acquire.Result, error) {
	results, err := acquire.NewManager(cfg, target).AcquireAll(ctx)
	if err != nil {
		p.record(ctx, summary, StageAcquire, nil, err)

		return nil, fmt.Errorf("acquisition failed: %w", err)
	}

	var warnings []string
	for _, result := range results {
		warnings = append(warnings, result.Warnings...)
	}

	p.record(ctx, summary, StageAcquire, warnings, nil)

	return results, nil
}

func (p *Pipeline) buildStage(
	ctx context.Context,
	cfg *config.Config,
	target *platform.Target,
	summary *Summary,
) error {
	if !target.NeedsEmulation() {
		logger.Debug(ctx, "Build step runs natively, no emulated rebuild needed")

		return nil
	}

	if err := p.buildStep(ctx, target, cfg.Build); err != nil {
		p.record(ctx, summary, StageBuild, nil, err)

		return err
	}

	p.record(ctx, summary, StageBuild, nil, nil)

	return nil
}

func (p *Pipeline) assembleStage(
	ctx context.Context,
	cfg *config.Config,
	target *platform.Target,
	results []*acquire.Result,
	summary *Summary,
) (*bundle.Layout, error) {
	warnings := p.warnRunningProcesses(ctx, cfg)

	layout, err := bundle.NewAssembler(cfg, target).Assemble(ctx, results)
	if err != nil {
		p.record(ctx, summary, StageAssemble, warnings, err)

		return nil, err
	}

	p.record(ctx, summary, StageAssemble, warnings, nil)

	return layout, nil
}

func (p *Pipeline) distributeStage(
	ctx context.Context,
	cfg *config.Config,
	target *platform.Target,
	layout *bundle.Layout,
	summary *Summary,
) error {
	artifact, err := p.pack(ctx, cfg, target, layout)
	if err != nil {
		p.record(ctx, summary, StageDistribute, nil, err)

		return err
	}

	summary.Artifact = artifact
	p.record(ctx, summary, StageDistribute, artifact.Warnings, nil)

	return nil
}

// warnRunningProcesses flags a still-running instance of the packaged
// application before its previous bundle is wiped. Process listing is
// best-effort; a listing failure is silently ignored.
func (p *Pipeline) warnRunningProcesses(ctx context.Context, cfg *config.Config) []string {
	procs, err := p.processes()
	if err != nil {
		return nil
	}

	for _, proc := range procs {
		name := strings.TrimSuffix(proc.Executable(), ".exe")
		if strings.EqualFold(name, cfg.App.Executable) {
			warning := fmt.Sprintf(
				"%s (pid %d) is running, close it if the packaged copy misbehaves",
				proc.Executable(), proc.Pid())
			logger.WarnKV(ctx, "Application process detected during packaging",
				"executable", proc.Executable(),
				"pid", proc.Pid())

			return []string{warning}
		}
	}

	return nil
}

func (p *Pipeline) record(ctx context.Context, summary *Summary, stage string, warnings []string, err error) {
	result := StageResult{Stage: stage, Warnings: warnings, Err: err}

	switch {
	case err != nil:
		result.Status = StatusFailed
		logger.ErrorKV(ctx, "Stage failed", "stage", stage, "error", err)
	case len(warnings) > 0:
		result.Status = StatusWarnings

		for _, warning := range warnings {
			logger.WarnKV(ctx, "Stage warning", "stage", stage, "warning", warning)
		}
	default:
		result.Status = StatusOK
	}

	summary.Stages = append(summary.Stages, result)
}

func (p *Pipeline) logSummary(ctx context.Context, summary *Summary) {
	for _, stage := range summary.Stages {
		logger.InfoKV(ctx, "Stage finished",
			"stage", stage.Stage,
			"status", stage.Status.String(),
			"warnings", len(stage.Warnings))
	}

	if summary.Artifact != nil {
		logger.InfoKV(ctx, "Packaging finished",
			"artifact", summary.Artifact.Path,
			"kind", summary.Artifact.Kind,
			"total_warnings", summary.WarningCount())
	}
}
