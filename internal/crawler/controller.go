package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/civicgraph/harvester/internal/metrics"
)

// RateWaiter blocks until the target's domain may be fetched again.
type RateWaiter interface {
	Wait(ctx context.Context, url string) error
}

// RunConfig captures everything one crawl run needs beyond its collaborators.
type RunConfig struct {
	RunID          string
	Seeds          []string
	Topic          TopicContext
	Budget         StopBudget
	FetchTimeout   time.Duration
	ReflectTimeout time.Duration
	MaxDepth       int
	AllowDomains   []string
	DenyDomains    []string
}

// Controller orchestrates one crawl run end to end. The loop is sequential:
// each step's fetch and reflect calls are blocking, latency-bound operations,
// and the frontier, dedup index, and evaluator are mutated only by the one
// goroutine running Run. Independent runs execute as independent Controller
// instances; the record store is the only shared resource between them.
type Controller struct {
	fetcher   Fetcher
	reflector Reflector
	store     RecordStore
	limiter   RateWaiter
	hasher    Hasher
	clock     Clock
	logger    *zap.Logger

	cfg      RunConfig
	frontier *Frontier
	index    *DedupIndex
	eval     *StopEvaluator
	admit    admission
}

// NewController wires a run. The budget is validated here so a run that could
// never terminate is refused before it starts.
func NewController(
	fetcher Fetcher,
	reflector Reflector,
	store RecordStore,
	limiter RateWaiter,
	hasher Hasher,
	clock Clock,
	cfg RunConfig,
	logger *zap.Logger,
) (*Controller, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: fetch collaborator is required", ErrFatalPrecondition)
	}
	if reflector == nil {
		return nil, fmt.Errorf("%w: reflect collaborator is required", ErrFatalPrecondition)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: record store is required", ErrFatalPrecondition)
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatalPrecondition, err)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.ReflectTimeout <= 0 {
		cfg.ReflectTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:   fetcher,
		reflector: reflector,
		store:     store,
		limiter:   limiter,
		hasher:    hasher,
		clock:     clock,
		logger:    logger.With(zap.String("run_id", cfg.RunID), zap.String("topic", cfg.Topic.ID)),
		cfg:       cfg,
		frontier:  NewFrontier(),
		index:     NewDedupIndex(hasher, clock),
		admit:     newAdmission(cfg.AllowDomains, cfg.DenyDomains),
	}, nil
}

// Run executes the crawl loop until a stop condition fires, the frontier
// drains, or the context is canceled. Reaching a stop condition is the
// expected terminal outcome, not an error; only fatal preconditions return a
// non-nil error, and even then the report carries the reason.
func (c *Controller) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{
		RunID:     c.cfg.RunID,
		Topic:     c.cfg.Topic.ID,
		StartedAt: c.clock.Now(),
	}

	if err := c.seed(&report); err != nil {
		report.StopReason = ReasonFatalPrecondition
		report.FinishedAt = c.clock.Now()
		metrics.ObserveRun(string(report.StopReason))
		return report, err
	}

	c.eval = NewStopEvaluator(c.cfg.Budget, c.clock)

	for {
		if ctx.Err() != nil {
			report.StopReason = ReasonCanceled
			break
		}
		if c.eval.ShouldStop() {
			report.StopReason = c.eval.Reason()
			break
		}
		target, ok := c.frontier.Next()
		if !ok {
			report.StopReason = ReasonFrontierExhausted
			break
		}
		c.step(ctx, target, &report)
	}

	report.FinishedAt = c.clock.Now()
	metrics.ObserveRun(string(report.StopReason))
	c.logger.Info("run finished",
		zap.String("reason", string(report.StopReason)),
		zap.Int("pages_visited", report.PagesVisited),
		zap.Int("pages_failed", report.PagesFailed),
		zap.Int("targets_skipped", report.TargetsSkipped),
		zap.Int("orgs_created", report.OrgsCreated),
		zap.Int("projects_created", report.ProjectsCreated),
	)
	return report, nil
}

// seed canonicalizes and admits the configured seed URLs. A run with no
// usable seed aborts before the first step.
func (c *Controller) seed(report *RunReport) error {
	if len(c.cfg.Seeds) == 0 {
		return fmt.Errorf("%w: no seed URLs", ErrFatalPrecondition)
	}
	admitted := 0
	for _, raw := range c.cfg.Seeds {
		canonical, err := Canonicalize(raw)
		if err != nil {
			c.logger.Warn("seed rejected", zap.String("url", raw), zap.Error(err))
			report.TargetsSkipped++
			continue
		}
		if !c.index.ShouldVisit(canonical) {
			continue
		}
		c.index.MarkQueued(canonical)
		c.frontier.Push(CrawlTarget{URL: canonical, Depth: 0})
		admitted++
	}
	if admitted == 0 {
		return fmt.Errorf("%w: no admissible seed URLs", ErrFatalPrecondition)
	}
	return nil
}

// step performs one frontier pull: fetch, reflect, link admission, upserts,
// and finally feeds the information signal into the evaluator. All failures
// inside a step degrade and continue.
func (c *Controller) step(ctx context.Context, target CrawlTarget, report *RunReport) {
	c.waitRate(ctx, target.URL)

	snap, err := c.fetch(ctx, target.URL)
	if err != nil {
		c.index.MarkVisited(target.URL, VisitFailure)
		report.PagesFailed++
		metrics.ObservePage(target.URL, "failure")
		c.logger.Warn("fetch failed", zap.String("url", target.URL), zap.Error(err))
		c.eval.Record(0)
		return
	}

	c.index.MarkVisited(target.URL, VisitSuccess)
	report.PagesVisited++
	metrics.ObservePage(target.URL, "success")

	result, reflectErr := c.reflect(ctx, snap)
	if reflectErr != nil {
		report.ReflectFailed++
		c.logger.Warn("reflect failed", zap.String("url", snap.URL), zap.Error(reflectErr))
	}

	accepted := c.admitLinks(target, snap, result, report)
	newFacts := c.upsertFacts(ctx, result, report)

	c.eval.Record(newFacts + accepted)
	c.logger.Debug("step complete",
		zap.String("url", target.URL),
		zap.Int("depth", target.Depth),
		zap.Int("accepted_links", accepted),
		zap.Int("new_facts", newFacts),
	)
}

func (c *Controller) waitRate(ctx context.Context, url string) {
	if c.limiter == nil {
		return
	}
	if err := c.limiter.Wait(ctx, url); err != nil && ctx.Err() == nil {
		c.logger.Debug("rate limit wait interrupted", zap.String("url", url), zap.Error(err))
	}
}

// fetch applies the per-call timeout and retries a failed fetch exactly once,
// immediately. Failures are never retried across the run.
func (c *Controller) fetch(ctx context.Context, url string) (PageSnapshot, error) {
	snap, err := c.fetchOnce(ctx, url)
	if err == nil || ctx.Err() != nil {
		return snap, err
	}
	return c.fetchOnce(ctx, url)
}

func (c *Controller) fetchOnce(ctx context.Context, url string) (PageSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()
	return c.fetcher.Fetch(callCtx, url)
}

// reflect degrades any failure or malformed result to an empty extraction.
// The error is returned only so the caller can count the skipped step.
func (c *Controller) reflect(ctx context.Context, snap PageSnapshot) (ExtractionResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.ReflectTimeout)
	defer cancel()
	result, err := c.reflector.Reflect(callCtx, snap, c.cfg.Topic)
	if err != nil {
		return ExtractionResult{}, err
	}
	return result, nil
}

// admitLinks pushes candidate next URLs (page links plus reflector
// suggestions) through canonicalization, depth and domain policy, and the
// dedup index. Returns how many targets were newly accepted.
func (c *Controller) admitLinks(target CrawlTarget, snap PageSnapshot, result ExtractionResult, report *RunReport) int {
	depth := target.Depth + 1
	if c.cfg.MaxDepth > 0 && depth > c.cfg.MaxDepth {
		return 0
	}

	accepted := 0
	candidates := make([]string, 0, len(snap.Links)+len(result.NextURLs))
	candidates = append(candidates, snap.Links...)
	candidates = append(candidates, result.NextURLs...)

	for _, raw := range candidates {
		canonical, err := Canonicalize(raw)
		if err != nil {
			report.TargetsSkipped++
			continue
		}
		if !c.admit.Admit(HostOf(canonical)) {
			report.TargetsSkipped++
			continue
		}
		if !c.index.ShouldVisit(canonical) {
			continue
		}
		c.index.MarkQueued(canonical)
		c.frontier.Push(CrawlTarget{URL: canonical, Depth: depth, Origin: target.URL})
		accepted++
	}
	report.LinksDiscovered += accepted
	return accepted
}

// upsertFacts feeds extracted facts to the record store. Store errors degrade
// the step; a rejected fact is logged and skipped, never fatal.
func (c *Controller) upsertFacts(ctx context.Context, result ExtractionResult, report *RunReport) int {
	newInfo := 0
	metrics.ObserveFacts("organization", len(result.Organizations))
	metrics.ObserveFacts("project", len(result.Projects))

	for _, fact := range result.Organizations {
		res, err := c.store.UpsertOrganization(ctx, fact)
		if err != nil {
			c.logger.Warn("organization upsert failed", zap.String("name", fact.Name), zap.Error(err))
			continue
		}
		switch {
		case res.Created:
			report.OrgsCreated++
			metrics.ObserveRecord("organization", "created")
			newInfo++
		case res.Changed:
			report.OrgsUpdated++
			metrics.ObserveRecord("organization", "updated")
			newInfo++
		}
	}

	for _, fact := range result.Projects {
		res, err := c.store.UpsertProject(ctx, fact)
		if err != nil {
			c.logger.Warn("project upsert failed", zap.String("name", fact.Name), zap.Error(err))
			continue
		}
		switch {
		case res.Created:
			report.ProjectsCreated++
			metrics.ObserveRecord("project", "created")
			newInfo++
		case res.Changed:
			report.ProjectsUpdated++
			metrics.ObserveRecord("project", "updated")
			newInfo++
		}
	}
	return newInfo
}
