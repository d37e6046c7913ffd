package advisor

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	xerrors "FinMitra/internal/errors"
	"FinMitra/internal/events"
	"FinMitra/internal/knowledge"
	"FinMitra/internal/llm"
	"FinMitra/internal/observability/alerting"
	"FinMitra/internal/profile"
	"FinMitra/internal/sanitize"
	"FinMitra/internal/session"
	"FinMitra/internal/storage/mysql"
	"FinMitra/pkg/logger"
)

// PlanRequest carries everything one plan run needs.
type PlanRequest struct {
	Profile    profile.HouseholdProfile
	SessionKey string
	Message    string
}

// PlanResult is the committed outcome of a successful run.
type PlanResult struct {
	Plan       string
	SessionKey string
	History    []session.Turn
}

// Advisor coordinates the specialized reasoning steps and owns the commit
// point against the conversation store. It is the business core of the
// service.
type Advisor struct {
	llmClient    llm.Client
	sessions     session.Store
	archive      mysql.PlanRepository
	publisher    events.Publisher
	guidance     knowledge.Provider
	alerter      alerting.Dispatcher
	stepTimeout  time.Duration
	maxTipLength int
	modelName    string
	log          *slog.Logger
}

// Option configures optional Advisor collaborators.
type Option func(*Advisor)

// defaultMaxTipLength bounds tips when no limit is configured.
const defaultMaxTipLength = 280

// WithArchive persists every successful plan and tip.
func WithArchive(repo mysql.PlanRepository) Option {
	return func(a *Advisor) {
		a.archive = repo
	}
}

// WithPublisher emits an event after each successful generation.
func WithPublisher(pub events.Publisher) Option {
	return func(a *Advisor) {
		a.publisher = pub
	}
}

// WithKnowledgeProvider adds guidance snippets to the merge step.
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(a *Advisor) {
		a.guidance = provider
	}
}

// WithAlertDispatcher routes run failures to notification channels.
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(a *Advisor) {
		a.alerter = dispatcher
	}
}

// WithStepTimeout bounds each individual generation call.
func WithStepTimeout(timeout time.Duration) Option {
	return func(a *Advisor) {
		if timeout > 0 {
			a.stepTimeout = timeout
		}
	}
}

// WithMaxTipLength overrides the tip length bound.
func WithMaxTipLength(limit int) Option {
	return func(a *Advisor) {
		if limit > 0 {
			a.maxTipLength = limit
		}
	}
}

// WithModelName stamps archive records and events with the serving model.
func WithModelName(name string) Option {
	return func(a *Advisor) {
		a.modelName = name
	}
}

// New creates an Advisor over a generation client and a conversation store.
func New(llmClient llm.Client, sessions session.Store, opts ...Option) *Advisor {
	a := &Advisor{
		llmClient:    llmClient,
		sessions:     sessions,
		maxTipLength: defaultMaxTipLength,
		log:          logger.Named("advisor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// GeneratePlan runs the full pipeline for one request. The step order is
// fixed; each step sees the findings of every step before it. Nothing is
// committed to the conversation store until every step and the merge have
// succeeded, so a failed or cancelled run leaves the session exactly as it
// was.
func (a *Advisor) GeneratePlan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	if a.llmClient == nil || a.sessions == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "advisor is missing collaborators")
	}

	key, history, err := a.sessions.GetOrCreate(ctx, req.SessionKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "load conversation history")
	}

	rc := newRunContext(req.Profile, history, req.Message)
	if a.guidance != nil {
		rc.guidance = a.guidance.Query(guidanceTerms(req.Profile, req.Message))
	}

	for _, st := range pipelineSteps {
		finding, err := a.invokeStep(ctx, st, rc)
		if err != nil {
			a.reportFailure(ctx, "generate_plan", key, st.name, err)
			return nil, err
		}
		rc.addFinding(st.name, finding)
	}

	merged, err := a.invokeStep(ctx, mergeStep, rc)
	if err != nil {
		a.reportFailure(ctx, "generate_plan", key, mergeStep.name, err)
		return nil, err
	}

	plan := sanitize.Clean(merged)
	if plan == "" {
		plan = strings.TrimSpace(merged)
	}

	userTurn := strings.TrimSpace(req.Message)
	if userTurn == "" {
		userTurn = req.Profile.Summary()
	}
	historyAfter, err := a.sessions.Append(ctx, key, userTurn, plan)
	if err != nil {
		a.reportFailure(ctx, "generate_plan", key, "", err)
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "commit conversation turns")
	}

	a.recordOutcome(ctx, mysql.KindPlan, key, req.Profile.Summary(), plan)

	return &PlanResult{Plan: plan, SessionKey: key, History: historyAfter}, nil
}

// invokeStep runs one step with a single retry for transient upstream
// errors. Cancellation is never retried.
func (a *Advisor) invokeStep(ctx context.Context, st step, rc *runContext) (string, error) {
	prompt := st.prompt(rc)

	output, err := a.generate(ctx, st.system, prompt)
	if err != nil && ctx.Err() == nil {
		a.log.Warn("step failed, retrying once",
			slog.String("step", st.name), slog.Any("error", err))
		output, err = a.generate(ctx, st.system, prompt)
	}
	if err != nil {
		code := xerrors.CodeGeneration
		if stdErrors.Is(err, context.DeadlineExceeded) {
			code = xerrors.CodeTimeout
		}
		return "", xerrors.Wrap(code, err, "pipeline step failed",
			xerrors.WithMetadata("step", st.name))
	}
	return output, nil
}

// generate performs one bounded call against the generation capability.
func (a *Advisor) generate(ctx context.Context, system, prompt string) (string, error) {
	callCtx := ctx
	if a.stepTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.stepTimeout)
		defer cancel()
	}
	output, err := a.llmClient.Generate(callCtx, llm.Request{System: system, Prompt: prompt})
	if err != nil {
		return "", err
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return "", stdErrors.New("generation returned empty output")
	}
	return output, nil
}

// recordOutcome archives, publishes, and audit-logs a committed result.
// All three are post-commit and best-effort.
func (a *Advisor) recordOutcome(ctx context.Context, kind, sessionKey, summary, text string) {
	if a.archive != nil {
		record := mysql.PlanRecord{
			SessionKey: sessionKey,
			Kind:       kind,
			Summary:    summary,
			Text:       text,
			Model:      a.modelName,
			CreatedAt:  time.Now().Unix(),
		}
		if err := a.archive.Save(ctx, record); err != nil {
			a.log.Error("archive save failed", slog.Any("error", err))
		}
	}
	if a.publisher != nil {
		eventKind := events.KindPlanGenerated
		if kind == mysql.KindTip {
			eventKind = events.KindTipGenerated
		}
		if err := a.publisher.Publish(ctx, events.NewEvent(eventKind, sessionKey, a.modelName)); err != nil {
			a.log.Error("event publish failed", slog.Any("error", err))
		}
	}
	logger.Audit().Info("advice generated",
		slog.String("kind", kind),
		slog.String("session_key", sessionKey),
		slog.String("model", a.modelName),
		slog.Int("length", len(text)),
	)
}

func (a *Advisor) reportFailure(ctx context.Context, operation, sessionKey, stepName string, err error) {
	if a.alerter == nil || !xerrors.ShouldAlert(err) {
		return
	}
	event := alerting.Event{
		Code:       xerrors.CodeOf(err),
		Message:    err.Error(),
		Severity:   xerrors.SeverityOf(err),
		Operation:  operation,
		SessionKey: sessionKey,
		Step:       stepName,
		OccurredAt: time.Now(),
	}
	if coded, ok := xerrors.From(err); ok {
		event.Metadata = coded.Metadata()
	}
	if notifyErr := a.alerter.Notify(ctx, event); notifyErr != nil {
		a.log.Error("alert dispatch failed", slog.Any("error", notifyErr))
	}
}

// guidanceTerms collects the search terms for the knowledge provider from
// goal names, instrument preferences, and the free-text message.
func guidanceTerms(p profile.HouseholdProfile, message string) []string {
	terms := make([]string, 0, len(p.Goals)+len(p.InvestmentOptions)+1)
	for _, goal := range p.Goals {
		terms = append(terms, goal.Name)
	}
	terms = append(terms, p.InvestmentOptions...)
	if message = strings.TrimSpace(message); message != "" {
		terms = append(terms, message)
	}
	return terms
}
