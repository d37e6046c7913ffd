package advisor

import (
	"context"
	stdErrors "errors"
	"strings"
	"sync"
	"testing"

	xerrors "FinMitra/internal/errors"
	"FinMitra/internal/events"
	"FinMitra/internal/knowledge"
	"FinMitra/internal/llm"
	"FinMitra/internal/observability/alerting"
	"FinMitra/internal/profile"
	"FinMitra/internal/session"
	"FinMitra/internal/storage/mysql"
)

// stubLLM scripts responses per call index and records every request.
type stubLLM struct {
	mu    sync.Mutex
	calls []llm.Request
	reply func(call int, req llm.Request) (string, error)
}

func (s *stubLLM) Generate(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	call := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.reply(call, req)
}

func (s *stubLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type recordingArchive struct {
	mu      sync.Mutex
	records []mysql.PlanRecord
}

func (r *recordingArchive) Save(_ context.Context, record mysql.PlanRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *recordingArchive) ListLatest(_ context.Context, _ int) ([]mysql.PlanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mysql.PlanRecord(nil), r.records...), nil
}

func (r *recordingArchive) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (a *recordingAlerter) Notify(_ context.Context, event alerting.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func testProfile() profile.HouseholdProfile {
	p, err := profile.Normalize(profile.Raw{
		Age:               31,
		FamilyMembers:     4,
		Earners:           1,
		Dependents:        2,
		Occupation:        "accountant",
		GrossIncome:       90000,
		InHandIncome:      72000,
		InvestmentPercent: 20,
		InvestmentOptions: []string{"SIP", "PPF"},
		Expenses: []profile.RawExpense{
			{Name: "rent", Amount: 22000},
			{Name: "groceries", Amount: 12000},
		},
		Goals: []profile.RawGoal{
			{Name: "child education", Amount: 1500000, MonthsToAchieve: 120},
		},
	})
	if err != nil {
		panic(err)
	}
	return p
}

func TestGeneratePlanRunsStepsInOrder(t *testing.T) {
	client := &stubLLM{reply: func(call int, _ llm.Request) (string, error) {
		outputs := []string{
			"expense finding alpha",
			"investment finding bravo",
			"savings finding charlie",
			"lifestyle finding delta",
			"## Final Plan\nSave **more** every month.",
		}
		return outputs[call], nil
	}}
	store := session.NewMemoryStore(0)
	archive := &recordingArchive{}
	publisher := &recordingPublisher{}
	adv := New(client, store,
		WithArchive(archive),
		WithPublisher(publisher),
		WithModelName("test-model"),
	)

	result, err := adv.GeneratePlan(context.Background(), PlanRequest{
		Profile: testProfile(),
		Message: "How do I save for my child's education?",
	})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}

	if got := client.callCount(); got != 5 {
		t.Fatalf("llm calls = %d, want 5 (four steps plus merge)", got)
	}
	wantSystems := []string{"expense analyst", "investment expert", "savings auditor",
		"creative advisor", "family financial planner"}
	for i, want := range wantSystems {
		if !strings.Contains(client.calls[i].System, want) {
			t.Fatalf("call %d system = %q, want it to mention %q", i, client.calls[i].System, want)
		}
	}

	// Later steps must see earlier findings.
	if !strings.Contains(client.calls[1].Prompt, "expense finding alpha") {
		t.Fatal("investment step did not receive the expense finding")
	}
	if !strings.Contains(client.calls[2].Prompt, "investment finding bravo") {
		t.Fatal("savings audit did not receive the investment finding")
	}
	if !strings.Contains(client.calls[4].Prompt, "lifestyle finding delta") {
		t.Fatal("merge did not receive the lifestyle finding")
	}
	if !strings.Contains(client.calls[4].Prompt, "child's education") {
		t.Fatal("merge did not receive the user message")
	}

	if result.Plan != "Final Plan\nSave more every month." {
		t.Fatalf("plan not sanitized: %q", result.Plan)
	}
	if result.SessionKey == "" {
		t.Fatal("no session key returned")
	}
	if len(result.History) != 2 {
		t.Fatalf("history = %d turns, want 2", len(result.History))
	}
	if result.History[0].Text != "How do I save for my child's education?" {
		t.Fatalf("user turn = %q", result.History[0].Text)
	}
	if result.History[1].Text != result.Plan {
		t.Fatal("assistant turn differs from returned plan")
	}

	if len(archive.records) != 1 || archive.records[0].Kind != mysql.KindPlan {
		t.Fatalf("archive records = %+v, want one plan record", archive.records)
	}
	if archive.records[0].Model != "test-model" {
		t.Fatalf("archived model = %q", archive.records[0].Model)
	}
	if len(publisher.events) != 1 || publisher.events[0].Kind != events.KindPlanGenerated {
		t.Fatalf("published events = %+v, want one plan.generated", publisher.events)
	}
	if publisher.events[0].SessionKey != result.SessionKey {
		t.Fatal("event session key differs from result")
	}
}

func TestGeneratePlanUsesSummaryWhenMessageEmpty(t *testing.T) {
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return "some finding", nil
	}}
	adv := New(client, session.NewMemoryStore(0))

	result, err := adv.GeneratePlan(context.Background(), PlanRequest{Profile: testProfile()})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if !strings.HasPrefix(result.History[0].Text, "Profile: age 31") {
		t.Fatalf("user turn should be the profile summary, got %q", result.History[0].Text)
	}
}

func TestGeneratePlanContinuesKnownSession(t *testing.T) {
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return "finding", nil
	}}
	store := session.NewMemoryStore(0)
	adv := New(client, store)
	ctx := context.Background()

	first, err := adv.GeneratePlan(ctx, PlanRequest{Profile: testProfile(), Message: "first ask"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := adv.GeneratePlan(ctx, PlanRequest{
		Profile:    testProfile(),
		SessionKey: first.SessionKey,
		Message:    "follow-up ask",
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.SessionKey != first.SessionKey {
		t.Fatalf("session key changed: %s -> %s", first.SessionKey, second.SessionKey)
	}
	if len(second.History) != 4 {
		t.Fatalf("history = %d turns, want 4", len(second.History))
	}

	// The second run's prompts must include the first exchange.
	client.mu.Lock()
	secondRunFirstPrompt := client.calls[5].Prompt
	client.mu.Unlock()
	if !strings.Contains(secondRunFirstPrompt, "first ask") {
		t.Fatal("second run prompt missing prior history")
	}
}

func TestGeneratePlanRetriesStepOnceThenFails(t *testing.T) {
	upstream := stdErrors.New("model unavailable")
	client := &stubLLM{reply: func(call int, _ llm.Request) (string, error) {
		if call == 0 {
			return "expense finding", nil
		}
		return "", upstream
	}}
	store := session.NewMemoryStore(0)
	alerter := &recordingAlerter{}
	adv := New(client, store, WithAlertDispatcher(alerter))

	_, err := adv.GeneratePlan(context.Background(), PlanRequest{Profile: testProfile()})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := client.callCount(); got != 3 {
		t.Fatalf("llm calls = %d, want 3 (step one plus two attempts of step two)", got)
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeGeneration {
		t.Fatalf("code = %s, want %s", code, xerrors.CodeGeneration)
	}
	coded, _ := xerrors.From(err)
	if got := coded.Metadata()["step"]; got != "investment_advice" {
		t.Fatalf("step metadata = %q, want investment_advice", got)
	}
	if !stdErrors.Is(err, upstream) {
		t.Fatal("cause not preserved in the chain")
	}

	if len(alerter.events) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerter.events))
	}
	if alerter.events[0].Step != "investment_advice" {
		t.Fatalf("alert step = %q", alerter.events[0].Step)
	}
}

func TestGeneratePlanFailureCommitsNothing(t *testing.T) {
	client := &stubLLM{reply: func(call int, _ llm.Request) (string, error) {
		if call >= 6 {
			return "", stdErrors.New("model unavailable")
		}
		return "finding", nil
	}}
	store := session.NewMemoryStore(0)
	adv := New(client, store)
	ctx := context.Background()

	first, err := adv.GeneratePlan(ctx, PlanRequest{Profile: testProfile(), Message: "first"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	_, err = adv.GeneratePlan(ctx, PlanRequest{
		Profile:    testProfile(),
		SessionKey: first.SessionKey,
		Message:    "second",
	})
	if err == nil {
		t.Fatal("expected second run to fail")
	}

	if got := store.Len(first.SessionKey); got != 2 {
		t.Fatalf("failed run changed history: %d turns, want 2", got)
	}
}

func TestGeneratePlanRecoversOnRetry(t *testing.T) {
	failed := false
	client := &stubLLM{reply: func(call int, _ llm.Request) (string, error) {
		if call == 2 && !failed {
			failed = true
			return "", stdErrors.New("transient blip")
		}
		return "finding", nil
	}}
	adv := New(client, session.NewMemoryStore(0))

	result, err := adv.GeneratePlan(context.Background(), PlanRequest{Profile: testProfile()})
	if err != nil {
		t.Fatalf("GeneratePlan after transient failure: %v", err)
	}
	if result.Plan == "" {
		t.Fatal("empty plan")
	}
	if got := client.callCount(); got != 6 {
		t.Fatalf("llm calls = %d, want 6 (one retried step)", got)
	}
}

func TestGeneratePlanCancellationIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &stubLLM{reply: func(call int, _ llm.Request) (string, error) {
		if call == 1 {
			cancel()
			return "", ctx.Err()
		}
		return "finding", nil
	}}
	store := session.NewMemoryStore(0)
	adv := New(client, store)

	_, err := adv.GeneratePlan(ctx, PlanRequest{Profile: testProfile()})
	if err == nil {
		t.Fatal("expected failure after cancellation")
	}
	if got := client.callCount(); got != 2 {
		t.Fatalf("llm calls = %d, want 2 (cancelled call must not retry)", got)
	}
}

func TestGeneratePlanMapsDeadlineToTimeout(t *testing.T) {
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return "", context.DeadlineExceeded
	}}
	adv := New(client, session.NewMemoryStore(0))

	_, err := adv.GeneratePlan(context.Background(), PlanRequest{Profile: testProfile()})
	if code := xerrors.CodeOf(err); code != xerrors.CodeTimeout {
		t.Fatalf("code = %s, want %s", code, xerrors.CodeTimeout)
	}
}

func TestGeneratePlanIncludesGuidance(t *testing.T) {
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return "finding", nil
	}}
	provider := knowledge.NewStaticProvider([]knowledge.Snippet{
		{Title: "SIP basics", Content: "Rupee cost averaging smooths volatility.", Keywords: []string{"sip"}},
	}, 3)
	adv := New(client, session.NewMemoryStore(0), WithKnowledgeProvider(provider))

	_, err := adv.GeneratePlan(context.Background(), PlanRequest{Profile: testProfile()})
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}

	client.mu.Lock()
	mergePrompt := client.calls[4].Prompt
	client.mu.Unlock()
	if !strings.Contains(mergePrompt, "Rupee cost averaging") {
		t.Fatal("merge prompt missing guidance snippet")
	}
}

func TestGeneratePlanWithoutCollaborators(t *testing.T) {
	adv := New(nil, nil)
	_, err := adv.GeneratePlan(context.Background(), PlanRequest{Profile: testProfile()})
	if code := xerrors.CodeOf(err); code != xerrors.CodeInitializationFailure {
		t.Fatalf("code = %s, want %s", code, xerrors.CodeInitializationFailure)
	}
}
