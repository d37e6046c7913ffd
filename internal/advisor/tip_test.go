package advisor

import (
	"context"
	stdErrors "errors"
	"strings"
	"testing"

	xerrors "FinMitra/internal/errors"
	"FinMitra/internal/llm"
	"FinMitra/internal/session"
	"FinMitra/internal/storage/mysql"
)

func TestGenerateTipReturnsSanitizedTip(t *testing.T) {
	client := &stubLLM{reply: func(_ int, req llm.Request) (string, error) {
		if !strings.Contains(req.Prompt, "single, actionable tip") {
			t.Errorf("tip prompt missing instruction: %q", req.Prompt)
		}
		return "**Automate** a SIP on salary day so investing happens before spending.", nil
	}}
	archive := &recordingArchive{}
	adv := New(client, session.NewMemoryStore(0), WithArchive(archive))

	tip, err := adv.GenerateTip(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("GenerateTip: %v", err)
	}
	if tip != "Automate a SIP on salary day so investing happens before spending." {
		t.Fatalf("tip = %q", tip)
	}
	if got := client.callCount(); got != 1 {
		t.Fatalf("llm calls = %d, want 1", got)
	}
	if len(archive.records) != 1 || archive.records[0].Kind != mysql.KindTip {
		t.Fatalf("archive records = %+v, want one tip record", archive.records)
	}
	if archive.records[0].SessionKey != "" {
		t.Fatal("tips must not carry a session key")
	}
}

func TestGenerateTipPromptCarriesProfile(t *testing.T) {
	var prompt string
	client := &stubLLM{reply: func(_ int, req llm.Request) (string, error) {
		prompt = req.Prompt
		return "Track every expense for one month.", nil
	}}
	adv := New(client, session.NewMemoryStore(0))

	if _, err := adv.GenerateTip(context.Background(), testProfile()); err != nil {
		t.Fatalf("GenerateTip: %v", err)
	}
	for _, want := range []string{"Age: 31", "accountant", "rent", "child education", "SIP, PPF"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("tip prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateTipRetriesOversizedOnce(t *testing.T) {
	long := strings.Repeat("save money ", 40)
	client := &stubLLM{reply: func(call int, _ llm.Request) (string, error) {
		if call == 0 {
			return long, nil
		}
		return "Move idle balance into a sweep-in FD.", nil
	}}
	adv := New(client, session.NewMemoryStore(0))

	tip, err := adv.GenerateTip(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("GenerateTip: %v", err)
	}
	if got := client.callCount(); got != 2 {
		t.Fatalf("llm calls = %d, want 2", got)
	}
	if len([]rune(tip)) > defaultMaxTipLength {
		t.Fatalf("tip length %d exceeds %d", len([]rune(tip)), defaultMaxTipLength)
	}
}

func TestGenerateTipFailsWhenAlwaysOversized(t *testing.T) {
	long := strings.Repeat("spend less, save more. ", 30)
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return long, nil
	}}
	adv := New(client, session.NewMemoryStore(0))

	_, err := adv.GenerateTip(context.Background(), testProfile())
	if err == nil {
		t.Fatal("expected failure for oversized tips")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeGeneration {
		t.Fatalf("code = %s, want %s", code, xerrors.CodeGeneration)
	}
	if got := client.callCount(); got != 2 {
		t.Fatalf("llm calls = %d, want 2", got)
	}
}

func TestGenerateTipHonorsConfiguredBound(t *testing.T) {
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return "This tip is noticeably longer than the tiny configured bound.", nil
	}}
	adv := New(client, session.NewMemoryStore(0), WithMaxTipLength(20))

	if _, err := adv.GenerateTip(context.Background(), testProfile()); err == nil {
		t.Fatal("expected failure under the tighter bound")
	}
}

func TestGenerateTipEmptyAfterSanitizeFails(t *testing.T) {
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return "```\n```", nil
	}}
	adv := New(client, session.NewMemoryStore(0))

	_, err := adv.GenerateTip(context.Background(), testProfile())
	if err == nil {
		t.Fatal("expected failure for markup-only output")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeGeneration {
		t.Fatalf("code = %s, want %s", code, xerrors.CodeGeneration)
	}
}

func TestGenerateTipUpstreamErrorWraps(t *testing.T) {
	upstream := stdErrors.New("model unavailable")
	client := &stubLLM{reply: func(int, llm.Request) (string, error) {
		return "", upstream
	}}
	adv := New(client, session.NewMemoryStore(0))

	_, err := adv.GenerateTip(context.Background(), testProfile())
	if !stdErrors.Is(err, upstream) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeGeneration {
		t.Fatalf("code = %s, want %s", code, xerrors.CodeGeneration)
	}
}
