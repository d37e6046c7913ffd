package errors

import (
	stdErrors "errors"
	"strings"
	"testing"
)

func TestNewFallsBackToRegisteredMessage(t *testing.T) {
	err := New(CodeValidation, "")
	if err.Message() != "profile validation failed" {
		t.Fatalf("message = %q", err.Message())
	}
	if err.Code() != CodeValidation {
		t.Fatalf("code = %s", err.Code())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeSessionFailure, cause, "load history")

	if !stdErrors.Is(err, cause) {
		t.Fatal("cause lost from chain")
	}
	if !strings.Contains(err.Error(), "SESSION_FAILURE") {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Error() missing cause: %q", err.Error())
	}
}

func TestCodeOfWalksWrappedChains(t *testing.T) {
	coded := New(CodeTimeout, "step timed out")
	wrapped := stdErrors.Join(stdErrors.New("outer"), coded)

	if got := CodeOf(wrapped); got != CodeTimeout {
		t.Fatalf("CodeOf = %s, want %s", got, CodeTimeout)
	}
	if got := CodeOf(stdErrors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %s, want %s", got, CodeUnknown)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("CodeOf(nil) = %s", got)
	}
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(CodeValidation, "bad field", WithMetadata("field", "age"))
	meta := err.Metadata()
	if meta["field"] != "age" {
		t.Fatalf("metadata = %v", meta)
	}
	meta["field"] = "tampered"
	if err.Metadata()["field"] != "age" {
		t.Fatal("metadata not isolated from callers")
	}
}

func TestSeverityOverride(t *testing.T) {
	plain := New(CodeGeneration, "")
	if plain.Severity() != SeverityWarning {
		t.Fatalf("default severity = %s", plain.Severity())
	}
	raised := New(CodeGeneration, "", WithSeverity(SeverityCritical))
	if raised.Severity() != SeverityCritical {
		t.Fatalf("overridden severity = %s", raised.Severity())
	}
}

func TestRegisterAddsCustomCode(t *testing.T) {
	const custom Code = "TEST_CUSTOM_CODE"
	Register(custom, Attributes{
		Message:  "custom failure",
		Severity: SeverityInfo,
		Alert:    true,
	})

	err := New(custom, "")
	if err.Message() != "custom failure" {
		t.Fatalf("message = %q", err.Message())
	}
	if !ShouldAlert(err) {
		t.Fatal("registered alert flag not honored")
	}
}

func TestUnregisteredCodeFallsBackToUnknown(t *testing.T) {
	attrs := AttributesOf(Code("NEVER_REGISTERED"))
	if attrs.Message != "unknown error" {
		t.Fatalf("attrs = %+v", attrs)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeTimeout, "first")
	b := New(CodeTimeout, "second")
	c := New(CodeGeneration, "third")

	if !stdErrors.Is(a, b) {
		t.Fatal("same-code errors should match")
	}
	if stdErrors.Is(a, c) {
		t.Fatal("different codes should not match")
	}
}

func TestRetryableAndAlertFlags(t *testing.T) {
	if New(CodeValidation, "").Retryable() {
		t.Fatal("validation errors are not retryable")
	}
	if !New(CodeGeneration, "").Retryable() {
		t.Fatal("generation errors are retryable")
	}
	if ShouldAlert(New(CodeValidation, "")) {
		t.Fatal("validation errors must not page")
	}
	if !ShouldAlert(New(CodeSessionFailure, "")) {
		t.Fatal("session failures must page")
	}
	if ShouldAlert(stdErrors.New("plain")) {
		t.Fatal("plain errors must not page")
	}
}
