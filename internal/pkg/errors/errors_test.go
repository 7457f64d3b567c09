package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeInternal, "wrapped", underlying)

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is() = false, want true")
	}
}

func TestAppError_ExitCode(t *testing.T) {
	tests := []struct {
		code string
		exit int
	}{
		{CodeConfiguration, 2},
		{CodeValidation, 2},
		{CodeArtifactNotFound, 3},
		{CodeNotFound, 3},
		{CodeSchema, 4},
		{CodeUnavailable, 5},
		{CodeTimeout, 5},
		{CodeTraining, 1},
		{CodeInference, 1},
		{CodeInternal, 1},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := New(tt.code, "test").ExitCode(); got != tt.exit {
				t.Errorf("ExitCode() = %d, want %d", got, tt.exit)
			}
		})
	}
}

func TestExitCode_WrappedChain(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(errors.New("plain")); got != 1 {
		t.Errorf("ExitCode(plain) = %d, want 1", got)
	}

	wrapped := fmt.Errorf("loading corpus: %w", ConfigurationError("no documents"))
	if got := ExitCode(wrapped); got != 2 {
		t.Errorf("ExitCode(wrapped) = %d, want 2", got)
	}
	if !IsConfiguration(wrapped) {
		t.Error("IsConfiguration(wrapped) = false, want true")
	}
}

func TestAppError_WithDetails(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithDetails(map[string]string{"field": "name"})
	if got := err.Details["field"]; got != "name" {
		t.Errorf("Details[field] = %q, want %q", got, "name")
	}

	err = New(CodeValidation, "invalid").WithDetail("field", "ratio")
	if got := err.Details["field"]; got != "ratio" {
		t.Errorf("Details[field] = %q, want %q", got, "ratio")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	schema := SchemaError("Question 1 Evaluation")
	if !IsSchema(schema) {
		t.Fatal("IsSchema() = false, want true")
	}
	if got := schema.Details["column"]; got != "Question 1 Evaluation" {
		t.Errorf("Details[column] = %q", got)
	}

	missing := ArtifactNotFoundError("model_artifacts")
	if !IsArtifactNotFound(missing) {
		t.Fatal("IsArtifactNotFound() = false, want true")
	}
	if !strings.Contains(missing.Error(), "model_artifacts") {
		t.Errorf("Error() = %q, want artifact name", missing.Error())
	}

	run := NotFoundError("run", "abc")
	if !IsNotFound(run) {
		t.Fatal("IsNotFound() = false, want true")
	}
	if got := run.Details["run"]; got != "abc" {
		t.Errorf("Details[run] = %q, want %q", got, "abc")
	}

	if !IsValidation(ValidationError("bad")) {
		t.Error("IsValidation(ValidationError) = false, want true")
	}
	if IsValidation(errors.New("bad")) {
		t.Error("IsValidation(plain) = true, want false")
	}
	if got := TrainingError("epoch 3", errors.New("nan")).Code; got != CodeTraining {
		t.Errorf("TrainingError code = %s", got)
	}
	if got := InferenceError("row 2", nil).Code; got != CodeInference {
		t.Errorf("InferenceError code = %s", got)
	}
	if got := ServiceUnavailableError("kafka").Error(); !strings.Contains(got, "kafka is unavailable") {
		t.Errorf("ServiceUnavailableError() = %q", got)
	}
	if got := TimeoutError("").Error(); !strings.Contains(got, "operation timed out") {
		t.Errorf("TimeoutError() = %q", got)
	}
}
