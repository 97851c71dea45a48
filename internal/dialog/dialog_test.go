package dialog_test

import (
	"testing"

	"github.com/avoronin/sprintbot/internal/dialog"
)

func TestStepQuestionNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		step dialog.Step
		want int
	}{
		{dialog.StepQuestion1, 1},
		{dialog.StepQuestion2, 2},
		{dialog.StepQuestion3, 3},
		{dialog.StepIdle, 0},
		{dialog.StepGenerating, 0},
		{dialog.StepAwaitingURL, 0},
	}

	for _, tt := range tests {
		if got := tt.step.QuestionNumber(); got != tt.want {
			t.Errorf("QuestionNumber(%q) = %d, want %d", tt.step, got, tt.want)
		}
	}
}

func TestNextQuestion(t *testing.T) {
	t.Parallel()

	if got := dialog.NextQuestion(1); got != dialog.StepQuestion2 {
		t.Errorf("NextQuestion(1) = %q, want %q", got, dialog.StepQuestion2)
	}
	if got := dialog.NextQuestion(2); got != dialog.StepQuestion3 {
		t.Errorf("NextQuestion(2) = %q, want %q", got, dialog.StepQuestion3)
	}
	if got := dialog.NextQuestion(3); got != dialog.StepGenerating {
		t.Errorf("NextQuestion(3) = %q, want %q", got, dialog.StepGenerating)
	}
}

func TestManagerLifecycle(t *testing.T) {
	t.Parallel()

	m := dialog.NewManager()
	const userID = int64(100)

	if st := m.Peek(userID); st != nil {
		t.Fatalf("Peek on empty manager = %+v, want nil", st)
	}

	m.Set(userID, &dialog.State{Step: dialog.StepQuestion1, Day: 3})
	m.SaveAnswer(userID, 1, "first")
	m.SetStep(userID, dialog.StepQuestion2)
	m.SaveAnswer(userID, 2, "second")

	got := m.Peek(userID)
	if got == nil {
		t.Fatal("Peek returned nil after Set")
	}
	if got.Day != 3 || got.Step != dialog.StepQuestion2 {
		t.Errorf("state = %+v, want day 3 at %q", got, dialog.StepQuestion2)
	}
	if got.Answers[0] != "first" || got.Answers[1] != "second" {
		t.Errorf("answers = %v, want [first second]", got.Answers)
	}

	m.Clear(userID)
	if st := m.Peek(userID); st != nil {
		t.Errorf("Peek after Clear = %+v, want nil", st)
	}
}

func TestSaveAnswerBounds(t *testing.T) {
	t.Parallel()

	m := dialog.NewManager()
	const userID = int64(7)

	// Out-of-range answers and answers for unknown users are dropped.
	m.SaveAnswer(userID, 1, "no state yet")
	if st := m.Peek(userID); st != nil {
		t.Fatalf("SaveAnswer created state %+v, want nil", st)
	}

	m.Set(userID, &dialog.State{Step: dialog.StepQuestion1})
	m.SaveAnswer(userID, 0, "low")
	m.SaveAnswer(userID, 4, "high")
	if got := m.Peek(userID).Answers; got != [3]string{} {
		t.Errorf("answers = %v, want all empty", got)
	}
}
