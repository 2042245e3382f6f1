package cli

import (
	"bytes"
	"strings"
	"testing"

	"live-quiz-service/internal/client"
	"live-quiz-service/internal/domain"
)

func TestParseAnswer(t *testing.T) {
	lo, hi := 0.0, 100.0
	choice := domain.RedactedQuestion{Kind: domain.KindMultipleChoice, Options: []string{"a", "b", "c", "d"}}
	multi := domain.RedactedQuestion{Kind: domain.KindMultiChoice, Options: []string{"a", "b", "c"}}
	slider := domain.RedactedQuestion{Kind: domain.KindSlider, Min: &lo, Max: &hi}

	got, err := parseAnswer(choice, "2")
	if err != nil || got.Index == nil || *got.Index != 1 {
		t.Fatalf("expected index 1, got %+v err=%v", got, err)
	}
	if _, err := parseAnswer(choice, "5"); err == nil {
		t.Fatalf("expected out of range option to fail")
	}

	got, err = parseAnswer(multi, "1, 3")
	if err != nil || len(got.Indices) != 2 || got.Indices[0] != 0 || got.Indices[1] != 2 {
		t.Fatalf("expected indices [0 2], got %+v err=%v", got, err)
	}

	got, err = parseAnswer(slider, "42.5")
	if err != nil || got.Number == nil || *got.Number != 42.5 {
		t.Fatalf("expected 42.5, got %+v err=%v", got, err)
	}
	if _, err := parseAnswer(slider, "lots"); err == nil {
		t.Fatalf("expected non-numeric slider answer to fail")
	}
}

func TestStatePrinterReportsTransitionsOnce(t *testing.T) {
	var out bytes.Buffer
	p := &statePrinter{out: &out}
	q := &domain.RedactedQuestion{Kind: domain.KindTrueFalse, Text: "Sky is blue", Options: []string{"True", "False"}, TimeLimitSeconds: 10}

	p.print(client.State{Phase: client.PhaseWaiting, Status: client.StatusConnected, Name: "Alice", QuestionIndex: -1})
	p.print(client.State{Phase: client.PhaseAnswering, Status: client.StatusConnected, QuestionIndex: 0, Total: 2, Question: q})
	p.print(client.State{Phase: client.PhaseAnswering, Status: client.StatusConnected, QuestionIndex: 0, Total: 2, Question: q, RemainingMs: 500})
	p.print(client.State{Phase: client.PhaseViewingResults, Status: client.StatusConnected, Finished: true,
		Standings: []domain.Standing{{Name: "Alice", Score: 900, Rank: 1}}})

	text := out.String()
	if strings.Count(text, "Question 1/2: Sky is blue") != 1 {
		t.Fatalf("expected question printed once:\n%s", text)
	}
	for _, want := range []string{"Joined as Alice", "  1) True", "Final standings:", "1. Alice 900"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}
