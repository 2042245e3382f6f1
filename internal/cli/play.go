package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"live-quiz-service/internal/client"
	"live-quiz-service/internal/domain"

	"github.com/spf13/cobra"
)

// NewPlayCmd joins a live session from the terminal.
func NewPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a live quiz as a player from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			code := v.GetString("code")
			name := v.GetString("name")
			if code == "" || name == "" {
				return fmt.Errorf("--code and --name are required")
			}
			return runPlayer(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), client.Options{
				Code:   code,
				Name:   name,
				PeerID: v.GetString("peer-id"),
				Dialer: client.WSDialer{BaseURL: v.GetString("server")},
			})
		},
	}
	cmd.Flags().String("server", "http://localhost:8080", "quiz server base URL (env: QUIZ_SERVER)")
	cmd.Flags().String("code", "", "join code shown by the host (env: QUIZ_CODE)")
	cmd.Flags().String("name", "", "display name (env: QUIZ_NAME)")
	cmd.Flags().String("peer-id", "", "resume as an existing player (env: QUIZ_PEER_ID)")
	return cmd
}

func runPlayer(ctx context.Context, in io.Reader, out io.Writer, opts client.Options) error {
	printer := &statePrinter{out: out}
	opts.OnState = printer.print
	player := client.NewPlayer(opts)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			state := player.State()
			if state.Question == nil {
				fmt.Fprintln(out, "no question is open")
				continue
			}
			answer, err := parseAnswer(*state.Question, line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if err := player.SubmitAnswer(answer); err != nil {
				fmt.Fprintln(out, err)
			}
		}
	}()

	err := player.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// statePrinter writes a line whenever the visible phase or question changes.
type statePrinter struct {
	out      io.Writer
	phase    client.Phase
	question int
	status   client.Status
	finished bool
}

func (p *statePrinter) print(s client.State) {
	if s.Status != p.status {
		p.status = s.Status
		if s.Status != client.StatusConnected {
			fmt.Fprintf(p.out, "[%s]\n", s.Status)
		}
	}
	if s.Finished {
		if !p.finished {
			p.finished = true
			fmt.Fprintln(p.out, "Final standings:")
			for _, st := range s.Standings {
				fmt.Fprintf(p.out, "  %d. %s %d\n", st.Rank, st.Name, st.Score)
			}
		}
		return
	}
	if s.Phase == p.phase && s.QuestionIndex == p.question {
		return
	}
	p.phase, p.question = s.Phase, s.QuestionIndex

	switch s.Phase {
	case client.PhaseWaiting:
		if s.QuestionIndex < 0 {
			fmt.Fprintf(p.out, "Joined as %s, waiting for the host\n", s.Name)
		} else {
			fmt.Fprintf(p.out, "Score: %d\n", s.Score)
		}
	case client.PhaseAnswering:
		q := s.Question
		fmt.Fprintf(p.out, "Question %d/%d: %s (%ds)\n", s.QuestionIndex+1, s.Total, q.Text, q.TimeLimitSeconds)
		for i, opt := range q.Options {
			fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
		}
		fmt.Fprintln(p.out, answerHint(*q))
	case client.PhaseAnswered:
		fmt.Fprintln(p.out, "Answer sent")
	case client.PhaseViewingResults:
		if s.LastReveal != nil {
			fmt.Fprintf(p.out, "+%d points, total %d\n", s.LastReveal.Result.ScoreGained, s.LastReveal.TotalScore)
		}
	}
}

func answerHint(q domain.RedactedQuestion) string {
	switch q.Kind {
	case domain.KindMultiChoice:
		return "Enter option numbers separated by commas"
	case domain.KindSlider:
		return fmt.Sprintf("Enter a number between %g and %g", *q.Min, *q.Max)
	default:
		return "Enter an option number"
	}
}

// parseAnswer reads one typed line as an answer. Options are numbered from 1 on screen.
func parseAnswer(q domain.RedactedQuestion, line string) (domain.AnswerValue, error) {
	switch q.Kind {
	case domain.KindSlider:
		n, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return domain.AnswerValue{}, fmt.Errorf("not a number: %q", line)
		}
		return domain.NumberAnswer(n), nil
	case domain.KindMultiChoice:
		var indices []int
		for _, part := range strings.Split(line, ",") {
			idx, err := optionIndex(q, strings.TrimSpace(part))
			if err != nil {
				return domain.AnswerValue{}, err
			}
			indices = append(indices, idx)
		}
		return domain.IndicesAnswer(indices...), nil
	default:
		idx, err := optionIndex(q, line)
		if err != nil {
			return domain.AnswerValue{}, err
		}
		return domain.IndexAnswer(idx), nil
	}
}

func optionIndex(q domain.RedactedQuestion, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > len(q.Options) {
		return 0, fmt.Errorf("pick an option between 1 and %d", len(q.Options))
	}
	return n - 1, nil
}
