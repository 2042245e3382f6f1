package cli

import (
	"fmt"
	"log/slog"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/file"
	pgloader "live-quiz-service/internal/infra/postgres"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewImportCmd copies quiz documents from a directory into Postgres.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import YAML/JSON quizzes from a directory into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			cfg, err := config.LoadOptional(v.GetString("config"))
			if err != nil {
				return err
			}
			if url := v.GetString("postgres-url"); url != "" {
				cfg.Postgres.URL = url
			}
			dir := v.GetString("dir")
			if dir == "" {
				dir = cfg.Quiz.Dir
			}
			if dir == "" {
				return fmt.Errorf("no quiz directory given")
			}
			if err := runMigrationsWithConfig(cmd.Context(), cfg); err != nil {
				return err
			}

			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			files := file.NewQuizLoader(dir)
			store := pgloader.NewQuizLoader(pool)
			ids, err := files.List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				quiz, err := files.LoadQuiz(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := store.SaveQuiz(cmd.Context(), quiz); err != nil {
					return fmt.Errorf("quiz %s: %w", id, err)
				}
				slog.Info("imported quiz", "id", quiz.ID, "questions", len(quiz.Questions))
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "", "directory of quiz documents, defaults to quiz.dir (env: QUIZ_DIR)")
	cmd.Flags().String("postgres-url", "", "postgres DSN, overrides config (env: QUIZ_POSTGRES_URL)")
	return cmd
}
