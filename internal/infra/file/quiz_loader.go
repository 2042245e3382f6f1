// Package file loads quizzes from YAML or JSON documents on disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"live-quiz-service/internal/domain"

	"gopkg.in/yaml.v3"
)

// QuizLoader reads <dir>/<quizID>.yaml (or .yml / .json).
type QuizLoader struct {
	dir string
}

func NewQuizLoader(dir string) *QuizLoader {
	return &QuizLoader{dir: dir}
}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quizID == "" || strings.ContainsAny(quizID, `/\`) || strings.HasPrefix(quizID, ".") {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(l.dir, quizID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("read quiz %s: %w", path, err)
		}
		quiz, err := decode(ext, data)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("decode quiz %s: %w", path, err)
		}
		if quiz.ID == "" {
			quiz.ID = quizID
		}
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// List returns the quiz IDs available in the directory.
func (l *QuizLoader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		switch ext {
		case ".yaml", ".yml", ".json":
			ids = append(ids, strings.TrimSuffix(e.Name(), ext))
		}
	}
	return ids, nil
}

func decode(ext string, data []byte) (domain.Quiz, error) {
	var quiz domain.Quiz
	var err error
	if ext == ".json" {
		err = json.Unmarshal(data, &quiz)
	} else {
		err = yaml.Unmarshal(data, &quiz)
	}
	return quiz, err
}
