package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// PublicURL is the base players use to reach the service; QR codes encode it.
		PublicURL string `yaml:"public_url"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL     string        `yaml:"ttl"`
		Dir     string        `yaml:"dir"`
		Quizzes []domain.Quiz `yaml:"quizzes"`
	} `yaml:"quiz"`
	Session struct {
		RevealDelay   string `yaml:"reveal_delay"`
		SummaryDelay  string `yaml:"summary_delay"`
		IdleTimeout   string `yaml:"idle_timeout"`
		ReapInterval  string `yaml:"reap_interval"`
		StandingsTopN int    `yaml:"standings_top_n"`
		SendBuffer    int    `yaml:"send_buffer"`
	} `yaml:"session"`
	Scoring struct {
		BaseScore       int     `yaml:"base_score"`
		SpeedFloor      float64 `yaml:"speed_floor"`
		SliderThreshold float64 `yaml:"slider_threshold"`
		SliderExponent  float64 `yaml:"slider_exponent"`
	} `yaml:"scoring"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"token_ttl"`
		// Hosts maps a username to its bcrypt password hash.
		Hosts map[string]string `yaml:"hosts"`
	} `yaml:"auth"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	for _, quiz := range cfg.Quiz.Quizzes {
		if err := quiz.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields an empty config.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// ScoringPolicy builds the scoring curves, keeping defaults for unset fields.
func (c Config) ScoringPolicy() scoring.Policy {
	p := scoring.DefaultPolicy()
	if c.Scoring.BaseScore > 0 {
		p.BaseScore = c.Scoring.BaseScore
	}
	if c.Scoring.SliderThreshold > 0 {
		p.SliderThreshold = c.Scoring.SliderThreshold
	}
	if c.Scoring.SpeedFloor > 0 {
		p.Speed = scoring.LinearSpeedFactor(c.Scoring.SpeedFloor)
	}
	if c.Scoring.SliderExponent > 0 {
		p.Slider = scoring.PowerFalloff(c.Scoring.SliderExponent)
	}
	return p
}
