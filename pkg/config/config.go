package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the widget and the extraction daemon read from
// the environment. The widget itself never reads ambient state; the values
// here are handed to it explicitly at construction.
type Config struct {
	Environment string `env:"ASKBOX_ENV" envDefault:"development"`
	LogLevel    string `env:"ASKBOX_LOG_LEVEL" envDefault:"info"`

	// Widget behavior.
	ExtractorURL   string `env:"ASKBOX_EXTRACTOR_URL" envDefault:"http://localhost:8230"`
	Placeholder    string `env:"ASKBOX_PLACEHOLDER" envDefault:"Type a new question..."`
	ClearOnSend    bool   `env:"ASKBOX_CLEAR_ON_SEND" envDefault:"true"`
	ConversationID string `env:"ASKBOX_CONVERSATION_ID"`
	Attachments    bool   `env:"ASKBOX_ATTACHMENTS" envDefault:"true"`
	Disabled       bool   `env:"ASKBOX_DISABLED"`

	// Media limits.
	ImageMaxWidth  int `env:"ASKBOX_IMAGE_MAX_WIDTH" envDefault:"800"`
	ImageMaxHeight int `env:"ASKBOX_IMAGE_MAX_HEIGHT" envDefault:"800"`
	PreviewLimit   int `env:"ASKBOX_PREVIEW_LIMIT" envDefault:"500"`

	// Extraction daemon (cmd/extractd).
	ListenAddr string `env:"ASKBOX_EXTRACTD_ADDR" envDefault:":8230"`
	StorageDir string `env:"ASKBOX_EXTRACTD_STORAGE" envDefault:"./data/uploads"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}
