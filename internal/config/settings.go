package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"modmail-bot/internal/modmail"
)

// Settings is the JSONC settings file. Comments and trailing commas are
// allowed. Durations use Go syntax ("5s", "2m").
type Settings struct {
	StaffRole     string                 `json:"staff_role,omitempty"`
	Category      string                 `json:"category,omitempty"`
	LogChannelID  string                 `json:"log_channel_id,omitempty"`
	StorePath     string                 `json:"store_path,omitempty"`
	FlushDelay    string                 `json:"flush_delay,omitempty"`
	DeleteDelay   string                 `json:"delete_delay,omitempty"`
	PageTimeout   string                 `json:"page_timeout,omitempty"`
	PageChunk     int                    `json:"page_chunk,omitempty"`
	CannedNotices []modmail.CannedNotice `json:"canned_notices,omitempty"`
}

// ReadSettings parses the JSONC file at path.
func ReadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings parses JSONC settings.
func ParseSettings(data []byte) (Settings, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(standardized, &s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

func (s Settings) apply(cfg *Config) error {
	overrideString(&cfg.StaffRole, s.StaffRole)
	overrideString(&cfg.Category, s.Category)
	overrideString(&cfg.LogChannelID, s.LogChannelID)
	overrideString(&cfg.StorePath, s.StorePath)

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"flush_delay", s.FlushDelay, &cfg.FlushDelay},
		{"delete_delay", s.DeleteDelay, &cfg.DeleteDelay},
		{"page_timeout", s.PageTimeout, &cfg.PageTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	if s.PageChunk != 0 {
		cfg.PageChunk = s.PageChunk
	}
	for i, n := range s.CannedNotices {
		if n.Phrase == "" || n.Text == "" {
			return fmt.Errorf("canned_notices[%d]: phrase and text are required", i)
		}
	}
	if len(s.CannedNotices) > 0 {
		cfg.CannedNotices = s.CannedNotices
	}
	return nil
}
