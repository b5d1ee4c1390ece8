package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath  = "config.toml"
	DefaultHTTPAddr    = ":8080"
	DefaultPGHost      = "127.0.0.1"
	DefaultPGPort      = 5432
	DefaultPGUser      = "postgres"
	DefaultPGDatabase  = "deskbridge"
	DefaultPGSSLMode   = "disable"
	DefaultBotName     = "Luna"
	DefaultBrandName   = "Selfie Mirror"
	DefaultTTLDays     = 180
	DefaultPriceTTL    = 30
	DefaultLearnedMin  = 0.58
	DefaultKBMin       = 0.35
	DefaultPatternHit  = 0.9
	DefaultMaxAttach   = 15 << 20
	DefaultHTTPRetries = 2
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Chatwoot ChatwootConfig `toml:"chatwoot"`
	Telegram TelegramConfig `toml:"telegram"`
	Matcher  MatcherConfig  `toml:"matcher"`
	Learned  LearnedConfig  `toml:"learned"`
	Bridge   BridgeConfig   `toml:"bridge"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr          string `toml:"addr"`
	WebhookSecret string `toml:"webhook_secret"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// ChatwootConfig points the bridge at one Chatwoot account.
type ChatwootConfig struct {
	BaseURL        string `toml:"base_url"`
	AccountID      string `toml:"account_id"`
	APIToken       string `toml:"api_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
	MaxAttachBytes int64  `toml:"max_attachment_bytes"`
}

// TelegramConfig identifies the supervisor group on the messaging side.
type TelegramConfig struct {
	BotToken         string `toml:"bot_token"`
	SupervisorChatID int64  `toml:"supervisor_chat_id"`
}

// MatcherConfig holds the answer-resolution thresholds. The asymmetry is
// deliberate: learned answers are human-vetted and accepted at a higher bar
// than the looser static knowledge base.
type MatcherConfig struct {
	LearnedMinScore float64 `toml:"learned_min_score"`
	KBMinScore      float64 `toml:"kb_min_score"`
	PatternHitScore float64 `toml:"pattern_hit_score"`
	KnowledgePath   string  `toml:"knowledge_path"`
}

type LearnedConfig struct {
	DefaultTTLDays int `toml:"default_ttl_days"`
	PriceTTLDays   int `toml:"price_ttl_days"`
}

// BridgeConfig carries the orchestrator policy knobs. The observed defaults
// (60s answer window, 8s shortcut cooldown) are kept but remain tunable per
// deployment.
type BridgeConfig struct {
	BotName             string `toml:"bot_name"`
	BrandName           string `toml:"brand_name"`
	AnswerWindowSeconds int    `toml:"answer_window_seconds"`
	ShortcutCooldownMs  int    `toml:"shortcut_cooldown_ms"`
	StateRetentionHours int    `toml:"state_retention_hours"`
	MaintenanceSchedule string `toml:"maintenance_schedule"`
}

// AnswerWindow is the duration after an answer during which further
// supervisor replies to the same question are suppressed.
func (c BridgeConfig) AnswerWindow() time.Duration {
	return time.Duration(c.AnswerWindowSeconds) * time.Second
}

// ShortcutCooldown is the minimum gap between two fires of the same
// shortcut kind on one conversation.
func (c BridgeConfig) ShortcutCooldown() time.Duration {
	return time.Duration(c.ShortcutCooldownMs) * time.Millisecond
}

// StateRetention is how long an idle conversation record is kept before the
// maintenance sweep evicts it.
func (c BridgeConfig) StateRetention() time.Duration {
	return time.Duration(c.StateRetentionHours) * time.Hour
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Chatwoot: ChatwootConfig{
			TimeoutSeconds: 15,
			Retries:        DefaultHTTPRetries,
			MaxAttachBytes: DefaultMaxAttach,
		},
		Matcher: MatcherConfig{
			LearnedMinScore: DefaultLearnedMin,
			KBMinScore:      DefaultKBMin,
			PatternHitScore: DefaultPatternHit,
			KnowledgePath:   "knowledge.json",
		},
		Learned: LearnedConfig{
			DefaultTTLDays: DefaultTTLDays,
			PriceTTLDays:   DefaultPriceTTL,
		},
		Bridge: BridgeConfig{
			BotName:             DefaultBotName,
			BrandName:           DefaultBrandName,
			AnswerWindowSeconds: 60,
			ShortcutCooldownMs:  8000,
			StateRetentionHours: 30 * 24,
			MaintenanceSchedule: "@hourly",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
