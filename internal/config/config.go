package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	Env      string
	HTTPAddr string

	DBDriver string
	DBDSN    string

	// auth
	JWTSecret     string
	JWTTTL        time.Duration
	AdminUser     string
	AdminEmail    string
	AdminPassHash string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	// draft answers; empty RedisAddr keeps drafts in memory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DraftTTL      time.Duration

	// cron spec for the overdue attempt sweep
	SweepSchedule string

	SendgridAPIKey string
	MailFromName   string
	MailFromEmail  string

	RollbarToken string
}

// CORSOrigins returns the allow-list for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func defaults(v *viper.Viper) {
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("ENV", "dev")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("JWT_SECRET", "dev-secret-change-me")
	v.SetDefault("JWT_TTL", 12*time.Hour)
	v.SetDefault("ADMIN_USER", "admin")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji")
	v.SetDefault("CORS_ORIGINS_ONLINE", "https://school.mindengage.ai")
	v.SetDefault("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DRAFT_TTL", 24*time.Hour)
	v.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "MindEngage School")
	v.SetDefault("MAIL_FROM_EMAIL", "noreply@localhost")
	v.SetDefault("ROLLBAR_TOKEN", "")
}

// FromEnv reads configuration from the environment. A .env file in the
// working directory (or the path in ENV_FILE) is loaded first when present;
// variables already set in the environment win.
func FromEnv() (Config, error) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return Config{}, err
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.AutomaticEnv()

	mode := Mode(strings.ToLower(v.GetString("MODE")))
	if mode != ModeOnline {
		mode = ModeOffline
	}
	return Config{
		Mode:     mode,
		Env:      v.GetString("ENV"),
		HTTPAddr: v.GetString("HTTP_ADDR"),

		DBDriver: v.GetString("DB_DRIVER"),
		DBDSN:    v.GetString("DB_DSN"),

		JWTSecret:     v.GetString("JWT_SECRET"),
		JWTTTL:        v.GetDuration("JWT_TTL"),
		AdminUser:     v.GetString("ADMIN_USER"),
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		AdminPassHash: v.GetString("ADMIN_PASS_HASH"),

		CORSOriginsOnline:  csv(v.GetString("CORS_ORIGINS_ONLINE")),
		CORSOriginsOffline: csv(v.GetString("CORS_ORIGINS_OFFLINE")),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		DraftTTL:      v.GetDuration("DRAFT_TTL"),

		SweepSchedule: v.GetString("SWEEP_SCHEDULE"),

		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		MailFromName:   v.GetString("MAIL_FROM_NAME"),
		MailFromEmail:  v.GetString("MAIL_FROM_EMAIL"),

		RollbarToken: v.GetString("ROLLBAR_TOKEN"),
	}, nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
