package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays BRIDGE_* variables on base. Unparseable values are
// ignored.
func FromEnv(base Config) Config {
	cfg := base
	if v, ok := getEnvString("BRIDGE_BASE_URL"); ok {
		cfg.Bridge.BaseURL = v
	}
	if v, ok := getEnvString("BRIDGE_APP_ID"); ok {
		cfg.Bridge.AppID = v
	}
	if v, ok := getEnvString("BRIDGE_SESSION_TOKEN"); ok {
		cfg.Bridge.SessionToken = v
	}
	if v, ok := getEnvDuration("BRIDGE_TIMEOUT"); ok && v > 0 {
		cfg.Bridge.Timeout = v
	}
	if v, ok := getEnvInt("BRIDGE_PAGE_SIZE"); ok && v > 0 {
		cfg.Bridge.PageSize = v
	}
	if v, ok := getEnvString("BRIDGE_DB_PATH"); ok {
		cfg.Storage.Path = v
	}
	if v, ok := getEnvString("BRIDGE_CACHE_BACKEND"); ok {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v, ok := getEnvDuration("BRIDGE_CACHE_TTL"); ok && v > 0 {
		cfg.Cache.TTL = v
	}
	if v, ok := getEnvString("BRIDGE_REDIS_URL"); ok {
		cfg.Cache.RedisURL = v
	}
	if v, ok := getEnvInt("BRIDGE_SCHEDULE_CHUNK_DAYS"); ok && v > 0 {
		cfg.Schedules.ChunkDays = v
	}
	if v, ok := getEnvInt("BRIDGE_SCHEDULE_LOOKBACK_DAYS"); ok && v > 0 {
		cfg.Schedules.LookbackDays = v
	}
	if v, ok := getEnvInt("BRIDGE_SCHEDULE_LOOKAHEAD_DAYS"); ok && v > 0 {
		cfg.Schedules.LookaheadDays = v
	}
	if v, ok := getEnvInt("BRIDGE_SCHEDULE_CONCURRENCY"); ok && v > 0 {
		cfg.Schedules.Concurrency = v
	}
	if v, ok := getEnvList("BRIDGE_GROUP_BY_DAY_REPORTS"); ok {
		cfg.Reports.GroupByDay = v
	}
	if v, ok := getEnvList("BRIDGE_SINGLETON_REPORTS"); ok {
		cfg.Reports.Singleton = v
	}
	if v, ok := getEnvInt("BRIDGE_REMINDER_BUFFER"); ok && v > 0 {
		cfg.Reminders.Buffer = v
	}
	if v, ok := getEnvString("BRIDGE_LOG_LEVEL"); ok {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := getEnvBool("BRIDGE_LOG_DEVELOPMENT"); ok {
		cfg.Logging.Development = v
	}
	if v, ok := getEnvString("BRIDGE_SENTRY_DSN"); ok {
		cfg.Sentry.DSN = v
	}
	if v, ok := getEnvString("BRIDGE_SENTRY_ENVIRONMENT"); ok {
		cfg.Sentry.Environment = v
	}
	return cfg
}

func getEnvString(name string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	return raw, raw != ""
}

func getEnvInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvDuration(name string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func getEnvBool(name string) (bool, bool) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}

func getEnvList(name string) ([]string, bool) {
	raw, ok := getEnvString(name)
	if !ok {
		return nil, false
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, true
}
