// Package bootstrap wires the application together: configuration,
// infrastructure clients, stores, the session engine, and the HTTP server.
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerAddr string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TokenAPIKey    string
	TokenAPISecret string

	CredentialServiceURL string
	CredentialAPIKey     string
	SignalingURL         string
	GradingServiceURL    string
	GradingAPIKey        string
	RecordingServiceURL  string
	RecordingAPIKey      string

	RTCICEServers []ICEServerConfig
	RTCPortMin    int
	RTCPortMax    int

	WarnAfter        time.Duration
	Ceiling          time.Duration
	MinGradeSeconds  int64
	HandshakeTimeout time.Duration

	FrameInterval time.Duration
	FrameMaxWidth int
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TokenAPIKey:    getEnv("TOKEN_API_KEY", ""),
		TokenAPISecret: getEnv("TOKEN_API_SECRET", ""),

		CredentialServiceURL: getEnv("CREDENTIAL_SERVICE_URL", ""),
		CredentialAPIKey:     getEnv("CREDENTIAL_API_KEY", ""),
		SignalingURL:         getEnv("SIGNALING_URL", ""),
		GradingServiceURL:    getEnv("GRADING_SERVICE_URL", ""),
		GradingAPIKey:        getEnv("GRADING_API_KEY", ""),
		RecordingServiceURL:  getEnv("RECORDING_SERVICE_URL", ""),
		RecordingAPIKey:      getEnv("RECORDING_API_KEY", ""),

		RTCICEServers: parseICEServers(getEnv("RTC_ICE_SERVERS", "stun:stun.l.google.com:19302")),
		RTCPortMin:    getEnvInt("RTC_PORT_MIN", 10000),
		RTCPortMax:    getEnvInt("RTC_PORT_MAX", 20000),

		WarnAfter:        getEnvDuration("SESSION_WARN_AFTER", 25*time.Minute),
		Ceiling:          getEnvDuration("SESSION_CEILING", 30*time.Minute),
		MinGradeSeconds:  int64(getEnvInt("SESSION_MIN_GRADE_SECONDS", 15)),
		HandshakeTimeout: getEnvDuration("PARTNER_HANDSHAKE_TIMEOUT", 30*time.Second),

		FrameInterval: getEnvDuration("FRAME_INTERVAL", 2*time.Second),
		FrameMaxWidth: getEnvInt("FRAME_MAX_WIDTH", 1024),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseICEServers reads a comma-separated list of ICE server URLs.
// TURN credentials ride along as url|username|credential.
func parseICEServers(envValue string) []ICEServerConfig {
	if envValue == "" {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	var servers []ICEServerConfig
	for _, entry := range strings.Split(envValue, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		server := ICEServerConfig{URLs: []string{parts[0]}}
		if len(parts) >= 3 {
			server.Username = parts[1]
			server.Credential = parts[2]
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		servers = []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	return servers
}
