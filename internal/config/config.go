package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL string

	ServerPort string

	JWTSecret string

	// FeatureFlagTokens is the allow-list of tokens accepted by the
	// feature-flag admin endpoints.
	FeatureFlagTokens []string

	FCMProjectID   string
	FCMClientEmail string
	FCMPrivateKey  string

	APNTeamID     string
	APNKeyID      string
	APNSigningKey string
	APNBundleID   string
	APNBaseURL    string

	TwilioAccountSID         string
	TwilioAccountToken       string
	TwilioMessagingServiceID string
	TwilioBaseURL            string

	SchedulerWorkerCount int
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	apnBaseURL := os.Getenv("APN_BASE_URL")
	if apnBaseURL == "" {
		apnBaseURL = "https://api.push.apple.com"
	}

	twilioBaseURL := os.Getenv("TWILIO_BASE_URL")
	if twilioBaseURL == "" {
		twilioBaseURL = "https://api.twilio.com"
	}

	schedulerWorkers, err := strconv.Atoi(os.Getenv("SCHEDULER_WORKER_COUNT"))
	if err != nil || schedulerWorkers <= 0 {
		schedulerWorkers = 2
	}

	var featureFlagTokens []string
	for _, token := range strings.Split(os.Getenv("FEATURE_FLAG_TOKENS"), ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			featureFlagTokens = append(featureFlagTokens, token)
		}
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisURL: redisURL,

		ServerPort: serverPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		FeatureFlagTokens: featureFlagTokens,

		FCMProjectID:   os.Getenv("FCM_PROJECT_ID"),
		FCMClientEmail: os.Getenv("FCM_CLIENT_EMAIL"),
		FCMPrivateKey:  os.Getenv("FCM_PRIVATE_KEY"),

		APNTeamID:     os.Getenv("APN_TEAM_ID"),
		APNKeyID:      os.Getenv("APN_KEY_ID"),
		APNSigningKey: os.Getenv("APN_SIGNING_KEY"),
		APNBundleID:   os.Getenv("APN_BUNDLE_ID"),
		APNBaseURL:    apnBaseURL,

		TwilioAccountSID:         os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAccountToken:       os.Getenv("TWILIO_ACCOUNT_TOKEN"),
		TwilioMessagingServiceID: os.Getenv("TWILIO_MESSAGING_SERVICE_ID"),
		TwilioBaseURL:            twilioBaseURL,

		SchedulerWorkerCount: schedulerWorkers,
	}, nil
}
