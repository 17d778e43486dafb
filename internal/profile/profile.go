package profile

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is the configuration needed to start the hub process.
type Profile struct {
	// Mode is "prod", "dev", or "demo"; Validate replaces any other value
	// with "demo". Every mode requires the same fields.
	Mode string
	// Version is the running build's version string.
	Version string

	// Addr/Port/UNIXSock select the HTTP ingress listener. UNIXSock, when
	// set, takes priority over Addr/Port.
	Addr     string
	Port     int
	UNIXSock string

	// SelfURL is this process's externally-reachable base URL, used to
	// build the webhook URL registered with Telegram for each bot.
	SelfURL string
	// SelfToken authenticates X-API-KEY on the HTTP control surface.
	SelfToken string

	// ServiceURL is the Designer Service's base URL.
	ServiceURL string
	// ServiceToken authenticates outbound calls to the Designer Service
	// (sent as "Authorization: Token {ServiceToken}").
	ServiceToken string
	// ServiceUnixSock, when set, routes Designer Service calls over a
	// unix socket instead of TCP.
	ServiceUnixSock string

	// ScratchDSN is the SQLite DSN of the Scratch Store's SQL backend,
	// read from REDIS_URL; empty selects the in-memory backend. There is
	// no Redis backend: a non-empty value is always opened as SQLite.
	ScratchDSN string

	// Debug enables verbose logging.
	Debug bool

	// WebhookSecret is generated fresh at process start and sent as
	// X-Telegram-Bot-Api-Secret-Token on every registered webhook; it
	// authenticates that inbound webhook calls actually came from
	// Telegram and not an unrelated caller guessing the URL.
	WebhookSecret string
}

// IsDev reports whether the process is running outside of prod.
func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// FromEnv fills in fields not already set by flags from the environment,
// and generates WebhookSecret.
func (p *Profile) FromEnv() {
	if p.SelfURL == "" {
		p.SelfURL = getEnvOrDefault("SELF_URL", "")
	}
	if p.SelfToken == "" {
		p.SelfToken = getEnvOrDefault("SELF_TOKEN", "")
	}
	if p.ServiceURL == "" {
		p.ServiceURL = getEnvOrDefault("SERVICE_URL", "")
	}
	if p.ServiceToken == "" {
		p.ServiceToken = getEnvOrDefault("SERVICE_TOKEN", "")
	}
	if p.ServiceUnixSock == "" {
		p.ServiceUnixSock = getEnvOrDefault("SERVICE_UNIX_SOCK", "")
	}
	if p.ScratchDSN == "" {
		p.ScratchDSN = getEnvOrDefault("REDIS_URL", "")
	}
	if !p.Debug {
		p.Debug = getEnvOrDefaultBool("DEBUG", false)
	}

	secret, err := generateWebhookSecret()
	if err != nil {
		slog.Error("failed to generate webhook secret", "error", err)
		panic(err)
	}
	p.WebhookSecret = secret
}

// generateWebhookSecret returns 64 random hex characters, matching
// Telegram's secret-token length limit.
func generateWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate webhook secret")
	}
	return hex.EncodeToString(buf), nil
}

// Validate checks that the fields required to run are present.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.ServiceURL == "" {
		return errors.New("SERVICE_URL is required")
	}
	if p.ServiceToken == "" {
		return errors.New("SERVICE_TOKEN is required")
	}
	if p.SelfURL == "" {
		return errors.New("SELF_URL is required")
	}
	if p.SelfToken == "" {
		return errors.New("SELF_TOKEN is required")
	}
	return nil
}
