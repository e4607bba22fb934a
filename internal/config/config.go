package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Storefront is the configuration of the terminal storefront client.
type Storefront struct {
	APIBaseURL   string
	Token        string
	TokenFile    string
	Origin       string
	RedisAddr    string
	WishlistKey  string
	KafkaBrokers []string
	SuccessDelay time.Duration
	PollInterval time.Duration
	HTTPTimeout  time.Duration
}

// Sandbox is the configuration of the local commerce API.
type Sandbox struct {
	Port          string
	DatabaseURL   string
	PublicURL     string
	KafkaBrokers  []string
	OTLPEndpoint  string
	ServiceToken  string
	ShippingPrice decimal.Decimal
}

// Worker is the configuration of the fulfillment worker.
type Worker struct {
	APIBaseURL   string
	ServiceToken string
	KafkaBrokers []string
	GroupID      string
	OTLPEndpoint string
	HTTPTimeout  time.Duration
}

// Load reads an optional .env file from the working directory. Variables
// already set in the environment win over the file.
func Load(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func LoadStorefront() (Storefront, error) {
	cfg := Storefront{
		APIBaseURL:   getenv("API_BASE_URL", "http://localhost:8080/api/v1/"),
		Token:        os.Getenv("API_TOKEN"),
		TokenFile:    os.Getenv("API_TOKEN_FILE"),
		Origin:       getenv("STOREFRONT_ORIGIN", "http://localhost:4200"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		WishlistKey:  getenv("WISHLIST_KEY", "ecommerce_wishlist"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
	}

	var err error
	if cfg.SuccessDelay, err = getDuration("CHECKOUT_SUCCESS_DELAY", 2*time.Second); err != nil {
		return Storefront{}, err
	}
	if cfg.PollInterval, err = getDuration("CHECKOUT_POLL_INTERVAL", time.Second); err != nil {
		return Storefront{}, err
	}
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return Storefront{}, err
	}

	if !strings.HasSuffix(cfg.APIBaseURL, "/") {
		cfg.APIBaseURL += "/"
	}
	return cfg, nil
}

// ResolveToken returns the bearer token, reading TokenFile when no token is
// set inline.
func (s Storefront) ResolveToken() (string, error) {
	if s.Token != "" || s.TokenFile == "" {
		return s.Token, nil
	}
	data, err := os.ReadFile(s.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func LoadSandbox() (Sandbox, error) {
	cfg := Sandbox{
		Port:          getenv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceToken:  os.Getenv("SERVICE_TOKEN"),
	}
	cfg.PublicURL = getenv("PUBLIC_URL", "http://localhost:"+cfg.Port)

	shipping, err := decimal.NewFromString(getenv("SHIPPING_PRICE", "0"))
	if err != nil {
		return Sandbox{}, fmt.Errorf("parse SHIPPING_PRICE: %w", err)
	}
	cfg.ShippingPrice = shipping
	return cfg, nil
}

func LoadWorker() (Worker, error) {
	cfg := Worker{
		APIBaseURL:   getenv("API_BASE_URL", "http://localhost:8080/api/v1/"),
		ServiceToken: os.Getenv("SERVICE_TOKEN"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		GroupID:      getenv("KAFKA_GROUP_ID", "fulfillment-worker"),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.HTTPTimeout, err = getDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return Worker{}, err
	}

	switch {
	case len(cfg.KafkaBrokers) == 0:
		return Worker{}, errors.New("KAFKA_BROKERS is required")
	case cfg.ServiceToken == "":
		return Worker{}, errors.New("SERVICE_TOKEN is required")
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
