package config

import (
	"log"
	"os"
	"time"

	"github.com/AdrianSzponarOnline/e-commerce-sub001/pkg/utils"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string    `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTP      `yaml:"http"`
	Postgres  PG        `yaml:"postgres"`
	Kafka     Kafka     `yaml:"kafka"`
	Redis     Redis     `yaml:"redis"`
	Pricing   Pricing   `yaml:"pricing"`
	Inventory Inventory `yaml:"inventory"`
	Outbox    Outbox    `yaml:"outbox"`
	SKU       SKU       `yaml:"sku"`
	Limiter   Limiter   `yaml:"limiter"`
	Logger    Logger    `yaml:"logger"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL      string `yaml:"url" env:"DB_URL" env-required:"true"`
	MaxConns int32  `yaml:"max_conns" env-default:"10"`
	MinConns int32  `yaml:"min_conns" env-default:"2"`
}

type Kafka struct {
	Brokers            []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	GroupID            string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"order-core-coordinator"`
	NotificationsTopic string   `yaml:"notifications_topic" env-default:"notification_commands"`
}

type Redis struct {
	Addr string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	TTL  time.Duration `yaml:"ttl" env-default:"10m"`
}

// Pricing amounts are in minor currency units.
type Pricing struct {
	FreeShippingThreshold int64 `yaml:"free_shipping_threshold" env:"FREE_SHIPPING_THRESHOLD" env-default:"20000"`
	ShippingSurcharge     int64 `yaml:"shipping_surcharge" env:"SHIPPING_SURCHARGE" env-default:"2000"`
}

type Inventory struct {
	LockTimeout time.Duration `yaml:"lock_timeout" env:"INVENTORY_LOCK_TIMEOUT" env-default:"2s"`
}

type Outbox struct {
	BatchSize   int           `yaml:"batch_size" env-default:"50"`
	Interval    time.Duration `yaml:"interval" env-default:"500ms"`
	MaxAttempts int           `yaml:"max_attempts" env-default:"10"`
}

type SKU struct {
	MaxAttempts int `yaml:"max_attempts" env-default:"5"`
}

type Limiter struct {
	Max        int           `yaml:"max" env-default:"20"`
	Expiration time.Duration `yaml:"expiration" env-default:"5s"`
}

type Logger struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING"`
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
