package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string           `yaml:"env" env-default:"development"` // environment
	BaseURL    string           `yaml:"base_url" env-default:"http://localhost:8080"`
	ClientURL  string           `yaml:"client_url" env-default:"http://localhost:3000"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	JWT        JWTConfig        `yaml:"jwt"`
	WeChat     WeChatConfig     `yaml:"wechat"`
	Pay        PayConfig        `yaml:"pay"`
	Migrations MigrationsConfig `yaml:"migrations"`
}

// HTTPServerConfig структура http сервера
type HTTPServerConfig struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// DatabaseConfig структура по работе с БД
type DatabaseConfig struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"-" env:"DB_PASSWORD" env-required:"true"`
	Name     string `yaml:"name" env-required:"true"`
}

// RedisConfig настройка redis (кэш учетных данных шлюза)
type RedisConfig struct {
	Addr     string `yaml:"addr" env-default:"localhost:6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

// JWTConfig настройка jwt
type JWTConfig struct {
	Secret   string `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	TokenTTL int    `yaml:"token_ttl" env-default:"43200"` // в минутах, по умолчанию 30 дней
}

// WeChatConfig параметры WeChat OAuth мини-программы
type WeChatConfig struct {
	AppID     string `yaml:"app_id" env-required:"true"`
	AppSecret string `yaml:"-" env:"WECHAT_APP_SECRET" env-required:"true"`
	// Token — токен проверки подлинности запросов от сервера WeChat (echo-проверка)
	Token string `yaml:"-" env:"WECHAT_TOKEN"`
}

// PayConfig параметры WeChat Pay (API v3)
type PayConfig struct {
	MchID          string `yaml:"mch_id" env-required:"true"`
	SerialNo       string `yaml:"serial_no" env-required:"true"`
	APIv3Key       string `yaml:"-" env:"PAY_API_V3_KEY" env-required:"true"`
	PrivateKeyPath string `yaml:"private_key_path" env-required:"true"`
	PlatformCert   string `yaml:"platform_cert_path" env-required:"true"`
}

type MigrationsConfig struct {
	Path string `yaml:"path" env-default:"./migrations"`
}

// MustLoad - если не загружаем - паникуем
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		log.Fatal("CONFIG_PATH not exists")
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s", configPath)
	}

	return &cfg
}
