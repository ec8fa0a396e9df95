package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	Secret string `yaml:"secret" json:"secret"`
}

type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
}

// ProviderConfig describes the upstream messaging provider API.
type ProviderConfig struct {
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	ApiKey       string        `yaml:"api_key" json:"api_key"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	WebhookToken string        `yaml:"webhook_token" json:"webhook_token"`
	Dedupe       bool          `yaml:"dedupe" json:"dedupe"`
}

// AutomationConfig describes the external workflow engine that performs
// provider-side delivery of outgoing messages.
type AutomationConfig struct {
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Workers  int           `yaml:"workers" json:"workers"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System     SysConfig        `yaml:"system" json:"system"`
	Web        WebConfig        `yaml:"web" json:"web"`
	Database   DBConfig         `yaml:"database" json:"database"`
	Provider   ProviderConfig   `yaml:"provider" json:"provider"`
	Automation AutomationConfig `yaml:"automation" json:"automation"`
	Logger     LogConfig        `yaml:"logger" json:"logger"`
}

func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "chatgate",
			Location: "Asia/Jakarta",
			Workdir:  "/var/chatgate",
			Debug:    true,
		},
		Web: WebConfig{
			Host:   "0.0.0.0",
			Port:   1816,
			Secret: "9b6de5cc-chatgate-1816-secret",
		},
		Database: DBConfig{
			Type:     "postgres",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "chatgate",
			User:     "postgres",
			Passwd:   "",
			MaxConn:  100,
			IdleConn: 10,
		},
		Provider: ProviderConfig{
			BaseURL: "http://127.0.0.1:8080",
			ApiKey:  "",
			Timeout: 5 * time.Second,
			Dedupe:  true,
		},
		Automation: AutomationConfig{
			Endpoint: "",
			Timeout:  10 * time.Second,
			Workers:  8,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: true,
			Filename:   "/var/chatgate/chatgate.log",
		},
	}
}

func setEnvValue(name string, val *string) {
	if v, ok := os.LookupEnv(name); ok {
		*val = v
	}
}

func setEnvBoolValue(name string, val *bool) {
	if v, ok := os.LookupEnv(name); ok {
		*val = v == "true" || v == "1" || v == "on"
	}
}

// LoadConfig reads the yaml config file and applies CHATGATE_* environment
// overrides. A missing file yields the default configuration.
func LoadConfig(cfile string) *AppConfig {
	cfg := DefaultAppConfig()
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	setEnvValue("CHATGATE_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvBoolValue("CHATGATE_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("CHATGATE_WEB_SECRET", &cfg.Web.Secret)

	setEnvValue("CHATGATE_DB_TYPE", &cfg.Database.Type)
	setEnvValue("CHATGATE_DB_HOST", &cfg.Database.Host)
	setEnvValue("CHATGATE_DB_NAME", &cfg.Database.Name)
	setEnvValue("CHATGATE_DB_USER", &cfg.Database.User)
	setEnvValue("CHATGATE_DB_PWD", &cfg.Database.Passwd)

	setEnvValue("CHATGATE_PROVIDER_BASE_URL", &cfg.Provider.BaseURL)
	setEnvValue("CHATGATE_PROVIDER_API_KEY", &cfg.Provider.ApiKey)
	setEnvValue("CHATGATE_PROVIDER_WEBHOOK_TOKEN", &cfg.Provider.WebhookToken)
	setEnvBoolValue("CHATGATE_PROVIDER_DEDUPE", &cfg.Provider.Dedupe)

	setEnvValue("CHATGATE_AUTOMATION_ENDPOINT", &cfg.Automation.Endpoint)

	if cfg.Provider.Timeout <= 0 {
		cfg.Provider.Timeout = 5 * time.Second
	}
	if cfg.Automation.Timeout <= 0 {
		cfg.Automation.Timeout = 10 * time.Second
	}
	if cfg.Automation.Workers <= 0 {
		cfg.Automation.Workers = 8
	}
	return cfg
}
