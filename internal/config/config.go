package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Chain struct {
		RPCEndpoint    string `yaml:"rpc_endpoint"`
		WSEndpoint     string `yaml:"ws_endpoint"`
		TokenContract  string `yaml:"token_contract"`
		TokenDecimals  int    `yaml:"token_decimals"`
		ExplorerTxURL  string `yaml:"explorer_tx_url"`
		BackfillBlocks int64  `yaml:"backfill_blocks"`
	} `yaml:"chain"`
	Payments struct {
		TTLMinutes           int `yaml:"ttl_minutes"`
		SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	} `yaml:"payments"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		FromAddr string `yaml:"from_addr"`
		FromName string `yaml:"from_name"`
	} `yaml:"smtp"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Chain.WSEndpoint == "" || cfg.Chain.TokenContract == "" {
		return nil, errors.New("chain config is incomplete")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chain.TokenDecimals == 0 {
		cfg.Chain.TokenDecimals = 18
	}
	if cfg.Payments.TTLMinutes == 0 {
		cfg.Payments.TTLMinutes = 15
	}
	if cfg.Payments.SweepIntervalSeconds == 0 {
		cfg.Payments.SweepIntervalSeconds = 120
	}
	if cfg.Chain.BackfillBlocks == 0 {
		cfg.Chain.BackfillBlocks = 200
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("CHAIN_RPC_ENDPOINT"); v != "" {
		cfg.Chain.RPCEndpoint = v
	}
	if v := os.Getenv("CHAIN_WS_ENDPOINT"); v != "" {
		cfg.Chain.WSEndpoint = v
	}
	if v := os.Getenv("TOKEN_CONTRACT"); v != "" {
		cfg.Chain.TokenContract = v
	}
	if v := os.Getenv("TOKEN_DECIMALS"); v != "" {
		cfg.Chain.TokenDecimals = atoiOr(cfg.Chain.TokenDecimals, v)
	}
	if v := os.Getenv("EXPLORER_TX_URL"); v != "" {
		cfg.Chain.ExplorerTxURL = v
	}
	if v := os.Getenv("CHAIN_BACKFILL_BLOCKS"); v != "" {
		cfg.Chain.BackfillBlocks = atoi64Or(cfg.Chain.BackfillBlocks, v)
	}
	if v := os.Getenv("PAYMENT_TTL_MINUTES"); v != "" {
		cfg.Payments.TTLMinutes = atoiOr(cfg.Payments.TTLMinutes, v)
	}
	if v := os.Getenv("PAYMENT_SWEEP_INTERVAL_SECONDS"); v != "" {
		cfg.Payments.SweepIntervalSeconds = atoiOr(cfg.Payments.SweepIntervalSeconds, v)
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		cfg.SMTP.Port = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM_ADDR"); v != "" {
		cfg.SMTP.FromAddr = v
	}
	if v := os.Getenv("SMTP_FROM_NAME"); v != "" {
		cfg.SMTP.FromName = v
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
