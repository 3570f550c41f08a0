package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Redis  RedisConfig
	Chain  ChainConfig
	Vault  VaultConfig
	Server ServerConfig
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type ChainConfig struct {
	RPCURL     string `mapstructure:"rpc_url"`
	ChainID    int64  `mapstructure:"chain_id"`
	CustodyKey string `mapstructure:"custody_key"`
}

type VaultConfig struct {
	SignerAddress    string `mapstructure:"signer_address"`
	AdminAddress     string `mapstructure:"admin_address"`
	BankAddress      string `mapstructure:"bank_address"`
	GridleAddress    string `mapstructure:"gridle_address"`
	RetroDropAddress string `mapstructure:"retrodrop_address"`
	InventoryAddress string `mapstructure:"inventory_address"`
	DropToken        string `mapstructure:"drop_token"`
	DropMaxWeeks     uint64 `mapstructure:"drop_max_weeks"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("vault.drop_max_weeks", 208)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"chain.rpc_url":           "RPC_URL",
		"chain.chain_id":          "CHAIN_ID",
		"chain.custody_key":       "CUSTODY_KEY",
		"vault.signer_address":    "VOUCHER_SIGNER",
		"vault.admin_address":     "VAULT_ADMIN",
		"vault.bank_address":      "BANK_ADDRESS",
		"vault.gridle_address":    "GRIDLE_ADDRESS",
		"vault.retrodrop_address": "RETRODROP_ADDRESS",
		"vault.inventory_address": "INVENTORY_ADDRESS",
		"vault.drop_token":        "DROP_TOKEN",
		"vault.drop_max_weeks":    "DROP_MAX_WEEKS",
		"server.port":             "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.CustodyKey, "CUSTODY_KEY"},
		{c.Vault.SignerAddress, "VOUCHER_SIGNER"},
		{c.Vault.AdminAddress, "VAULT_ADMIN"},
		{c.Vault.BankAddress, "BANK_ADDRESS"},
		{c.Vault.GridleAddress, "GRIDLE_ADDRESS"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	return nil
}
