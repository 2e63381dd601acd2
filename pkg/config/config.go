// Package config provides a reusable loader for tosnode configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tos-network/tos-sub001/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a tosnode instance. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Network struct {
		ID          string `mapstructure:"id" json:"id"`
		ChainID     uint8  `mapstructure:"chain_id" json:"chain_id"`
		RPCEnabled  bool   `mapstructure:"rpc_enabled" json:"rpc_enabled"`
		ListenAddr  string `mapstructure:"listen_addr" json:"listen_addr"`
		GenesisFile string `mapstructure:"genesis_file" json:"genesis_file"`
	} `mapstructure:"network" json:"network"`

	Chain struct {
		CoinValue             uint64 `mapstructure:"coin_value" json:"coin_value"`
		FeePerAccountCreation  uint64 `mapstructure:"fee_per_account_creation" json:"fee_per_account_creation"`
		MaxTransferCount       int    `mapstructure:"max_transfer_count" json:"max_transfer_count"`
		MaxGasUsagePerTx       uint64 `mapstructure:"max_gas_usage_per_tx" json:"max_gas_usage_per_tx"`
		PruneSafetyLimit       uint64 `mapstructure:"prune_safety_limit" json:"prune_safety_limit"`
		VRFEnabled             bool   `mapstructure:"vrf_enabled" json:"vrf_enabled"`
		VRFActivationTopoheight uint64 `mapstructure:"vrf_activation_topoheight" json:"vrf_activation_topoheight"`
	} `mapstructure:"chain" json:"chain"`

	Scheduler struct {
		MaxSchedulingHorizon            uint64 `mapstructure:"max_scheduling_horizon" json:"max_scheduling_horizon"`
		MaxScheduledExecutionsPerBlock  int    `mapstructure:"max_scheduled_executions_per_block" json:"max_scheduled_executions_per_block"`
		MaxScheduledExecutionGasPerBlock uint64 `mapstructure:"max_scheduled_execution_gas_per_block" json:"max_scheduled_execution_gas_per_block"`
		MinimumCancellationWindow       uint64 `mapstructure:"minimum_cancellation_window" json:"minimum_cancellation_window"`
	} `mapstructure:"scheduler" json:"scheduler"`

	Bootstrap struct {
		MaxItemsPerPage          int `mapstructure:"max_items_per_page" json:"max_items_per_page"`
		ChainSyncRequestMaxBlocks int `mapstructure:"chain_sync_request_max_blocks" json:"chain_sync_request_max_blocks"`
	} `mapstructure:"bootstrap" json:"bootstrap"`

	Energy struct {
		Freeze3DayMultiplier  uint64 `mapstructure:"freeze_3day_multiplier" json:"freeze_3day_multiplier"`
		Freeze7DayMultiplier  uint64 `mapstructure:"freeze_7day_multiplier" json:"freeze_7day_multiplier"`
		Freeze14DayMultiplier uint64 `mapstructure:"freeze_14day_multiplier" json:"freeze_14day_multiplier"`
	} `mapstructure:"energy" json:"energy"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
		Prune  bool   `mapstructure:"prune" json:"prune"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the TOSNODE_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("TOSNODE_ENV", ""))
}
