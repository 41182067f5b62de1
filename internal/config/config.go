package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Settings keeps all configuration options.
// Native-currency amounts are decimal strings in ether units ("0.0005").
type Settings struct {
	RPCURL               string
	ChainID              string // empty: ask the node
	FactoryAddress       string
	DexFactoryAddress    string
	WrappedNativeAddress string
	AutoApproveSpender   string
	PlatformPrivateKey   string

	DatabaseURL string // empty: in-memory store
	HTTPAddr    string

	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
	Confirmations       int64
	SettlementTimeout   time.Duration
	GasBufferPct        int64

	LPCreationFee string
	TierFees      map[string]string // fallback fee per tier

	LogLevel   string
	LogFormat  string // json | console
	ConfigFile string
}

// fileOverlay is the optional YAML file named by CONFIG_FILE. It carries the
// fee schedule; environment values win over file values.
type fileOverlay struct {
	LPCreationFee string            `yaml:"lp_creation_fee"`
	TierFees      map[string]string `yaml:"tier_fees"`
	Confirmations *int64            `yaml:"confirmations"`
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys,
// then applies the YAML overlay from CONFIG_FILE if set.
func Load() (Settings, error) {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	has := func(keys []string) bool { return get(keys, "") != "" }
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return def
	}
	getDuration := func(keys []string, def time.Duration) time.Duration {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
		// bare integers are seconds
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
		return def
	}

	st := Settings{}
	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, "")
	st.ChainID = get([]string{"chain_id", "CHAIN_ID"}, "")
	st.FactoryAddress = get([]string{"factory_address", "FACTORY_ADDRESS"}, "")
	st.DexFactoryAddress = get([]string{"dex_factory_address", "DEX_FACTORY_ADDRESS"}, "")
	st.WrappedNativeAddress = get([]string{"wrapped_native_address", "WRAPPED_NATIVE_ADDRESS"}, "")
	st.AutoApproveSpender = get([]string{"auto_approve_spender", "AUTO_APPROVE_SPENDER"}, "")
	st.PlatformPrivateKey = get([]string{"platform_private_key", "PLATFORM_PRIVATE_KEY"}, "")

	st.DatabaseURL = get([]string{"database_url", "DATABASE_URL"}, "")
	st.HTTPAddr = get([]string{"http_addr", "HTTP_ADDR"}, ":8080")

	st.ReceiptTimeout = getDuration([]string{"receipt_timeout", "RECEIPT_TIMEOUT"}, 60*time.Second)
	st.ReceiptPollInterval = getDuration([]string{"receipt_poll_interval", "RECEIPT_POLL_INTERVAL"}, time.Second)
	st.Confirmations = getInt64([]string{"confirmations", "CONFIRMATIONS"}, 1)
	st.SettlementTimeout = getDuration([]string{"settlement_timeout", "SETTLEMENT_TIMEOUT"}, 90*time.Second)
	st.GasBufferPct = getInt64([]string{"gas_buffer_pct", "GAS_BUFFER_PCT"}, 20)

	st.LPCreationFee = "0.0005"
	st.TierFees = map[string]string{"basic": "0.001", "standard": "0.005", "premium": "0.01"}

	st.LogLevel = get([]string{"log_level", "LOG_LEVEL"}, "info")
	st.LogFormat = get([]string{"log_format", "LOG_FORMAT"}, "json")
	st.ConfigFile = get([]string{"config_file", "CONFIG_FILE"}, "")

	if st.ConfigFile != "" {
		if err := st.applyFile(st.ConfigFile, has([]string{"confirmations", "CONFIRMATIONS"})); err != nil {
			return st, err
		}
	}

	if v := get([]string{"lp_creation_fee", "LP_CREATION_FEE"}, ""); v != "" {
		st.LPCreationFee = v
	}
	for tier := range st.TierFees {
		key := "tier_fee_" + tier
		if v := get([]string{key, strings.ToUpper(key)}, ""); v != "" {
			st.TierFees[tier] = v
		}
	}
	return st, nil
}

func (st *Settings) applyFile(path string, envConfirmations bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var ov fileOverlay
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if ov.LPCreationFee != "" {
		st.LPCreationFee = ov.LPCreationFee
	}
	for tier, fee := range ov.TierFees {
		st.TierFees[strings.ToLower(strings.TrimSpace(tier))] = strings.TrimSpace(fee)
	}
	if ov.Confirmations != nil && !envConfirmations {
		st.Confirmations = *ov.Confirmations
	}
	return nil
}

// Validate reports missing required keys and malformed addresses. Optional
// addresses may be empty.
func (st Settings) Validate() error {
	var errs []error
	if st.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL is required"))
	}
	if st.FactoryAddress == "" {
		errs = append(errs, errors.New("FACTORY_ADDRESS is required"))
	}
	for name, v := range map[string]string{
		"FACTORY_ADDRESS":        st.FactoryAddress,
		"DEX_FACTORY_ADDRESS":    st.DexFactoryAddress,
		"WRAPPED_NATIVE_ADDRESS": st.WrappedNativeAddress,
		"AUTO_APPROVE_SPENDER":   st.AutoApproveSpender,
	} {
		if v != "" && (!strings.HasPrefix(v, "0x") || !common.IsHexAddress(v)) {
			errs = append(errs, fmt.Errorf("%s: %q is not a 0x-prefixed address", name, v))
		}
	}
	if st.ChainID != "" {
		if _, err := strconv.ParseUint(st.ChainID, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("CHAIN_ID: %q is not a number", st.ChainID))
		}
	}
	if st.Confirmations < 1 {
		errs = append(errs, errors.New("CONFIRMATIONS must be at least 1"))
	}
	return errors.Join(errs...)
}

// Address parses an optional address setting; empty yields the zero address.
func Address(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
