package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings keeps all configuration options.
// Every key is read in both lower_case and UPPER_CASE form.
type Settings struct {
	RPCURL        string
	ChainID       string // string to allow hex or decimal input
	TreasuryPKHex string
	DelegateHex   string

	AdminTaxAddressHex string
	HolderTaxPercent   float64
	AdminTaxPercent    float64

	BatchCapacity  int
	ExecAttempts   int
	ExecRetryDelay time.Duration
	GraceDelay     time.Duration

	DiscoveryTimeout    time.Duration
	DiscoveryAttempts   int
	DiscoveryRetryDelay time.Duration
	ReadBatchSize       int
	LogWindowBlocks     uint64

	ReceiptTimeout time.Duration

	DBPath   string // empty = in-memory repository
	LogLevel string
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt := func(keys []string, def int) int {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
		return def
	}
	getUint64 := func(keys []string, def uint64) uint64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
		return def
	}
	getFloat := func(keys []string, def float64) float64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return n
		}
		return def
	}
	getMillis := func(keys []string, def time.Duration) time.Duration {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
		return def
	}

	st := Settings{}
	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, "https://eth.llamarpc.com")
	st.ChainID = get([]string{"chain_id", "CHAIN_ID"}, "")
	st.TreasuryPKHex = get([]string{"treasury_private_key", "TREASURY_PRIVATE_KEY"}, "")
	st.DelegateHex = get([]string{"delegate_address", "DELEGATE_ADDRESS"}, "")

	st.AdminTaxAddressHex = get([]string{"admin_tax_address", "ADMIN_TAX_ADDRESS"}, "")
	st.HolderTaxPercent = getFloat([]string{"holder_tax_percent", "HOLDER_TAX_PERCENT"}, 0)
	st.AdminTaxPercent = getFloat([]string{"admin_tax_percent", "ADMIN_TAX_PERCENT"}, 0)

	st.BatchCapacity = getInt([]string{"batch_capacity", "BATCH_CAPACITY"}, 80)
	st.ExecAttempts = getInt([]string{"exec_attempts", "EXEC_ATTEMPTS"}, 4)
	st.ExecRetryDelay = getMillis([]string{"exec_retry_delay_ms", "EXEC_RETRY_DELAY_MS"}, 2*time.Second)
	st.GraceDelay = getMillis([]string{"grace_delay_ms", "GRACE_DELAY_MS"}, 2*time.Second)

	st.DiscoveryTimeout = getMillis([]string{"discovery_timeout_ms", "DISCOVERY_TIMEOUT_MS"}, 30*time.Second)
	st.DiscoveryAttempts = getInt([]string{"discovery_attempts", "DISCOVERY_ATTEMPTS"}, 3)
	st.DiscoveryRetryDelay = getMillis([]string{"discovery_retry_delay_ms", "DISCOVERY_RETRY_DELAY_MS"}, 3*time.Second)
	st.ReadBatchSize = getInt([]string{"read_batch_size", "READ_BATCH_SIZE"}, 256)
	st.LogWindowBlocks = getUint64([]string{"log_window_blocks", "LOG_WINDOW_BLOCKS"}, 5_000)

	st.ReceiptTimeout = getMillis([]string{"receipt_timeout_ms", "RECEIPT_TIMEOUT_MS"}, 90*time.Second)

	st.DBPath = get([]string{"db_path", "DB_PATH"}, "")
	st.LogLevel = get([]string{"log_level", "LOG_LEVEL"}, "info")

	return st
}
