package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Ledger struct {
	// Backend selects the ledger implementation: "sim" or "evm".
	Backend string

	// RPCURL and Contract are required for the evm backend.
	RPCURL   string
	Contract string

	// DataDir persists sim ledger state between runs. Empty means
	// in-memory only.
	DataDir string

	// ConfirmTimeout bounds the wait for one step's confirmation.
	ConfirmTimeout time.Duration

	// PollInterval is the evm receipt polling cadence.
	PollInterval time.Duration
}

type API struct {
	Addr        string
	MetricsAddr string
}

type Node struct {
	// PrivateKey is the local actor's signing key (hex). Empty means a
	// fresh key is generated at startup, which only makes sense with the
	// sim backend.
	PrivateKey string

	// GenesisFunds seeds sim balances for the local actor:
	// "token:amount" pairs, comma-separated.
	GenesisFunds []string

	LogFile string
}

type Config struct {
	Ledger Ledger
	API    API
	Node   Node
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			Backend:        "sim",
			ConfirmTimeout: 2 * time.Minute,
			PollInterval:   2 * time.Second,
		},
		API: API{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("LEDGER_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("LEDGER_CONTRACT"); v != "" {
		cfg.Ledger.Contract = v
	}
	if v := os.Getenv("LEDGER_DATA_DIR"); v != "" {
		cfg.Ledger.DataDir = v
	}
	if v := os.Getenv("CONFIRM_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.ConfirmTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Ledger.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.API.MetricsAddr = v
	}

	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Node.PrivateKey = v
	}
	if v := os.Getenv("GENESIS_FUNDS"); v != "" {
		cfg.Node.GenesisFunds = strings.Split(v, ",")
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}

	return cfg
}
