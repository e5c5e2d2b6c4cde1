package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	valueobjects "depositwatch/internal/domain/value_objects"

	"github.com/joho/godotenv"
)

const (
	defaultPort                     = "8080"
	defaultOpenAPISpec              = "api/openapi.yaml"
	defaultShutdownTimeout          = 10 * time.Second
	defaultDBReadinessTimeout       = 30 * time.Second
	defaultDBReadinessRetryInterval = 2 * time.Second
	defaultMigrationsPath           = "internal/adapters/outbound/persistence/postgresql/migrations"
	defaultBadgerPath               = "data/badger"
	defaultLogLevel                 = "info"
	defaultLogFormat                = "console"
	defaultPollInterval             = 5 * time.Second
	defaultRPCTimeout               = 10 * time.Second
	defaultRPCRateLimit             = 10
	defaultMaxBlocksPerTick         = 100

	// Circle's USDC on Ethereum mainnet.
	defaultUSDCDecimals = 6
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverBadger   = "badger"
)

const (
	evmTokenContractsEnv = "EVM_TOKEN_CONTRACTS_JSON"
	startHeightsEnv      = "SCANNER_START_HEIGHTS_JSON"
)

type ConfigError struct {
	Code     string
	Message  string
	Metadata map[string]string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

type TokenContract struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int32  `json:"decimals"`
}

// ChainEndpoints holds the observation endpoints. A chain without an endpoint
// can still derive addresses.
type ChainEndpoints struct {
	ETHRPCURL   string
	BNBRPCURL   string
	SOLRPCURL   string
	TRXGRPCAddr string
	TRXAPIKey   string
	XRPRPCURL   string
}

type ScannerConfig struct {
	Enabled          bool
	PollInterval     time.Duration
	RPCTimeout       time.Duration
	RPCRateLimit     int
	MaxBlocksPerTick int
	StartHeights     map[valueobjects.Chain]int64
}

type Config struct {
	Port                     string
	OpenAPISpecPath          string
	ShutdownTimeout          time.Duration
	LogLevel                 string
	LogFormat                string
	StorageDriver            string
	DatabaseURL              string
	DatabaseTarget           string
	DBReadinessTimeout       time.Duration
	DBReadinessRetryInterval time.Duration
	MigrationsPath           string
	BadgerPath               string
	StorageEncryptionKey     []byte
	MasterMnemonic           string
	MasterPassphrase         string
	EnabledChains            []valueobjects.Chain
	XRPSharedAddress         string
	Endpoints                ChainEndpoints
	EVMTokens                map[valueobjects.Chain][]TokenContract
	Scanner                  ScannerConfig
}

// LoadDotEnv applies a .env file when present. Variables already set in the
// process environment win.
func LoadDotEnv(paths ...string) *ConfigError {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return &ConfigError{
				Code:     "CONFIG_DOTENV_INVALID",
				Message:  "dotenv file could not be parsed",
				Metadata: map[string]string{"path": path, "cause": err.Error()},
			}
		}
	}
	return nil
}

func LoadConfig() (Config, *ConfigError) {
	cfg := Config{
		Port:                     envOrDefault("PORT", defaultPort),
		OpenAPISpecPath:          envOrDefault("OPENAPI_SPEC_PATH", defaultOpenAPISpec),
		ShutdownTimeout:          defaultShutdownTimeout,
		LogLevel:                 strings.ToLower(envOrDefault("LOG_LEVEL", defaultLogLevel)),
		LogFormat:                strings.ToLower(envOrDefault("LOG_FORMAT", defaultLogFormat)),
		StorageDriver:            strings.ToLower(envOrDefault("STORAGE_DRIVER", StorageDriverPostgres)),
		DBReadinessTimeout:       defaultDBReadinessTimeout,
		DBReadinessRetryInterval: defaultDBReadinessRetryInterval,
		MigrationsPath:           envOrDefault("MIGRATIONS_PATH", defaultMigrationsPath),
		MasterPassphrase:         os.Getenv("WALLET_MASTER_PASSPHRASE"),
		XRPSharedAddress:         strings.TrimSpace(os.Getenv("XRP_SHARED_ADDRESS")),
		Endpoints: ChainEndpoints{
			ETHRPCURL:   strings.TrimSpace(os.Getenv("ETH_RPC_URL")),
			BNBRPCURL:   strings.TrimSpace(os.Getenv("BNB_RPC_URL")),
			SOLRPCURL:   strings.TrimSpace(os.Getenv("SOL_RPC_URL")),
			TRXGRPCAddr: strings.TrimSpace(os.Getenv("TRX_GRPC_ADDR")),
			TRXAPIKey:   strings.TrimSpace(os.Getenv("TRX_API_KEY")),
			XRPRPCURL:   strings.TrimSpace(os.Getenv("XRP_RPC_URL")),
		},
	}

	if cfgErr := cfg.loadStorage(); cfgErr != nil {
		return Config{}, cfgErr
	}

	mnemonic, cfgErr := LoadMasterMnemonic()
	if cfgErr != nil {
		return Config{}, cfgErr
	}
	cfg.MasterMnemonic = mnemonic

	enabledChains, cfgErr := parseEnabledChains(os.Getenv("ENABLED_CHAINS"))
	if cfgErr != nil {
		return Config{}, cfgErr
	}
	cfg.EnabledChains = enabledChains

	if cfg.ChainEnabled(valueobjects.ChainXRP) {
		if cfg.XRPSharedAddress == "" {
			return Config{}, &ConfigError{
				Code:    "CONFIG_XRP_SHARED_ADDRESS_REQUIRED",
				Message: "XRP_SHARED_ADDRESS is required when xrp is enabled",
			}
		}
		if _, appErr := valueobjects.NormalizeAddress(valueobjects.ChainXRP, cfg.XRPSharedAddress); appErr != nil {
			return Config{}, &ConfigError{
				Code:    "CONFIG_XRP_SHARED_ADDRESS_INVALID",
				Message: "XRP_SHARED_ADDRESS is not a valid classic address",
			}
		}
	}

	tokens, cfgErr := loadEVMTokens()
	if cfgErr != nil {
		return Config{}, cfgErr
	}
	cfg.EVMTokens = tokens

	scanner, cfgErr := loadScannerConfig()
	if cfgErr != nil {
		return Config{}, cfgErr
	}
	cfg.Scanner = scanner

	return cfg, nil
}

// LoadMasterMnemonic reads WALLET_MASTER_MNEMONIC, or the file named by
// WALLET_MASTER_MNEMONIC_FILE when the inline variable is unset.
func LoadMasterMnemonic() (string, *ConfigError) {
	if inline := strings.TrimSpace(os.Getenv("WALLET_MASTER_MNEMONIC")); inline != "" {
		return inline, nil
	}

	path := strings.TrimSpace(os.Getenv("WALLET_MASTER_MNEMONIC_FILE"))
	if path == "" {
		return "", &ConfigError{
			Code:    "CONFIG_MASTER_SECRET_REQUIRED",
			Message: "WALLET_MASTER_MNEMONIC or WALLET_MASTER_MNEMONIC_FILE is required",
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", &ConfigError{
			Code:     "CONFIG_MASTER_SECRET_UNREADABLE",
			Message:  "WALLET_MASTER_MNEMONIC_FILE could not be read",
			Metadata: map[string]string{"path": path},
		}
	}
	mnemonic := strings.Join(strings.Fields(string(content)), " ")
	if mnemonic == "" {
		return "", &ConfigError{
			Code:     "CONFIG_MASTER_SECRET_REQUIRED",
			Message:  "WALLET_MASTER_MNEMONIC_FILE is empty",
			Metadata: map[string]string{"path": path},
		}
	}
	return mnemonic, nil
}

func (c Config) Address() string {
	return ":" + c.Port
}

func (c Config) ChainEnabled(chain valueobjects.Chain) bool {
	for _, enabled := range c.EnabledChains {
		if enabled == chain {
			return true
		}
	}
	return false
}

// Endpoint returns the observation endpoint configured for chain.
func (c Config) Endpoint(chain valueobjects.Chain) string {
	switch chain {
	case valueobjects.ChainETH:
		return c.Endpoints.ETHRPCURL
	case valueobjects.ChainBNB:
		return c.Endpoints.BNBRPCURL
	case valueobjects.ChainSOL:
		return c.Endpoints.SOLRPCURL
	case valueobjects.ChainTRX:
		return c.Endpoints.TRXGRPCAddr
	case valueobjects.ChainXRP:
		return c.Endpoints.XRPRPCURL
	default:
		return ""
	}
}

// ValidateScanning fails when an enabled chain has no endpoint to scan.
func (c Config) ValidateScanning() *ConfigError {
	missing := make([]string, 0)
	for _, chain := range c.EnabledChains {
		if c.Endpoint(chain) == "" {
			missing = append(missing, chain.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigError{
		Code:     "CONFIG_RPC_ENDPOINT_REQUIRED",
		Message:  "every scanned chain needs an rpc endpoint",
		Metadata: map[string]string{"chains": strings.Join(missing, ",")},
	}
}

func (c *Config) loadStorage() *ConfigError {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if databaseURL == "" {
			return &ConfigError{
				Code:    "CONFIG_DATABASE_URL_REQUIRED",
				Message: "DATABASE_URL is required",
			}
		}
		databaseTarget, parseErr := parseDatabaseTarget(databaseURL)
		if parseErr != nil {
			return parseErr
		}
		c.DatabaseURL = databaseURL
		c.DatabaseTarget = databaseTarget
	case StorageDriverBadger:
		c.BadgerPath = envOrDefault("BADGER_PATH", defaultBadgerPath)
		// AES-128/192/256 is picked by key length; empty leaves the store unencrypted.
		if key := os.Getenv("STORAGE_ENCRYPTION_KEY"); key != "" {
			switch len(key) {
			case 16, 24, 32:
				c.StorageEncryptionKey = []byte(key)
			default:
				return &ConfigError{
					Code:     "CONFIG_STORAGE_ENCRYPTION_KEY_INVALID",
					Message:  "STORAGE_ENCRYPTION_KEY must be 16, 24 or 32 bytes",
					Metadata: map[string]string{"length": strconv.Itoa(len(key))},
				}
			}
		}
	default:
		return &ConfigError{
			Code:     "CONFIG_STORAGE_DRIVER_INVALID",
			Message:  "STORAGE_DRIVER must be postgres or badger",
			Metadata: map[string]string{"storage_driver": c.StorageDriver},
		}
	}
	return nil
}

func parseDatabaseTarget(databaseURL string) (string, *ConfigError) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return "", &ConfigError{
			Code:    "CONFIG_DATABASE_URL_INVALID",
			Message: "DATABASE_URL is invalid",
		}
	}

	switch parsed.Scheme {
	case "postgres", "postgresql":
	default:
		return "", &ConfigError{
			Code:    "CONFIG_DATABASE_URL_SCHEME_INVALID",
			Message: "DATABASE_URL must use postgres or postgresql scheme",
		}
	}

	if parsed.Host == "" {
		return "", &ConfigError{
			Code:    "CONFIG_DATABASE_URL_HOST_MISSING",
			Message: "DATABASE_URL host is required",
		}
	}

	databaseName := strings.TrimPrefix(parsed.Path, "/")
	if databaseName == "" {
		return "", &ConfigError{
			Code:    "CONFIG_DATABASE_NAME_MISSING",
			Message: "DATABASE_URL database name is required",
		}
	}

	return parsed.Host + "/" + databaseName, nil
}

func parseEnabledChains(raw string) ([]valueobjects.Chain, *ConfigError) {
	if strings.TrimSpace(raw) == "" {
		return valueobjects.SupportedChains(), nil
	}

	seen := map[valueobjects.Chain]struct{}{}
	chains := make([]valueobjects.Chain, 0)
	for _, item := range strings.Split(raw, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		chain, appErr := valueobjects.ParseChain(item)
		if appErr != nil {
			return nil, &ConfigError{
				Code:     "CONFIG_ENABLED_CHAINS_INVALID",
				Message:  "ENABLED_CHAINS contains an unsupported chain",
				Metadata: map[string]string{"chain": strings.TrimSpace(item)},
			}
		}
		if _, duplicate := seen[chain]; duplicate {
			continue
		}
		seen[chain] = struct{}{}
		chains = append(chains, chain)
	}

	if len(chains) == 0 {
		return nil, &ConfigError{
			Code:    "CONFIG_ENABLED_CHAINS_EMPTY",
			Message: "ENABLED_CHAINS must name at least one chain",
		}
	}
	return chains, nil
}

func loadEVMTokens() (map[valueobjects.Chain][]TokenContract, *ConfigError) {
	tokens := map[valueobjects.Chain][]TokenContract{}

	if usdc := strings.TrimSpace(os.Getenv("USDC_CONTRACT_ADDRESS")); usdc != "" {
		tokens[valueobjects.ChainETH] = append(tokens[valueobjects.ChainETH], TokenContract{
			Symbol:   "USDC",
			Address:  usdc,
			Decimals: defaultUSDCDecimals,
		})
	}

	raw := strings.TrimSpace(os.Getenv(evmTokenContractsEnv))
	if raw == "" {
		return tokens, nil
	}

	decoded := map[string][]TokenContract{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, &ConfigError{
			Code:    "CONFIG_EVM_TOKEN_CONTRACTS_INVALID",
			Message: evmTokenContractsEnv + " must be a JSON object of token arrays",
		}
	}

	rawChains := make([]string, 0, len(decoded))
	for rawChain := range decoded {
		rawChains = append(rawChains, rawChain)
	}
	sort.Strings(rawChains)

	for _, rawChain := range rawChains {
		chain, appErr := valueobjects.ParseChain(rawChain)
		if appErr != nil || !chain.IsEVM() {
			return nil, &ConfigError{
				Code:     "CONFIG_EVM_TOKEN_CONTRACTS_INVALID",
				Message:  evmTokenContractsEnv + " keys must be evm chains",
				Metadata: map[string]string{"chain": rawChain},
			}
		}
		for _, token := range decoded[rawChain] {
			token.Symbol = strings.ToUpper(strings.TrimSpace(token.Symbol))
			token.Address = strings.TrimSpace(token.Address)
			if token.Symbol == "" || token.Decimals < 0 || token.Decimals > 36 {
				return nil, &ConfigError{
					Code:     "CONFIG_EVM_TOKEN_CONTRACTS_INVALID",
					Message:  evmTokenContractsEnv + " entries need a symbol and decimals between 0 and 36",
					Metadata: map[string]string{"chain": chain.String(), "symbol": token.Symbol},
				}
			}
			if _, appErr := valueobjects.NormalizeAddress(chain, token.Address); appErr != nil {
				return nil, &ConfigError{
					Code:     "CONFIG_EVM_TOKEN_CONTRACTS_INVALID",
					Message:  evmTokenContractsEnv + " contains an invalid contract address",
					Metadata: map[string]string{"chain": chain.String(), "symbol": token.Symbol},
				}
			}
			tokens[chain] = append(tokens[chain], token)
		}
	}

	return tokens, nil
}

func loadScannerConfig() (ScannerConfig, *ConfigError) {
	scanner := ScannerConfig{
		PollInterval:     defaultPollInterval,
		RPCTimeout:       defaultRPCTimeout,
		RPCRateLimit:     defaultRPCRateLimit,
		MaxBlocksPerTick: defaultMaxBlocksPerTick,
		StartHeights:     map[valueobjects.Chain]int64{},
	}

	if raw := strings.TrimSpace(os.Getenv("SCANNER_ENABLED")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return ScannerConfig{}, &ConfigError{
				Code:    "CONFIG_SCANNER_ENABLED_INVALID",
				Message: "SCANNER_ENABLED must be a boolean",
			}
		}
		scanner.Enabled = enabled
	}

	var cfgErr *ConfigError
	if scanner.PollInterval, cfgErr = parsePositiveDuration("SCANNER_POLL_INTERVAL", scanner.PollInterval); cfgErr != nil {
		return ScannerConfig{}, cfgErr
	}
	if scanner.RPCTimeout, cfgErr = parsePositiveDuration("SCANNER_RPC_TIMEOUT", scanner.RPCTimeout); cfgErr != nil {
		return ScannerConfig{}, cfgErr
	}
	if scanner.RPCRateLimit, cfgErr = parseNonNegativeInt("SCANNER_RPC_RATE_LIMIT", scanner.RPCRateLimit); cfgErr != nil {
		return ScannerConfig{}, cfgErr
	}
	if scanner.MaxBlocksPerTick, cfgErr = parseNonNegativeInt("SCANNER_MAX_BLOCKS_PER_TICK", scanner.MaxBlocksPerTick); cfgErr != nil {
		return ScannerConfig{}, cfgErr
	}

	raw := strings.TrimSpace(os.Getenv(startHeightsEnv))
	if raw == "" {
		return scanner, nil
	}
	decoded := map[string]int64{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return ScannerConfig{}, &ConfigError{
			Code:    "CONFIG_SCANNER_START_HEIGHTS_INVALID",
			Message: startHeightsEnv + " must be a JSON object of chain to height",
		}
	}
	for rawChain, height := range decoded {
		chain, appErr := valueobjects.ParseChain(rawChain)
		if appErr != nil || height < 0 {
			return ScannerConfig{}, &ConfigError{
				Code:     "CONFIG_SCANNER_START_HEIGHTS_INVALID",
				Message:  startHeightsEnv + " needs supported chains and non-negative heights",
				Metadata: map[string]string{"chain": rawChain},
			}
		}
		scanner.StartHeights[chain] = height
	}
	return scanner, nil
}

func parsePositiveDuration(key string, fallback time.Duration) (time.Duration, *ConfigError) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return 0, &ConfigError{
			Code:     "CONFIG_DURATION_INVALID",
			Message:  key + " must be a positive duration",
			Metadata: map[string]string{"key": key},
		}
	}
	return parsed, nil
}

func parseNonNegativeInt(key string, fallback int) (int, *ConfigError) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, &ConfigError{
			Code:     "CONFIG_INTEGER_INVALID",
			Message:  key + " must be a non-negative integer",
			Metadata: map[string]string{"key": key},
		}
	}
	return parsed, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
