package di

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"depositwatch/internal/adapters/inbound/http/controllers"
	httpRouter "depositwatch/internal/adapters/inbound/http/router"
	"depositwatch/internal/adapters/outbound/chain"
	"depositwatch/internal/adapters/outbound/chain/evm"
	"depositwatch/internal/adapters/outbound/chain/jsonrpc"
	"depositwatch/internal/adapters/outbound/chain/solana"
	"depositwatch/internal/adapters/outbound/chain/tron"
	"depositwatch/internal/adapters/outbound/chain/xrpl"
	"depositwatch/internal/adapters/outbound/docs"
	badgerstore "depositwatch/internal/adapters/outbound/persistence/badger"
	postgresqlbootstrap "depositwatch/internal/adapters/outbound/persistence/postgresql/bootstrap"
	postgresqldepositaddress "depositwatch/internal/adapters/outbound/persistence/postgresql/depositaddress"
	postgresqldepositledger "depositwatch/internal/adapters/outbound/persistence/postgresql/depositledger"
	postgresqlscancursor "depositwatch/internal/adapters/outbound/persistence/postgresql/scancursor"
	postgresqlshared "depositwatch/internal/adapters/outbound/persistence/postgresql/shared"
	portsin "depositwatch/internal/application/ports/in"
	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/application/use_cases"
	valueobjects "depositwatch/internal/domain/value_objects"
	"depositwatch/internal/infrastructure/config"
	"depositwatch/internal/infrastructure/httpserver"
	"depositwatch/internal/infrastructure/logging"
	"depositwatch/internal/infrastructure/metrics"
	"depositwatch/internal/infrastructure/scanner"
	"depositwatch/internal/infrastructure/walletkeys"

	"github.com/rs/zerolog"
)

type Mode string

const (
	// ModeServer serves HTTP and scans in-process when SCANNER_ENABLED is set.
	ModeServer Mode = "server"
	// ModeListener only scans.
	ModeListener Mode = "listener"
)

type Container struct {
	Registry                     *chain.Registry
	Metrics                      *metrics.ScanMetrics
	Server                       *httpserver.Server
	InitializePersistenceUseCase portsin.InitializePersistenceUseCase
	Scanner                      *scanner.Supervisor

	closers []func() error
}

// Close releases storage and chain connections in reverse construction order.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

type storage struct {
	driver    string
	addresses portsout.DepositAddressRepository
	ledger    portsout.DepositLedgerRepository
	cursors   portsout.ScanCursorRepository
	gateway   portsout.PersistenceBootstrapGateway
}

func Build(cfg config.Config, logger zerolog.Logger, mode Mode) (*Container, error) {
	scanning := mode == ModeListener || cfg.Scanner.Enabled
	if scanning {
		if cfgErr := cfg.ValidateScanning(); cfgErr != nil {
			return nil, fmt.Errorf("%s: %s (%v)", cfgErr.Code, cfgErr.Message, cfgErr.Metadata)
		}
	}

	container := &Container{Metrics: metrics.NewScanMetrics()}

	store, err := buildStorage(cfg, logger, container)
	if err != nil {
		_ = container.Close()
		return nil, err
	}

	registry, err := buildRegistry(cfg, logger, container, scanning)
	if err != nil {
		_ = container.Close()
		return nil, err
	}
	container.Registry = registry
	container.InitializePersistenceUseCase = use_cases.NewInitializePersistenceUseCase(store.gateway)

	if scanning {
		scanUseCase := use_cases.NewScanChainDepositsUseCase(
			registry,
			store.addresses,
			store.ledger,
			store.cursors,
			container.Metrics,
			use_cases.NewUUIDGenerator(),
			use_cases.NewSystemClock(),
		)
		container.Scanner = buildSupervisor(cfg, registry, scanUseCase, container.Metrics, logger)
	}

	if mode == ModeServer {
		container.Server = buildServer(cfg, store, registry, container.Metrics.Handler(), logger)
	}

	return container, nil
}

func buildStorage(cfg config.Config, logger zerolog.Logger, container *Container) (storage, error) {
	storageLogger := logging.WithComponent(logger, "storage")

	switch cfg.StorageDriver {
	case config.StorageDriverBadger:
		store, err := badgerstore.Open(badgerstore.Options{
			Path:          cfg.BadgerPath,
			EncryptionKey: cfg.StorageEncryptionKey,
		})
		if err != nil {
			return storage{}, err
		}
		container.closers = append(container.closers, store.Close)
		return storage{
			driver:    cfg.StorageDriver,
			addresses: badgerstore.NewDepositAddressRepository(store, storageLogger),
			ledger:    badgerstore.NewDepositLedgerRepository(store),
			cursors:   badgerstore.NewScanCursorRepository(store),
			gateway:   badgerstore.NewBootstrapGateway(store, storageLogger),
		}, nil
	case config.StorageDriverPostgres:
		db, err := postgresqlshared.NewDatabasePool(cfg.DatabaseURL, storageLogger)
		if err != nil {
			return storage{}, err
		}
		container.closers = append(container.closers, db.Close)
		return storage{
			driver:    cfg.StorageDriver,
			addresses: postgresqldepositaddress.NewRepository(db, storageLogger),
			ledger:    postgresqldepositledger.NewRepository(db, storageLogger),
			cursors:   postgresqlscancursor.NewRepository(db),
			gateway: postgresqlbootstrap.NewGateway(
				cfg.DatabaseURL,
				cfg.DatabaseTarget,
				cfg.MigrationsPath,
				storageLogger,
			),
		}, nil
	default:
		return storage{}, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

func buildRegistry(cfg config.Config, logger zerolog.Logger, container *Container, scanning bool) (*chain.Registry, error) {
	secret, keyErr := walletkeys.LoadMasterSecret(cfg.MasterMnemonic, cfg.MasterPassphrase)
	if keyErr != nil {
		return nil, keyErr
	}
	engine, keyErr := walletkeys.NewEngine(secret, walletkeys.EngineConfig{XRPSharedAddress: cfg.XRPSharedAddress})
	if keyErr != nil {
		return nil, keyErr
	}

	adapters := make([]portsout.ChainAdapter, 0, len(cfg.EnabledChains))
	for _, target := range cfg.EnabledChains {
		sources := chain.Sources{}
		if target == valueobjects.ChainXRP {
			sources.SharedAddress = cfg.XRPSharedAddress
		}
		if scanning {
			built, err := buildSources(cfg, target, container)
			if err != nil {
				return nil, err
			}
			sources.Blocks = built.Blocks
			sources.History = built.History
		}
		adapters = append(adapters, chain.NewAdapter(target, engine, sources))
	}

	registry, appErr := chain.NewRegistry(adapters...)
	if appErr != nil {
		return nil, appErr
	}

	logger.Info().
		Strs("chains", chainNames(registry.Chains())).
		Bool("scanning", scanning).
		Msg("chain registry built")
	return registry, nil
}

func buildSources(cfg config.Config, target valueobjects.Chain, container *Container) (chain.Sources, error) {
	endpoint := cfg.Endpoint(target)
	rpcOptions := jsonrpc.Options{
		HTTPClient:    &http.Client{Timeout: cfg.Scanner.RPCTimeout + time.Second},
		Timeout:       cfg.Scanner.RPCTimeout,
		RatePerSecond: cfg.Scanner.RPCRateLimit,
	}

	switch target {
	case valueobjects.ChainETH, valueobjects.ChainBNB:
		client, appErr := evm.NewClient(evm.Config{
			Chain:         target,
			Endpoint:      endpoint,
			Timeout:       cfg.Scanner.RPCTimeout,
			RatePerSecond: cfg.Scanner.RPCRateLimit,
			Tokens:        evmTokens(cfg.EVMTokens[target]),
			HTTPClient:    rpcOptions.HTTPClient,
		})
		if appErr != nil {
			return chain.Sources{}, appErr
		}
		container.closers = append(container.closers, func() error {
			client.Close()
			return nil
		})
		return chain.Sources{Blocks: client}, nil
	case valueobjects.ChainSOL:
		return chain.Sources{Blocks: solana.NewClient(endpoint, rpcOptions)}, nil
	case valueobjects.ChainTRX:
		client, appErr := tron.NewClient(tron.Config{
			GRPCAddress:   endpoint,
			APIKey:        cfg.Endpoints.TRXAPIKey,
			Timeout:       cfg.Scanner.RPCTimeout,
			RatePerSecond: cfg.Scanner.RPCRateLimit,
		})
		if appErr != nil {
			return chain.Sources{}, appErr
		}
		container.closers = append(container.closers, func() error {
			client.Close()
			return nil
		})
		return chain.Sources{Blocks: client}, nil
	case valueobjects.ChainXRP:
		return chain.Sources{History: xrpl.NewClient(endpoint, rpcOptions)}, nil
	default:
		return chain.Sources{}, fmt.Errorf("no chain client for %s", target)
	}
}

func buildSupervisor(
	cfg config.Config,
	registry *chain.Registry,
	useCase portsin.ScanChainDepositsUseCase,
	recorder *metrics.ScanMetrics,
	logger zerolog.Logger,
) *scanner.Supervisor {
	workers := make([]*scanner.Worker, 0, len(registry.Chains()))
	for _, target := range registry.Chains() {
		workerConfig := scanner.WorkerConfig{
			Chain:            target,
			PollInterval:     cfg.Scanner.PollInterval,
			MaxBlocksPerTick: cfg.Scanner.MaxBlocksPerTick,
		}
		if height, ok := cfg.Scanner.StartHeights[target]; ok {
			workerConfig.StartHeight = &height
		}
		workers = append(workers, scanner.NewWorker(workerConfig, useCase, recorder, logger))
	}
	return scanner.NewSupervisor(workers, logging.WithComponent(logger, "scanner"))
}

func buildServer(
	cfg config.Config,
	store storage,
	registry *chain.Registry,
	metricsHandler http.Handler,
	logger zerolog.Logger,
) *httpserver.Server {
	httpLogger := logging.WithComponent(logger, "http")

	healthUseCase := use_cases.NewGetHealthUseCase(store.driver, registry)
	openAPIReadModel := docs.NewFileOpenAPISpecReadModel(cfg.OpenAPISpecPath)
	openAPIUseCase := use_cases.NewGetOpenAPISpecUseCase(openAPIReadModel)
	depositAddressUseCase := use_cases.NewGetOrCreateDepositAddressUseCase(
		registry,
		store.addresses,
		use_cases.NewSystemClock(),
	)
	listDepositsUseCase := use_cases.NewListUserDepositsUseCase(store.ledger)

	router := httpRouter.New(httpRouter.Dependencies{
		HealthController:           controllers.NewHealthController(healthUseCase, httpLogger),
		SwaggerController:          controllers.NewSwaggerController(openAPIUseCase, httpLogger),
		DepositAddressesController: controllers.NewDepositAddressesController(depositAddressUseCase, httpLogger),
		DepositsController:         controllers.NewDepositsController(listDepositsUseCase, httpLogger),
		Metrics:                    metricsHandler,
	})

	return httpserver.New(cfg.Address(), router, httpLogger)
}

func evmTokens(tokens []config.TokenContract) []evm.TokenContract {
	out := make([]evm.TokenContract, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, evm.TokenContract{
			Symbol:   token.Symbol,
			Address:  token.Address,
			Decimals: token.Decimals,
		})
	}
	return out
}

func chainNames(chains []valueobjects.Chain) []string {
	names := make([]string, 0, len(chains))
	for _, c := range chains {
		names = append(names, c.String())
	}
	return names
}
