package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/auctionhouse/internal/auction"
	"github.com/alanyoungcy/auctionhouse/internal/bank"
	s3blob "github.com/alanyoungcy/auctionhouse/internal/blob/s3"
	"github.com/alanyoungcy/auctionhouse/internal/cache/redis"
	"github.com/alanyoungcy/auctionhouse/internal/config"
	"github.com/alanyoungcy/auctionhouse/internal/crypto"
	"github.com/alanyoungcy/auctionhouse/internal/domain"
	"github.com/alanyoungcy/auctionhouse/internal/registry"
	"github.com/alanyoungcy/auctionhouse/internal/service"
	"github.com/alanyoungcy/auctionhouse/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Engine    *auction.Engine
	Collector *service.EventCollector
	Service   *service.AuctionService

	// Stores
	ListingStore    domain.ListingStore
	CreditStore     domain.CreditStore
	SettlementStore domain.SettlementStore

	// Cache layer
	EventBus    domain.EventBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// In-memory backends; nil when the eth backend is configured. The dev
	// faucet requires both.
	MemGateway  *bank.Memory
	MemRegistry *registry.Memory
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	custody := common.HexToAddress(cfg.Engine.CustodyAddress)

	// --- Asset registry backend ---
	reg, err := wireRegistry(ctx, cfg, custody, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if mem, ok := reg.(*registry.Memory); ok {
		deps.MemRegistry = mem
	}

	// --- Fund gateway ---
	// The in-memory gateway is the only fund backend; with the eth registry
	// the asset side is on chain while funds stay ledgered in process.
	deps.MemGateway = bank.NewMemory(custody)

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.ListingStore = postgres.NewListingStore(pool)
	deps.CreditStore = postgres.NewCreditStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.EventBus = redis.NewEventBus(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.SettlementStore)
	}

	// --- Engine and service ---
	deps.Collector = service.NewEventCollector()
	engine, err := auction.NewEngine(auction.Config{
		Custody: custody,
		Owner:   common.HexToAddress(cfg.Engine.OwnerAddress),
		Policy: auction.Policy{
			FeeBps:          cfg.Engine.FeeBps,
			MinIncrementPct: cfg.Engine.MinIncrementPct,
			FloorDuration:   cfg.Engine.FloorDuration(),
			SnipeWindow:     cfg.Engine.SnipeWindow(),
			Extension:       cfg.Engine.Extension(),
			RefundGas:       domain.Gas(cfg.Engine.RefundGas),
		},
	}, reg, deps.MemGateway, deps.Collector, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: engine: %w", err)
	}
	deps.Engine = engine

	deps.Service = service.NewAuctionService(
		engine,
		deps.Collector,
		service.Stores{
			Listings:    deps.ListingStore,
			Credits:     deps.CreditStore,
			Settlements: deps.SettlementStore,
		},
		deps.EventBus,
		deps.LockManager,
		logger,
	)

	return deps, cleanup, nil
}

// wireRegistry builds the configured asset registry backend.
func wireRegistry(ctx context.Context, cfg *config.Config, custody common.Address, closers *[]func()) (domain.AssetRegistry, error) {
	switch cfg.Registry.Backend {
	case "memory":
		return registry.NewMemory(), nil

	case "eth":
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Registry.PrivateKey,
			EncryptedKeyPath: cfg.Registry.EncryptedKeyPath,
			KeyPassword:      cfg.Registry.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: registry key: %w", err)
		}

		eth, err := registry.NewEth(ctx, registry.EthConfig{
			RPCURL:          cfg.Registry.RPCURL,
			ContractAddress: cfg.Registry.ContractAddress,
			ChainID:         cfg.Registry.ChainID,
			PrivateKeyHex:   keyHex,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: registry: %w", err)
		}
		*closers = append(*closers, eth.Close)
		return eth, nil

	default:
		return nil, fmt.Errorf("wire: unknown registry backend %q", cfg.Registry.Backend)
	}
}
