package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/collect9/c9market/internal/blob/s3"
	"github.com/collect9/c9market/internal/cache/redis"
	"github.com/collect9/c9market/internal/chain"
	"github.com/collect9/c9market/internal/config"
	c9crypto "github.com/collect9/c9market/internal/crypto"
	"github.com/collect9/c9market/internal/domain"
	"github.com/collect9/c9market/internal/notify"
	"github.com/collect9/c9market/internal/oracle"
	"github.com/collect9/c9market/internal/store/memory"
	"github.com/collect9/c9market/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Listings  domain.ListingStore
	Purchases domain.PurchaseStore
	State     domain.StateStore

	// Collaborators
	Oracle   domain.RateOracle
	Registry domain.AssetRegistry
	Bank     domain.FundBank

	// Redis-backed services, nil in standalone mode
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage, nil unless archiving is enabled
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres reports whether the mode persists to a database. Standalone
// keeps everything in process memory.
func needsPostgres(mode string) bool {
	return mode != "standalone"
}

// needsChain reports whether the mode sends transactions on chain.
func needsChain(mode string) bool {
	return mode == "full"
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
	mode := strings.ToLower(cfg.Mode)

	// --- Stores ---
	if needsPostgres(mode) {
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
		deps.Listings = postgres.NewListingStore(pool)
		deps.Purchases = postgres.NewPurchaseStore(pool)
		deps.State = postgres.NewStateStore(pool)
	} else {
		deps.Listings = memory.NewListingStore()
		deps.Purchases = memory.NewPurchaseStore()
		deps.State = memory.NewStateStore(big.NewInt(0))
	}

	// --- Redis (everything but standalone) ---
	if needsPostgres(mode) {
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

		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- Chain-backed collaborators ---
	var backend *ethclient.Client
	if needsChain(mode) || cfg.Oracle.FeedAddress != "" {
		client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ethclient dial %s: %w", cfg.Chain.RPCURL, err)
		}
		closers = append(closers, client.Close)
		backend = client
	}

	if cfg.Oracle.FeedAddress != "" {
		deps.Oracle = oracle.NewChainlinkFeed(backend, common.HexToAddress(cfg.Oracle.FeedAddress))
	} else {
		answer, ok := new(big.Int).SetString(strings.TrimSpace(cfg.Oracle.FixedRate), 10)
		if !ok || answer.Sign() <= 0 {
			cleanup()
			return nil, nil, fmt.Errorf("wire: oracle: invalid fixed_rate %q", cfg.Oracle.FixedRate)
		}
		deps.Oracle = oracle.NewFixedRate(answer, uint8(cfg.Oracle.FixedDecimals))
	}

	if needsChain(mode) {
		operator, err := c9crypto.LoadKey(c9crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}

		chainID := big.NewInt(cfg.Chain.ChainID)
		deps.Registry = chain.NewERC721Registry(backend, common.HexToAddress(cfg.Chain.RegistryAddress), operator, chainID)
		deps.Bank = chain.NewBank(backend, operator, chainID)
	} else {
		ledger := memory.NewAssetLedger()
		deps.Registry = ledger
		deps.Bank = ledger
	}

	// --- S3 blob storage ---
	if cfg.Archive.Enabled {
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
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Purchases, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
