package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nftsync/internal/admin"
	"nftsync/internal/chain"
	"nftsync/internal/config"
	"nftsync/internal/events"
	"nftsync/internal/handlers"
	"nftsync/internal/kv"
	"nftsync/internal/notify"
	"nftsync/internal/pipeline"
	"nftsync/internal/queue"
	"nftsync/internal/reorg"
	"nftsync/internal/storage"
	"nftsync/internal/storage/clickhouse"
	"nftsync/internal/storage/memory"
	"nftsync/internal/storage/postgres"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	network config.Network

	chain      *chain.Client
	pg         *postgres.Store
	store      storage.Store
	cache      kv.Store
	queues     *queue.Manager
	activities *clickhouse.ActivityStore
	hub        *notify.Hub
	txValues   *handlers.TxValueCache

	closers []func()
}

type appOptions struct {
	needChain    bool
	pollInterval time.Duration
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.open(ctx, opts); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, opts appOptions) error {
	chainID := a.cfg.ChainID
	if opts.needChain {
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		client, err := chain.NewClient(ctx, a.cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		a.chain = client
		a.closers = append(a.closers, client.Close)

		if chainID == 0 {
			if chainID, err = client.ChainID(ctx); err != nil {
				return fmt.Errorf("get chain id: %w", err)
			}
		}
	}
	if chainID == 0 {
		chainID = 1
	}
	network, err := config.NetworkFor(chainID, a.cfg.NetworkOverrides)
	if err != nil {
		return err
	}
	a.network = network

	var broker queue.Broker
	if a.cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		a.pg = pg
		a.store = pg
		a.cache = pg.KV()
		broker = pg.Broker()
	} else {
		a.logger.Warn("no pg-dsn set, using in-memory store and queues")
		a.store = memory.NewStore()
		a.cache = kv.NewMemory()
		broker = queue.NewMemoryBroker()
	}

	if a.cfg.ClickHouseDSN != "" {
		conn, err := clickhouse.NewConn(ctx, a.cfg.ClickHouseDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.activities = clickhouse.NewActivityStore(conn)
		if err := a.activities.Migrate(ctx); err != nil {
			return err
		}
	}

	var qopts []queue.Option
	if opts.pollInterval > 0 {
		qopts = append(qopts, queue.WithPollInterval(opts.pollInterval))
	}
	a.queues = queue.NewManager(broker, a.cache, a.logger, qopts...)
	a.hub = notify.NewHub(a.logger)
	a.closers = append(a.closers, a.hub.Close)

	a.logger.Info("dependencies ready",
		zap.String("network", network.Name),
		zap.Uint64("chain_id", network.ChainID),
		zap.String("pg_dsn", redactDSN(a.cfg.PGDSN)),
		zap.String("clickhouse_dsn", redactDSN(a.cfg.ClickHouseDSN)),
	)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// declareQueues registers the pipeline queues and binds the handlers this
// process can serve.
func (a *app) declareQueues(concurrency map[string]int) error {
	err := pipeline.Declare(a.queues, pipeline.QueueOptions{
		MaxRetries:  a.cfg.MaxRetries,
		Backoff:     a.cfg.RetryBackoff,
		Concurrency: concurrency,
	})
	if err != nil {
		return err
	}

	post := &pipeline.FillPostProcessor{
		Store:  a.store,
		Locks:  a.cache,
		Logger: a.logger.Named("fill-post-process"),
	}
	if a.chain != nil {
		post.Payments = a.chain
	}
	if err := a.queues.SetHandler(pipeline.QueueFillPostProcess, post.Handle); err != nil {
		return err
	}

	cleanup := &reorg.Cleanup{Store: a.store, Logger: a.logger.Named("reorg")}
	if a.activities != nil {
		cleanup.Indexes = append(cleanup.Indexes, a.activities)
	}
	if err := a.queues.SetHandler(reorg.Queue, cleanup.Handle); err != nil {
		return err
	}

	ws := &pipeline.WebsocketPublisher{Hub: a.hub}
	if err := a.queues.SetHandler(pipeline.QueueWebsocket, ws.Handle); err != nil {
		return err
	}

	if a.activities != nil {
		indexer := &pipeline.ActivityIndexer{
			Store:   a.store,
			Sink:    a.activities,
			Network: a.network,
			Logger:  a.logger.Named("activities"),
		}
		if err := a.queues.SetHandler(pipeline.QueueActivities, indexer.Handle); err != nil {
			return err
		}
	}
	return nil
}

// extractor builds the event extractor restricted to the sync-events list.
func (a *app) extractor() (*events.Extractor, error) {
	catalogue, err := events.NewCatalogue(a.network)
	if err != nil {
		return nil, err
	}
	catalogue, err = catalogue.Restrict(a.cfg.SyncEvents)
	if err != nil {
		return nil, err
	}
	return events.NewExtractor(a.chain, catalogue, a.network.ChainID), nil
}

func (a *app) processor() (*pipeline.Processor, error) {
	registry, err := handlers.NewDefaultRegistry(a.logger.Named("handlers"))
	if err != nil {
		return nil, err
	}
	a.txValues = handlers.NewTxValueCache(a.chain)
	decode := handlers.DecodeContext{
		Network: a.network,
		Chain:   a.txValues,
		Logger:  a.logger.Named("decode"),
	}
	if a.cfg.DecodeErrors != "" {
		decode.Errors = storage.NewJsonlStorage(a.cfg.DecodeErrors)
	}
	return pipeline.NewProcessor(registry, a.store, a.queues, decode, a.logger.Named("processor")), nil
}

func (a *app) admin() *admin.Server {
	if a.cfg.AdminAddr == "" {
		return nil
	}
	return admin.New(a.cfg.AdminAddr, a.queues, a.hub, a.logger.Named("admin"))
}

// serve runs the admin server and, when workers is set, every queue with a
// handler next to fn. Everything stops when fn returns or ctx is cancelled.
func (a *app) serve(ctx context.Context, workers bool, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if srv := a.admin(); srv != nil {
		g.Go(func() error { return srv.Run(gctx) })
	}
	if workers {
		g.Go(func() error { return a.queues.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
