package main

import (
	"context"
	"database/sql"

	config "github.com/davicafu/eventlab/internal/config"
	itemApp "github.com/davicafu/eventlab/internal/item/application"
	itemEvents "github.com/davicafu/eventlab/internal/item/infra/inbound/events"
	itemHttp "github.com/davicafu/eventlab/internal/item/infra/inbound/http"
	chArchive "github.com/davicafu/eventlab/internal/item/infra/outbound/analytics/clickhouse"
	rowCache "github.com/davicafu/eventlab/internal/item/infra/outbound/cache"
	mongoRepo "github.com/davicafu/eventlab/internal/item/infra/outbound/db/mongodb"
	pgReadRepo "github.com/davicafu/eventlab/internal/item/infra/outbound/db/postgres"
	sqliteReadRepo "github.com/davicafu/eventlab/internal/item/infra/outbound/db/sqlite"
	itemDomain "github.com/davicafu/eventlab/internal/item/domain"
	sharedDomain "github.com/davicafu/eventlab/internal/shared/domain"
	infraEvents "github.com/davicafu/eventlab/internal/shared/infra/events"
	pgStore "github.com/davicafu/eventlab/internal/shared/infra/db/postgres"
	sqliteStore "github.com/davicafu/eventlab/internal/shared/infra/db/sqlite"
	infraRelayer "github.com/davicafu/eventlab/internal/shared/infra/relayer"
	sharedBus "github.com/davicafu/eventlab/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/eventlab/internal/shared/infra/platform/cache"

	"github.com/davicafu/eventlab/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	// _ "github.com/mattn/go-sqlite3" // requires gcc
	_ "modernc.org/sqlite"
)

// ---------------- Main ----------------
func main() {
	logger.Init()          // inicializa zap
	log := logger.Logger() // obtiene logger estructurado
	defer log.Sync()       // flush buffers al salir

	ctx := context.Background()
	cfg := config.LoadConfig()

	// ---------------- DB / Event Store ----------------
	var db *sql.DB
	var err error
	var store sharedDomain.EventStore
	var outboxRepo sharedDomain.OutboxRepository
	var readRepo itemDomain.ItemReadModelRepository
	var sqliteRepo *sqliteReadRepo.ItemReadModelSQLite
	var pgRepo *pgReadRepo.ItemReadModelPostgres

	if cfg.LocalDeployment {
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			log.Fatal("failed to open SQLite", zap.Error(err))
		}
		if err := sqliteStore.InitSQLite(db); err != nil {
			log.Fatal("failed to initialize SQLite schema", zap.Error(err))
		}
	} else {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to open PostgreSQL", zap.Error(err))
		}
		if err := pgStore.InitPostgres(db); err != nil {
			log.Fatal("failed to initialize PostgreSQL schema", zap.Error(err))
		}
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal("failed to ping database", zap.Error(err))
	}

	// ---------------- Read model ----------------
	switch cfg.ReadModel {
	case "mongo":
		if cfg.SyncProjection {
			log.Fatal("mongo read model only supports asynchronous projection")
		}
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Disconnect(ctx)

		readRepo, err = mongoRepo.NewItemReadModelMongo(ctx, mongoClient, cfg.MongoDBName)
		if err != nil {
			log.Fatal("failed to initialize Mongo read model", zap.Error(err))
		}
	default:
		if cfg.LocalDeployment {
			sqliteRepo = sqliteReadRepo.NewItemReadModelSQLite(db)
			readRepo = sqliteRepo
		} else {
			pgRepo = pgReadRepo.NewItemReadModelPostgres(db)
			readRepo = pgRepo
		}
	}

	// El store se construye después del read model para poder engancharlo
	// como proyector síncrono dentro de la transacción del append.
	if cfg.LocalDeployment {
		var opts []sqliteStore.Option
		if cfg.SyncProjection {
			log.Info("🔗 Proyección síncrona: misma transacción que el append")
			opts = append(opts, sqliteStore.WithTxProjector(sqliteRepo.ProjectTx))
		}
		s := sqliteStore.NewEventStoreSQLite(db, opts...)
		store, outboxRepo = s, s
	} else {
		var opts []pgStore.Option
		if cfg.SyncProjection {
			log.Info("🔗 Proyección síncrona: misma transacción que el append")
			opts = append(opts, pgStore.WithTxProjector(pgRepo.ProjectTx))
		}
		s := pgStore.NewEventStorePostgres(db, opts...)
		store, outboxRepo = s, s
	}

	// ---------------- Cache ----------------
	var cacheInstance sharedCache.Cache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("⚠️ Redis no disponible, cache en memoria:", zap.Error(err))
		cacheInstance = rowCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
	} else {
		cacheInstance = rowCache.NewRedisCache(rdb, cfg.CacheTTL)
		log.Info("✅ Redis conectado, cache habilitado")
	}

	// --------------- Servicios --------------
	commandService := itemApp.NewCommandService(store, log)
	queryService := itemApp.NewQueryService(readRepo, store, cacheInstance, log)

	// ---------------- Events ---------------
	var publisher sharedBus.EventBus

	itemConsumer := itemEvents.NewItemConsumer(readRepo, log)

	if cfg.UseKafka {
		log.Info("🚀 Usando Kafka como canal de despacho")

		writer := kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		defer writer.Close()

		publisher = infraEvents.NewKafkaPublisher(writer, log)

		if !cfg.SyncProjection {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.KafkaBrokers,
				Topic:    cfg.KafkaTopic,
				GroupID:  "eventlab-projector",
				MinBytes: 10e3, // 10KB
				MaxBytes: 10e6, // 10MB
			})
			defer reader.Close()

			projectionAdapter := infraEvents.NewConsumerAdapter(reader, itemConsumer, log)
			projectionAdapter.Start(ctx)
		}

		if cfg.UseClickhouse {
			archive, err := chArchive.NewEventArchive(cfg.ClickhouseAddr, cfg.ClickhouseDB, log)
			if err != nil {
				log.Fatal("failed to connect to ClickHouse", zap.Error(err))
			}
			archiveReader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.KafkaBrokers,
				Topic:    cfg.KafkaTopic,
				GroupID:  "eventlab-archiver",
				MinBytes: 10e3,
				MaxBytes: 10e6,
			})
			defer archiveReader.Close()

			archiveAdapter := infraEvents.NewConsumerAdapter(archiveReader, archive, log)
			archiveAdapter.Start(ctx)
		}
	} else {
		log.Info("⚡️Usando bus de eventos en memoria (canales de Go)")

		inMemoryBus := infraEvents.NewInMemoryEventBus(itemDomain.ItemTopic)
		publisher = inMemoryBus

		if !cfg.SyncProjection {
			log.Info("🎧 Iniciando proyector asíncrono en memoria")
			itemEvents.BackgroundConsumerChan(ctx, inMemoryBus.Subscribe(10), itemConsumer)
		}
	}

	// ------------ Outbox Worker ------------
	// Se podría ejecutar externamente
	outboxWorker := infraRelayer.NewOutboxWorker(outboxRepo, publisher, cfg.OutboxPeriod, cfg.OutboxLimit, log)
	outboxWorker.Start(ctx)

	// ---------------- HTTP ----------------
	itemHandler := itemHttp.NewItemHandler(commandService, queryService, cfg.RetryAfter)
	router := gin.Default()
	itemHttp.RegisterItemRoutes(router, itemHandler)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	log.Info("🚀 Server running",
		zap.String("url", "http://localhost:"+cfg.HTTPPort),
	)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}
