package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gigsocket/internal/app/booking"
	"gigsocket/internal/app/chat"
	"gigsocket/internal/app/dto"
	"gigsocket/internal/app/eventstream"
	"gigsocket/internal/app/notify"
	"gigsocket/internal/app/policies"
	"gigsocket/internal/app/uow"
	domainchat "gigsocket/internal/domain/chat"
	domainnotification "gigsocket/internal/domain/notification"
	domainposts "gigsocket/internal/domain/posts"
	domainuser "gigsocket/internal/domain/user"
	"gigsocket/internal/infra/broker/kafka"
	"gigsocket/internal/infra/broker/redis"
	"gigsocket/internal/infra/config"
	"gigsocket/internal/infra/db/mongo"
	ginserver "gigsocket/internal/infra/http/gin"
	"gigsocket/internal/infra/inbox"
	"gigsocket/internal/infra/obs"
	"gigsocket/internal/infra/outbox"
	"gigsocket/internal/infra/realtime"
	"gigsocket/internal/infra/security"
	"gigsocket/internal/infra/storage/memory"
	"gigsocket/internal/infra/storage/s3"
	"gigsocket/internal/infra/storage/scylla"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("gateway stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

// stores groups the repositories the coordinators need, whichever driver
// backs them.
type stores struct {
	uow           uow.UoWFactory
	bookings      kafka.BookingLoader
	confirmed     chat.BookingLookup
	posts         domainposts.Repository
	users         domainuser.Repository
	notifications *notificationStore
	chat          domainchat.Repository
	inbox         kafka.Inbox
	spool         outbox.Spool
}

type notificationStore struct {
	domainnotification.Repository
	policies.ReviewChecker
}

// run blocks until ctx is cancelled or the HTTP server fails. stop cancels
// ctx when a background loop dies.
func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, logger *slog.Logger) error {
	shutdownTracer, err := obs.InitTracer(ctx, "gigsocket", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	checks := map[string]obs.Check{}
	st, closeStores, err := openStores(ctx, cfg, logger, checks)
	if err != nil {
		return err
	}
	defer closeStores()

	hasher, err := security.NewPasswordHasher(cfg.SystemPasswordCost)
	if err != nil {
		return err
	}
	system, err := chat.EnsureSystemAccount(ctx, st.users, hasher,
		cfg.SystemEmail, cfg.SystemPassword, time.Now().UTC(), uuid.NewString)
	if err != nil {
		return fmt.Errorf("system account: %w", err)
	}
	logger.Info("system account ready", "user_id", system.ID)

	metrics := obs.NewMetrics()
	registry := realtime.NewRegistry()
	rdb, err := redis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	bridge := redis.NewBridge(ctx, rdb, registry, metrics, logger.With("component", "redis"))
	defer bridge.Close()
	checks["redis"] = bridge.Ping
	go func() {
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("redis bridge stopped", "error", err)
			stop()
		}
	}()

	var attachments policies.AttachmentResolver
	if cfg.S3Enabled() {
		store, err := openAttachments(ctx, cfg, logger)
		if err != nil {
			return err
		}
		attachments = store
		checks["s3"] = store.Ping
	}

	router := notify.NewRouter(st.notifications, bridge, logger.With("component", "notify"),
		notify.WithReviews(st.notifications))
	chatCoord := chat.NewCoordinator(chat.Dependencies{
		Chat:         st.chat,
		Users:        st.users,
		Posts:        st.posts,
		Bookings:     st.confirmed,
		Notifier:     router,
		Deliverer:    bridge,
		Attachments:  attachments,
		SystemUserID: system.ID,
		Logger:       logger.With("component", "chat"),
	})

	var events eventstream.Publisher
	if cfg.KafkaEnabled() {
		producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		publisher := kafka.NewPublisher(producer, kafka.EventsTopic(cfg.KafkaTopicPrefix), cfg.KafkaSource, metrics)
		defer publisher.Close()
		relay := outbox.NewRelay(publisher, st.spool, logger.With("component", "outbox"))
		go func() { _ = relay.Run(ctx) }()
		events = relay

		handler := kafka.NewBookingConfirmedHandler(st.inbox, st.bookings, chatCoord, cfg.KafkaSource, metrics, logger.With("component", "kafka"))
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, nil, handler, logger.With("component", "kafka"))
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, []string{cfg.KafkaBookingTopic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
		logger.Info("kafka enabled", "publish_topic", kafka.EventsTopic(cfg.KafkaTopicPrefix), "consume_topic", cfg.KafkaBookingTopic)
	}

	bookingCoord := booking.NewCoordinator(booking.Dependencies{
		UoW:       st.uow,
		Posts:     st.posts,
		Notifier:  router,
		Deliverer: bridge,
		Seeder:    chatCoord,
		Events:    events,
		Logger:    logger.With("component", "booking"),
	})

	gateway := realtime.NewGateway(realtime.GatewayDeps{
		Registry: registry,
		Broker:   bridge,
		Verifier: security.NewJWTVerifier(cfg.JWTSecret, cfg.JWTLeeway),
		Handlers: map[dto.MessageType]realtime.FrameHandler{
			dto.MessageBooking: bookingCoord,
			dto.MessageChat:    chatCoord,
		},
		Metrics: metrics,
		Logger:  logger.With("component", "gateway"),
		Config:  realtime.Config{AllowedOrigins: cfg.AllowedOrigins},
	})
	defer gateway.Close()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: checks},
		ginserver.Handlers{Socket: gateway.Serve, Metrics: metrics.Handler()})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "chat_store", cfg.ChatStore)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger, checks map[string]obs.Check) (stores, func(), error) {
	var st stores
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var mdb *mongo.Client
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return st, nil, err
		}
		closers = append(closers, func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(cctx)
		})
		if err := client.EnsureIndexes(ctx); err != nil {
			closeAll()
			return st, nil, err
		}
		checks["mongo"] = client.Ping
		mdb = client

		bookings := mongo.NewBookingRepository(client.DB)
		users := mongo.NewUserRepository(client.DB)
		notifications := mongo.NewNotificationRepository(client.DB)
		st.uow = mongo.NewFactory(client.DB)
		st.bookings = bookings
		st.confirmed = bookings
		st.posts = mongo.NewPostRepository(client.DB)
		st.users = users
		st.notifications = &notificationStore{Repository: notifications, ReviewChecker: notifications}
		st.chat = mongo.NewChatRepository(client.DB)

		ib, err := inbox.NewStore(ctx, client.DB, cfg.KafkaConsumerGroup)
		if err != nil {
			closeAll()
			return st, nil, err
		}
		st.inbox = ib

		spool, err := outbox.NewStore(ctx, client.DB, time.Minute)
		if err != nil {
			closeAll()
			return st, nil, err
		}
		st.spool = spool
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		mem := memory.NewStore()
		st.uow = memory.Factory{Store: mem}
		st.bookings = mem.Bookings()
		st.confirmed = mem.Bookings()
		st.posts = mem.Posts()
		st.users = mem.Users()
		st.notifications = &notificationStore{Repository: mem.Notifications(), ReviewChecker: mem.Notifications()}
		st.chat = mem.Chat()
		st.inbox = memory.NewInbox()
		st.spool = memory.NewOutbox(nil)
	}

	switch cfg.ChatStore {
	case config.StoreScylla:
		session, err := scylla.NewSession(ctx, scylla.Options{
			Hosts:       cfg.ScyllaHosts,
			Keyspace:    cfg.ScyllaKeyspace,
			Consistency: cfg.ScyllaConsistency,
			Timeout:     cfg.ScyllaTimeout,
		}, logger)
		if err != nil {
			closeAll()
			return st, nil, fmt.Errorf("scylla: %w", err)
		}
		closers = append(closers, session.Close)
		checks["scylla"] = func(ctx context.Context) error {
			return session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
		}
		st.chat = scylla.NewChatRepository(session, logger.With("component", "scylla"))
	case config.StoreMemory:
		if mdb != nil {
			st.chat = memory.NewStore().Chat()
		}
	case config.StoreMongo:
		if mdb == nil {
			logger.Warn("CHAT_STORE=mongo without STORE_DRIVER=mongo, keeping chat in memory")
		}
	}
	return st, closeAll, nil
}

func openAttachments(ctx context.Context, cfg config.Config, logger *slog.Logger) (*s3.AttachmentStore, error) {
	client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	store, err := s3.NewAttachmentStore(client, cfg.S3Bucket, cfg.S3PublicBaseURL, logger.With("component", "s3"))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("s3 bucket %s: %w", cfg.S3Bucket, err)
	}
	return store, nil
}
