package app

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/sentiric/sentiric-missed-call-service/internal/client"
	"github.com/sentiric/sentiric-missed-call-service/internal/config"
	"github.com/sentiric/sentiric-missed-call-service/internal/database"
	"github.com/sentiric/sentiric-missed-call-service/internal/dialog"
	grpchealth "github.com/sentiric/sentiric-missed-call-service/internal/grpc"
	"github.com/sentiric/sentiric-missed-call-service/internal/handler"
	"github.com/sentiric/sentiric-missed-call-service/internal/markup"
	"github.com/sentiric/sentiric-missed-call-service/internal/metrics"
	"github.com/sentiric/sentiric-missed-call-service/internal/queue"
	"github.com/sentiric/sentiric-missed-call-service/internal/service"
	"github.com/sentiric/sentiric-missed-call-service/internal/state"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Cfg *config.Config
	Log zerolog.Logger
}

func NewApp(cfg *config.Config, log zerolog.Logger) *App {
	return &App{Cfg: cfg, Log: log}
}

// infra holds the optional backing services. Nil fields are disabled.
type infra struct {
	db        *sql.DB
	rdb       *redis.Client
	rabbitCon *amqp091.Connection
	rabbitCh  *amqp091.Channel
	closeChan <-chan *amqp091.Error
}

func (i *infra) close() {
	if i.rabbitCh != nil {
		i.rabbitCh.Close()
	}
	if i.rabbitCon != nil {
		i.rabbitCon.Close()
	}
	if i.rdb != nil {
		i.rdb.Close()
	}
	if i.db != nil {
		i.db.Close()
	}
}

func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Infrastructure
	inf, err := a.initInfra(ctx)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Infrastructure could not be initialised.")
	}
	defer inf.close()

	// 2. Dependencies
	var wg sync.WaitGroup
	store := a.newStore(ctx, inf, &wg)

	var publisher service.EventPublisher
	if inf.rabbitCh != nil {
		publisher = queue.NewPublisher(inf.rabbitCh, a.Log)
	}
	var voicemails service.VoicemailLog
	if inf.db != nil {
		repo := database.NewVoicemailRepository(inf.db)
		if err := repo.EnsureSchema(ctx); err != nil {
			a.Log.Fatal().Err(err).Msg("Voicemail table could not be created.")
		}
		voicemails = repo
	}

	gateway := client.NewTwilioClient(a.Cfg.TwilioAccountSID, a.Cfg.TwilioAuthToken, a.Log)
	callbacks := service.NewCallbackService(a.Cfg, gateway, publisher, voicemails)
	machine := dialog.NewMachine(store, metrics.StageTransitions)
	documents := markup.NewBuilder(markup.Options{
		Voice:               a.Cfg.VoiceName,
		Language:            a.Cfg.VoiceLanguage,
		BaseURL:             a.Cfg.BaseURL,
		MaxRecordingSeconds: a.Cfg.MaxRecordingSeconds,
		Prompts:             markup.DefaultPrompts(),
	})
	webhooks := handler.NewWebhookHandler(callbacks, machine, documents, a.Log,
		metrics.WebhooksProcessed, metrics.WebhooksFailed, metrics.CallStatuses)

	// 3. Servers
	go metrics.StartServer(a.Cfg.MetricsPort, a.Log)

	httpServer := &http.Server{
		Addr:              ":" + a.Cfg.HTTPPort,
		Handler:           webhooks.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go a.startHTTP(httpServer)

	var health *grpchealth.HealthServer
	if a.Cfg.GrpcPort != "" {
		health = grpchealth.NewHealthServer(a.Log)
		go a.startGRPC(health)
		health.SetServing(true)
	}

	// 4. RabbitMQ worker
	if inf.rabbitCh != nil {
		events := handler.NewEventHandler(callbacks, a.Log, metrics.EventsProcessed, metrics.EventsFailed)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := queue.StartConsumer(ctx, inf.rabbitCh, events.HandleMessage, a.Log, &wg); err != nil {
				a.Log.Error().Err(err).Msg("RabbitMQ consumer stopped with an error.")
			}
		}()
	}

	// 5. Shutdown
	a.handleShutdown(cancel, httpServer, health, &wg, inf.closeChan)
}

func (a *App) initInfra(ctx context.Context) (*infra, error) {
	inf := &infra{}
	var err error

	if a.Cfg.PostgresURL != "" {
		if inf.db, err = database.Connect(ctx, a.Cfg.PostgresURL, a.Log); err != nil {
			inf.close()
			return nil, err
		}
	}
	if a.Cfg.RedisURL != "" {
		if inf.rdb, err = database.ConnectRedis(ctx, a.Cfg.RedisURL, a.Log); err != nil {
			inf.close()
			return nil, err
		}
	}
	if a.Cfg.RabbitMQURL != "" {
		if inf.rabbitCon, inf.rabbitCh, inf.closeChan, err = queue.Connect(ctx, a.Cfg.RabbitMQURL, a.Log); err != nil {
			inf.close()
			return nil, err
		}
	}
	return inf, nil
}

// newStore keeps conversations in Redis when it is configured and in
// process memory otherwise. The memory store is swept in the background.
func (a *App) newStore(ctx context.Context, inf *infra, wg *sync.WaitGroup) state.Store {
	if inf.rdb != nil {
		a.Log.Info().Msg("Conversation state is kept in Redis.")
		return state.NewRedisStore(inf.rdb, a.Cfg.StateTTL)
	}

	a.Log.Info().Dur("ttl", a.Cfg.StateTTL).Msg("Conversation state is kept in memory.")
	store := state.NewMemoryStore(a.Cfg.StateTTL)
	wg.Add(2)
	go func() {
		defer wg.Done()
		store.Run(ctx, a.Cfg.StateSweepInterval, a.Log)
	}()
	go func() {
		defer wg.Done()
		reportActiveConversations(ctx, store, a.Cfg.StateSweepInterval)
	}()
	return store
}

func reportActiveConversations(ctx context.Context, store *state.MemoryStore, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		metrics.ActiveConversations.Set(float64(store.Len()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) startHTTP(srv *http.Server) {
	a.Log.Info().Str("addr", srv.Addr).Msg("Webhook server listening.")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Log.Fatal().Err(err).Msg("Webhook server failed.")
	}
}

func (a *App) startGRPC(hs *grpchealth.HealthServer) {
	lis, err := net.Listen("tcp", ":"+a.Cfg.GrpcPort)
	if err != nil {
		a.Log.Fatal().Err(err).Str("port", a.Cfg.GrpcPort).Msg("gRPC listener could not be opened.")
	}
	if err := hs.Serve(lis); err != nil {
		a.Log.Error().Err(err).Msg("gRPC health server failed.")
	}
}

func (a *App) handleShutdown(cancel context.CancelFunc, srv *http.Server, health *grpchealth.HealthServer, wg *sync.WaitGroup, closeChan <-chan *amqp091.Error) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	// A nil closeChan blocks forever, which is what we want without RabbitMQ.
	select {
	case s := <-sig:
		a.Log.Info().Str("signal", s.String()).Msg("Shutdown signal received.")
	case err := <-closeChan:
		a.Log.Error().Err(err).Msg("RabbitMQ connection lost.")
	}

	if health != nil {
		health.SetServing(false)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Error().Err(err).Msg("Webhook server did not shut down cleanly.")
	}

	cancel()
	if health != nil {
		health.Stop()
	}
	wg.Wait()
	a.Log.Info().Msg("Service stopped.")
}
