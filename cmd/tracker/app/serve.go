package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"smart-stick/tracker/internal/auth"
	"smart-stick/tracker/internal/config"
	"smart-stick/tracker/internal/firmware"
	"smart-stick/tracker/internal/log"
	"smart-stick/tracker/internal/notify"
	"smart-stick/tracker/internal/pipeline"
	"smart-stick/tracker/internal/realtime"
	"smart-stick/tracker/internal/server"
	"smart-stick/tracker/internal/service"
	"smart-stick/tracker/internal/store"
	httptransport "smart-stick/tracker/internal/transport/http"
	mqtttransport "smart-stick/tracker/internal/transport/mqtt"
)

func newServeCommand(logOpts *log.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker API, realtime channel and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, logOpts)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	pg, err := store.NewPostgresStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()
	log.Info("Connected to PostgreSQL", "host", cfg.DBHost, "db", cfg.DBName)

	var rdb *store.RedisStore
	if cfg.RedisEnabled() {
		rdb, err = store.NewRedisStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		log.Info("Connected to Redis", "addr", cfg.RedisAddr)
	} else {
		log.Warn("REDIS_ADDR empty, running as a single instance without state cache or alert queue")
	}

	alerts := notify.NewDispatcher(pg, pg, cfg.NotifyTimeout, notifiers(ctx, cfg)...)

	mgr := server.NewManager()

	mirrorSize := 0
	var influx *store.InfluxStore
	if cfg.MirrorEnabled() {
		influx, err = store.NewInfluxStore(ctx, cfg)
		if err != nil {
			log.Error(err, "InfluxDB mirror disabled")
		} else {
			defer influx.Close()
			mirrorSize = cfg.MirrorChannelSize
		}
	}
	stateSize := 0
	if rdb != nil {
		stateSize = cfg.StateChannelSize
	}
	writers := pipeline.NewDispatcher(stateSize, mirrorSize)

	hub := realtime.NewHub()
	deps := service.Deps{
		Reports:  pg,
		Owners:   pg,
		Emitter:  realtime.NewLocalEmitter(hub),
		Writers:  writers,
		Fallback: alerts,
	}
	checks := map[string]httptransport.Checker{"postgres": pg.Ping}
	if rdb != nil {
		deps.Emitter = realtime.NewRedisEmitter(rdb)
		deps.Alerts = rdb
		checks["redis"] = rdb.Ping
	}
	tracking := service.NewTracking(deps, cfg.AlertKeepAlive)

	fw, err := firmwareService(ctx, cfg)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTExpiresIn)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Handlers:       httptransport.NewHandlers(tracking, fw, checks),
		Auth:           httptransport.NewAuthMiddleware(auth.NewDeviceAuthenticator(cfg.DeviceAPIKey), tokens),
		Realtime:       realtime.NewHandler(hub, tokens, cfg.AllowedOrigins()),
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	mgr.Add(httptransport.NewServer(":"+cfg.HTTPPort, router))
	if rdb != nil {
		mgr.Add(realtime.NewRelay(rdb, hub))
		mgr.Add(pipeline.NewNotificationWorker(rdb, alerts, cfg.NotifyWorkers))
	}
	if writers.StateChan != nil {
		mgr.Add(pipeline.NewStateWriter(writers.StateChan, rdb, cfg.StateBatchSize, cfg.StateFlushInterval))
	}
	if writers.MirrorChan != nil {
		mgr.Add(pipeline.NewMirrorWriter(writers.MirrorChan, influx, cfg.MirrorBatchSize, cfg.MirrorFlushInterval))
	}

	if cfg.MQTTEnabled() {
		client, err := mqtttransport.NewClient(mqtttransport.ClientConfig{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
		})
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		mgr.Add(mqtttransport.NewServer(client, tracking))
	}

	return mgr.Start(ctx)
}

// notifiers builds the channels that have credentials. A channel that fails
// to initialize is logged and left out.
func notifiers(ctx context.Context, cfg *config.Config) []notify.Notifier {
	var out []notify.Notifier

	if cfg.EmailEnabled() {
		email, err := notify.NewEmailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass)
		if err != nil {
			log.Error(err, "Email notifications disabled")
		} else {
			out = append(out, email)
		}
	} else {
		log.Warn("EMAIL_USER or EMAIL_PASS not set, email notifications disabled")
	}

	if cfg.PushEnabled() {
		push, err := notify.NewPushNotifier(ctx, cfg.FirebaseServiceAccount, cfg.FirebaseServiceAccountFile)
		if err != nil {
			log.Error(err, "Push notifications disabled")
		} else {
			out = append(out, push)
		}
	} else {
		log.Warn("Firebase credentials not set, push notifications disabled")
	}

	return out
}

func firmwareService(ctx context.Context, cfg *config.Config) (*firmware.Service, error) {
	if !cfg.FirmwareStorageEnabled() {
		log.Warn("S3_ENDPOINT not set, firmware updates unavailable")
		return firmware.NewService(nil, cfg.LatestFirmwareVersion), nil
	}

	storage, err := firmware.NewMinIOStorage(cfg)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckBucket(ctx); err != nil {
		log.Error(err, "Firmware bucket check failed", "bucket", cfg.FirmwareBucket)
	}
	return firmware.NewService(storage, cfg.LatestFirmwareVersion), nil
}
