// Package wiring builds the canvas components from configuration. Every
// binary goes through Setup so that the storage and notification choices are
// made in one place.
package wiring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/clients/mint_client"
	"github.com/mcdev12/pixelplace/go/internal/canvas/api"
	"github.com/mcdev12/pixelplace/go/internal/canvas/archive"
	"github.com/mcdev12/pixelplace/go/internal/canvas/cooldown"
	"github.com/mcdev12/pixelplace/go/internal/canvas/gateway"
	"github.com/mcdev12/pixelplace/go/internal/canvas/pixel"
	"github.com/mcdev12/pixelplace/go/internal/canvas/placement"
	"github.com/mcdev12/pixelplace/go/internal/canvas/reconciler"
	"github.com/mcdev12/pixelplace/go/internal/canvas/session"
	"github.com/mcdev12/pixelplace/go/internal/config"
	"github.com/mcdev12/pixelplace/go/internal/db"
)

type Services struct {
	Config config.Config
	Clock  clockwork.Clock

	Sessions   *session.App
	Pixels     *pixel.App
	Cooldowns  *cooldown.Tracker
	Placement  *placement.Controller
	Archives   *archive.App
	Reconciler *reconciler.Reconciler

	Hub       *gateway.Hub
	Publisher *gateway.JetStreamPublisher
	Consumer  *gateway.EventConsumer

	database *sql.DB
	redis    *redis.Client
}

// Setup wires Database → Repository → App → controllers according to cfg.
func Setup(ctx context.Context, cfg config.Config, clock clockwork.Clock) (*Services, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Services{Config: cfg, Clock: clock}

	if err := s.setupStorage(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setupRealtime(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) setupStorage(ctx context.Context) error {
	cfg := s.Config

	var (
		sessionRepo  session.SessionRepository
		pixelRepo    pixel.PixelRepository
		cooldownRepo cooldown.CooldownRepository
	)

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		database, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		s.database = database
		sessionRepo = session.NewRepository(database)
		pixelRepo = pixel.NewRepository(database)
	case config.BackendMemory:
		log.Warn().Msg("using in-memory storage; state is lost on restart")
		sessionRepo = session.NewMemoryRepository(s.Clock.Now)
		pixelRepo = pixel.NewMemoryRepository()
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	switch cfg.CooldownBackend {
	case config.BackendPostgres:
		if s.database == nil {
			return errors.New("postgres cooldown backend requires postgres storage")
		}
		cooldownRepo = cooldown.NewRepository(s.database)
	case config.BackendRedis:
		client, err := cooldown.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		s.redis = client
		cooldownRepo = cooldown.NewRedisRepository(client, cfg.Canvas.Cooldown())
	case config.BackendMemory:
		cooldownRepo = cooldown.NewMemoryRepository()
	default:
		return fmt.Errorf("unknown cooldown backend %q", cfg.CooldownBackend)
	}

	s.Sessions = session.NewApp(sessionRepo, s.Clock, cfg.Canvas.SessionDuration())
	s.Pixels = pixel.NewApp(pixelRepo)
	s.Cooldowns = cooldown.NewTracker(cooldownRepo, s.Clock)

	var archiveRepo archive.ArchiveRepository
	if s.database != nil {
		archiveRepo = archive.NewRepository(s.database)
	} else {
		archiveRepo = archive.NewMemoryRepository(s.Sessions)
	}
	s.Archives = archive.NewApp(archiveRepo, s.Sessions, s.Pixels, s.minter(), s.Clock)

	grid := placement.Grid{
		Width:    cfg.Canvas.Width,
		Height:   cfg.Canvas.Height,
		Cooldown: cfg.Canvas.Cooldown(),
	}
	s.Placement = placement.NewController(grid, s.Sessions, s.Pixels, s.Cooldowns, s.Clock)
	s.Reconciler = reconciler.New(s.Sessions, s.Archives, s.Clock, cfg.ReconcileInterval)

	log.Info().
		Str("storage", cfg.StorageBackend).
		Str("cooldown", cfg.CooldownBackend).
		Int("width", grid.Width).
		Int("height", grid.Height).
		Dur("cooldown_window", grid.Cooldown).
		Msg("canvas services ready")
	return nil
}

func (s *Services) minter() archive.Minter {
	if s.Config.MintServiceURL == "" {
		log.Info().Msg("MINT_SERVICE_URL not set, using placeholder minter")
		return archive.NewStubMinter(s.Clock, "/canvas/snapshot")
	}
	log.Info().Str("url", s.Config.MintServiceURL).Msg("using external mint service")
	return mint_client.NewClient(s.Config.MintServiceURL, s.Config.MintAPIKey)
}

// setupRealtime picks the event sink. Without NATS the notifier feeds the local
// hub directly; with NATS every event goes through JetStream and comes back
// via each process's consumer, so all processes see the same stream.
func (s *Services) setupRealtime(ctx context.Context) error {
	s.Hub = gateway.NewHub(0)

	var sink gateway.Sink = s.Hub
	if s.Config.NATSURL != "" {
		pubCfg := gateway.DefaultJetStreamConfig()
		pubCfg.URL = s.Config.NATSURL
		publisher, err := gateway.NewJetStreamPublisher(ctx, pubCfg)
		if err != nil {
			return err
		}
		s.Publisher = publisher
		sink = publisher
	}

	notifier := gateway.NewNotifier(sink, s.Clock)
	s.Sessions.SetNotifier(notifier)
	s.Placement.SetNotifier(notifier)
	return nil
}

// StartRealtime runs the hub and, when NATS is configured, a JetStream consumer
// feeding it. Only processes serving websockets need this.
func (s *Services) StartRealtime(ctx context.Context) error {
	if s.Config.NATSURL != "" {
		consumer, err := NewHubConsumer(ctx, s.Hub, s.Config.NATSURL)
		if err != nil {
			return err
		}
		s.Consumer = consumer
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}
	go s.Hub.Start(ctx)
	return nil
}

// NewHubConsumer creates a JetStream consumer, unique to this process, that
// rebroadcasts canvas events into hub.
func NewHubConsumer(ctx context.Context, hub *gateway.Hub, natsURL string) (*gateway.EventConsumer, error) {
	cfg := gateway.DefaultJetStreamConsumerConfig()
	cfg.URL = natsURL
	cfg.ConsumerName = "canvas-gateway-" + uuid.NewString()[:8]
	return gateway.NewEventConsumer(ctx, hub, cfg)
}

// HealthChecks returns one check per external dependency in use.
func (s *Services) HealthChecks() map[string]api.HealthCheck {
	checks := make(map[string]api.HealthCheck)
	if s.database != nil {
		checks["database"] = s.database.PingContext
	}
	if s.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		}
	}
	if s.Publisher != nil {
		checks["nats"] = func(context.Context) error {
			if !s.Publisher.Connected() {
				return errors.New("not connected")
			}
			return nil
		}
	}
	return checks
}

// Handler builds the HTTP surface over these services.
func (s *Services) Handler() http.Handler {
	h := api.NewHandler(api.Deps{
		Canvas:    s.Config.Canvas,
		Sessions:  s.Sessions,
		Pixels:    s.Pixels,
		Placer:    s.Placement,
		Archives:  s.Archives,
		Cooldowns: s.Cooldowns,
		Sweeper:   s.Reconciler,
		Realtime:  gateway.NewWebSocketHandler(s.Hub, gateway.DefaultConnectionConfig()),
		Checks:    s.HealthChecks(),
	})
	return api.NewRouter(h)
}

// Close releases every connection Setup opened.
func (s *Services) Close() {
	if s.Consumer != nil {
		s.Consumer.Stop()
	}
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis client")
		}
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
