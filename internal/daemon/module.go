package daemon

import (
	"context"
	"os"
	"time"

	"github.com/zawajapp/zawaj/internal/auth"
	"github.com/zawajapp/zawaj/internal/bus"
	"github.com/zawajapp/zawaj/internal/cache"
	"github.com/zawajapp/zawaj/internal/chat"
	"github.com/zawajapp/zawaj/internal/config"
	"github.com/zawajapp/zawaj/internal/gateway"
	"github.com/zawajapp/zawaj/internal/lock"
	"github.com/zawajapp/zawaj/internal/logging"
	"github.com/zawajapp/zawaj/internal/notify"
	"github.com/zawajapp/zawaj/internal/presence"
	"github.com/zawajapp/zawaj/internal/rest"
	"github.com/zawajapp/zawaj/internal/session"
	"github.com/zawajapp/zawaj/internal/status"
	"github.com/zawajapp/zawaj/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx
// module.
type Params struct {
	Profile string
}

// Module returns the fx module composing the chat core for one
// profile: providers for every component plus the lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCache,
			provideTokens,
			provideGateway,
			provideRESTClient,
			providePresence,
			provideTyping,
			provideNotify,
			provideConversationList,
			provideThread,
			provideSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCache(p Params, logger *zap.Logger) (*cache.DB, error) {
	dbPath := session.CacheDBPath(p.Profile)
	db, err := cache.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("cache migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("cache migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

// provideTokens resolves the credential seam: an explicit token from
// config or the ZAWAJ_TOKEN environment wins, otherwise the profile's
// token file (kept current by the auth collaborator) is read on every
// use. The source is wrapped in a Watchable so the collaborator's
// rotation hook can swap credentials on a live session.
func provideTokens(p Params, cfg *config.Config) *auth.Watchable {
	if cfg.Gateway.Token != "" {
		return auth.NewWatchable(auth.Static(cfg.Gateway.Token))
	}
	if tok := os.Getenv("ZAWAJ_TOKEN"); tok != "" {
		return auth.NewWatchable(auth.Static(tok))
	}
	return auth.NewWatchable(&auth.FileSource{Path: session.TokenPath(p.Profile)})
}

func provideGateway(cfg *config.Config, tokens *auth.Watchable, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *gateway.Manager {
	return gateway.NewManager(gateway.Options{
		URL:                  cfg.Gateway.URL,
		MaxReconnectAttempts: cfg.Gateway.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Gateway.ReconnectDelay.Std(),
		MaxReconnectDelay:    cfg.Gateway.MaxReconnectDelay.Std(),
		AckTimeout:           cfg.Gateway.AckTimeout.Std(),
	}, tokens, b, machine, logger)
}

func provideRESTClient(cfg *config.Config, tokens *auth.Watchable) *rest.Client {
	return rest.NewClient(cfg.API.BaseURL, cfg.API.Timeout.Std(), tokens)
}

func providePresence(b *bus.Bus) *presence.Tracker {
	return presence.NewTracker(b)
}

func provideTyping(cfg *config.Config, gw *gateway.Manager) *typing.Coordinator {
	return typing.NewCoordinator(gw, typing.Options{
		AutoStop:     cfg.Chat.TypingAutoStop.Std(),
		RemoteExpiry: cfg.Chat.TypingRemoteExpiry.Std(),
	})
}

func provideNotify(cfg *config.Config) *notify.Relay {
	return notify.NewRelay(cfg.Chat.NotificationCap)
}

func provideConversationList(cfg *config.Config, api *rest.Client) *chat.ConversationList {
	return chat.NewConversationList(api, cfg.UserID, cfg.Chat.ConversationPageSize)
}

func provideThread(cfg *config.Config, gw *gateway.Manager, api *rest.Client, logger *zap.Logger) *chat.Thread {
	return chat.NewThread(gw, api, cfg.UserID, cfg.Chat.MessagePageSize, logger)
}

func provideSession(p Params, cfg *config.Config, b *bus.Bus, gw *gateway.Manager, api *rest.Client, tracker *presence.Tracker, coord *typing.Coordinator, relay *notify.Relay, convs *chat.ConversationList, thread *chat.Thread, db *cache.DB, logger *zap.Logger) *chat.Session {
	return chat.NewSession(chat.SessionDeps{
		SelfID:   cfg.UserID,
		Bus:      b,
		Gateway:  gw,
		API:      api,
		Presence: tracker,
		Typing:   coord,
		Notify:   relay,
		Convs:    convs,
		Thread:   thread,
		Cache:    db,
		Logger:   logger,
	})
}

// channelRedialer is the slice of the gateway manager the credential
// rotation hook needs.
type channelRedialer interface {
	Disconnect()
	Connect(ctx context.Context) error
}

// watchAuth tears the live channel down whenever the credential
// rotates and, when a new token exists, re-dials so it takes effect
// immediately. Rotation to no token (logout) leaves the channel down.
func watchAuth(tokens *auth.Watchable, gw channelRedialer, logger *zap.Logger) {
	tokens.OnChange(func(tok string) {
		logger.Info("credential rotated", zap.Bool("has_token", tok != ""))
		gw.Disconnect()
		if tok == "" {
			return
		}
		if err := gw.Connect(context.Background()); err != nil {
			logger.Error("reconnect with rotated credential failed", zap.Error(err))
		}
	})
}

func registerLifecycle(lc fx.Lifecycle, sess *chat.Session, gw *gateway.Manager, tokens *auth.Watchable, db *cache.DB, lk *lock.Lock, logger *zap.Logger) {
	watchAuth(tokens, gw, logger)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			sess.Start(context.Background())

			go func() {
				if err := sess.Connect(context.Background()); err != nil {
					logger.Error("gateway connect failed", zap.Error(err))
				}
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := sess.LoadConversations(ctx, 1); err != nil {
					logger.Warn("initial conversation load failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			sess.Stop()
			gw.Disconnect()
			if err := db.Close(); err != nil {
				logger.Warn("error closing cache", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
