package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow/api"
	"taskflow/audit"
	"taskflow/client"
	"taskflow/internal/config"
	"taskflow/session"
	"taskflow/storage"
	"taskflow/userdir"
)

// app is the wiring shared by every command.
type app struct {
	cfg      config.Config
	logger   *log.Logger
	client   *client.Client
	redis    *redis.Client
	sessions *session.Manager
	jwks     *keyfunc.JWKS
	users    *userdir.Generation
}

func newApp(ctx context.Context, opts *rootOptions, serving bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	logger := log.New()
	switch {
	case cfg.Debug || opts.verbose:
		logger.SetLevel(log.DebugLevel)
	case !serving:
		logger.SetLevel(log.WarnLevel)
	}

	a := &app{cfg: cfg, logger: logger, client: client.New(cfg.TasksAPIURL, cfg.TasksAPITimeout, logger), users: new(userdir.Generation)}

	if cfg.RedisConnectionString != "" {
		redisOpts, err := config.RedisOptions(cfg.RedisConnectionString)
		if err != nil {
			return nil, err
		}
		a.redis = redis.NewClient(redisOpts)
	}

	var store session.Store
	switch cfg.SessionBackend {
	case config.BackendTable:
		ts, err := storage.NewTableSessionStore(cfg.StorageConnectionString, cfg.SessionsTable)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("storage: %w", err)
		}
		if serving {
			if err := ts.EnsureTable(ctx); err != nil {
				a.close()
				return nil, fmt.Errorf("create sessions table: %w", err)
			}
		}
		store = ts
	default:
		store = storage.NewRedisSessionStore(a.redis, cfg.SessionTTL)
	}

	if cfg.JWKSURL != "" {
		a.jwks, err = keyfunc.Get(cfg.JWKSURL, keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("jwks: %w", err)
		}
	}
	var secret []byte
	if cfg.TokenSecret != "" {
		secret = []byte(cfg.TokenSecret)
	}
	inspector := session.NewTokenInspector(a.jwks, secret, cfg.TokenAudience, cfg.TokenIssuer)
	a.sessions = session.NewManager(a.client, store, inspector, cfg.SessionTTL, logger)
	return a, nil
}

func (a *app) close() {
	if a.jwks != nil {
		a.jwks.EndBackground()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) workspaceConfig() api.WorkspaceConfig {
	loc, err := a.cfg.Location()
	if err != nil {
		loc = time.Local
	}
	return api.WorkspaceConfig{
		Client:       a.client,
		Redis:        a.redis,
		UserCacheTTL: a.cfg.UserCacheTTL,
		Users:        a.users,
		Audit:        audit.Options{Location: loc, DateTimeLayout: a.cfg.DateTimeLayout, DayLayout: a.cfg.DayLabelLayout},
		Logger:       a.logger,
	}
}

func (a *app) newWorkspace(s session.Session) *api.Workspace {
	return api.NewWorkspace(s, a.workspaceConfig())
}

// workspace resumes the session named on the command line.
func (a *app) workspace(ctx context.Context, sessionID string) (*api.Workspace, error) {
	if sessionID == "" {
		return nil, errors.New("not signed in: run `taskflow login` and export " + sessionEnv)
	}
	s, err := a.sessions.Resume(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return a.newWorkspace(s), nil
}

func (a *app) health(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Ping(ctx).Err()
}

// withApp builds the app for one command run and releases it afterwards.
func withApp(ctx context.Context, opts *rootOptions, serving bool, fn func(a *app) error) error {
	a, err := newApp(ctx, opts, serving)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
