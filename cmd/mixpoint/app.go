package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/justestif/go-mixpoint/internal/config"
	"github.com/justestif/go-mixpoint/internal/db"
	"github.com/justestif/go-mixpoint/internal/deck"
	"github.com/justestif/go-mixpoint/internal/library"
	"github.com/justestif/go-mixpoint/internal/logger"
	"github.com/justestif/go-mixpoint/internal/media"
	"github.com/justestif/go-mixpoint/internal/notify"
	"github.com/justestif/go-mixpoint/internal/redisstate"
	"github.com/justestif/go-mixpoint/internal/session"
	"github.com/justestif/go-mixpoint/internal/sqlite"
	"github.com/justestif/go-mixpoint/internal/store"
	"github.com/justestif/go-mixpoint/internal/store/memory"
)

const notificationBufferSize = 32

// app holds the wired collaborators shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	notes  *notify.Buffer

	store   store.Store
	state   store.StateStore
	session *session.Store
	tracks  *library.Tracks
	mixes   *library.Mixes
	sets    *library.Sets
	deck    *deck.Deck

	closers []io.Closer
}

// newApp builds the application from cfg. console receives log output.
func newApp(ctx context.Context, cfg *config.Config, console io.Writer) (*app, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogFile,
		Console:    console,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{cfg: cfg, logger: log, notes: notify.NewBuffer(notificationBufferSize)}

	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	source, err := a.openSource(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier := notify.Multi{notify.NewLog(log), a.notes}

	a.session = session.New(a.state,
		session.WithSlots(cfg.Slots),
		session.WithNotifier(notifier),
		session.WithLogger(log.Named("session")),
	)
	libOpts := []library.Option{
		library.WithNotifier(notifier),
		library.WithLogger(log.Named("library")),
	}
	a.tracks = library.NewTracks(a.store, libOpts...)
	a.mixes = library.NewMixes(a.store, libOpts...)
	a.sets = library.NewSets(a.store, libOpts...)
	a.deck = deck.New(a.session, a.tracks, a.mixes, source, media.TagAnalyzer{},
		deck.WithNotifier(notifier),
		deck.WithLogger(log.Named("deck")),
	)

	if err := a.session.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing session: %w", err)
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context) error {
	switch a.cfg.Backend {
	case config.BackendPostgres:
		pg, err := db.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening postgres: %w", err)
		}
		a.store = pg
	case config.BackendMemory:
		a.store = memory.New()
	default:
		lite, err := sqlite.Open(ctx, a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("opening sqlite: %w", err)
		}
		a.store = lite
	}
	a.closers = append(a.closers, a.store)
	a.state = a.store
	a.logger.Info("storage ready", zap.String("backend", a.cfg.Backend))

	if a.cfg.RedisAddr == "" {
		return nil
	}
	rs, err := redisstate.Connect(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, rs)
	a.state = rs
	a.logger.Info("session state in redis", zap.String("addr", a.cfg.RedisAddr))
	return nil
}

func (a *app) openSource(ctx context.Context) (media.FileSource, error) {
	if a.cfg.MinioEndpoint == "" {
		a.logger.Info("reading tracks from disk", zap.String("dir", a.cfg.MusicDir))
		return media.NewLocalFiles(a.cfg.MusicDir), nil
	}
	objects, err := media.NewObjectFiles(ctx, media.ObjectConfig{
		Endpoint:  a.cfg.MinioEndpoint,
		AccessKey: a.cfg.MinioAccessKey,
		SecretKey: a.cfg.MinioSecretKey,
		Bucket:    a.cfg.MinioBucket,
		UseSSL:    a.cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("reading tracks from bucket", zap.String("bucket", a.cfg.MinioBucket))
	return objects, nil
}

// Close releases storage connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
