// Package server wires the mediaflow server together: database, blob store,
// services, platform drivers, the HTTP API and the gRPC health endpoint. It
// handles graceful shutdown and resumes publish runs left in flight.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/mediaflow/internal/chunking"
	"github.com/dmitrijs2005/mediaflow/internal/cryptox"
	"github.com/dmitrijs2005/mediaflow/internal/logging"
	"github.com/dmitrijs2005/mediaflow/internal/netx"
	"github.com/dmitrijs2005/mediaflow/internal/server/blobstore"
	"github.com/dmitrijs2005/mediaflow/internal/server/config"
	"github.com/dmitrijs2005/mediaflow/internal/server/httpapi"
	"github.com/dmitrijs2005/mediaflow/internal/server/models"
	"github.com/dmitrijs2005/mediaflow/internal/server/oauth"
	"github.com/dmitrijs2005/mediaflow/internal/server/platforms/instagram"
	"github.com/dmitrijs2005/mediaflow/internal/server/platforms/twitter"
	"github.com/dmitrijs2005/mediaflow/internal/server/platforms/youtube"
	"github.com/dmitrijs2005/mediaflow/internal/server/publish"
	"github.com/dmitrijs2005/mediaflow/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mediaflow/internal/server/services"

	gs "github.com/dmitrijs2005/mediaflow/internal/server/grpc"
)

const (
	apiRetryMax   = 3
	apiTimeout    = 60 * time.Second
	readinessTick = 10 * time.Second
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	store     *blobstore.S3Store
	transfers *services.TransferService
	sources   *services.SourceService
	publisher *publish.Service
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.Debug)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN, repomanager.DefaultPoolOptions)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		PublicURL:    c.S3PublicURL,
	}, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	cipher, err := cryptox.NewTokenCipher(c.SecretKey)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token cipher init error: %w", err)
	}

	api := netx.NewRetryableClient(logger, apiRetryMax, apiTimeout)
	// source downloads are long-lived streams and must not time out as a whole
	source := &http.Client{}

	guard := oauth.NewGuard(
		oauth.NewCipherStore(rm.Tokens(db), cipher),
		map[models.Platform]oauth.Refresher{
			models.PlatformYouTube: &oauth.GoogleRefresher{
				Client: api, TokenURL: c.YouTube.TokenURL, ClientID: c.YouTube.ClientID, ClientSecret: c.YouTube.ClientSecret,
			},
			models.PlatformTwitter: &oauth.TwitterRefresher{
				Client: api, TokenURL: c.Twitter.TokenURL, ClientID: c.Twitter.ClientID, ClientSecret: c.Twitter.ClientSecret,
			},
			models.PlatformInstagram: &oauth.InstagramRefresher{Client: api, TokenURL: c.Instagram.TokenURL},
		},
		c.TokenRefreshThreshold,
		logger,
	)

	// the YouTube stream goes through the client underneath api; give it one
	// without the request timeout
	ytAPI := netx.NewRetryableClient(logger, apiRetryMax, 0)
	drivers := []publish.Driver{
		youtube.New(c.YouTube, ytAPI, source, logger),
		twitter.New(c.Twitter, api, source, logger),
		instagram.New(c.Instagram, api, logger),
	}

	runner := publish.NewRunner(db, rm, drivers, guard, source, c.PollInterval, logger)

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		store:     store,
		transfers: services.NewTransferService(db, rm, store, c, logger),
		sources:   services.NewSourceService(db, rm, source, logger),
		publisher: publish.NewService(ctx, db, rm, runner, guard, c.PublishTimeout, logger),
	}, nil
}

// initSignalHandler cancels the app on the first signal and exits on the
// second, for when draining hangs.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigs
		app.logger.Info(ctx, "shutting down", "signal", sig.String())
		cancelFunc()

		sig = <-sigs
		app.logger.Error(ctx, "second signal, exiting without draining", "signal", sig.String())
		os.Exit(1)
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger,
		app.transfers, app.sources, app.publisher, app.db,
		[]byte(app.config.SecretKey), chunking.MaxChunkSize)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, readinessTick, map[string]gs.ReadinessCheck{
		"database":  gs.ReadinessFunc(app.db.PingContext),
		"blobstore": app.store,
	})

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	if n, err := app.publisher.ResumeInFlight(ctx); err != nil {
		app.logger.Error(ctx, "failed to resume publish runs", "error", err)
	} else if n > 0 {
		app.logger.Info(ctx, "resumed publish runs", "count", n)
	}

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	// interrupted publish runs keep their phase and resume on next start
	app.logger.Info(ctx, "waiting for background work to finish")
	app.publisher.Shutdown()
	app.sources.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "error closing database", "error", err)
	}
}
