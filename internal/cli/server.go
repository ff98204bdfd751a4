package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/config"
	"channel-quiz-service/internal/infra/fetch"
	transport "channel-quiz-service/internal/transport/http"
	"channel-quiz-service/internal/transport/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the websocket server and, if configured, the telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	banks := app.NewBankRegistry(be.banks)
	if _, err := banks.Hydrate(ctx); err != nil {
		// The sample bank is still served.
		log.Printf("hydrate banks: %v", err)
	}

	sessions := be.sessionStore()
	window := config.TTLDuration(cfg.Quiz.Window, app.DefaultWindow)
	fetcher := fetch.NewHTTPFetcher(config.TTLDuration(cfg.Fetch.Timeout, 15*time.Second), cfg.Fetch.MaxBytes)

	hub := transport.NewHub()
	webService := app.NewQuizService(sessions, banks, hub, hub, hub, app.WithWindow(window))

	var importHandler *transport.ImportHandler
	if cfg.Auth.JWTSecret != "" {
		importHandler = transport.NewImportHandler(app.NewImporter(app.CallerFlag, fetcher, banks), cfg.Auth.JWTSecret)
	} else {
		log.Println("auth.jwt_secret not set, /import disabled")
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(transport.NewWSHandler(webService, hub), importHandler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Telegram.Token != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			stop()
			_ = server.Close()
			_ = g.Wait()
			return err
		}
		api.Debug = cfg.Telegram.Debug
		log.Printf("authorized on telegram account %s", api.Self.UserName)

		platform := telegram.NewPlatform(api)
		chatService := app.NewQuizService(sessions, banks, platform, platform, platform, app.WithWindow(window))
		bot := telegram.NewBot(api, platform, chatService, app.NewImporter(platform, fetcher, banks), banks)
		g.Go(func() error {
			return bot.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
