package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	rusto "github.com/rusto/rusto-web"
	"github.com/rusto/rusto-web/client"
)

var cli struct {
	Listen      string        `help:"HTTP listen address." default:":3000" env:"RUSTO_LISTEN"`
	APIBaseURL  string        `help:"Base URL of the blog backend API." name:"api-base-url" default:"http://localhost:4000" env:"RUSTO_API_BASE_URL"`
	SessionTTL  time.Duration `help:"Staleness window for resolved sessions." default:"60s" env:"RUSTO_SESSION_TTL"`
	HTTPTimeout time.Duration `help:"Timeout applied to every backend call." default:"15s" env:"RUSTO_HTTP_TIMEOUT"`
	ViewsDir    string        `help:"Directory holding the django templates." default:"./views" env:"RUSTO_VIEWS_DIR"`
	CookieName  string        `help:"Name of the session token cookie." default:"rusto_token" env:"RUSTO_COOKIE_NAME"`
	Insecure    bool          `help:"Allow the token cookie over plain HTTP (development only)." env:"RUSTO_INSECURE"`
	Debug       bool          `help:"Enable debug logging." env:"RUSTO_DEBUG"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("rusto-web"),
		kong.Description("Web client for the Rusto blog service."),
	)

	level := zerolog.InfoLevel
	if cli.Debug {
		level = zerolog.DebugLevel
	}
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	logger := &zerologAdapter{log: zlog}

	api := client.New(client.Config{
		BaseURL:    cli.APIBaseURL,
		HTTPClient: &http.Client{Timeout: cli.HTTPTimeout},
	})

	resolver := rusto.NewSessionResolver(api,
		rusto.WithSessionTTL(cli.SessionTTL),
		rusto.WithResolverLogger(logger),
	)

	httpAuth := rusto.NewHTTPAuth(api, resolver)
	httpAuth.CookieName = cli.CookieName
	httpAuth.CookieSecure = !cli.Insecure
	httpAuth.Logger = logger

	engine := django.New(cli.ViewsDir, ".html")

	app := fiber.New(fiber.Config{
		Views:             engine,
		PassLocalsToViews: true,
	})

	app.Use(requestLogger(zlog))
	app.Static("/public", "./public")

	rusto.RegisterAuthRoutes(app, rusto.NewAuthController(httpAuth, rusto.WithAuthLogger(logger)))
	postsController := rusto.NewPostsController(api, httpAuth)
	postsController.Logger = logger
	rusto.RegisterPostsRoutes(app, postsController)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cli.Listen)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		kctx.FatalIfErrorf(err)
	case sig := <-sigCh:
		zlog.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			zlog.Error().Err(err).Msg("shutdown failed")
		}
	}
}

// requestLogger tags every request with an id and logs its outcome. Nothing
// credential shaped goes through here: no headers, no cookies, no bodies.
func requestLogger(zlog zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := uuid.NewString()
		c.Locals("request_id", requestID)

		err := c.Next()

		event := zlog.Info()
		if err != nil {
			event = zlog.Error().Err(err)
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("request")

		return err
	}
}

// zerologAdapter exposes zerolog through the printf-style Logger interface
// the session core expects.
type zerologAdapter struct {
	log zerolog.Logger
}

func (z *zerologAdapter) Debug(format string, args ...any) { z.log.Debug().Msgf(format, args...) }
func (z *zerologAdapter) Info(format string, args ...any)  { z.log.Info().Msgf(format, args...) }
func (z *zerologAdapter) Warn(format string, args ...any)  { z.log.Warn().Msgf(format, args...) }
func (z *zerologAdapter) Error(format string, args ...any) { z.log.Error().Msgf(format, args...) }
