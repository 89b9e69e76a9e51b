package main

import (
	"bufio"
	"calscrape/internal/config"
	"calscrape/internal/dav"
	"calscrape/internal/directory"
	"calscrape/internal/google"
	"calscrape/internal/ics"
	"calscrape/internal/output"
	"calscrape/internal/scraper"
	"calscrape/internal/timerange"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "calscrape",
		Usage: "Build meeting analytics from the calendars of a set of users.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LOG_LEVEL"}, Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			authCommand(),
			scrapeCommand(),
			rangesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "from", Value: config.DefaultFrom, EnvVars: []string{"CALSCRAPE_FROM"}, Usage: "start of the range (RFC 3339 or YYYY-MM-DD)"},
		&cli.StringFlag{Name: "to", EnvVars: []string{"CALSCRAPE_TO"}, Usage: "end of the range (RFC 3339 or YYYY-MM-DD), defaults to now"},
		&cli.IntFlag{Name: "window-days", Value: config.DefaultWindowDays, EnvVars: []string{"CALSCRAPE_WINDOW_DAYS"}, Usage: "length of one fetch window in days"},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token-file", Value: config.DefaultTokenFile, EnvVars: []string{"CALSCRAPE_TOKEN_FILE"}, Usage: "where to save the token"},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))
			logger.Info("Starting Google authentication flow.")

			cfg, err := google.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, cfg, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			tokenFile := c.String("token-file")
			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func rangesCommand() *cli.Command {
	return &cli.Command{
		Name:  "ranges",
		Usage: "Print the fetch windows a scrape would use, most recent first.",
		Flags: rangeFlags(),
		Action: func(c *cli.Context) error {
			from, to, err := parseRange(c)
			if err != nil {
				return err
			}
			windowDays := c.Int("window-days")
			if err := config.ValidateRange(from, to, windowDays); err != nil {
				return err
			}

			for i, r := range timerange.Split(from, to, windowDays) {
				fmt.Printf("%3d  %s  %s\n", i+1, r.From.Format(time.RFC3339), r.To.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func scrapeCommand() *cli.Command {
	flags := append(rangeFlags(),
		&cli.StringFlag{Name: "input", Value: config.DefaultInput, EnvVars: []string{"CALSCRAPE_INPUT"}, Usage: "user directory (JSON or YAML)"},
		&cli.StringFlag{Name: "output", Value: config.DefaultOutput, EnvVars: []string{"CALSCRAPE_OUTPUT"}, Usage: "output directory"},
		&cli.StringFlag{Name: "source", Value: config.SourceGoogle, EnvVars: []string{"CALSCRAPE_SOURCE"}, Usage: "event source: google, ics or caldav"},
		&cli.BoolFlag{Name: "dry-run", Usage: "Aggregate and log the results without writing them."},

		&cli.StringFlag{Name: "token-file", Value: config.DefaultTokenFile, EnvVars: []string{"CALSCRAPE_TOKEN_FILE"}, Usage: "OAuth token saved by the auth command"},
		&cli.StringFlag{Name: "service-account-file", EnvVars: []string{"GOOGLE_SERVICE_ACCOUNT_FILE"}, Usage: "service account key, used instead of the token file"},
		&cli.StringFlag{Name: "impersonate", EnvVars: []string{"GOOGLE_IMPERSONATE"}, Usage: "user the service account acts as (domain-wide delegation)"},

		&cli.StringFlag{Name: "ics-dir", EnvVars: []string{"CALSCRAPE_ICS_DIR"}, Usage: "directory holding one <email>.ics per user"},

		&cli.StringFlag{Name: "caldav-endpoint", EnvVars: []string{"CALDAV_ENDPOINT"}, Usage: "CalDAV server URL"},
		&cli.StringFlag{Name: "caldav-path-template", EnvVars: []string{"CALDAV_PATH_TEMPLATE"}, Usage: "calendar path with a {user} placeholder"},
	)

	return &cli.Command{
		Name:  "scrape",
		Usage: "Fetch every user's calendar and write the analytics collections.",
		Flags: flags,
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))

			from, to, err := parseRange(c)
			if err != nil {
				return err
			}
			cfg := config.Config{
				Input:      c.String("input"),
				Output:     c.String("output"),
				From:       from,
				To:         to,
				WindowDays: c.Int("window-days"),
				Source:     c.String("source"),
				DryRun:     c.Bool("dry-run"),
				Google: config.GoogleConfig{
					ClientID:           os.Getenv("GOOGLE_CLIENT_ID"),
					ClientSecret:       os.Getenv("GOOGLE_CLIENT_SECRET"),
					TokenFile:          c.String("token-file"),
					ServiceAccountFile: c.String("service-account-file"),
					Subject:            c.String("impersonate"),
				},
				ICSDir: c.String("ics-dir"),
				CalDAV: config.CalDAVConfig{
					Endpoint:     c.String("caldav-endpoint"),
					PathTemplate: c.String("caldav-path-template"),
					Username:     os.Getenv("CALDAV_USERNAME"),
					Password:     os.Getenv("CALDAV_PASSWORD"),
				},
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if cfg.DryRun {
				logger.Info("Performing a dry run. Nothing will be written.")
			}

			users, err := directory.Load(cfg.Input)
			if err != nil {
				return fmt.Errorf("failed to load users: %w", err)
			}
			logger.Info("Loaded user directory.", "file", cfg.Input, "users", len(users.Users()))

			source, err := newEventSource(c.Context, logger, cfg)
			if err != nil {
				return err
			}

			s := scraper.NewScraper(logger, source, users, output.NewWriter(logger, cfg.Output), cfg.DryRun)
			if _, err := s.Run(c.Context, cfg.From, cfg.To, cfg.WindowDays); err != nil {
				return fmt.Errorf("scrape failed: %w", err)
			}
			return nil
		},
	}
}

func newEventSource(ctx context.Context, logger *slog.Logger, cfg config.Config) (scraper.EventSource, error) {
	switch cfg.Source {
	case config.SourceICS:
		return ics.NewFileSource(logger, cfg.ICSDir), nil
	case config.SourceCalDAV:
		src, err := dav.NewSource(logger, cfg.CalDAV.Endpoint, cfg.CalDAV.Username, cfg.CalDAV.Password, cfg.CalDAV.PathTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav source: %w", err)
		}
		return src, nil
	default:
		if cfg.Google.ServiceAccountFile != "" {
			client, err := google.NewServiceAccountClient(ctx, logger, cfg.Google.ServiceAccountFile, cfg.Google.Subject)
			if err != nil {
				return nil, fmt.Errorf("failed to create google client: %w", err)
			}
			return client, nil
		}
		client, err := google.NewClient(ctx, logger, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
		return client, nil
	}
}

func parseRange(c *cli.Context) (time.Time, time.Time, error) {
	from, err := config.ParseTime(c.String("from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	to := time.Now().UTC()
	if s := c.String("to"); s != "" {
		to, err = config.ParseTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return from, to, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
