package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/storage/redis/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/dqtran/medauth/internal/accounts"
	"github.com/dqtran/medauth/internal/audit"
	"github.com/dqtran/medauth/internal/auth"
	"github.com/dqtran/medauth/internal/btg"
	"github.com/dqtran/medauth/internal/common"
	"github.com/dqtran/medauth/internal/config"
	"github.com/dqtran/medauth/internal/handlers/api"
	"github.com/dqtran/medauth/internal/mail"
	"github.com/dqtran/medauth/internal/mfa"
	"github.com/dqtran/medauth/internal/middlewares"
	"github.com/dqtran/medauth/internal/ratelimit"
	"github.com/dqtran/medauth/internal/sessions"
	"github.com/dqtran/medauth/internal/store"
	"github.com/dqtran/medauth/internal/token"
	"github.com/dqtran/medauth/model"
	"github.com/dqtran/medauth/params"
)

//go:embed templates/mail/*.html
var templateFS embed.FS

var (
	app       *cli.App
	gitCommit string
	gitDate   string
)

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file",
		Value: "config.yaml",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug logging",
	}
)

func init() {
	app = cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = "medauth - authentication and emergency-access server for clinical records"
	app.Flags = []cli.Flag{
		configFileFlag,
		debugFlag,
	}
	app.Commands = []*cli.Command{
		{
			Name: "version",
			Action: func(ctx *cli.Context) error {
				fmt.Println(params.VersionWithCommit(gitCommit, gitDate))
				return nil
			},
		},
	}
	app.Action = run
}

func mustInitLogger(debug bool) {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func mustInitDatabase(dbConfig config.MySQLConfig) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dbConfig.Dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   dbConfig.TablePrefix,
			SingularTable: true,
		},
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	return db
}

func mustInitRedisStorage(redisCfg config.RedisConfig) *redis.Storage {
	return redis.New(redis.Config{
		URL:           redisCfg.URL,
		PoolSize:      redisCfg.PoolSize,
		IsClusterMode: redisCfg.ClusterMode,
	})
}

func mustInitMailSender(mailCfg config.MailConfig) mail.MailSender {
	if mailCfg.Backend != "smtp" {
		slog.Error("Unsupported mail sender backend", "backend", mailCfg.Backend)
		os.Exit(1)
	}
	sender, err := mail.NewSMTPMailSender(mail.SMTPConfig{
		Host:     mailCfg.SMTP.Host,
		Port:     mailCfg.SMTP.Port,
		Username: mailCfg.SMTP.Username,
		Password: mailCfg.SMTP.Password,
		TLS:      mailCfg.SMTP.TLS,
		CertFile: mailCfg.SMTP.CertFile,
		KeyFile:  mailCfg.SMTP.KeyFile,
		CAFile:   mailCfg.SMTP.CAFile,
	}, mailCfg.From)
	if err != nil {
		slog.Error("Failed to initialize SMTP mail sender", "error", err)
		os.Exit(1)
	}
	return sender
}

func rateLimitSpecs(cfg map[string]config.BucketConfig) map[string]ratelimit.Spec {
	specs := make(map[string]ratelimit.Spec, len(cfg))
	for name, bucket := range cfg {
		specs[name] = ratelimit.Spec{
			Limit:  bucket.Limit,
			Window: bucket.Window,
		}
	}
	return specs
}

func setupRoutes(
	router fiber.Router,
	tokenService *token.Service,
	authHandler *api.AuthHandler,
	mfaHandler *api.MfaHandler,
	btgHandler *api.BtgHandler,
) {
	requireAuth := middlewares.BearerAuth(tokenService)

	router.Post("/auth/register", authHandler.PostRegister)
	router.Post("/auth/login", authHandler.PostLogin)
	router.Post("/auth/refresh", authHandler.PostRefresh)
	router.Post("/auth/logout", requireAuth, authHandler.PostLogout)
	router.Post("/auth/password/change", requireAuth, authHandler.PostChangePassword)
	router.Post("/auth/password-reset/request", authHandler.PostPasswordResetRequest)
	router.Post("/auth/password-reset/confirm", authHandler.PostPasswordResetConfirm)

	router.Post("/mfa/setup", requireAuth, mfaHandler.PostSetup)
	router.Post("/mfa/confirm", requireAuth, mfaHandler.PostConfirm)
	router.Post("/mfa/disable", requireAuth, mfaHandler.PostDisable)
	router.Post("/mfa/recovery-codes/regenerate", requireAuth, mfaHandler.PostRegenerateRecoveryCodes)
	router.Get("/mfa/status", requireAuth, mfaHandler.GetStatus)

	router.Post("/btg/grant", requireAuth, btgHandler.PostGrant)
	router.Get("/btg/active", requireAuth, btgHandler.GetActiveGrants)
}

func run(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String(configFileFlag.Name))
	if err != nil {
		slog.Error("Could not load config file.", "error", err)
		return err
	}

	mustInitLogger(cfg.Debug || ctx.IsSet(debugFlag.Name))

	mailFS, _ := fs.Sub(templateFS, "templates")
	mail.Initialize(html.NewFileSystem(http.FS(mailFS), ".html"))
	mailSender := mustInitMailSender(cfg.Mail)

	db := mustInitDatabase(cfg.MySQL)
	redisStorage := mustInitRedisStorage(cfg.Redis)
	cacheStorage := store.NewRedisStorage(redisStorage.Conn())
	audit.Initialize(audit.NewAuditEventRepository(db))

	// repositories
	var (
		accountRepo      = accounts.NewAccountRepository(db)
		sessionRepo      = sessions.NewSessionRepository(db)
		recoveryCodeRepo = mfa.NewRecoveryCodeRepository(db)
		consentRepo      = btg.NewConsentRepository(db)
		incidentRepo     = audit.NewSecurityIncidentRepository(db)
	)

	// services
	var (
		incidentLog    = audit.NewIncidentLog(incidentRepo)
		accountService = accounts.NewAccountService(accountRepo)
		sessionService = sessions.NewSessionService(sessionRepo)
		tokenService   = token.NewService(cfg.MasterKey)
		mfaService     = mfa.NewMfaService(cfg.SiteName, accountRepo, recoveryCodeRepo)
		btgService     = btg.NewBtgService(consentRepo)
		resetStore     = store.New[auth.ResetRequest](cacheStorage, params.ResetTokenKeyPrefix)
		authService    = auth.NewAuthService(accountService, sessionService, tokenService, mfaService, incidentLog, resetStore, mailSender, cfg.BaseURL)
	)

	// rate limiting shares counters across instances through redis
	limiter := ratelimit.NewLimiter(rateLimitSpecs(cfg.RateLimits), ratelimit.NewRedisCounterStore(redisStorage.Conn()))
	gate := middlewares.NewRateLimitGate(limiter, incidentLog, []string{"/livez", "/readyz", "/docs"})

	router := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		BodyLimit:     params.ServerBodyLimit,
		IdleTimeout:   params.ServerIdleTimeout,
		ReadTimeout:   params.ServerReadTimeout,
		WriteTimeout:  params.ServerWriteTimeout,
		ErrorHandler:  middlewares.ErrorHandler,
	})

	router.Use(recover.New())
	router.Use(logger.New())
	router.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	router.Use(gate.Handler())

	setupRoutes(
		router,
		tokenService,
		api.NewAuthHandler(authService, accountService),
		api.NewMfaHandler(mfaService, accountService),
		api.NewBtgHandler(btgService),
	)

	healthCheckCtx, term := context.WithCancel(ctx.Context)
	done := make(chan struct{})
	go common.StartHealthCheckServer(healthCheckCtx, done, redisStorage.Conn(), db)
	defer func() {
		term()
		<-done
	}()
	return router.Listen(cfg.ListenAddr)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
