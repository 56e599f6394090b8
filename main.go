package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/internal/database"
	"github.com/customeros/mailvault/internal/enum"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/server"
	"github.com/customeros/mailvault/services"
)

func main() {
	app := &cli.App{
		Name:  "mailvault",
		Usage: "incremental IMAP mailbox archiver",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "start the API server and the backup scheduler",
				Action: runServer,
			},
			{
				Name:   "migrate",
				Usage:  "run database migrations",
				Action: runMigrate,
			},
			{
				Name:  "backup",
				Usage: "run a backup in the foreground and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "account",
						Usage: "account id or email address, every enabled account when omitted",
					},
				},
				Action: runBackup,
			},
			{
				Name:  "verify",
				Usage: "compare the local archive against the server without downloading",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "account",
						Usage:    "account id or email address",
						Required: true,
					},
				},
				Action: runVerify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("MailVault starting up...")

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}

	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}

	if err := repository.MigrateDB(cfg.DatabaseConfig, db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}

func runBackup(c *cli.Context) error {
	ctx := c.Context
	repos, svcs, err := bootstrap()
	if err != nil {
		return err
	}
	defer svcs.Close()

	backup := svcs.BackupService

	if ref := c.String("account"); ref != "" {
		account, err := resolveAccount(ctx, repos, ref)
		if err != nil {
			return err
		}
		runID, err := backup.StartRun(ctx, account.ID, models.RunTriggerManual)
		if err != nil {
			return fmt.Errorf("failed to start backup: %w", err)
		}
		log.Printf("[%s] backup started, run %s", account.Email, runID)
		backup.WaitIdle()
		return reportRun(ctx, repos, runID)
	}

	runIDs, err := backup.StartAll(ctx, models.RunTriggerManual)
	if err != nil {
		return fmt.Errorf("failed to start backups: %w", err)
	}
	if len(runIDs) == 0 {
		log.Println("No enabled accounts, nothing to do")
		return nil
	}
	log.Printf("Started %d backup runs", len(runIDs))
	backup.WaitIdle()

	var failed int
	for _, runID := range runIDs {
		if err := reportRun(ctx, repos, runID); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs did not complete cleanly", failed, len(runIDs))
	}
	return nil
}

func runVerify(c *cli.Context) error {
	ctx := c.Context
	repos, svcs, err := bootstrap()
	if err != nil {
		return err
	}
	defer svcs.Close()

	account, err := resolveAccount(ctx, repos, c.String("account"))
	if err != nil {
		return err
	}

	report, err := svcs.BackupService.Verify(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Folder", "Server", "Local", "Missing", "Deleted"})
	for _, folder := range report.Folders {
		if folder.Error != "" {
			table.Append([]string{folder.Folder, "-", "-", "-", folder.Error})
			continue
		}
		table.Append([]string{
			folder.Folder,
			strconv.Itoa(folder.ServerCount),
			strconv.Itoa(folder.LocalCount),
			strconv.Itoa(len(folder.MissingLocally)),
			strconv.Itoa(len(folder.DeletedOnServer)),
		})
	}
	table.Render()

	if report.Synced {
		fmt.Printf("%s: archive is in sync with the server\n", report.Email)
		return nil
	}
	fmt.Printf("%s: archive has drifted, run 'mailvault backup --account %s' or a repair to catch up\n", report.Email, report.Email)
	return nil
}

// bootstrap wires the one-shot commands: config, logger, database and the
// service aggregate, without the HTTP server or the scheduler.
func bootstrap() (*repository.Repositories, *services.Services, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	db, err := database.InitDatabase(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	repos := repository.InitRepositories(db)

	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return nil, nil, fmt.Errorf("service initialization failed: %w", err)
	}
	return repos, svcs, nil
}

// resolveAccount accepts either an account id or an email address.
func resolveAccount(ctx context.Context, repos *repository.Repositories, ref string) (*models.Account, error) {
	account, err := repos.AccountRepository.GetAccount(ctx, ref)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account, err = repos.AccountRepository.GetAccountByEmail(ctx, ref)
		if err != nil {
			return nil, err
		}
	}
	if account == nil {
		return nil, mverrors.ErrAccountNotFound
	}
	return account, nil
}

func reportRun(ctx context.Context, repos *repository.Repositories, runID string) error {
	run, err := repos.BackupRunRepository.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	log.Printf("[%s] run %s finished %s: %d/%d messages, %d bytes, %d errors",
		run.AccountID, run.ID, run.Result, run.EmailsDownloaded, run.EmailsTotal, run.BytesDownloaded, len(run.Errors))
	if run.Result == enum.ResultFailed || run.Result == "" {
		return fmt.Errorf("run %s did not complete", run.ID)
	}
	return nil
}
