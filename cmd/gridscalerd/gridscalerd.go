package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/coopernurse/gridscaler/pkg/autoscaler"
	"github.com/coopernurse/gridscaler/pkg/config"
	"github.com/coopernurse/gridscaler/pkg/db"
	"github.com/coopernurse/gridscaler/pkg/gateway"
	"github.com/coopernurse/gridscaler/pkg/grid"
	"github.com/coopernurse/gridscaler/pkg/notify"
	"github.com/coopernurse/gridscaler/pkg/schedule"
	"github.com/coopernurse/gridscaler/pkg/vm"
	log "github.com/mgutz/logxi/v1"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const scheduleRefreshRate = time.Minute

func mustStart(s *http.Server) {
	err := s.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Error("gridscalerd: unable to start HTTP server", "addr", s.Addr, "err", err)
		os.Exit(2)
	}
}

func initDb(sqlDriver, sqlDSN string) db.Db {
	if sqlDriver == "" {
		log.Info("gridscalerd: no sql driver configured, using in-memory journal")
		return db.NewMemDb()
	}
	sqlDb, err := db.NewSqlDb(sqlDriver, sqlDSN)
	if err != nil {
		log.Error("gridscalerd: cannot create SqlDb", "driver", sqlDriver, "err", err)
		os.Exit(2)
	}
	err = sqlDb.Migrate()
	if err != nil {
		log.Error("gridscalerd: cannot run migrate", "driver", sqlDriver, "err", err)
		os.Exit(2)
	}
	return sqlDb
}

func loadConfig(envFile string) config.Config {
	var cfg config.Config
	var err error
	if envFile == "" {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.FromEnvFile(envFile)
	}
	if err != nil {
		log.Error("gridscalerd: cannot load config", "envFile", envFile, "err", err)
		os.Exit(2)
	}
	return cfg
}

func main() {
	if os.Getenv("LOGXI") == "" {
		log.DefaultLog.SetLevel(log.LevelInfo)
	}
	if os.Getenv("LOGXI_FORMAT") == "" {
		log.ProcessLogxiFormatEnv("happy,maxcol=120")
	}

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: gridscalerd [envfile]\n")
	}
	flag.Parse()
	cfg := loadConfig(flag.Arg(0))

	log.Info("gridscalerd: starting", "provider", cfg.Provider, "gridUrl", cfg.GridUrl)

	if cfg.GridUrl == "" {
		log.Error("gridscalerd: GSCALE_GRID_URL is required")
		os.Exit(2)
	}
	gridClient, err := grid.NewClient(cfg.GridUrl, cfg.GridTimeout())
	if err != nil {
		log.Error("gridscalerd: cannot create grid client", "err", err)
		os.Exit(2)
	}
	provisioner, err := vm.NewProvisionerFromConfig(cfg)
	if err != nil {
		log.Error("gridscalerd: cannot create provisioner", "err", err)
		os.Exit(2)
	}

	journal := initDb(cfg.SqlDriver, cfg.SqlDsn)
	scaler := autoscaler.NewAutoscaler(gridClient, provisioner, cfg.AutoscalerOptions())
	restored, err := notify.RestoreOptions(journal, scaler)
	if err != nil {
		log.Warn("gridscalerd: unable to restore saved options", "err", err)
	} else if restored {
		log.Info("gridscalerd: using saved autoscaler options", "enabled", scaler.Enabled())
	}

	cancelCtx, cancelFx := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	journalObserver := notify.NewJournalObserver(journal, 0, notify.DefaultSkipTypes)
	scaler.AddObserver(notify.LogObserver{})
	scaler.AddObserver(notify.NewMetricsObserver(func() int { return len(scaler.LaunchingWorkers()) }))
	scaler.AddObserver(journalObserver)
	scaler.AddObserver(notify.NewSettingsPersister(journal, scaler))
	wg.Add(1)
	go journalObserver.Run(cancelCtx, wg)

	if cfg.EventQueueUrl != "" {
		region := "us-east-1"
		if cfg.Aws != nil && cfg.Aws.Region != "" {
			region = cfg.Aws.Region
		}
		awsSession, err := vm.NewAwsSession(region)
		if err != nil {
			log.Error("gridscalerd: cannot create aws session", "err", err)
			os.Exit(2)
		}
		forwarder := notify.NewSqsForwarder(awsSession, cfg.EventQueueUrl, 0, notify.DefaultSkipTypes)
		scaler.AddObserver(forwarder)
		wg.Add(1)
		go forwarder.Run(cancelCtx, wg)
		log.Info("gridscalerd: forwarding events to sqs", "queueUrl", cfg.EventQueueUrl)
	}

	var ruleLoader schedule.RuleLoader
	if cfg.ScheduleFile != "" {
		ruleLoader = schedule.FileRuleLoader(cfg.ScheduleFile)
	}
	cronSvc := schedule.NewCronService(scaler, journal, ruleLoader, scheduleRefreshRate, cfg.JournalRetention())
	wg.Add(1)
	go cronSvc.Run(cancelCtx, wg)

	adminServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AdminPort),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		Handler:      gateway.NewGateway(scaler, gridClient, journal),
	}
	log.Info("gridscalerd: starting admin HTTP server", "port", cfg.AdminPort)
	go mustStart(adminServer)

	wg.Add(1)
	go scaler.Run(cancelCtx, wg)

	shutdownDone := make(chan struct{})
	go HandleShutdownSignal([]*http.Server{adminServer}, cancelFx, wg, shutdownDone)
	<-shutdownDone

	if sqlDb, ok := journal.(*db.SqlDb); ok {
		sqlDb.Close()
	}
}

func HandleShutdownSignal(svrs []*http.Server, cancelFx context.CancelFunc, wg *sync.WaitGroup,
	shutdownDone chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("gridscalerd: received shutdown signal, stopping HTTP servers")

	for _, s := range svrs {
		err := s.Shutdown(context.Background())
		if err != nil {
			log.Error("gridscalerd: during HTTP server shutdown", "err", err)
		}
	}
	log.Info("gridscalerd: HTTP servers shutdown gracefully")

	cancelFx()
	wg.Wait()
	log.Info("gridscalerd: background services stopped")
	close(shutdownDone)
}
