package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stellar-multisig/coordinator/bus"
	"github.com/stellar-multisig/coordinator/config"
	"github.com/stellar-multisig/coordinator/coordinator"
	"github.com/stellar-multisig/coordinator/db"
	"github.com/stellar-multisig/coordinator/logging"
	"github.com/stellar-multisig/coordinator/presenter"
	"github.com/stellar-multisig/coordinator/repository"
	"github.com/stellar-multisig/coordinator/stellar"
	"github.com/stellar-multisig/coordinator/stream"
)

func main() {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile("config.yml")
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.Logger.SetLevel(cfg.LogLevel)

	dbConn, err := db.ConnectToDBAndMigrate(cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(":2112", nil)
		if err != nil {
			logger.WithError(err).Fatal("can't start listener for prometheus metrics")
		}
	}()

	notifications, err := bus.NewPostgresBus(logger.WithField("service", "bus"), dbConn)
	if err != nil {
		logger.WithError(err).Fatal("can't start postgres notification bus")
	}
	defer notifications.Close()

	repo := repository.NewRepo(dbConn)
	engine := coordinator.New(
		logger.WithField("service", "coordinator"),
		repo,
		repository.NewTxFunc(dbConn),
		notifications,
		stellar.NewRegistry(cfg),
		cfg,
	)
	gateway := stream.NewGateway(logger.WithField("service", "stream"), engine, notifications)

	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), engine, gateway)
		go func() {
			err := pr.Serve(cfg.Presenter.Host)
			if err != nil {
				logger.WithError(err).Fatal("can't serve presenter")
			}
		}()
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn("caught termination signal, shutting down")
}
