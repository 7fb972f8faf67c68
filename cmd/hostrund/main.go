package main

import (
	"context"
	"net/http"
	"os"

	"github.com/avolkov/hostrun/internal/config"
	"github.com/avolkov/hostrun/internal/events"
	"github.com/avolkov/hostrun/internal/lg"
	"github.com/avolkov/hostrun/internal/persistence"
	"github.com/avolkov/hostrun/internal/serverutil"
	"github.com/avolkov/hostrun/pkg/workerpool"
)

func main() {
	logCfg := lg.NewConfigFromFlags(serviceName)
	logger := lg.New(logCfg)
	defer logger.Sync()

	cfgPath := os.Getenv("HOSTRUND_CONFIG")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := loadServiceConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load service config", lg.String("path", cfgPath), lg.Err(err))
		os.Exit(1)
	}

	store, err := cfg.inventoryStore(logger)
	if err != nil {
		logger.Error("failed to open inventory store", lg.Err(err))
		os.Exit(1)
	}
	inv, err := config.LoadInventory(store)
	if err != nil {
		logger.Error("failed to load host inventory", lg.Err(err))
		os.Exit(1)
	}
	logger.Info("inventory loaded", lg.Int("hosts", len(inv.Hosts)))

	hosts := newHostSet(inv, logger)

	// Pick up inventory edits without a restart where the store allows it.
	if err := store.Watch(func() {
		fresh, lerr := config.LoadInventory(store)
		if lerr != nil {
			logger.Warn("inventory reload failed", lg.Err(lerr))
			return
		}
		hosts.setInventory(fresh)
		logger.Info("inventory reloaded", lg.Int("hosts", len(fresh.Hosts)))
	}); err != nil {
		logger.Debug("inventory watching unavailable", lg.Err(err))
	}

	pool := workerpool.NewPool[jobSubmission](workerpool.TotalMaxWorkers)

	var pub *events.Publisher
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.ResultTopic != "" {
		pub = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.ResultTopic, logger)
	}

	var results persistence.Writer
	if cfg.ResultsDir != "" {
		results = persistence.FileWriter{Dir: cfg.ResultsDir}
	}

	a := newAgent(hosts, pool, pub, results, logger)

	ctx, cancel := context.WithCancel(lg.Attach(context.Background(), logger))
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.RequestTopic != "" {
		go consumeRequests(ctx, cfg, a, logger)
	}

	mux := http.NewServeMux()
	mux.Handle("/jobs/run", serverutil.NewValidationHandler[runRequest](http.HandlerFunc(a.handleRun)))
	mux.HandleFunc("/jobs/status", a.handleStatus)
	mux.HandleFunc("/jobs/stdout", a.handleStdout)
	mux.Handle("/jobs/cancel", serverutil.NewValidationHandler[cancelRequest](http.HandlerFunc(a.handleCancel)))

	serverCfg := serverutil.DefaultServerConfig()
	serverCfg.Port = cfg.Server.Port
	serverCfg.Logger = logger
	runErr := serverutil.RunServer(mux, serverCfg)

	cancel()
	pool.Stop()
	hosts.closeAll()
	if pub != nil {
		pub.Close()
	}
	if runErr != nil {
		logger.Error("server exited with error", lg.Err(runErr))
		os.Exit(1)
	}
}

// consumeRequests feeds Kafka job requests into the same submission path
// the HTTP handler uses.
func consumeRequests(ctx context.Context, cfg *ServiceConfig, a *agent, logger lg.Logger) {
	cons := events.NewConsumer[events.JobRequest](events.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.RequestTopic,
	})
	defer cons.Close()

	for {
		req, err := cons.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("reading job request failed", lg.Err(err))
			continue
		}
		if !a.hosts.knows(req.Host) {
			logger.Warn("job request for unknown host", lg.String("host", req.Host))
			continue
		}
		uid := a.submit(req.Host, req.Command)
		logger.Info("job request accepted from queue",
			lg.String("host", req.Host),
			lg.String("request", uid.String()))
	}
}
