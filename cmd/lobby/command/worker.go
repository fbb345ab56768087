package command

import (
	"fmt"

	"github.com/pixil98/go-lobby/internal/driver"
	"github.com/pixil98/go-lobby/internal/fanout"
	"github.com/pixil98/go-lobby/internal/game"
	"github.com/pixil98/go-lobby/internal/listener"
	"github.com/pixil98/go-lobby/internal/messaging"
	"github.com/pixil98/go-lobby/internal/session"
	"github.com/pixil98/go-service"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// Messaging backbone for all session-bound notifications
	nats, err := cfg.Nats.BuildServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	publisher := messaging.NewSessionPublisher(nats)

	// Account store
	accounts, err := cfg.Storage.BuildAccountStore()
	if err != nil {
		return nil, fmt.Errorf("creating account store: %w", err)
	}

	// Core state: fanout, game registry, player directory, sessions
	events := fanout.New(publisher)
	registry := game.NewRegistry(cfg.Games.MaxCapacity, events)
	directory := session.NewDirectory(!cfg.Sessions.RefuseSecondLogin)
	sessions := session.NewManager(accounts, directory, registry, publisher)
	events.SetDeadSessionHandler(sessions.OnDeliveryFailure)

	// Matchmaking engine, placed behind the session manager
	engine, err := cfg.Matchmaker.BuildEngine(registry, sessions)
	if err != nil {
		return nil, fmt.Errorf("creating matchmaking engine: %w", err)
	}
	sessions.SetEngine(engine)

	// Wait-threshold policy driver
	var driverOpts []driver.TickDriverOpt
	tickLength, err := cfg.Matchmaker.TickLength()
	if err != nil {
		return nil, fmt.Errorf("parsing matchmaker tick: %w", err)
	}
	if tickLength > 0 {
		driverOpts = append(driverOpts, driver.WithTickLength(tickLength))
	}
	ticker := driver.NewTickDriver([]driver.Manager{engine}, driverOpts...)

	// Client listeners
	cm := listener.NewConnectionManager(sessions)
	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		listeners[fmt.Sprintf("listener-%d", i)] = l.BuildListener(cm)
	}

	workers := service.WorkerList{
		"nats":      nats,
		"fanout":    events,
		"sessions":  sessions,
		"driver":    ticker,
		"listeners": &listeners,
	}

	if cfg.Redirector.Port != 0 {
		workers["redirector"] = cfg.Redirector.BuildRedirector()
	}

	return workers, nil
}
