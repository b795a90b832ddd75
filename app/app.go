// Copyright © 2022-2025 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package app provides the top app-level abstraction and entrypoint for a permitd instance.
// The sub-packages also provide app-level functionality.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/obolnetwork/permitd/app/errors"
	"github.com/obolnetwork/permitd/app/featureset"
	"github.com/obolnetwork/permitd/app/lifecycle"
	"github.com/obolnetwork/permitd/app/log"
	"github.com/obolnetwork/permitd/app/promauto"
	"github.com/obolnetwork/permitd/app/tracer"
	"github.com/obolnetwork/permitd/app/version"
	"github.com/obolnetwork/permitd/app/z"
	"github.com/obolnetwork/permitd/core/noncedb"
	"github.com/obolnetwork/permitd/core/permit"
	"github.com/obolnetwork/permitd/core/tokenapi"
	"github.com/obolnetwork/permitd/core/tokendb"
	"github.com/obolnetwork/permitd/genesis"
)

type Config struct {
	Log            log.Config
	Feature        featureset.Config
	GenesisFile    string
	APIAddr        string
	MonitoringAddr string
	TracingAddr    string

	TestConfig TestConfig
}

// TestConfig defines additional test-only config.
type TestConfig struct {
	// Genesis provides the genesis document explicitly, skips loading from disk.
	Genesis *genesis.Genesis
	// Clock provides the permit engine clock explicitly for deterministic deadlines.
	Clock clockwork.Clock
	// BrokenAPI simulates a token API that fails to start.
	BrokenAPI bool
	// LedgerCallback is called with every committed ledger event.
	LedgerCallback func(tokendb.Event)
}

// Run is the entrypoint for running a permitd instance.
// All processes and their dependencies are wired and added
// to the life cycle manager which handles starting and graceful shutdown.
func Run(ctx context.Context, conf Config) (err error) {
	ctx = log.WithTopic(ctx, "app-start")
	defer func() {
		if err != nil {
			log.Error(ctx, "Fatal run error", err)
		}
	}()

	_, _ = maxprocs.Set()
	if err := log.InitLogger(conf.Log); err != nil {
		return err
	}

	if err := featureset.Init(ctx, conf.Feature); err != nil {
		return err
	}

	version.LogVersion(ctx, "Permitd starting")

	// Wire processes and their dependencies
	life := new(lifecycle.Manager)

	if err := wireTracing(life, conf); err != nil {
		return err
	}

	gen, err := loadGenesis(conf)
	if err != nil {
		return err
	}

	log.Info(ctx, "Genesis loaded",
		z.Str("name", gen.Name),
		z.Str("symbol", gen.Symbol),
		z.U64("chain_id", gen.ChainID),
		z.Addr("contract", gen.Contract),
		z.Int("allocs", len(gen.Alloc)))

	promRegistry, err := promauto.NewRegistry(prometheus.Labels{
		"token_name":   gen.Name,
		"token_symbol": gen.Symbol,
	})
	if err != nil {
		return err
	}

	initStartupMetrics(gen.Name, gen.ChainID)

	ledger := tokendb.NewMemDB(tokendb.Meta{
		Name:     gen.Name,
		Symbol:   gen.Symbol,
		Decimals: gen.Decimals,
	})

	if conf.TestConfig.LedgerCallback != nil {
		ledger.SubscribeEvents(conf.TestConfig.LedgerCallback)
	}

	if err := mintAllocs(ctx, ledger, gen); err != nil {
		return err
	}

	engine := newEngine(conf, gen, ledger)

	ready := new(readyFlag)

	wireMonitoringAPI(life, conf.MonitoringAddr, promRegistry, ready)
	wireTokenAPI(life, conf, engine, ledger)

	// Run life cycle manager
	return life.Run(ctx)
}

// loadGenesis returns the genesis document, either provided by the test
// config or loaded from disk.
func loadGenesis(conf Config) (genesis.Genesis, error) {
	if conf.TestConfig.Genesis != nil {
		return *conf.TestConfig.Genesis, nil
	}

	return genesis.Load(conf.GenesisFile)
}

// mintAllocs mints the genesis balance allocations.
func mintAllocs(ctx context.Context, ledger *tokendb.MemDB, gen genesis.Genesis) error {
	for addr, amount := range gen.Alloc {
		if err := ledger.Mint(ctx, addr, amount); err != nil {
			return errors.Wrap(err, "mint genesis allocation", z.Addr("account", addr))
		}
	}

	return nil
}

// newEngine returns a new permit engine verifying signatures against the
// genesis signing domain, consuming nonces from a new empty nonce ledger.
func newEngine(conf Config, gen genesis.Genesis, ledger *tokendb.MemDB) *permit.Engine {
	domain := permit.Domain{
		Name:              gen.Name,
		Version:           gen.Version,
		ChainID:           gen.ChainID,
		VerifyingContract: gen.Contract,
	}

	var opts []permit.Option
	if conf.TestConfig.Clock != nil {
		opts = append(opts, permit.WithClock(conf.TestConfig.Clock))
	}

	return permit.NewEngine(domain, noncedb.NewMemDB(), ledger, opts...)
}

// wireTokenAPI constructs the token API router and registers it with the life cycle manager.
func wireTokenAPI(life *lifecycle.Manager, conf Config, engine *permit.Engine, ledger *tokendb.MemDB) {
	events := tokenapi.NewEventStreamer(ledger)

	server := &http.Server{
		Addr:              conf.APIAddr,
		Handler:           tokenapi.NewRouter(engine, ledger, events),
		ReadHeaderTimeout: time.Second,
	}

	if conf.TestConfig.BrokenAPI {
		life.RegisterStart(lifecycle.AsyncBackground, lifecycle.StartTokenAPI, lifecycle.HookFuncErr(func() error {
			return errors.New("broken token api")
		}))
	} else {
		life.RegisterStart(lifecycle.AsyncBackground, lifecycle.StartTokenAPI, httpServeHook(server.ListenAndServe))
	}

	life.RegisterStop(lifecycle.StopEvents, lifecycle.HookFuncMin(events.Close))
	life.RegisterStop(lifecycle.StopTokenAPI, lifecycle.HookFunc(server.Shutdown))
}

// wireTracing constructs the global tracer and registers it with the life cycle manager.
func wireTracing(life *lifecycle.Manager, conf Config) error {
	stop, err := tracer.Init(tracer.WithOTLPOrNoop(conf.TracingAddr))
	if err != nil {
		return errors.Wrap(err, "init tracing")
	}

	life.RegisterStop(lifecycle.StopTracing, lifecycle.HookFunc(stop))

	return nil
}

// httpServeHook wraps a http.Server.ListenAndServe function, swallowing http.ErrServerClosed.
type httpServeHook func() error

func (h httpServeHook) Call(context.Context) error {
	err := h()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "serve")
	}

	return nil
}
