package hubd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stablecore/config"
	"stablecore/core/events"
	"stablecore/core/genesis"
	"stablecore/core/state"
	"stablecore/native/bank"
	"stablecore/native/leadrate"
	"stablecore/native/mintinghub"
	"stablecore/native/position"
	"stablecore/native/roller"
	"stablecore/native/stablecoin"
	"stablecore/observability"
	"stablecore/storage"
)

// Runtime owns the protocol engines and serialises every mutation through a
// single state manager. Each operation either commits with its events
// forwarded downstream, or reverts with its events dropped.
type Runtime struct {
	mu sync.Mutex

	genesis *config.Genesis
	state   *state.Manager
	buffer  *events.Buffer
	clock   func() int64

	ledger    *stablecoin.Ledger
	bank      *bank.Bank
	rates     *leadrate.Oracle
	positions *position.Engine
	hub       *mintinghub.Engine
	roller    *roller.Engine

	metrics *observability.HubMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// RuntimeOption customises a runtime.
type RuntimeOption func(*Runtime, *runtimeOptions)

type runtimeOptions struct {
	emitters []events.Emitter
}

// WithClock overrides the wall clock used by the engines.
func WithClock(now func() int64) RuntimeOption {
	return func(r *Runtime, _ *runtimeOptions) {
		if now != nil {
			r.clock = now
		}
	}
}

// WithEmitters adds downstream receivers of committed events.
func WithEmitters(emitters ...events.Emitter) RuntimeOption {
	return func(_ *Runtime, o *runtimeOptions) {
		o.emitters = append(o.emitters, emitters...)
	}
}

// WithLogger overrides the runtime logger.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime, _ *runtimeOptions) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRuntime applies genesis to db when needed and wires the engines.
func NewRuntime(cfg *config.Genesis, db storage.Database, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("genesis configuration required")
	}
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	r := &Runtime{
		genesis: cfg,
		state:   state.NewManager(db),
		clock:   func() int64 { return time.Now().Unix() },
		metrics: observability.Hub(),
		tracer:  otel.Tracer("stablecore/hubd"),
		logger:  slog.Default(),
	}
	options := &runtimeOptions{}
	for _, opt := range opts {
		opt(r, options)
	}

	applied, err := genesis.Apply(cfg, r.state)
	if err != nil {
		r.state.Discard()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		if err := r.state.Commit(); err != nil {
			return nil, fmt.Errorf("commit genesis: %w", err)
		}
		r.logger.Info("genesis applied", "currency", cfg.Currency.Symbol)
	}

	downstream := append(events.MultiEmitter{observability.Events()}, options.emitters...)
	r.buffer = events.NewBuffer(downstream)
	if err := r.wire(); err != nil {
		return nil, err
	}
	r.recordLedger()
	return r, nil
}

func (r *Runtime) wire() error {
	cfg := r.genesis
	reserve, err := cfg.ReserveAddress()
	if err != nil {
		return err
	}
	hubAddr, err := cfg.HubAddress()
	if err != nil {
		return err
	}
	rollerAddr, err := cfg.RollerAddress()
	if err != nil {
		return err
	}
	params, err := cfg.HubParams()
	if err != nil {
		return err
	}
	pauses := cfg.Pauses.View()

	r.ledger = stablecoin.NewLedger(cfg.Currency.Symbol, reserve)
	r.ledger.SetState(r.state)
	r.ledger.SetPauses(pauses)
	r.ledger.SetEmitter(r.buffer)

	r.bank = bank.New()
	r.bank.SetState(r.state)
	if cfg.Wrapping.Native != "" && cfg.Wrapping.Wrapped != "" {
		r.bank.SetWrapping(cfg.Wrapping.Native, cfg.Wrapping.Wrapped)
	}

	r.rates = leadrate.NewOracle()
	r.rates.SetState(r.state)
	r.rates.SetPauses(pauses)
	r.rates.SetEmitter(r.buffer)
	r.rates.SetNowFunc(r.clock)
	if cfg.LeadRate.DelaySeconds > 0 {
		r.rates.SetDelay(cfg.LeadRate.DelaySeconds)
	}

	r.positions = position.NewEngine()
	r.positions.SetState(r.state)
	r.positions.SetLedger(r.ledger)
	r.positions.SetBank(r.bank)
	r.positions.SetRateOracle(r.rates)
	r.positions.SetRoller(position.RollerAddress(rollerAddr))
	r.positions.SetPauses(pauses)
	r.positions.SetNowFunc(r.clock)
	r.positions.SetEmitter(r.buffer)

	r.hub = mintinghub.NewEngine(hubAddr)
	r.hub.SetState(r.state)
	r.hub.SetLedger(r.ledger)
	r.hub.SetBank(r.bank)
	r.hub.SetPositions(r.positions)
	r.hub.SetPauses(pauses)
	r.hub.SetEmitter(r.buffer)
	if err := r.hub.SetParams(params); err != nil {
		return fmt.Errorf("hub params: %w", err)
	}

	r.roller = roller.NewEngine(rollerAddr)
	r.roller.SetState(r.state)
	r.roller.SetLedger(r.ledger)
	r.roller.SetPositions(r.positions)
	r.roller.SetHub(r.hub)
	r.roller.SetWrapper(r.bank)
	r.roller.SetPauses(pauses)
	r.roller.SetEmitter(r.buffer)
	return nil
}

// Do runs fn as one atomic protocol operation named op.
func (r *Runtime) Do(ctx context.Context, op string, fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, span := r.tracer.Start(ctx, "hub."+op, trace.WithAttributes(attribute.String("hub.operation", op)))
	defer span.End()
	start := time.Now()

	err := r.state.Atomic(fn)
	if err == nil {
		err = r.state.Commit()
	}
	if err != nil {
		r.buffer.Drop()
		r.state.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.Observe(op, time.Since(start), outcomeOf(err))
		return err
	}
	r.buffer.Flush()
	r.metrics.Observe(op, time.Since(start), "")
	r.recordLedger()
	return nil
}

// View runs a read-only fn against committed state.
func (r *Runtime) View(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

// Now returns the engine clock.
func (r *Runtime) Now() uint64 { return r.positions.Now() }

// Ledger returns the currency ledger.
func (r *Runtime) Ledger() *stablecoin.Ledger { return r.ledger }

// Bank returns the collateral bank.
func (r *Runtime) Bank() *bank.Bank { return r.bank }

// Rates returns the lead rate oracle.
func (r *Runtime) Rates() *leadrate.Oracle { return r.rates }

// Positions returns the position engine.
func (r *Runtime) Positions() *position.Engine { return r.positions }

// Hub returns the minting hub.
func (r *Runtime) Hub() *mintinghub.Engine { return r.hub }

// Roller returns the roller.
func (r *Runtime) Roller() *roller.Engine { return r.roller }

func (r *Runtime) recordLedger() {
	supply, err := r.ledger.TotalSupply()
	if err != nil {
		return
	}
	reserve, err := r.ledger.ReserveBalance()
	if err != nil {
		return
	}
	minterReserve, err := r.ledger.MinterReserve()
	if err != nil {
		return
	}
	equity, err := r.ledger.Equity()
	if err != nil {
		equity = new(big.Int)
	}
	r.metrics.RecordLedger(supply, reserve, minterReserve, equity)
}

func outcomeOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return codeFor(err)
}

// Balances returns every registered token balance of addr.
func (r *Runtime) Balances(addr [20]byte) (map[string]*big.Int, error) {
	symbols, err := r.state.TokenList()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*big.Int, len(symbols))
	for _, symbol := range symbols {
		balance, err := r.state.Balance(addr[:], symbol)
		if err != nil {
			return nil, fmt.Errorf("balance %s: %w", symbol, err)
		}
		out[symbol] = balance
	}
	return out, nil
}
