package leadrate

import (
	"errors"
	"time"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
)

// DefaultDelay is the time a proposed rate waits before it can be applied.
const DefaultDelay = 7 * 24 * 60 * 60

var (
	errNilState = errors.New("leadrate: state not configured")

	ErrNotQualified   = errors.New("leadrate: caller is not qualified")
	ErrRateTooHigh    = errors.New("leadrate: rate above 100%")
	ErrNoPendingRate  = errors.New("leadrate: no pending change")
	ErrChangePending  = errors.New("leadrate: change not yet effective")
	ErrNotInitialized = errors.New("leadrate: not initialized")
)

var recordKey = []byte("leadrate/record")

// Info is the persisted rate schedule.
type Info struct {
	CurrentPPM uint64
	NextPPM    uint64
	NextChange uint64
	Pending    bool
}

type oracleState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr []byte) bool
}

// Oracle is the governance-set base rate that every new position adds its
// risk premium to.
type Oracle struct {
	state   oracleState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	delay   uint64
	nowFn   func() int64
}

// NewOracle creates an oracle with the default change delay.
func NewOracle() *Oracle {
	return &Oracle{
		emitter: events.NoopEmitter{},
		delay:   DefaultDelay,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the oracle.
func (o *Oracle) SetState(state oracleState) { o.state = state }

// SetPauses configures the pause view consulted before mutations.
func (o *Oracle) SetPauses(p nativecommon.PauseView) { o.pauses = p }

// SetDelay overrides the proposal delay in seconds.
func (o *Oracle) SetDelay(seconds uint64) { o.delay = seconds }

// SetNowFunc overrides the time source used by the oracle.
func (o *Oracle) SetNowFunc(now func() int64) {
	if now == nil {
		o.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	o.nowFn = now
}

// SetEmitter configures the event emitter used by the oracle.
func (o *Oracle) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		o.emitter = events.NoopEmitter{}
		return
	}
	o.emitter = emitter
}

func (o *Oracle) now() uint64 {
	ts := o.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (o *Oracle) load() (*Info, error) {
	if o == nil || o.state == nil {
		return nil, errNilState
	}
	info := new(Info)
	ok, err := o.state.KVGet(recordKey, info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return info, nil
}

// Initialize sets the starting rate. It is a genesis operation.
func (o *Oracle) Initialize(ratePPM uint64) error {
	if o == nil || o.state == nil {
		return errNilState
	}
	if ratePPM > nativecommon.PPMDenominator {
		return ErrRateTooHigh
	}
	return o.state.KVPut(recordKey, &Info{CurrentPPM: ratePPM, NextPPM: ratePPM})
}

// CurrentRatePPM returns the rate in force.
func (o *Oracle) CurrentRatePPM() (uint64, error) {
	info, err := o.load()
	if err != nil {
		return 0, err
	}
	return info.CurrentPPM, nil
}

// Info returns the current schedule.
func (o *Oracle) Info() (*Info, error) {
	return o.load()
}

// Propose schedules ratePPM to take effect after the delay. A new proposal
// replaces any pending one.
func (o *Oracle) Propose(caller [20]byte, ratePPM uint64) error {
	if err := nativecommon.Guard(o.pauses, nativecommon.ModuleLeadRate); err != nil {
		return err
	}
	info, err := o.load()
	if err != nil {
		return err
	}
	if !o.state.HasRole(nativecommon.RoleGovernance, caller[:]) {
		return ErrNotQualified
	}
	if ratePPM > nativecommon.PPMDenominator {
		return ErrRateTooHigh
	}
	info.NextPPM = ratePPM
	info.NextChange = o.now() + o.delay
	info.Pending = true
	if err := o.state.KVPut(recordKey, info); err != nil {
		return err
	}
	o.emitter.Emit(events.LeadRateProposed{Proposer: caller, NextPPM: ratePPM, EffectiveAt: info.NextChange})
	return nil
}

// Apply activates the pending rate once its delay has passed. Anyone may call it.
func (o *Oracle) Apply() error {
	if err := nativecommon.Guard(o.pauses, nativecommon.ModuleLeadRate); err != nil {
		return err
	}
	info, err := o.load()
	if err != nil {
		return err
	}
	if !info.Pending {
		return ErrNoPendingRate
	}
	if o.now() < info.NextChange {
		return ErrChangePending
	}
	previous := info.CurrentPPM
	info.CurrentPPM = info.NextPPM
	info.Pending = false
	if err := o.state.KVPut(recordKey, info); err != nil {
		return err
	}
	o.emitter.Emit(events.LeadRateChanged{PreviousPPM: previous, RatePPM: info.CurrentPPM})
	return nil
}
