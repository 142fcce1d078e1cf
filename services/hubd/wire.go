package hubd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"stablecore/crypto"
	"stablecore/native/mintinghub"
	"stablecore/native/position"
	"stablecore/native/roller"
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	writeJSON(w, apiErr.Status, map[string]*Error{"error": apiErr})
}

// parseAmount reads a non-negative decimal amount. Empty means zero unless
// the field is required.
func parseAmount(field, raw string, required bool) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return nil, badRequest(field + " is required")
		}
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, badRequest(fmt.Sprintf("%s must be a non-negative integer", field))
	}
	return value, nil
}

func parseAccount(field, raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return addr, badRequest(fmt.Sprintf("invalid %s: %v", field, err))
	}
	return addr, nil
}

func parseOptionalAccount(field, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, nil
	}
	return parseAccount(field, raw)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type openRequest struct {
	Collateral        string `json:"collateral"`
	MinimumCollateral string `json:"minimumCollateral"`
	InitialCollateral string `json:"initialCollateral"`
	Limit             string `json:"limit"`
	InitPeriod        uint64 `json:"initPeriod"`
	Duration          uint64 `json:"duration"`
	ChallengePeriod   uint64 `json:"challengePeriod"`
	RiskPremiumPPM    uint64 `json:"riskPremiumPpm"`
	Price             string `json:"price"`
	ReservePPM        uint64 `json:"reservePpm"`
}

func (req openRequest) toEngine() (mintinghub.OpenRequest, error) {
	out := mintinghub.OpenRequest{
		Collateral:      strings.TrimSpace(req.Collateral),
		InitPeriod:      req.InitPeriod,
		Duration:        req.Duration,
		ChallengePeriod: req.ChallengePeriod,
		RiskPremiumPPM:  req.RiskPremiumPPM,
		ReservePPM:      req.ReservePPM,
	}
	if out.Collateral == "" {
		return out, badRequest("collateral is required")
	}
	var err error
	if out.MinimumCollateral, err = parseAmount("minimumCollateral", req.MinimumCollateral, true); err != nil {
		return out, err
	}
	if out.InitialCollateral, err = parseAmount("initialCollateral", req.InitialCollateral, true); err != nil {
		return out, err
	}
	if out.Limit, err = parseAmount("limit", req.Limit, true); err != nil {
		return out, err
	}
	if out.Price, err = parseAmount("price", req.Price, true); err != nil {
		return out, err
	}
	return out, nil
}

type cloneRequest struct {
	Owner             string `json:"owner"`
	InitialCollateral string `json:"initialCollateral"`
	InitialMint       string `json:"initialMint"`
	Expiration        uint64 `json:"expiration"`
}

type amountRequest struct {
	Amount string `json:"amount"`
	Target string `json:"target"`
}

type adjustRequest struct {
	Debt       string `json:"debt"`
	Collateral string `json:"collateral"`
	Price      string `json:"price"`
}

type priceRequest struct {
	Price string `json:"price"`
}

type denyRequest struct {
	Message string `json:"message"`
}

type transferRequest struct {
	Owner string `json:"owner"`
}

type buyExpiredRequest struct {
	UpTo string `json:"upTo"`
}

type challengeRequest struct {
	Position     string `json:"position"`
	Size         string `json:"size"`
	MinimumPrice string `json:"minimumPrice"`
}

type bidRequest struct {
	Size     string `json:"size"`
	Postpone bool   `json:"postpone"`
}

type returnRequest struct {
	Collateral string `json:"collateral"`
	Target     string `json:"target"`
}

type planRequest struct {
	Repay              string `json:"repay"`
	CollateralWithdraw string `json:"collateralWithdraw"`
	Mint               string `json:"mint"`
	CollateralDeposit  string `json:"collateralDeposit"`
}

type rollRequest struct {
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	Expiration  uint64       `json:"expiration"`
	ExtraNative string       `json:"extraNative"`
	Plan        *planRequest `json:"plan,omitempty"`
}

type leadRateRequest struct {
	RatePPM uint64 `json:"ratePpm"`
}

type positionView struct {
	Address                string `json:"address"`
	Owner                  string `json:"owner"`
	Original               string `json:"original"`
	Collateral             string `json:"collateral"`
	CollateralBalance      string `json:"collateralBalance"`
	MinimumCollateral      string `json:"minimumCollateral"`
	Limit                  string `json:"limit"`
	Price                  string `json:"price"`
	Principal              string `json:"principal"`
	Interest               string `json:"interest"`
	Debt                   string `json:"debt"`
	AvailableForMinting    string `json:"availableForMinting"`
	ChallengedAmount       string `json:"challengedAmount"`
	RiskPremiumPPM         uint64 `json:"riskPremiumPpm"`
	FixedAnnualRatePPM     uint64 `json:"fixedAnnualRatePpm"`
	ReserveContributionPPM uint64 `json:"reservePpm"`
	Start                  uint64 `json:"start"`
	Cooldown               uint64 `json:"cooldown"`
	Expiration             uint64 `json:"expiration"`
	ChallengePeriod        uint64 `json:"challengePeriod"`
	State                  string `json:"state"`
}

func newPositionView(engine *position.Engine, p *position.Position) (positionView, error) {
	balance, err := engine.CollateralBalance(p)
	if err != nil {
		return positionView{}, err
	}
	available, err := engine.AvailableForMinting(p)
	if err != nil {
		return positionView{}, err
	}
	return positionView{
		Address:                crypto.FormatPosition(p.Address),
		Owner:                  crypto.FormatAccount(p.Owner),
		Original:               crypto.FormatPosition(p.Original),
		Collateral:             p.Collateral,
		CollateralBalance:      amountString(balance),
		MinimumCollateral:      amountString(p.MinimumCollateral),
		Limit:                  amountString(p.Limit),
		Price:                  amountString(p.Price),
		Principal:              amountString(p.Principal),
		Interest:               amountString(engine.CurrentInterest(p)),
		Debt:                   amountString(engine.CurrentDebt(p)),
		AvailableForMinting:    amountString(available),
		ChallengedAmount:       amountString(p.ChallengedAmount),
		RiskPremiumPPM:         p.RiskPremiumPPM,
		FixedAnnualRatePPM:     p.FixedAnnualRatePPM,
		ReserveContributionPPM: p.ReserveContributionPPM,
		Start:                  p.Start,
		Cooldown:               p.Cooldown,
		Expiration:             p.Expiration,
		ChallengePeriod:        p.ChallengePeriod,
		State:                  p.StateAt(engine.Now()).String(),
	}, nil
}

type challengeView struct {
	ID           uint64 `json:"id"`
	Challenger   string `json:"challenger"`
	Position     string `json:"position"`
	Size         string `json:"size"`
	StartPrice   string `json:"startPrice"`
	Start        uint64 `json:"start"`
	CurrentPrice string `json:"currentPrice"`
}

func newChallengeView(ch *mintinghub.Challenge, current *big.Int) challengeView {
	return challengeView{
		ID:           ch.ID,
		Challenger:   crypto.FormatAccount(ch.Challenger),
		Position:     crypto.FormatPosition(ch.Position),
		Size:         amountString(ch.Size),
		StartPrice:   amountString(ch.Price),
		Start:        ch.Start,
		CurrentPrice: amountString(current),
	}
}

type bidView struct {
	Averted  bool   `json:"averted"`
	Size     string `json:"size"`
	Price    string `json:"price"`
	Paid     string `json:"paid"`
	Acquired string `json:"acquired"`
	Reward   string `json:"reward"`
}

func newBidView(res *mintinghub.BidResult) bidView {
	return bidView{
		Averted:  res.Averted,
		Size:     amountString(res.Size),
		Price:    amountString(res.Price),
		Paid:     amountString(res.Paid),
		Acquired: amountString(res.Acquired),
		Reward:   amountString(res.Reward),
	}
}

type rollView struct {
	Source             string `json:"source"`
	Target             string `json:"target"`
	Cloned             bool   `json:"cloned"`
	Repaid             string `json:"repaid"`
	CollateralWithdraw string `json:"collateralWithdraw"`
	Mint               string `json:"mint"`
	CollateralDeposit  string `json:"collateralDeposit"`
	Expiration         uint64 `json:"expiration"`
}

func newRollView(res *roller.Result) rollView {
	return rollView{
		Source:             crypto.FormatPosition(res.Plan.Source),
		Target:             crypto.FormatPosition(res.Target),
		Cloned:             res.Cloned,
		Repaid:             amountString(res.Repaid),
		CollateralWithdraw: amountString(res.Plan.CollateralWithdraw),
		Mint:               amountString(res.Plan.Mint),
		CollateralDeposit:  amountString(res.Plan.CollateralDeposit),
		Expiration:         res.Plan.Expiration,
	}
}

type leadRateView struct {
	CurrentPPM uint64 `json:"currentPpm"`
	NextPPM    uint64 `json:"nextPpm,omitempty"`
	NextChange uint64 `json:"nextChange,omitempty"`
	Pending    bool   `json:"pending"`
}

type ledgerView struct {
	Currency      string `json:"currency"`
	TotalSupply   string `json:"totalSupply"`
	Reserve       string `json:"reserve"`
	MinterReserve string `json:"minterReserve"`
	Equity        string `json:"equity"`
	LeadRatePPM   uint64 `json:"leadRatePpm"`
}

type accountView struct {
	Address  string            `json:"address"`
	Balances map[string]string `json:"balances"`
}
