package hubd

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"stablecore/crypto"
	"stablecore/integrations/eventlog"
	"stablecore/integrations/exports"
	"stablecore/native/mintinghub"
	"stablecore/native/roller"
)

// execute runs fn as one protocol operation on behalf of the authenticated
// caller and renders its result.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, op string, status int, fn func(caller [20]byte) (interface{}, error)) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, &Error{Status: http.StatusUnauthorized, Code: "unauthenticated", Message: "caller unknown"})
		return
	}
	var result interface{}
	err := s.runtime.Do(r.Context(), op, func() error {
		var err error
		result, err = fn(caller)
		return err
	})
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	writeJSON(w, status, result)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request, fn func() (interface{}, error)) {
	var result interface{}
	err := s.runtime.View(func() error {
		var err error
		result, err = fn()
		return err
	})
	if err != nil {
		s.fail(w, r, "read", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError && apiErr.Status != http.StatusServiceUnavailable {
		s.logger.Error("operation failed", "operation", op, "route", r.URL.Path, "error", err)
	}
	writeError(w, apiErr)
}

func positionParam(r *http.Request) ([20]byte, error) {
	return parseAccount("position", chi.URLParam(r, "addr"))
}

func challengeParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, badRequest("invalid challenge id")
	}
	return id, nil
}

func (s *Server) positionView(addr [20]byte) (positionView, error) {
	engine := s.runtime.Positions()
	p, err := engine.Get(addr)
	if err != nil {
		return positionView{}, err
	}
	return newPositionView(engine, p)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.read(w, r, func() (interface{}, error) { return s.positionView(addr) })
}

func (s *Server) handleExpiredPrice(w http.ResponseWriter, r *http.Request) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.read(w, r, func() (interface{}, error) {
		price, err := s.runtime.Hub().ExpiredPurchasePrice(addr)
		if err != nil {
			return nil, err
		}
		return map[string]string{"position": crypto.FormatPosition(addr), "price": amountString(price)}, nil
	})
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := challengeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.read(w, r, func() (interface{}, error) {
		hub := s.runtime.Hub()
		ch, err := hub.GetChallenge(id)
		if err != nil {
			return nil, err
		}
		price, err := hub.ChallengePrice(id)
		if err != nil {
			return nil, err
		}
		return newChallengeView(ch, price), nil
	})
}

func (s *Server) handlePendingReturns(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAccount("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err)
		return
	}
	collateral := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "collateral")))
	s.read(w, r, func() (interface{}, error) {
		amount, err := s.runtime.Hub().PendingReturns(collateral, owner)
		if err != nil {
			return nil, err
		}
		return map[string]string{"collateral": collateral, "owner": crypto.FormatAccount(owner), "amount": amountString(amount)}, nil
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, func() (interface{}, error) {
		ledger := s.runtime.Ledger()
		supply, err := ledger.TotalSupply()
		if err != nil {
			return nil, err
		}
		reserve, err := ledger.ReserveBalance()
		if err != nil {
			return nil, err
		}
		minterReserve, err := ledger.MinterReserve()
		if err != nil {
			return nil, err
		}
		equity, err := ledger.Equity()
		if err != nil {
			return nil, err
		}
		rate, err := s.runtime.Rates().CurrentRatePPM()
		if err != nil {
			return nil, err
		}
		return ledgerView{
			Currency:      ledger.Symbol(),
			TotalSupply:   amountString(supply),
			Reserve:       amountString(reserve),
			MinterReserve: amountString(minterReserve),
			Equity:        amountString(equity),
			LeadRatePPM:   rate,
		}, nil
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount("address", chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.read(w, r, func() (interface{}, error) {
		balances, err := s.runtime.Balances(addr)
		if err != nil {
			return nil, err
		}
		view := accountView{Address: crypto.FormatAccount(addr), Balances: make(map[string]string, len(balances))}
		for symbol, amount := range balances {
			view.Balances[symbol] = amountString(amount)
		}
		return view, nil
	})
}

func (s *Server) handleLeadRate(w http.ResponseWriter, r *http.Request) {
	s.read(w, r, func() (interface{}, error) {
		info, err := s.runtime.Rates().Info()
		if err != nil {
			return nil, err
		}
		return leadRateView{
			CurrentPPM: info.CurrentPPM,
			NextPPM:    info.NextPPM,
			NextChange: info.NextChange,
			Pending:    info.Pending,
		}, nil
	})
}

func (s *Server) eventQuery(r *http.Request) (eventlog.Query, error) {
	q := eventlog.Query{Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return q, badRequest("invalid after cursor")
		}
		q.AfterID = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, badRequest("invalid limit")
		}
		q.Limit = limit
	}
	return q, nil
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, &Error{Status: http.StatusNotFound, Code: "not_found", Message: "event journal disabled"})
		return
	}
	q, err := s.eventQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.journal.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, "events.list", err)
		return
	}
	out := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		attrs, err := record.Decode()
		if err != nil {
			s.fail(w, r, "events.list", fmt.Errorf("record %d: %w", record.ID, err))
			return
		}
		out = append(out, map[string]interface{}{
			"id":         record.ID,
			"type":       record.Type,
			"attributes": attrs,
			"createdAt":  record.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (s *Server) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, &Error{Status: http.StatusNotFound, Code: "not_found", Message: "event journal disabled"})
		return
	}
	q, err := s.eventQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := s.journal.List(r.Context(), q)
	if err != nil {
		s.fail(w, r, "events.export", err)
		return
	}
	var (
		data        []byte
		checksum    string
		contentType string
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "jsonl":
		data, checksum, err = exports.EventsJSONL(records)
		contentType = "application/x-ndjson"
	case "csv":
		data, checksum, err = exports.EventsCSV(records)
		contentType = "text/csv"
	default:
		writeError(w, badRequest("unsupported format "+format))
		return
	}
	if err != nil {
		s.fail(w, r, "events.export", err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Checksum-Sha256", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := body.toEngine()
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "open", http.StatusCreated, func(caller [20]byte) (interface{}, error) {
		p, err := s.runtime.Hub().OpenPosition(caller, req)
		if err != nil {
			return nil, err
		}
		return newPositionView(s.runtime.Positions(), p)
	})
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	parent, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body cloneRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseOptionalAccount("owner", body.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	collateral, err := parseAmount("initialCollateral", body.InitialCollateral, true)
	if err != nil {
		writeError(w, err)
		return
	}
	mint, err := parseAmount("initialMint", body.InitialMint, false)
	if err != nil {
		writeError(w, err)
		return
	}
	req := mintinghub.CloneRequest{
		Owner:             owner,
		Parent:            parent,
		InitialCollateral: collateral,
		InitialMint:       mint,
		Expiration:        body.Expiration,
	}
	s.execute(w, r, "clone", http.StatusCreated, func(caller [20]byte) (interface{}, error) {
		p, err := s.runtime.Hub().Clone(caller, req)
		if err != nil {
			return nil, err
		}
		return newPositionView(s.runtime.Positions(), p)
	})
}

// positionOp decodes an amount request against the position in the path.
func (s *Server) positionOp(w http.ResponseWriter, r *http.Request, op string, required bool, fn func(caller, addr, target [20]byte, amount *big.Int) error) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body amountRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", body.Amount, required)
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := parseOptionalAccount("target", body.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, op, http.StatusOK, func(caller [20]byte) (interface{}, error) {
		to := target
		if to == ([20]byte{}) {
			to = caller
		}
		if err := fn(caller, addr, to, amount); err != nil {
			return nil, err
		}
		return s.positionView(addr)
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.positionOp(w, r, "mint", true, func(caller, addr, target [20]byte, amount *big.Int) error {
		return s.runtime.Positions().Mint(caller, addr, target, amount)
	})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	s.positionOp(w, r, "repay", true, func(caller, addr, _ [20]byte, amount *big.Int) error {
		_, err := s.runtime.Positions().Repay(caller, addr, amount)
		return err
	})
}

func (s *Server) handleRepayFull(w http.ResponseWriter, r *http.Request) {
	s.positionOp(w, r, "repay_full", false, func(caller, addr, _ [20]byte, _ *big.Int) error {
		_, err := s.runtime.Positions().RepayFull(caller, addr)
		return err
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.positionOp(w, r, "withdraw", true, func(caller, addr, target [20]byte, amount *big.Int) error {
		return s.runtime.Positions().WithdrawCollateral(caller, addr, target, amount)
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.positionOp(w, r, "deposit", true, func(caller, addr, _ [20]byte, amount *big.Int) error {
		return s.runtime.Positions().DepositCollateral(caller, addr, amount)
	})
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body adjustRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	debt, err := parseAmount("debt", body.Debt, true)
	if err != nil {
		writeError(w, err)
		return
	}
	collateral, err := parseAmount("collateral", body.Collateral, true)
	if err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount("price", body.Price, true)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "adjust", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		if err := s.runtime.Positions().Adjust(caller, addr, debt, collateral, price); err != nil {
			return nil, err
		}
		return s.positionView(addr)
	})
}

func (s *Server) handleAdjustPrice(w http.ResponseWriter, r *http.Request) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body priceRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount("price", body.Price, true)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "adjust_price", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		if err := s.runtime.Positions().AdjustPrice(caller, addr, price); err != nil {
			return nil, err
		}
		return s.positionView(addr)
	})
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body denyRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "deny", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		if err := s.runtime.Positions().Deny(caller, addr, body.Message); err != nil {
			return nil, err
		}
		return s.positionView(addr)
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body transferRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	owner, err := parseAccount("owner", body.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "transfer", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		if err := s.runtime.Positions().TransferOwnership(caller, addr, owner); err != nil {
			return nil, err
		}
		return s.positionView(addr)
	})
}

func (s *Server) handleBuyExpired(w http.ResponseWriter, r *http.Request) {
	addr, err := positionParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body buyExpiredRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	upTo, err := parseAmount("upTo", body.UpTo, true)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "buy_expired", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		bought, err := s.runtime.Hub().BuyExpiredCollateral(caller, addr, upTo)
		if err != nil {
			return nil, err
		}
		return map[string]string{"position": crypto.FormatPosition(addr), "bought": amountString(bought)}, nil
	})
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var body challengeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	addr, err := parseAccount("position", body.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := parseAmount("size", body.Size, true)
	if err != nil {
		writeError(w, err)
		return
	}
	minPrice, err := parseAmount("minimumPrice", body.MinimumPrice, true)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "challenge", http.StatusCreated, func(caller [20]byte) (interface{}, error) {
		hub := s.runtime.Hub()
		id, err := hub.Challenge(caller, addr, size, minPrice)
		if err != nil {
			return nil, err
		}
		ch, err := hub.GetChallenge(id)
		if err != nil {
			return nil, err
		}
		price, err := hub.ChallengePrice(id)
		if err != nil {
			return nil, err
		}
		return newChallengeView(ch, price), nil
	})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	id, err := challengeParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body bidRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	size, err := parseAmount("size", body.Size, true)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "bid", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		res, err := s.runtime.Hub().Bid(caller, id, size, body.Postpone)
		if err != nil {
			return nil, err
		}
		return newBidView(res), nil
	})
}

func (s *Server) handleReturnPending(w http.ResponseWriter, r *http.Request) {
	var body returnRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	collateral := strings.ToUpper(strings.TrimSpace(body.Collateral))
	if collateral == "" {
		writeError(w, badRequest("collateral is required"))
		return
	}
	target, err := parseOptionalAccount("target", body.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "return_pending", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		to := target
		if to == ([20]byte{}) {
			to = caller
		}
		amount, err := s.runtime.Hub().ReturnPostponedCollateral(caller, collateral, to)
		if err != nil {
			return nil, err
		}
		return map[string]string{"collateral": collateral, "target": crypto.FormatAccount(to), "amount": amountString(amount)}, nil
	})
}

func (s *Server) decodeRoll(r *http.Request) (rollRequest, [20]byte, [20]byte, error) {
	var body rollRequest
	if err := decodeJSON(r, &body); err != nil {
		return body, [20]byte{}, [20]byte{}, err
	}
	source, err := parseAccount("source", body.Source)
	if err != nil {
		return body, source, [20]byte{}, err
	}
	target, err := parseAccount("target", body.Target)
	if err != nil {
		return body, source, target, err
	}
	return body, source, target, nil
}

func (s *Server) handleRoll(w http.ResponseWriter, r *http.Request) {
	body, source, target, err := s.decodeRoll(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var plan *roller.Plan
	if body.Plan != nil {
		explicit := roller.Plan{Source: source, Target: target, Expiration: body.Expiration}
		fields := []struct {
			name string
			raw  string
			dst  **big.Int
		}{
			{"plan.repay", body.Plan.Repay, &explicit.Repay},
			{"plan.collateralWithdraw", body.Plan.CollateralWithdraw, &explicit.CollateralWithdraw},
			{"plan.mint", body.Plan.Mint, &explicit.Mint},
			{"plan.collateralDeposit", body.Plan.CollateralDeposit, &explicit.CollateralDeposit},
		}
		for _, field := range fields {
			value, err := parseAmount(field.name, field.raw, false)
			if err != nil {
				writeError(w, err)
				return
			}
			*field.dst = value
		}
		plan = &explicit
	}
	s.execute(w, r, "roll", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		rl := s.runtime.Roller()
		var (
			res *roller.Result
			err error
		)
		switch {
		case plan != nil:
			res, err = rl.Roll(caller, *plan)
		case body.Expiration > 0:
			res, err = rl.RollFullyWithExpiration(caller, source, target, body.Expiration)
		default:
			res, err = rl.RollFully(caller, source, target)
		}
		if err != nil {
			return nil, err
		}
		return newRollView(res), nil
	})
}

func (s *Server) handleRollNative(w http.ResponseWriter, r *http.Request) {
	body, source, target, err := s.decodeRoll(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if body.Plan != nil {
		writeError(w, badRequest("native rolls are planned by the roller"))
		return
	}
	extra, err := parseAmount("extraNative", body.ExtraNative, false)
	if err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "roll_native", http.StatusOK, func(caller [20]byte) (interface{}, error) {
		expiration := body.Expiration
		if expiration == 0 {
			tgt, err := s.runtime.Positions().Get(target)
			if err != nil {
				return nil, err
			}
			expiration = tgt.Expiration
		}
		res, err := s.runtime.Roller().RollFullyNative(caller, source, target, expiration, extra)
		if err != nil {
			return nil, err
		}
		return newRollView(res), nil
	})
}

func (s *Server) handleProposeRate(w http.ResponseWriter, r *http.Request) {
	var body leadRateRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	s.execute(w, r, "leadrate_propose", http.StatusAccepted, func(caller [20]byte) (interface{}, error) {
		if err := s.runtime.Rates().Propose(caller, body.RatePPM); err != nil {
			return nil, err
		}
		info, err := s.runtime.Rates().Info()
		if err != nil {
			return nil, err
		}
		return leadRateView{CurrentPPM: info.CurrentPPM, NextPPM: info.NextPPM, NextChange: info.NextChange, Pending: info.Pending}, nil
	})
}

func (s *Server) handleApplyRate(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, "leadrate_apply", http.StatusOK, func(_ [20]byte) (interface{}, error) {
		if err := s.runtime.Rates().Apply(); err != nil {
			return nil, err
		}
		rate, err := s.runtime.Rates().CurrentRatePPM()
		if err != nil {
			return nil, err
		}
		return leadRateView{CurrentPPM: rate}, nil
	})
}
