package presenter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/omni/insured-bridge-relayer/config"
	"github.com/omni/insured-bridge-relayer/db"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/logging"
	mw "github.com/omni/insured-bridge-relayer/presenter/http/middleware"
	"github.com/omni/insured-bridge-relayer/presenter/http/render"
)

// Presenter serves the journal of transactions submitted by the relayer.
type Presenter struct {
	logger   logging.Logger
	txs      entity.TransactionsRepo
	cfg      *config.Config
	chainIDs map[string]bool
	root     chi.Router
}

func NewPresenter(logger logging.Logger, txs entity.TransactionsRepo, cfg *config.Config) *Presenter {
	chainIDs := map[string]bool{strconv.FormatUint(cfg.L1.ChainID, 10): true}
	for _, chainCfg := range cfg.L2Chains {
		chainIDs[strconv.FormatUint(chainCfg.ChainID, 10)] = true
	}
	p := &Presenter{
		logger:   logger,
		txs:      txs,
		cfg:      cfg,
		chainIDs: chainIDs,
		root:     chi.NewMux(),
	}
	p.root.Use(middleware.Throttle(5))
	p.root.Use(middleware.RequestID)
	p.root.Use(mw.NewLoggerMiddleware(logger))
	p.root.Use(mw.Recoverer)
	p.root.With(mw.GetChainIDMiddleware(chainIDs), mw.GetLimitMiddleware).
		Get("/chain/{chainID:[0-9]+}/transactions", p.GetChainTransactions)
	p.root.With(mw.GetTxHashMiddleware).
		Get("/tx/{txHash:0x[0-9a-fA-F]{64}}", p.GetTransaction)
	p.root.Get("/actions", p.GetEnabledActions)
	return p
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	return http.ListenAndServe(addr, p.root)
}

func (p *Presenter) GetChainTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := p.txs.FindByChainID(ctx, mw.ChainID(ctx), mw.Limit(ctx))
	if err != nil {
		render.Error(w, r, http.StatusInternalServerError, fmt.Errorf("failed to find transactions: %w", err))
		return
	}

	res := make([]*TransactionInfo, len(records))
	for i, record := range records {
		res[i] = recordToTransactionInfo(record)
	}
	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txHash := mw.TxHash(ctx)
	record, err := p.txs.GetByHash(ctx, txHash)
	if errors.Is(err, db.ErrNotFound) {
		render.JSON(w, r, http.StatusNotFound, fmt.Sprintf("transaction %s not found", txHash))
		return
	}
	if err != nil {
		render.Error(w, r, http.StatusInternalServerError, fmt.Errorf("failed to get transaction: %w", err))
		return
	}
	render.JSON(w, r, http.StatusOK, recordToTransactionInfo(record))
}

func (p *Presenter) GetEnabledActions(w http.ResponseWriter, r *http.Request) {
	res := &ActionsInfo{
		EnabledActions:      p.cfg.Relayer.EnabledActions,
		WhitelistedChainIDs: p.cfg.Relayer.WhitelistedChainIDs,
	}
	for _, chainCfg := range p.cfg.L2Chains {
		res.L2ChainIDs = append(res.L2ChainIDs, chainCfg.ChainID)
	}
	render.JSON(w, r, http.StatusOK, res)
}
