package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/omni/insured-bridge-relayer/presenter/http/render"
)

type ctxKey int

const (
	chainIDCtxKey ctxKey = iota
	txHashCtxKey
	limitCtxKey
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var ErrInvalidLimit = errors.New("invalid limit parameter")

// GetChainIDMiddleware rejects chain ids that are not served by this relayer.
func GetChainIDMiddleware(chainIDs map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chainID := chi.URLParam(r, "chainID")

			if !chainIDs[chainID] {
				render.JSON(w, r, http.StatusNotFound, fmt.Sprintf("chain with id %s not found", chainID))
				return
			}

			ctx := context.WithValue(r.Context(), chainIDCtxKey, chainID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ChainID(ctx context.Context) string {
	chainID, _ := ctx.Value(chainIDCtxKey).(string)
	return chainID
}

func GetTxHashMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), txHashCtxKey, common.HexToHash(chi.URLParam(r, "txHash")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func TxHash(ctx context.Context) common.Hash {
	txHash, _ := ctx.Value(txHashCtxKey).(common.Hash)
	return txHash
}

func GetLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := uint64(DefaultLimit)
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			var err error
			limit, err = strconv.ParseUint(limitStr, 10, 64)
			if err != nil {
				render.Error(w, r, http.StatusBadRequest, fmt.Errorf("failed to parse limit: %w", err))
				return
			}
			if limit == 0 || limit > MaxLimit {
				render.Error(w, r, http.StatusBadRequest, fmt.Errorf("limit should be between 1 and %d: %w", MaxLimit, ErrInvalidLimit))
				return
			}
		}

		ctx := context.WithValue(r.Context(), limitCtxKey, limit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Limit(ctx context.Context) uint64 {
	if limit, ok := ctx.Value(limitCtxKey).(uint64); ok {
		return limit
	}
	return DefaultLimit
}
