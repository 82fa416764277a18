package repository

import (
	"github.com/omni/insured-bridge-relayer/db"
	"github.com/omni/insured-bridge-relayer/entity"
	"github.com/omni/insured-bridge-relayer/repository/postgres"
)

type Repo struct {
	Transactions entity.TransactionsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Transactions: postgres.NewTransactionsRepo("transactions", db),
	}
}
