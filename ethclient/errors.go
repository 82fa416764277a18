package ethclient

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// IsExecutionReverted reports whether err is the node refusing the call itself,
// as opposed to a transport or node availability failure.
func IsExecutionReverted(err error) bool {
	if err == nil {
		return false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
