package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// getReserveData returns the pool's ReserveData struct. The struct is static, so its ABI
// encoding equals the flattened field list; aTokenAddress is output 8.
const poolABIJSON = `[{
	"name": "getReserveData",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "asset", "type": "address"}],
	"outputs": [
		{"name": "configuration", "type": "uint256"},
		{"name": "liquidityIndex", "type": "uint128"},
		{"name": "currentLiquidityRate", "type": "uint128"},
		{"name": "variableBorrowIndex", "type": "uint128"},
		{"name": "currentVariableBorrowRate", "type": "uint128"},
		{"name": "currentStableBorrowRate", "type": "uint128"},
		{"name": "lastUpdateTimestamp", "type": "uint40"},
		{"name": "id", "type": "uint16"},
		{"name": "aTokenAddress", "type": "address"},
		{"name": "stableDebtTokenAddress", "type": "address"},
		{"name": "variableDebtTokenAddress", "type": "address"},
		{"name": "interestRateStrategyAddress", "type": "address"},
		{"name": "accruedToTreasury", "type": "uint128"},
		{"name": "unbacked", "type": "uint128"},
		{"name": "isolationModeTotalDebt", "type": "uint128"}
	]
}]`

const reserveTokenOutputIndex = 8

const erc20ABIJSON = `[{
	"name": "balanceOf",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "account", "type": "address"}],
	"outputs": [{"name": "", "type": "uint256"}]
}]`

const vaultABIJSON = `[{
	"name": "totalAssets",
	"type": "function",
	"stateMutability": "view",
	"inputs": [],
	"outputs": [{"name": "", "type": "uint256"}]
}, {
	"name": "nonce",
	"type": "function",
	"stateMutability": "view",
	"inputs": [],
	"outputs": [{"name": "", "type": "uint256"}]
}]`

var (
	poolABI  = mustParseABI(poolABIJSON)
	erc20ABI = mustParseABI(erc20ABIJSON)
	vaultABI = mustParseABI(vaultABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
