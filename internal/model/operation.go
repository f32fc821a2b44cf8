package model

// Operation kinds accepted in a scenario stream.
const (
	OpFund             = "fund"
	OpCreatePool       = "create_pool"
	OpInitialize       = "initialize"
	OpMint             = "mint"
	OpAddLiquidity     = "add_liquidity"
	OpRemoveLiquidity  = "remove_liquidity"
	OpCollect          = "collect"
	OpBurn             = "burn"
	OpTransferPosition = "transfer_position"
	OpSwapSingle       = "swap_single"
	OpSwapMulti        = "swap_multi"
	OpQuoteSingle      = "quote_single"
	OpQuoteMulti       = "quote_multi"
	OpFlash            = "flash"
)

// Operation is one line of a scenario JSONL stream. Amounts are base-10 strings so
// 256-bit values survive JSON. Which fields are required depends on Op.
type Operation struct {
	Op     string `json:"op" validate:"required,oneof=fund create_pool initialize mint add_liquidity remove_liquidity collect burn transfer_position swap_single swap_multi quote_single quote_multi flash"`
	Caller string `json:"caller,omitempty" validate:"omitempty,eth_addr"`

	Account   string `json:"account,omitempty" validate:"omitempty,eth_addr"`
	Asset     string `json:"asset,omitempty" validate:"omitempty,eth_addr"`
	Token0    string `json:"token0,omitempty" validate:"omitempty,eth_addr"`
	Token1    string `json:"token1,omitempty" validate:"omitempty,eth_addr"`
	TokenIn   string `json:"token_in,omitempty" validate:"omitempty,eth_addr"`
	TokenOut  string `json:"token_out,omitempty" validate:"omitempty,eth_addr"`
	Recipient string `json:"recipient,omitempty" validate:"omitempty,eth_addr"`
	To        string `json:"to,omitempty" validate:"omitempty,eth_addr"`
	Fee       uint32 `json:"fee,omitempty" validate:"omitempty,oneof=100 500 3000 10000"`

	TickLower *int32 `json:"tick_lower,omitempty"`
	TickUpper *int32 `json:"tick_upper,omitempty"`
	TokenID   uint64 `json:"token_id,omitempty"`
	Path      string `json:"path,omitempty"`

	Amount            string `json:"amount,omitempty" validate:"omitempty,uint256"`
	Amount0           string `json:"amount0,omitempty" validate:"omitempty,uint256"`
	Amount1           string `json:"amount1,omitempty" validate:"omitempty,uint256"`
	Amount0Desired    string `json:"amount0_desired,omitempty" validate:"omitempty,uint256"`
	Amount1Desired    string `json:"amount1_desired,omitempty" validate:"omitempty,uint256"`
	Amount0Min        string `json:"amount0_min,omitempty" validate:"omitempty,uint256"`
	Amount1Min        string `json:"amount1_min,omitempty" validate:"omitempty,uint256"`
	Liquidity         string `json:"liquidity,omitempty" validate:"omitempty,uint256"`
	AmountIn          string `json:"amount_in,omitempty" validate:"omitempty,uint256"`
	MinAmountOut      string `json:"min_amount_out,omitempty" validate:"omitempty,uint256"`
	SqrtPriceX96      string `json:"sqrt_price_x96,omitempty" validate:"omitempty,uint256"`
	SqrtPriceLimitX96 string `json:"sqrt_price_limit_x96,omitempty" validate:"omitempty,uint256"`
}
