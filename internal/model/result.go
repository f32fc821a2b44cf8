package model

// Result is written for every replayed operation. Failed operations carry the tagged
// error; successful ones fill the fields their operation produces.
type Result struct {
	Seq   uint64     `json:"seq"`
	Op    string     `json:"op"`
	OK    bool       `json:"ok"`
	Error *ErrorInfo `json:"error,omitempty"`

	PoolAddress string `json:"pool_address,omitempty"`
	TokenID     uint64 `json:"token_id,omitempty"`
	Tick        *int32 `json:"tick,omitempty"`
	Liquidity   string `json:"liquidity,omitempty"`
	Amount0     string `json:"amount0,omitempty"`
	Amount1     string `json:"amount1,omitempty"`
	AmountOut   string `json:"amount_out,omitempty"`

	SqrtPricesAfter []string `json:"sqrt_prices_after,omitempty"`
	TicksAfter      []int32  `json:"ticks_after,omitempty"`
	PricesAfter     []string `json:"prices_after,omitempty"`
}

// ErrorInfo is a tagged failure. Data is the hex selector followed by the ABI encoded
// parameters; it is empty for untagged infrastructure errors.
type ErrorInfo struct {
	Name     string `json:"name,omitempty"`
	Selector string `json:"selector,omitempty"`
	Data     string `json:"data,omitempty"`
	Message  string `json:"message"`
}
