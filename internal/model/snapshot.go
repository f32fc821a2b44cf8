package model

// Snapshot is the persisted form of an engine.
type Snapshot struct {
	ManagerAddress string            `json:"manager_address"`
	RouterAddress  string            `json:"router_address"`
	NextTokenID    uint64            `json:"next_token_id"`
	Balances       []Balance         `json:"balances"`
	Pools          []Pool            `json:"pools"`
	Positions      []ManagedPosition `json:"positions"`
}

type Balance struct {
	Asset   string `json:"asset"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Pool is the state of one pool. Price is informational and ignored on load.
type Pool struct {
	Address              string         `json:"address"`
	Token0               string         `json:"token0"`
	Token1               string         `json:"token1"`
	Fee                  uint32         `json:"fee"`
	TickSpacing          int32          `json:"tick_spacing"`
	Initialized          bool           `json:"initialized"`
	SqrtPriceX96         string         `json:"sqrt_price_x96"`
	Tick                 int32          `json:"tick"`
	Liquidity            string         `json:"liquidity"`
	FeeGrowthGlobal0X128 string         `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 string         `json:"fee_growth_global1_x128"`
	Price                string         `json:"price,omitempty"`
	Ticks                []Tick         `json:"ticks"`
	Positions            []PoolPosition `json:"positions"`
}

type Tick struct {
	Index                 int32  `json:"index"`
	LiquidityGross        string `json:"liquidity_gross"`
	LiquidityNet          string `json:"liquidity_net"`
	FeeGrowthOutside0X128 string `json:"fee_growth_outside0_x128"`
	FeeGrowthOutside1X128 string `json:"fee_growth_outside1_x128"`
}

type PoolPosition struct {
	Owner                    string `json:"owner"`
	TickLower                int32  `json:"tick_lower"`
	TickUpper                int32  `json:"tick_upper"`
	Salt                     uint64 `json:"salt"`
	Liquidity                string `json:"liquidity"`
	FeeGrowthInside0LastX128 string `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1LastX128 string `json:"fee_growth_inside1_last_x128"`
	TokensOwed0              string `json:"tokens_owed0"`
	TokensOwed1              string `json:"tokens_owed1"`
}

// ManagedPosition is one token id held by the position manager.
type ManagedPosition struct {
	TokenID   uint64 `json:"token_id"`
	Owner     string `json:"owner"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Fee       uint32 `json:"fee"`
	TickLower int32  `json:"tick_lower"`
	TickUpper int32  `json:"tick_upper"`
}
