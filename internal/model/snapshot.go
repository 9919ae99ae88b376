package model

// Snapshot captures the persisted state of the exchange and its ledgers.
// Amounts are base-10 strings so they survive JSON without precision loss.
type Snapshot struct {
	Sequence  uint64            `json:"sequence"`
	Exchange  ExchangeSnapshot  `json:"exchange"`
	Token     TokenSnapshot     `json:"token"`
	Payouts   map[string]string `json:"payouts"`
	UpdatedAt string            `json:"updated_at"`
}

// ExchangeSnapshot is the (owner, unit price, balance) triple of the exchange.
type ExchangeSnapshot struct {
	Address    string `json:"address"`
	Owner      string `json:"owner"`
	TokenPrice string `json:"token_price"`
	Balance    string `json:"balance"`
}

// TokenSnapshot is the mintable ledger state.
type TokenSnapshot struct {
	Address     string            `json:"address"`
	Owner       string            `json:"owner"`
	Name        string            `json:"name"`
	Symbol      string            `json:"symbol"`
	Minter      string            `json:"minter"`
	TotalSupply string            `json:"total_supply"`
	Balances    map[string]string `json:"balances"`
}
