package printr

// Request and response shapes for the Printr token-creation API
// Chains are always CAIP-2 identifiers on the wire

import "encoding/json"

// InitialBuy is the creator's buy-in at launch, as a percentage of supply.
type InitialBuy struct {
	SupplyPercent int `json:"supply_percent"`
}

// QuoteRequest asks /print/quote what a launch across the given chains costs.
type QuoteRequest struct {
	Chains                         []string   `json:"chains"`
	InitialBuy                     InitialBuy `json:"initial_buy"`
	GraduationThresholdPerChainUSD int        `json:"graduation_threshold_per_chain_usd"`
}

// QuoteResponse is returned by /print/quote. The fee breakdown is kept opaque
// and persisted as-is for the operator's records.
type QuoteResponse struct {
	Raw json.RawMessage `json:"-"`
}

// CreateTokenRequest is the /print payload.
type CreateTokenRequest struct {
	CreatorAccounts                []string          `json:"creator_accounts"`
	Name                           string            `json:"name"`
	Symbol                         string            `json:"symbol"`
	Description                    string            `json:"description"`
	Image                          string            `json:"image"`
	Chains                         []string          `json:"chains"`
	InitialBuy                     InitialBuy        `json:"initial_buy"`
	GraduationThresholdPerChainUSD int               `json:"graduation_threshold_per_chain_usd"`
	ExternalLinks                  map[string]string `json:"external_links,omitempty"`
}

// CreateTokenResponse is the 201 body of /print. Payload is the unsigned
// transaction material handed to the submitter; its structure depends on the
// chain namespace and stays opaque here.
type CreateTokenResponse struct {
	TokenID string          `json:"token_id"`
	Payload json.RawMessage `json:"payload"`
	Quote   json.RawMessage `json:"quote"`
}

// ChainDeployment is one chain's deployment state from
// /tokens/{id}/deployments.
type ChainDeployment struct {
	ChainID           string `json:"chain_id"`
	Status            string `json:"status"`
	XChainTransaction struct {
		MessageID string `json:"message_id"`
	} `json:"x_chain_transaction"`
}

// DeploymentsResponse is the body of /tokens/{id}/deployments.
type DeploymentsResponse struct {
	Deployments []ChainDeployment `json:"deployments"`
}

// APIError is Printr's structured error envelope.
type APIError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
