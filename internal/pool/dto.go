package pool

import (
	"time"

	"github.com/fundme/fundme/internal/units"
)

// FundRequest carries a deposit. Amounts are decimal strings to avoid float
// rounding; amount_wei takes an integer number of wei.
type FundRequest struct {
	AmountEther string `json:"amount_eth"`
	AmountWei   string `json:"amount_wei"`
}

// ContributionResponse is returned after an accepted deposit.
type ContributionResponse struct {
	Reference   string    `json:"reference"`
	TransferID  string    `json:"transfer_id"`
	Funder      string    `json:"funder"`
	AmountWei   string    `json:"amount_wei"`
	AmountEther string    `json:"amount_eth"`
	ValueUSD    string    `json:"value_usd"`
	TotalWei    string    `json:"total_wei"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// WithdrawalResponse is returned after the owner drains the pool.
type WithdrawalResponse struct {
	Reference    string    `json:"reference,omitempty"`
	TransferID   string    `json:"transfer_id,omitempty"`
	Owner        string    `json:"owner"`
	AmountWei    string    `json:"amount_wei"`
	AmountEther  string    `json:"amount_eth"`
	FundersReset int       `json:"funders_reset"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// SummaryResponse describes the pool.
type SummaryResponse struct {
	Name         string `json:"name"`
	Owner        string `json:"owner"`
	PriceFeed    string `json:"price_feed"`
	MinimumUSD   string `json:"minimum_usd"`
	BalanceWei   string `json:"balance_wei"`
	BalanceEther string `json:"balance_eth"`
	FunderCount  int    `json:"funder_count"`
}

// PriceResponse is a feed reading.
type PriceResponse struct {
	Feed     string    `json:"feed"`
	Answer   string    `json:"answer"`
	Decimals uint8     `json:"decimals"`
	PerEther string    `json:"usd_per_eth"`
	ReadAt   time.Time `json:"read_at"`
}

// FunderResponse pairs an identity with its current contribution.
type FunderResponse struct {
	Index       *int   `json:"index,omitempty"`
	Funder      string `json:"funder"`
	AmountWei   string `json:"amount_wei"`
	AmountEther string `json:"amount_eth"`
}

func toContributionResponse(r FundResult) ContributionResponse {
	return ContributionResponse{
		Reference:   r.Reference,
		TransferID:  r.TransferID,
		Funder:      r.Funder.Hex(),
		AmountWei:   r.Amount.String(),
		AmountEther: units.FormatEther(r.Amount),
		ValueUSD:    units.FormatUSD(r.Value),
		TotalWei:    r.Total.String(),
		RecordedAt:  r.RecordedAt,
	}
}

func toWithdrawalResponse(r WithdrawResult) WithdrawalResponse {
	return WithdrawalResponse{
		Reference:    r.Reference,
		TransferID:   r.TransferID,
		Owner:        r.Owner.Hex(),
		AmountWei:    r.Amount.String(),
		AmountEther:  units.FormatEther(r.Amount),
		FundersReset: r.Cleared,
		RecordedAt:   r.RecordedAt,
	}
}

func toSummaryResponse(s Summary) SummaryResponse {
	return SummaryResponse{
		Name:         s.Name,
		Owner:        s.Owner.Hex(),
		PriceFeed:    s.PriceFeed.Hex(),
		MinimumUSD:   units.FormatUSD(s.Minimum),
		BalanceWei:   s.Balance.String(),
		BalanceEther: units.FormatEther(s.Balance),
		FunderCount:  s.FunderCount,
	}
}

func toPriceResponse(p Price) PriceResponse {
	return PriceResponse{
		Feed:     p.Feed.Hex(),
		Answer:   p.Rate.Value.String(),
		Decimals: p.Rate.Decimals,
		PerEther: units.FormatUSD(p.PerEther),
		ReadAt:   p.ReadAt,
	}
}
