package copytrade

// TargetPosition is one position the filler must establish for a new
// portfolio, already sized for the portfolio's copy strategy.
type TargetPosition struct {
	Gamer    string `json:"gamer"`
	Quantity int64  `json:"quantity"`
}

// FillRequest is the payload of the fill-positions event: the full new
// portfolio identity plus its initial target positions.
type FillRequest struct {
	PortfolioName    string           `json:"portfolio_name"`
	InitialPositions []TargetPosition `json:"initial_positions"`
}

// InitFillInvoker is the synthetic invoker identity of a portfolio's
// one-shot initial-fill rules. It is keyed to the portfolio name so normal
// trading triggers can never match them.
func InitFillInvoker(portfolioName string) string {
	return "copytrade:init:" + portfolioName
}
