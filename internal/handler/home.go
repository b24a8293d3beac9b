package handler

import (
	"fmt"
	"net/http"

	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/samber/lo"
)

// PlanInfo describes one tier on the pricing list.
type PlanInfo struct {
	Plan         domain.PlanTier `json:"plan"`
	Name         string          `json:"name"`
	MonthlyLimit int             `json:"monthly_limit"`
	PriceCents   int             `json:"price_cents"`
	CustomColors bool            `json:"custom_colors"`
	Logo         bool            `json:"logo"`
	Summary      string          `json:"summary"`
}

// HomeResponse is the body of GET /.
type HomeResponse struct {
	Service string     `json:"service"`
	Version string     `json:"version"`
	Pricing []PlanInfo `json:"pricing"`
}

// Home handles GET / and lists the plan catalog.
func (h *APIHandler) Home(w http.ResponseWriter, r *http.Request) {
	pricing, err := planCatalog()
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, HomeResponse{
		Service: ServiceName,
		Version: APIVersion,
		Pricing: pricing,
	})
}

// planCatalog builds the pricing list in ascending quota order.
func planCatalog() ([]PlanInfo, error) {
	var firstErr error
	plans := lo.Map(domain.AllPlanTiers(), func(tier domain.PlanTier, _ int) PlanInfo {
		limit, err := domain.LimitFor(tier)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		price, err := domain.PriceFor(tier)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return PlanInfo{
			Plan:         tier,
			Name:         tier.DisplayName(),
			MonthlyLimit: limit,
			PriceCents:   price,
			CustomColors: tier.AllowsCustomColors(),
			Logo:         tier.AllowsLogo(),
			Summary:      planSummary(limit, price),
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return plans, nil
}

func planSummary(limit, priceCents int) string {
	if priceCents == 0 {
		return fmt.Sprintf("%s QRs/month", formatThousands(limit))
	}
	return fmt.Sprintf("$%d/month - %s QRs", priceCents/100, formatThousands(limit))
}

// formatThousands renders n with comma separators ("2,500").
func formatThousands(n int) string {
	s := fmt.Sprint(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
