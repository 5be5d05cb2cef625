package simulation

import "synth-exchange/internal/models"

// DefaultBoard returns the stocks seeded into an empty market.
func DefaultBoard() []*models.Stock {
	return []*models.Stock{
		models.NewStock("CY", "Cyberdyne Systems", "Tech", 57, 0.020),
		models.NewStock("HL", "Horizon Airlines", "Aviation", 49, 0.025),
		models.NewStock("JD", "Jade Defense", "Security", 44, 0.030),
		models.NewStock("DL", "Delta Harvest", "Agriculture", 54, 0.020),
		models.NewStock("HK", "Hokkai Mining", "Mining", 45, 0.030),
		models.NewStock("GH", "Genehelix Bio", "Biotech", 26, 0.055),
	}
}
