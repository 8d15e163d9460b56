package engine

import (
	"gridbot/internal/config"
	"gridbot/internal/models"
)

// BuildLevels constructs the ladder: SELL entries above the center price for
// the upside group, BUY entries below it for the downside group, at multiples
// of the spacing. The trade mode selects which groups exist.
func BuildLevels(grid config.GridConfig, tick float64) []*GridLevel {
	var levels []*GridLevel

	if grid.Mode == "both" || grid.Mode == "upside" {
		for i := 1; i <= grid.Steps; i++ {
			price := roundToTick(grid.CenterPrice+float64(i)*grid.Spacing, tick)
			levels = append(levels, newLevel(models.GroupUpside, models.OrderSideSell, price, grid))
		}
	}
	if grid.Mode == "both" || grid.Mode == "downside" {
		for i := 1; i <= grid.Steps; i++ {
			price := roundToTick(grid.CenterPrice-float64(i)*grid.Spacing, tick)
			levels = append(levels, newLevel(models.GroupDownside, models.OrderSideBuy, price, grid))
		}
	}

	return levels
}

func newLevel(group models.Group, side models.OrderSide, price float64, grid config.GridConfig) *GridLevel {
	return &GridLevel{
		ID:          newLevelID(),
		Group:       group,
		Phase:       models.PhaseEntry,
		Side:        side,
		Price:       price,
		LadderSide:  side,
		LadderPrice: price,
		QtyMain:     grid.QtyMain,
		QtyHedge:    grid.QtyHedge,
	}
}

func (e *Engine) activeGroups() []models.Group {
	switch e.cfg.Grid.Mode {
	case "upside":
		return []models.Group{models.GroupUpside}
	case "downside":
		return []models.Group{models.GroupDownside}
	default:
		return []models.Group{models.GroupUpside, models.GroupDownside}
	}
}
