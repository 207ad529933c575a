package domain

import "strings"

// Placement names where a design sits on the garment.
type Placement string

const (
	PlacementFront      Placement = "front"
	PlacementBack       Placement = "back"
	PlacementLeftChest  Placement = "left-chest"
	PlacementRightChest Placement = "right-chest"
	PlacementSleeve     Placement = "sleeve"
	// PlacementManual preserves a freely dragged pixel position; every other
	// placement is recomputed from the lookup table below.
	PlacementManual Placement = "manual"
)

// placementPositions maps each non-manual placement to its deterministic
// preview coordinate.
var placementPositions = map[Placement]Position{
	PlacementFront:      {X: 150, Y: 140},
	PlacementBack:       {X: 150, Y: 120},
	PlacementLeftChest:  {X: 90, Y: 110},
	PlacementRightChest: {X: 210, Y: 110},
	PlacementSleeve:     {X: 40, Y: 170},
}

// ParsePlacement normalises free-form placement text, defaulting to front.
func ParsePlacement(raw string) Placement {
	p := Placement(strings.ToLower(strings.TrimSpace(raw)))
	if p == PlacementManual {
		return p
	}
	if _, ok := placementPositions[p]; ok {
		return p
	}
	return PlacementFront
}

// PositionFor resolves the coordinate for a placement. Manual placements keep
// the supplied current position; all others snap to the lookup value.
func PositionFor(placement Placement, current Position) Position {
	if placement == PlacementManual {
		return current
	}
	if pos, ok := placementPositions[placement]; ok {
		return pos
	}
	return placementPositions[PlacementFront]
}
