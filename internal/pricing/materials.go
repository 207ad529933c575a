package pricing

import (
	"math"

	"github.com/patchline/api/internal/domain"
)

// Per-square-inch material rates in cents. These track the shop's supply
// costs for a stitched patch of the given footprint.
const (
	fabricRateCents     = 3.0
	patchAttachCents    = 2.0
	threadRateCents     = 5.0
	bobbinRateCents     = 1.0
	cutAwayRateCents    = 2.0
	washAwayRateCents   = 2.0
	minBillableAreaSqIn = 1.0
)

// MaterialCost itemises the computed supply cost for one design.
type MaterialCost struct {
	Fabric      int64
	PatchAttach int64
	Thread      int64
	Bobbin      int64
	CutAway     int64
	WashAway    int64
}

// Total sums every component.
func (m MaterialCost) Total() int64 {
	return m.Fabric + m.PatchAttach + m.Thread + m.Bobbin + m.CutAway + m.WashAway
}

// MaterialCostFor derives the supply cost from patch dimensions. Pure function
// of width and height; returns a zero cost when either dimension is unknown.
func MaterialCostFor(dims domain.Dimensions) MaterialCost {
	if !dims.Known() {
		return MaterialCost{}
	}
	area := dims.Width * dims.Height
	if area < minBillableAreaSqIn {
		area = minBillableAreaSqIn
	}
	component := func(rate float64) int64 {
		return int64(math.Round(area * rate))
	}
	return MaterialCost{
		Fabric:      component(fabricRateCents),
		PatchAttach: component(patchAttachCents),
		Thread:      component(threadRateCents),
		Bobbin:      component(bobbinRateCents),
		CutAway:     component(cutAwayRateCents),
		WashAway:    component(washAwayRateCents),
	}
}
