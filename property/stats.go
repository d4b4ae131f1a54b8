package property

import (
	"github.com/shopspring/decimal"
	"github.com/warp/tenancy-engine/ledger"
)

// BuildingStats summarises occupancy and rent roll for one building.
type BuildingStats struct {
	BuildingID       BuildingID
	Occupied         int
	Vacant           int
	UnderMaintenance int
	OccupancyRate    decimal.Decimal // percent of TotalUnits, 2 places
	PotentialIncome  ledger.Money    // monthly rent of every unit
	ActualIncome     ledger.Money    // monthly rent of occupied units
}

// StatsFor computes BuildingStats from the building's units. The occupancy
// rate is measured against the declared TotalUnits, not len(units).
func StatsFor(b Building, units []Unit) BuildingStats {
	s := BuildingStats{
		BuildingID:      b.ID,
		OccupancyRate:   decimal.Zero,
		PotentialIncome: ledger.Zero(ledger.DefaultCurrency),
		ActualIncome:    ledger.Zero(ledger.DefaultCurrency),
	}
	for _, u := range units {
		if u.BuildingID != b.ID {
			continue
		}
		s.PotentialIncome = s.PotentialIncome.Add(u.MonthlyRent)
		switch u.Status {
		case UnitOccupied:
			s.Occupied++
			s.ActualIncome = s.ActualIncome.Add(u.MonthlyRent)
		case UnitVacant:
			s.Vacant++
		case UnitMaintenance:
			s.UnderMaintenance++
		}
	}
	if b.TotalUnits > 0 {
		s.OccupancyRate = decimal.NewFromInt(int64(s.Occupied)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(b.TotalUnits))).
			Round(2)
	}
	return s
}
