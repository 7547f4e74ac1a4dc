// Package domain contains the rating contracts used by calculator strategies.
package domain

// UnitEach is the unit whose price phrase omits "per".
const UnitEach = "ea"

// ChargeLine is one computed charge, ready to become a Transaction.
type ChargeLine struct {
	Amount          int64
	Description     string
	RateDescription string
	Author          string
}
