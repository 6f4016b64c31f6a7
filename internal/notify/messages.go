package notify

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

// amount renders a decimal with thousands separators for chat display.
func amount(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.Round(2).InexactFloat64())
}

// IntegrityAlert describes a history that could not be reconstructed.
func IntegrityAlert(positionID string, err error) (title, message string) {
	return "Reconstruction failed", fmt.Sprintf("Trove %s: %v", positionID, err)
}

// LiquidationAlert summarises a liquidation of positionID.
func LiquidationAlert(positionID string, ev domain.EnrichedEvent) (title, message string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Trove %s: %s", positionID, ev.Transition.Label())
	if !ev.Event.Timestamp.IsZero() {
		fmt.Fprintf(&b, " %s", humanize.Time(ev.Event.Timestamp))
	}
	b.WriteString(".\n")
	if a := ev.Attribution; a != nil {
		fmt.Fprintf(&b, "Debt cleared: %s\n", amount(a.DebtCleared))
		fmt.Fprintf(&b, "Collateral liquidated: %s\n", amount(a.CollLiquidated))
		fmt.Fprintf(&b, "Method: %s\n", a.Method)
		if a.CollSurplus.IsPositive() {
			fmt.Fprintf(&b, "Claimable surplus: %s\n", amount(a.CollSurplus))
		}
	}
	return "Trove liquidated", strings.TrimRight(b.String(), "\n")
}

// ZombieAlert reports a position left below the minimum debt.
func ZombieAlert(positionID string, debt decimal.Decimal, z domain.ZombieClassification) (title, message string) {
	return "Zombie trove", fmt.Sprintf("Trove %s has %s debt remaining. %s", positionID, amount(debt), z.Message())
}
