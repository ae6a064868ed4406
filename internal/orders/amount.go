package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// CertificateFee is the fixed internship certificate price in paise (9 INR).
const CertificateFee int64 = 900

// ErrInvalidAmount is returned when an item would be billed a non-positive amount.
var ErrInvalidAmount = errors.New("invalid amount")

var minorUnitsPerMajor = decimal.NewFromInt(100)

// ComputeAmount converts an item's price into the billed amount in minor units.
// Course and project prices are major units (rupees) and are multiplied by 100,
// rounded half away from zero to the paise. Certificates ignore price.
func ComputeAmount(itemType ItemType, price decimal.Decimal) (int64, error) {
	var amount int64
	switch itemType {
	case ItemCourse, ItemProject:
		amount = price.Mul(minorUnitsPerMajor).Round(0).IntPart()
	case ItemCertificate:
		amount = CertificateFee
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidItemType, itemType)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %s %s priced at %d", ErrInvalidAmount, itemType, price.String(), amount)
	}
	return amount, nil
}
