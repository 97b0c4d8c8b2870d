package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InternetPackage is a connectivity package from the static catalog.
// Pricing administration is outside this core; packages are consumed as input.
type InternetPackage struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	PackageID   string             `bson:"packageId" json:"packageId"`
	Name        string             `bson:"name" json:"name"`
	Price       string             `bson:"price" json:"price"`
	Currency    string             `bson:"currency" json:"currency"`
	TimeLimit   time.Duration      `bson:"timeLimit" json:"timeLimit"`
	DataLimitMB int64              `bson:"dataLimitMb" json:"dataLimitMb"`
	Active      bool               `bson:"active" json:"active"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// PriceDecimal returns the package price as a decimal
func (p *InternetPackage) PriceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Zero
	}
	return d
}
