// Package payment holds the static purchase catalog and the value objects
// exchanged between the intent builder, the verifier and the economy service.
package payment

import "fmt"

// Package is a purchasable token bundle. Prices are fiat (USD); awards are
// in-game tokens credited after on-chain payment verification.
type Package struct {
	ID         int
	FiatPrice  float64
	TokenAward int64
}

// Catalog is the fixed package lineup. Order matters: the package ID doubles
// as the memo tag on the payment transaction.
var Catalog = []Package{
	{ID: 0, FiatPrice: 1, TokenAward: 100},
	{ID: 1, FiatPrice: 2, TokenAward: 250},
	{ID: 2, FiatPrice: 4, TokenAward: 600},
	{ID: 3, FiatPrice: 10, TokenAward: 1400},
	{ID: 4, FiatPrice: 20, TokenAward: 3200},
	{ID: 5, FiatPrice: 50, TokenAward: 8000},
}

// PackageByID looks up a catalog entry.
func PackageByID(id int) (Package, error) {
	if id < 0 || id >= len(Catalog) {
		return Package{}, fmt.Errorf("unknown package %d", id)
	}
	return Catalog[id], nil
}

// PriceMargin is the tolerated downward drift between the rate used when the
// intent was built and the rate at verification time.
const PriceMargin = 0.03

// Intent is an unsigned payment instruction handed to the wallet for signing.
type Intent struct {
	UnsignedTx   string `json:"transaction"`
	NativeAmount int64  `json:"native_amount"`
	PackageID    int    `json:"package_id"`
}

// Receipt is the result of verifying and broadcasting a signed payment.
type Receipt struct {
	Payer      string `json:"payer"`
	PackageID  int    `json:"package_id"`
	PaidAmount int64  `json:"paid_amount"`
	TxID       string `json:"txid"`
}
