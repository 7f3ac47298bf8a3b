// Package payments builds unsigned payment intents and verifies signed
// payment transactions against a freshly recomputed expected price before
// broadcasting them to the payment network.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roastrush/game-server/internal/app/domain/payment"
	"github.com/roastrush/game-server/internal/app/metrics"
	"github.com/roastrush/game-server/internal/app/services/oracle"
	"github.com/roastrush/game-server/internal/chain"
	"github.com/roastrush/game-server/pkg/logger"
)

var (
	// ErrUnknownPackage is returned when a package id, or the memo tag
	// claiming to be one, is not in the catalog.
	ErrUnknownPackage = errors.New("unknown package")
	// ErrMalformedTransaction is returned when the signed blob cannot be
	// decoded into a transfer-plus-memo payment.
	ErrMalformedTransaction = errors.New("malformed transaction")
	// ErrUnderpaid is returned when the paid amount is more than the price
	// margin below the expected amount at verification time.
	ErrUnderpaid = errors.New("paid amount below expected price")
	// ErrBroadcastFailed is returned when the network rejected or never
	// acknowledged the broadcast. The ledger is untouched in that case.
	ErrBroadcastFailed = errors.New("transaction broadcast failed")
)

// Service builds intents and verifies payments.
type Service struct {
	oracle   *oracle.Client
	chain    chain.Client
	treasury string
	journal  *Journal
	log      *logger.Logger
}

// New constructs the payments service. treasury is the server wallet that
// receives all package payments.
func New(oracleClient *oracle.Client, chainClient chain.Client, treasury string, journal *Journal, log *logger.Logger) (*Service, error) {
	treasury = strings.TrimSpace(treasury)
	if _, err := chain.DecodeAddress(treasury); err != nil {
		return nil, fmt.Errorf("invalid treasury address: %w", err)
	}
	if log == nil {
		log = logger.NewDefault("payments")
	}
	if journal == nil {
		journal = NewJournal()
	}
	return &Service{
		oracle:   oracleClient,
		chain:    chainClient,
		treasury: treasury,
		journal:  journal,
		log:      log,
	}, nil
}

// BuildIntent produces an unsigned payer→treasury transfer for the package,
// tagged with the package id and pinned to the current chain tip. The price
// is converted at build time; the verifier recomputes it later.
func (s *Service) BuildIntent(ctx context.Context, packageID int, payer string) (payment.Intent, error) {
	pkg, err := payment.PackageByID(packageID)
	if err != nil {
		return payment.Intent{}, fmt.Errorf("%w: %d", ErrUnknownPackage, packageID)
	}
	if _, err := chain.DecodeAddress(payer); err != nil {
		return payment.Intent{}, fmt.Errorf("invalid payer: %w", err)
	}

	native, err := s.oracle.Convert(ctx, pkg.FiatPrice)
	if err != nil {
		return payment.Intent{}, err
	}

	tip, err := s.chain.LatestTip(ctx)
	if err != nil {
		return payment.Intent{}, fmt.Errorf("query chain tip: %w", err)
	}

	blob, err := chain.BuildUnsignedTransfer(payer, s.treasury, native, strconv.Itoa(pkg.ID), tip)
	if err != nil {
		return payment.Intent{}, fmt.Errorf("build transfer: %w", err)
	}

	return payment.Intent{UnsignedTx: blob, NativeAmount: native, PackageID: pkg.ID}, nil
}

// VerifyAndBroadcast decodes the signed blob, re-prices the package at the
// current rate, checks the paid amount against the tolerance and broadcasts
// exactly once after all validation passed. Credit must only follow a nil
// error from this method.
func (s *Service) VerifyAndBroadcast(ctx context.Context, signedBlob string) (payment.Receipt, error) {
	receipt, err := s.verifyAndBroadcast(ctx, signedBlob)
	metrics.RecordPaymentVerification(verificationStatus(err))
	return receipt, err
}

func (s *Service) verifyAndBroadcast(ctx context.Context, signedBlob string) (payment.Receipt, error) {
	decoded, err := chain.Decode(signedBlob)
	if err != nil {
		return payment.Receipt{}, fmt.Errorf("%w: %v", ErrMalformedTransaction, err)
	}

	packageID, err := strconv.Atoi(decoded.Memo)
	if err != nil {
		return payment.Receipt{}, fmt.Errorf("%w: memo %q", ErrUnknownPackage, decoded.Memo)
	}
	pkg, err := payment.PackageByID(packageID)
	if err != nil {
		return payment.Receipt{}, fmt.Errorf("%w: %d", ErrUnknownPackage, packageID)
	}

	var payer string
	var paid int64
	for _, t := range decoded.Transfers {
		if t.To == s.treasury {
			if payer == "" {
				payer = t.From
			}
			paid += t.Amount
		}
	}
	if payer == "" {
		return payment.Receipt{}, fmt.Errorf("%w: no transfer to treasury", ErrMalformedTransaction)
	}

	// The rate may have moved since the intent was built, so the expected
	// amount is recomputed here and compared with tolerance.
	expected, err := s.oracle.Convert(ctx, pkg.FiatPrice)
	if err != nil {
		return payment.Receipt{}, err
	}
	minAccepted := int64(math.Floor(float64(expected) * (1 - payment.PriceMargin)))
	if paid < minAccepted {
		s.log.WithFields(map[string]interface{}{
			"payer":    payer,
			"package":  pkg.ID,
			"paid":     paid,
			"expected": expected,
		}).Warn("underpaid transaction rejected")
		return payment.Receipt{}, fmt.Errorf("%w: paid %d, minimum %d", ErrUnderpaid, paid, minAccepted)
	}

	entryID := s.journal.RecordPending(payer, pkg.ID, paid)

	txID, err := s.chain.Broadcast(ctx, signedBlob)
	if err != nil {
		s.journal.MarkFailed(entryID, err.Error())
		return payment.Receipt{}, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	s.journal.MarkBroadcast(entryID, txID)

	return payment.Receipt{Payer: payer, PackageID: pkg.ID, PaidAmount: paid, TxID: txID}, nil
}

// MarkCredited records that the ledger credit for a broadcast payment
// committed, closing its journal entry.
func (s *Service) MarkCredited(txID string) {
	s.journal.MarkCredited(txID)
}

func verificationStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedTransaction):
		return "malformed"
	case errors.Is(err, ErrUnknownPackage):
		return "unknown_package"
	case errors.Is(err, ErrUnderpaid):
		return "underpaid"
	case errors.Is(err, oracle.ErrUnavailable):
		return "price_unavailable"
	case errors.Is(err, ErrBroadcastFailed):
		return "broadcast_failed"
	default:
		return "error"
	}
}
