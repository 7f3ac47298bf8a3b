package chain

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// Wire format for payment transactions. A transaction is a base64 envelope:
//
//	version   byte (currently 1)
//	tip       32 bytes (recent chain tip the transaction is pinned to)
//	sigCount  byte, then sigCount * 64 signature bytes (0 for unsigned)
//	ixCount   byte, then instructions
//
// Instructions:
//
//	opTransfer: from 32 | to 32 | amount u64 LE
//	opMemo:     len u16 LE | utf8 bytes
const (
	wireVersion = 1

	opTransfer byte = 2
	opMemo     byte = 5
)

var (
	// ErrMalformed is returned when a blob cannot be decoded.
	ErrMalformed = errors.New("malformed transaction")
)

// Transfer is a single value movement inside a transaction.
type Transfer struct {
	From   string
	To     string
	Amount int64
}

// Payment is the decoded content of a transaction blob.
type Payment struct {
	Tip        string
	Transfers  []Transfer
	Memo       string
	Signatures int
}

// DecodeAddress parses a base58 identity into raw key bytes. Payment-network
// addresses are 32-byte ed25519 public keys.
func DecodeAddress(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", addr, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("address %q: expected 32 bytes, got %d", addr, len(raw))
	}
	return raw, nil
}

// BuildUnsignedTransfer assembles an unsigned transfer-plus-memo transaction
// pinned to the given tip and returns it base64 encoded.
func BuildUnsignedTransfer(from, to string, amount int64, memo, tip string) (string, error) {
	fromRaw, err := DecodeAddress(from)
	if err != nil {
		return "", err
	}
	toRaw, err := DecodeAddress(to)
	if err != nil {
		return "", err
	}
	tipRaw, err := base58.Decode(tip)
	if err != nil || len(tipRaw) != 32 {
		return "", fmt.Errorf("invalid tip %q", tip)
	}
	if amount <= 0 {
		return "", fmt.Errorf("invalid amount %d", amount)
	}
	if len(memo) > 0xFFFF {
		return "", fmt.Errorf("memo too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(wireVersion)
	buf.Write(tipRaw)
	buf.WriteByte(0) // unsigned

	buf.WriteByte(2) // transfer + memo
	buf.WriteByte(opTransfer)
	buf.Write(fromRaw)
	buf.Write(toRaw)
	var amt [8]byte
	binary.LittleEndian.PutUint64(amt[:], uint64(amount))
	buf.Write(amt[:])

	buf.WriteByte(opMemo)
	var mlen [2]byte
	binary.LittleEndian.PutUint16(mlen[:], uint16(len(memo)))
	buf.Write(mlen[:])
	buf.WriteString(memo)

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses a base64 transaction blob, signed or unsigned. Signature
// validity is the payment network's concern; the decoder only extracts the
// transfers and the memo tag.
func Decode(blob string) (Payment, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r := bytes.NewReader(raw)

	version, err := r.ReadByte()
	if err != nil || version != wireVersion {
		return Payment{}, fmt.Errorf("%w: unsupported version", ErrMalformed)
	}

	tip := make([]byte, 32)
	if _, err := io.ReadFull(r, tip); err != nil {
		return Payment{}, fmt.Errorf("%w: truncated tip", ErrMalformed)
	}

	sigCount, err := r.ReadByte()
	if err != nil {
		return Payment{}, fmt.Errorf("%w: truncated signatures", ErrMalformed)
	}
	for i := 0; i < int(sigCount); i++ {
		sig := make([]byte, 64)
		if _, err := io.ReadFull(r, sig); err != nil {
			return Payment{}, fmt.Errorf("%w: truncated signature", ErrMalformed)
		}
	}

	ixCount, err := r.ReadByte()
	if err != nil {
		return Payment{}, fmt.Errorf("%w: truncated instructions", ErrMalformed)
	}

	p := Payment{Tip: base58.Encode(tip), Signatures: int(sigCount)}
	for i := 0; i < int(ixCount); i++ {
		op, err := r.ReadByte()
		if err != nil {
			return Payment{}, fmt.Errorf("%w: truncated instruction", ErrMalformed)
		}
		switch op {
		case opTransfer:
			fromRaw := make([]byte, 32)
			toRaw := make([]byte, 32)
			var amt [8]byte
			if _, err := io.ReadFull(r, fromRaw); err != nil {
				return Payment{}, fmt.Errorf("%w: truncated transfer", ErrMalformed)
			}
			if _, err := io.ReadFull(r, toRaw); err != nil {
				return Payment{}, fmt.Errorf("%w: truncated transfer", ErrMalformed)
			}
			if _, err := io.ReadFull(r, amt[:]); err != nil {
				return Payment{}, fmt.Errorf("%w: truncated transfer", ErrMalformed)
			}
			p.Transfers = append(p.Transfers, Transfer{
				From:   base58.Encode(fromRaw),
				To:     base58.Encode(toRaw),
				Amount: int64(binary.LittleEndian.Uint64(amt[:])),
			})
		case opMemo:
			var mlen [2]byte
			if _, err := io.ReadFull(r, mlen[:]); err != nil {
				return Payment{}, fmt.Errorf("%w: truncated memo", ErrMalformed)
			}
			memo := make([]byte, binary.LittleEndian.Uint16(mlen[:]))
			if _, err := io.ReadFull(r, memo); err != nil {
				return Payment{}, fmt.Errorf("%w: truncated memo", ErrMalformed)
			}
			p.Memo = string(memo)
		default:
			return Payment{}, fmt.Errorf("%w: unknown instruction %d", ErrMalformed, op)
		}
	}
	return p, nil
}
