package mango

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	sgo "github.com/gagliardetto/solana-go"
)

var ComputeBudgetProgramId = sgo.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	ixConsumeEvents uint32 = 15

	ixSetComputeUnitLimit uint8 = 2
	ixSetComputeUnitPrice uint8 = 3
)

// InstructionKind tags what a keeper transaction was sent for.
type InstructionKind uint8

const (
	KIND_CONSUME_EVENTS InstructionKind = iota
	KIND_CACHE_PRICE
	KIND_CACHE_ROOT_BANKS
	KIND_CACHE_PERP_MARKETS
	KIND_UPDATE_PERP_CACHE
	KIND_UPDATE_ROOT_BANKS
	KIND_UPDATE_FUNDING
)

func (k InstructionKind) String() string {
	switch k {
	case KIND_CONSUME_EVENTS:
		return "consume_events"
	case KIND_CACHE_PRICE:
		return "cache_price"
	case KIND_CACHE_ROOT_BANKS:
		return "cache_root_banks"
	case KIND_CACHE_PERP_MARKETS:
		return "cache_perp_markets"
	case KIND_UPDATE_PERP_CACHE:
		return "update_perp_cache"
	case KIND_UPDATE_ROOT_BANKS:
		return "update_root_banks"
	case KIND_UPDATE_FUNDING:
		return "update_funding"
	default:
		return "unknown"
	}
}

func (k InstructionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ConsumeEvents drains up to limit events from the perp market event queue.
func ConsumeEvents(
	programId sgo.PublicKey,
	group sgo.PublicKey,
	cache sgo.PublicKey,
	market sgo.PublicKey,
	eventQueue sgo.PublicKey,
	mangoAccounts []sgo.PublicKey,
	limit uint64,
) (*sgo.GenericInstruction, error) {
	buf := new(bytes.Buffer)
	e := bin.NewBinEncoder(buf)
	err := e.WriteUint32(ixConsumeEvents, bin.LE)
	if err != nil {
		return nil, err
	}
	err = e.WriteUint64(limit, bin.LE)
	if err != nil {
		return nil, err
	}
	accounts := make(sgo.AccountMetaSlice, 0, 4+len(mangoAccounts))
	accounts = append(accounts,
		sgo.NewAccountMeta(group, false, false),
		sgo.NewAccountMeta(cache, false, false),
		sgo.NewAccountMeta(market, true, false),
		sgo.NewAccountMeta(eventQueue, true, false),
	)
	for _, a := range mangoAccounts {
		accounts = append(accounts, sgo.NewAccountMeta(a, true, false))
	}
	return sgo.NewInstruction(programId, accounts, buf.Bytes()), nil
}

// SetComputeUnitPrice is the priority fee in micro-lamports per compute unit.
func SetComputeUnitPrice(microLamports uint64) (*sgo.GenericInstruction, error) {
	buf := new(bytes.Buffer)
	e := bin.NewBinEncoder(buf)
	err := e.WriteUint8(ixSetComputeUnitPrice)
	if err != nil {
		return nil, err
	}
	err = e.WriteUint64(microLamports, bin.LE)
	if err != nil {
		return nil, err
	}
	return sgo.NewInstruction(ComputeBudgetProgramId, sgo.AccountMetaSlice{}, buf.Bytes()), nil
}

func SetComputeUnitLimit(units uint32) (*sgo.GenericInstruction, error) {
	buf := new(bytes.Buffer)
	e := bin.NewBinEncoder(buf)
	err := e.WriteUint8(ixSetComputeUnitLimit)
	if err != nil {
		return nil, err
	}
	err = e.WriteUint32(units, bin.LE)
	if err != nil {
		return nil, err
	}
	return sgo.NewInstruction(ComputeBudgetProgramId, sgo.AccountMetaSlice{}, buf.Bytes()), nil
}

// ReadComputeUnitPrice returns the fee encoded in a SetComputeUnitPrice
// payload.
func ReadComputeUnitPrice(data []byte) (uint64, bool) {
	if len(data) != 9 || data[0] != ixSetComputeUnitPrice {
		return 0, false
	}
	fee, err := bin.NewBinDecoder(data[1:]).ReadUint64(bin.LE)
	if err != nil {
		return 0, false
	}
	return fee, true
}

// ReadConsumeEventsLimit returns the limit of a ConsumeEvents payload.
func ReadConsumeEventsLimit(data []byte) (uint64, bool) {
	if len(data) != 12 {
		return 0, false
	}
	d := bin.NewBinDecoder(data)
	tag, err := d.ReadUint32(bin.LE)
	if err != nil || tag != ixConsumeEvents {
		return 0, false
	}
	limit, err := d.ReadUint64(bin.LE)
	if err != nil {
		return 0, false
	}
	return limit, true
}
