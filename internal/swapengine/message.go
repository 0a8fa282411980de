package swapengine

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
)

const (
	lookupTableInitializedTy = 1

	signatureSize = 64
)

// decodeLookupTable extracts the address list from an active lookup table
// account.
func decodeLookupTable(data []byte) (solana.PublicKeySlice, error) {
	if len(data) < addresslookuptable.LOOKUP_TABLE_META_SIZE {
		return nil, fmt.Errorf("account data too short (%d bytes)", len(data))
	}
	if n := len(data) - addresslookuptable.LOOKUP_TABLE_META_SIZE; n%solana.PublicKeyLength != 0 {
		return nil, fmt.Errorf("address region length %d is not a multiple of %d", n, solana.PublicKeyLength)
	}
	state, err := addresslookuptable.DecodeAddressLookupTableState(data)
	if err != nil {
		return nil, err
	}
	if state.TypeIndex != lookupTableInitializedTy {
		return nil, fmt.Errorf("not an initialized lookup table (type %d)", state.TypeIndex)
	}
	if !state.IsActive() {
		return nil, fmt.Errorf("lookup table deactivated at slot %d", state.DeactivationSlot)
	}
	return state.Addresses, nil
}

// resolveLookupTables fetches every table the message references. Any table
// that is missing or malformed fails the whole build.
func resolveLookupTables(ctx context.Context, c SolanaRPC, msg *solana.Message, commitment string) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	tables := make(map[solana.PublicKey]solana.PublicKeySlice, len(msg.AddressTableLookups))
	for _, lookup := range msg.AddressTableLookups {
		if _, ok := tables[lookup.AccountKey]; ok {
			continue
		}
		info, err := c.GetAccountInfo(ctx, lookup.AccountKey, commitment)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvableLookupTable, lookup.AccountKey, err)
		}
		if info == nil {
			return nil, fmt.Errorf("%w: %s: account not found", ErrUnresolvableLookupTable, lookup.AccountKey)
		}
		addrs, err := decodeLookupTable(info.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvableLookupTable, lookup.AccountKey, err)
		}
		for _, idx := range lookup.WritableIndexes {
			if int(idx) >= len(addrs) {
				return nil, fmt.Errorf("%w: %s: index %d out of range", ErrUnresolvableLookupTable, lookup.AccountKey, idx)
			}
		}
		for _, idx := range lookup.ReadonlyIndexes {
			if int(idx) >= len(addrs) {
				return nil, fmt.Errorf("%w: %s: index %d out of range", ErrUnresolvableLookupTable, lookup.AccountKey, idx)
			}
		}
		tables[lookup.AccountKey] = addrs
	}
	return tables, nil
}

// decompile expands compiled instructions into standalone instructions with
// full account metas. The message's lookups are resolved against tables, so
// msg must not be reused for signing afterwards.
func decompile(msg *solana.Message, tables map[solana.PublicKey]solana.PublicKeySlice) ([]solana.Instruction, error) {
	h := msg.Header
	nStatic := len(msg.AccountKeys)
	nSigned := int(h.NumRequiredSignatures)
	if nSigned > nStatic ||
		int(h.NumReadonlySignedAccounts) > nSigned ||
		int(h.NumReadonlyUnsignedAccounts) > nStatic-nSigned {
		return nil, fmt.Errorf("%w: inconsistent message header", ErrRecompileFailed)
	}

	if len(msg.AddressTableLookups) > 0 {
		if err := msg.SetAddressTables(tables); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRecompileFailed, err)
		}
		if err := msg.ResolveLookups(); err != nil {
			return nil, fmt.Errorf("%w: resolve lookups: %v", ErrRecompileFailed, err)
		}
	}
	metas, err := msg.AccountMetaList()
	if err != nil {
		return nil, fmt.Errorf("%w: account metas: %v", ErrRecompileFailed, err)
	}

	ixs := make([]solana.Instruction, 0, len(msg.Instructions))
	for n, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(metas) {
			return nil, fmt.Errorf("%w: instruction %d: program index %d out of range", ErrRecompileFailed, n, ci.ProgramIDIndex)
		}
		accounts := make(solana.AccountMetaSlice, 0, len(ci.Accounts))
		for _, ai := range ci.Accounts {
			if int(ai) >= len(metas) {
				return nil, fmt.Errorf("%w: instruction %d: account index %d out of range", ErrRecompileFailed, n, ai)
			}
			m := *metas[ai]
			accounts = append(accounts, &m)
		}
		ixs = append(ixs, solana.NewInstruction(metas[ci.ProgramIDIndex].PublicKey, accounts, []byte(ci.Data)))
	}
	return ixs, nil
}

// signerIndex returns the position of key among the message's required signers.
func signerIndex(msg *solana.Message, key solana.PublicKey) (int, bool) {
	for i := 0; i < int(msg.Header.NumRequiredSignatures) && i < len(msg.AccountKeys); i++ {
		if msg.AccountKeys[i].Equals(key) {
			return i, true
		}
	}
	return 0, false
}

// signInPlace signs the serialized message inside raw and writes the
// signature into the signer's slot. Every other byte is left untouched.
func signInPlace(raw []byte, idx int, priv solana.PrivateKey) ([]byte, solana.Signature, error) {
	n, size, err := bin.DecodeCompactU16(raw)
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("read signature count: %w", err)
	}
	msgStart := size + n*signatureSize
	if idx >= n || msgStart > len(raw) {
		return nil, solana.Signature{}, fmt.Errorf("signature slot %d not present (%d slots)", idx, n)
	}
	sig, err := priv.Sign(raw[msgStart:])
	if err != nil {
		return nil, solana.Signature{}, fmt.Errorf("sign message: %w", err)
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	copy(out[size+idx*signatureSize:], sig[:])
	return out, sig, nil
}

// hasCreateFor reports whether the message already creates account ata
// through the associated token account program.
func hasCreateFor(msg *solana.Message, ata solana.PublicKey) bool {
	keys := msg.AccountKeys
	for _, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) || !keys[ci.ProgramIDIndex].Equals(solana.SPLAssociatedTokenAccountProgramID) {
			continue
		}
		for _, ai := range ci.Accounts {
			if int(ai) < len(keys) && keys[ai].Equals(ata) {
				return true
			}
		}
	}
	return false
}
