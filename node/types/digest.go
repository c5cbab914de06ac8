// Copyright 2022 Tessera Network Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"errors"
	"fmt"

	"github.com/tessera-net/tessera/lib/crypto/sr25519"

	"github.com/vmihailenco/msgpack/v5"
)

// ConsensusEngineID identifies the consensus engine a digest item belongs to
type ConsensusEngineID [4]byte

// BabeEngineID is the engine ID of the block production engine
var BabeEngineID = ConsensusEngineID{'B', 'A', 'B', 'E'}

// GrandpaEngineID is the engine ID of the finality engine
var GrandpaEngineID = ConsensusEngineID{'F', 'R', 'N', 'K'}

// ToBytes returns the engine ID as a byte slice
func (e ConsensusEngineID) ToBytes() []byte {
	b := [4]byte(e)
	return b[:]
}

// String returns the engine ID characters
func (e ConsensusEngineID) String() string {
	return string(e.ToBytes())
}

// EncodeMsgpack encodes the engine ID as raw bytes
func (e ConsensusEngineID) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(e.ToBytes())
}

// DecodeMsgpack decodes raw bytes into the engine ID
func (e *ConsensusEngineID) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}

	if len(b) != 4 {
		return fmt.Errorf("cannot decode engine id: expected 4 bytes, got %d", len(b))
	}

	copy(e[:], b)
	return nil
}

// digest item type discriminators
const (
	PreRuntimeType byte = 6
	ConsensusType  byte = 4
	SealType       byte = 5
)

var (
	// ErrNoFirstPreDigest is returned when the first digest item of a
	// produced header is not the pre-runtime slot claim
	ErrNoFirstPreDigest = errors.New("first digest item is not pre-runtime digest")

	// ErrNoSealDigest is returned when the last digest item of a sealed
	// header is not the seal
	ErrNoSealDigest = errors.New("last digest item is not seal digest")

	errDecodeBabeDigest = errors.New("cannot decode babe pre-runtime digest")
)

// DigestItem is a single entry of a header digest. A produced block carries
// the pre-runtime slot claim first and the seal last.
type DigestItem struct {
	Type   byte
	Engine ConsensusEngineID
	Data   []byte
}

// Digest is the ordered list of digest items in a header
type Digest []DigestItem

// NewBABEPreRuntimeDigest returns a BABE pre-runtime digest item
func NewBABEPreRuntimeDigest(data []byte) DigestItem {
	return DigestItem{
		Type:   PreRuntimeType,
		Engine: BabeEngineID,
		Data:   data,
	}
}

// NewConsensusDigest returns a consensus digest item for the given engine
func NewConsensusDigest(engine ConsensusEngineID, data []byte) DigestItem {
	return DigestItem{
		Type:   ConsensusType,
		Engine: engine,
		Data:   data,
	}
}

// NewSealDigest returns a seal digest item for the given engine
func NewSealDigest(engine ConsensusEngineID, data []byte) DigestItem {
	return DigestItem{
		Type:   SealType,
		Engine: engine,
		Data:   data,
	}
}

// IsPreRuntime returns true for a pre-runtime digest item
func (d *DigestItem) IsPreRuntime() bool { return d.Type == PreRuntimeType }

// IsSeal returns true for a seal digest item
func (d *DigestItem) IsSeal() bool { return d.Type == SealType }

// BabePreDigest is the slot claim carried in a produced block: the winning
// slot, the index of the claiming authority and its VRF output and proof
type BabePreDigest struct {
	AuthorityIndex uint32
	SlotNumber     uint64
	VRFOutput      [sr25519.VRFOutputLength]byte
	VRFProof       [sr25519.VRFProofLength]byte
}

type babePreDigestWire struct {
	AuthorityIndex uint32
	SlotNumber     uint64
	VRFOutput      []byte
	VRFProof       []byte
}

// NewBabePreDigest returns a BabePreDigest for the given slot claim
func NewBabePreDigest(authorityIndex uint32, slot uint64,
	vrfOutput [sr25519.VRFOutputLength]byte, vrfProof [sr25519.VRFProofLength]byte) *BabePreDigest {
	return &BabePreDigest{
		AuthorityIndex: authorityIndex,
		SlotNumber:     slot,
		VRFOutput:      vrfOutput,
		VRFProof:       vrfProof,
	}
}

// Encode returns the msgpack encoded pre-digest
func (d *BabePreDigest) Encode() ([]byte, error) {
	return msgpack.Marshal(&babePreDigestWire{
		AuthorityIndex: d.AuthorityIndex,
		SlotNumber:     d.SlotNumber,
		VRFOutput:      d.VRFOutput[:],
		VRFProof:       d.VRFProof[:],
	})
}

// ToPreRuntimeDigest encodes the pre-digest into a digest item
func (d *BabePreDigest) ToPreRuntimeDigest() (DigestItem, error) {
	enc, err := d.Encode()
	if err != nil {
		return DigestItem{}, err
	}

	return NewBABEPreRuntimeDigest(enc), nil
}

// DecodeBabePreDigest decodes the data of a BABE pre-runtime digest item
func DecodeBabePreDigest(in []byte) (*BabePreDigest, error) {
	wire := new(babePreDigestWire)
	if err := msgpack.Unmarshal(in, wire); err != nil {
		return nil, fmt.Errorf("%w: %s", errDecodeBabeDigest, err)
	}

	if len(wire.VRFOutput) != sr25519.VRFOutputLength || len(wire.VRFProof) != sr25519.VRFProofLength {
		return nil, errDecodeBabeDigest
	}

	d := &BabePreDigest{
		AuthorityIndex: wire.AuthorityIndex,
		SlotNumber:     wire.SlotNumber,
	}
	copy(d.VRFOutput[:], wire.VRFOutput)
	copy(d.VRFProof[:], wire.VRFProof)
	return d, nil
}

// GetSlotFromHeader returns the slot number from the header's BABE pre-runtime digest
func GetSlotFromHeader(header *Header) (uint64, error) {
	if len(header.Digest) == 0 {
		return 0, ErrNoFirstPreDigest
	}

	item := header.Digest[0]
	if !item.IsPreRuntime() || item.Engine != BabeEngineID {
		return 0, ErrNoFirstPreDigest
	}

	preDigest, err := DecodeBabePreDigest(item.Data)
	if err != nil {
		return 0, err
	}

	return preDigest.SlotNumber, nil
}

// NextEpochData is the consensus digest announcing the authority set and
// randomness for the next epoch. It takes effect only at the epoch boundary.
type NextEpochData struct {
	Authorities []AuthorityRaw
	Randomness  [RandomnessLength]byte
}

type nextEpochDataWire struct {
	Authorities []AuthorityRaw
	Randomness  []byte
}

// Encode returns the msgpack encoded digest payload
func (d *NextEpochData) Encode() ([]byte, error) {
	return msgpack.Marshal(&nextEpochDataWire{
		Authorities: d.Authorities,
		Randomness:  d.Randomness[:],
	})
}

// ToConsensusDigest encodes the payload into a BABE consensus digest item
func (d *NextEpochData) ToConsensusDigest() (DigestItem, error) {
	enc, err := d.Encode()
	if err != nil {
		return DigestItem{}, err
	}

	return NewConsensusDigest(BabeEngineID, enc), nil
}

// DecodeNextEpochData decodes the data of a BABE consensus digest item
func DecodeNextEpochData(in []byte) (*NextEpochData, error) {
	wire := new(nextEpochDataWire)
	if err := msgpack.Unmarshal(in, wire); err != nil {
		return nil, fmt.Errorf("cannot decode next epoch data: %w", err)
	}

	d := &NextEpochData{Authorities: wire.Authorities}
	copy(d.Randomness[:], wire.Randomness)
	return d, nil
}

// ToEpochData decodes the announced authority keys into epoch data usable
// by the slot lottery
func (d *NextEpochData) ToEpochData() (*EpochData, error) {
	raw := &EpochDataRaw{
		Authorities: d.Authorities,
		Randomness:  d.Randomness,
	}
	return raw.ToEpochData()
}

// GrandpaScheduledChange is the consensus digest scheduling a voter set
// change; it is applied once the announcing block is finalized
type GrandpaScheduledChange struct {
	Auths []GrandpaVoterRaw
	Delay uint32
}

// Encode returns the msgpack encoded digest payload
func (sc *GrandpaScheduledChange) Encode() ([]byte, error) {
	return msgpack.Marshal(sc)
}

// ToConsensusDigest encodes the change into a grandpa consensus digest item
func (sc *GrandpaScheduledChange) ToConsensusDigest() (DigestItem, error) {
	enc, err := sc.Encode()
	if err != nil {
		return DigestItem{}, err
	}

	return NewConsensusDigest(GrandpaEngineID, enc), nil
}

// DecodeGrandpaScheduledChange decodes the data of a grandpa consensus
// digest item
func DecodeGrandpaScheduledChange(in []byte) (*GrandpaScheduledChange, error) {
	sc := new(GrandpaScheduledChange)
	if err := msgpack.Unmarshal(in, sc); err != nil {
		return nil, fmt.Errorf("cannot decode scheduled change: %w", err)
	}
	return sc, nil
}
