package database

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/ardanlabs/grokchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/grokchain/foundation/blockchain/poh"
	"github.com/ardanlabs/grokchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Chain parameters of the genesis block.
const (
	GenesisDifficulty = 4
	GenesisMiner      = "127.0.0.1"
)

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64    `json:"number"`          // Ethereum: Block number in the chain.
	PrevBlockHash string    `json:"prev_block_hash"` // Bitcoin: Hash of the previous block in the chain.
	TimeStamp     uint64    `json:"timestamp"`       // Bitcoin: Time the block was mined.
	Nonce         uint64    `json:"nonce"`           // Bitcoin: Value identified to solve the hash solution.
	Difficulty    uint16    `json:"difficulty"`      // Number of leading zero bits needed to solve the hash solution.
	BeneficiaryID AccountID `json:"beneficiary"`     // Ethereum: The account who is receiving the mining reward.
	MinerIdentity string    `json:"miner_identity"`  // The host of the node that mined the block.
	PoHIndex      uint64    `json:"poh_index"`       // Index of the proof of history entry reserved for this block.
	PoHHash       string    `json:"poh_hash"`        // The proof of history entry at PoHIndex.
	Fees          uint64    `json:"fees"`            // Total fees paid by the transactions in this block.
	TransHash     string    `json:"trans_hash"`      // Hash of the ordered transactions in this block.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader
	Trans  []BlockTx
}

// GenesisBlock constructs block zero for the specified genesis.
func GenesisBlock(g genesis.Genesis) Block {
	return Block{
		Header: BlockHeader{
			Number:        0,
			PrevBlockHash: signature.ZeroHash,
			TimeStamp:     uint64(g.Date.UTC().Unix()),
			Difficulty:    GenesisDifficulty,
			MinerIdentity: GenesisMiner,
			PoHIndex:      0,
			PoHHash:       poh.Seed().String(),
			TransHash:     TransHash(nil),
		},
	}
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	BeneficiaryID AccountID
	MinerIdentity string
	Difficulty    uint16
	PrevBlock     Block
	PoHIndex      uint64
	PoHHash       poh.Hash
	Fees          uint64
	Trans         []BlockTx
	EvHandler     func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzel.
func POW(ctx context.Context, args POWArgs) (Block, error) {

	// The timestamp can't go backwards relative to the parent.
	timeStamp := uint64(time.Now().UTC().Unix())
	if timeStamp < args.PrevBlock.Header.TimeStamp {
		timeStamp = args.PrevBlock.Header.TimeStamp
	}

	// Construct the block to be mined.
	nb := Block{
		Header: BlockHeader{
			Number:        args.PrevBlock.Header.Number + 1,
			PrevBlockHash: args.PrevBlock.Hash(),
			TimeStamp:     timeStamp,
			Nonce:         0, // Will be identified by the POW algorithm.
			Difficulty:    args.Difficulty,
			BeneficiaryID: args.BeneficiaryID,
			MinerIdentity: args.MinerIdentity,
			PoHIndex:      args.PoHIndex,
			PoHHash:       args.PoHHash.String(),
			Fees:          args.Fees,
			TransHash:     TransHash(args.Trans),
		},
		Trans: args.Trans,
	}

	// Peform the proof of work mining operation.
	if err := nb.performPOW(ctx, args.EvHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started")
	defer ev("database: PerformPOW: MINING: completed")

	// Log the transactions that are a part of this potential block.
	for _, tx := range b.Trans {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Loop until we find a solution or we are told to stop.
	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !isHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}

// Hash returns the unique hash for the Block. The genesis block carries a
// fixed placeholder hash.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	// The header carries the hash of the ordered transactions, so hashing
	// the header covers the whole block.
	return signature.Hash(b.Header)
}

// =============================================================================

// PoHReader represents the read side of the proof of history sequence needed
// to validate a block.
type PoHReader interface {
	Current() (uint64, poh.Hash)
	At(index uint64) (poh.Hash, bool)
}

// ValidateArgs represents the set of arguments required to validate a block.
type ValidateArgs struct {
	PrevBlock      Block
	DeclaredHash   string
	Difficulty     uint16
	TransPerBlock  uint16
	FeeBasisPoints uint16
	PoH            PoHReader
	Verifier       *Verifier
	EvHandler      func(v string, args ...any)
}

// ValidateBlock takes a block and validates it to be included into the
// blockchain. The checks run in order and the first failure is returned.
// Nothing is mutated.
func (b Block) ValidateBlock(args ValidateArgs) error {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	prev := args.PrevBlock

	ev("database: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if b.Header.PrevBlockHash != prev.Hash() {
		return fmt.Errorf("%w: parent block hash doesn't match our known parent, got %s, exp %s", ErrChainLinkMismatch, b.Header.PrevBlockHash, prev.Hash())
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: block number is the next number", b.Header.Number)

	nextNumber := prev.Header.Number + 1
	if b.Header.Number != nextNumber {
		return fmt.Errorf("%w: this block is not the next number, got %d, exp %d", ErrChainLinkMismatch, b.Header.Number, nextNumber)
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: block difficulty meets the chain difficulty", b.Header.Number)

	if b.Header.Difficulty < args.Difficulty {
		return fmt.Errorf("%w: block difficulty is less than chain difficulty, chain %d, block %d", ErrChainLinkMismatch, args.Difficulty, b.Header.Difficulty)
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	if th := TransHash(b.Trans); b.Header.TransHash != th {
		return fmt.Errorf("%w: transaction hash does not match transactions, got %s, exp %s", ErrChainLinkMismatch, th, b.Header.TransHash)
	}

	hash := b.Hash()
	if args.DeclaredHash != hash {
		return fmt.Errorf("%w: declared hash %s does not match computed hash %s", ErrChainLinkMismatch, args.DeclaredHash, hash)
	}

	if !isHashSolved(b.Header.Difficulty, hash) {
		return fmt.Errorf("%w: %s invalid block hash", ErrChainLinkMismatch, hash)
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: poh index follows parent and exists", b.Header.Number)

	if b.Header.PoHIndex <= prev.Header.PoHIndex {
		return fmt.Errorf("%w: poh index %d is not greater than parent poh index %d", ErrChainLinkMismatch, b.Header.PoHIndex, prev.Header.PoHIndex)
	}

	if args.PoH != nil {
		current, _ := args.PoH.Current()
		if b.Header.PoHIndex > current {
			return fmt.Errorf("%w: poh index %d is ahead of the sequence at %d", ErrChainLinkMismatch, b.Header.PoHIndex, current)
		}

		entry, _ := args.PoH.At(b.Header.PoHIndex)
		if b.Header.PoHHash != entry.String() {
			return fmt.Errorf("%w: poh hash %s does not match sequence entry %s", ErrChainLinkMismatch, b.Header.PoHHash, entry)
		}
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: block's timestamp is not before parent block's timestamp", b.Header.Number)

	if b.Header.TimeStamp < prev.Header.TimeStamp {
		parentTime := time.Unix(int64(prev.Header.TimeStamp), 0)
		blockTime := time.Unix(int64(b.Header.TimeStamp), 0)
		return fmt.Errorf("%w: block timestamp is before parent block, parent %s, block %s", ErrChainLinkMismatch, parentTime, blockTime)
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: transaction count", b.Header.Number)

	if len(b.Trans) > int(args.TransPerBlock) {
		return fmt.Errorf("%w: %d transactions, max %d", ErrBlockTooLarge, len(b.Trans), args.TransPerBlock)
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: transaction signatures", b.Header.Number)

	if err := args.Verifier.VerifyAll(b.Trans); err != nil {
		return err
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: no duplicate transactions", b.Header.Number)

	keys := make(map[string]struct{}, len(b.Trans))
	for _, tx := range b.Trans {
		key := tx.UniqueKey()
		if _, exists := keys[key]; exists {
			return fmt.Errorf("%w: %s appears twice in the block", ErrDuplicateTransaction, key)
		}
		keys[key] = struct{}{}
	}

	ev("database: ValidateBlock: validate: blk[%d]: check: fees", b.Header.Number)

	values := make([]uint64, len(b.Trans))
	for i, tx := range b.Trans {
		values[i] = tx.Value
	}

	shares, total, err := FeeShares(values, args.FeeBasisPoints)
	if err != nil {
		return err
	}

	for i, tx := range b.Trans {
		if tx.Fee != shares[i] {
			return fmt.Errorf("%w: tx[%s] fee %d, exp %d", ErrFeeMismatch, tx, tx.Fee, shares[i])
		}
	}

	if b.Header.Fees != total {
		return fmt.Errorf("%w: block fees %d, exp %d", ErrFeeMismatch, b.Header.Fees, total)
	}

	return nil
}

// =============================================================================

// TransHash returns the hash of the ordered transactions.
func TransHash(trans []BlockTx) string {
	if trans == nil {
		trans = []BlockTx{}
	}

	return signature.Hash(trans)
}

// isHashSolved checks the hash to make sure it complies with the POW rules.
// The hash needs difficulty leading zero bits.
func isHashSolved(difficulty uint16, hash string) bool {
	b, err := hexutil.Decode(hash)
	if err != nil || len(b) != 32 {
		return false
	}

	var zeros uint16
	for _, v := range b {
		if v != 0 {
			zeros += uint16(bits.LeadingZeros8(v))
			break
		}
		zeros += 8
	}

	return zeros >= difficulty
}

// =============================================================================

// BlockData represents what is written to storage and sent over the wire.
// PoH carries the sequence entries after the parent's PoH index up to and
// including this block's, so the sequence can be restored on startup.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []BlockTx   `json:"trans"`
	PoH    []poh.Hash  `json:"poh,omitempty"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block, segment []poh.Hash) BlockData {
	trans := block.Trans
	if trans == nil {
		trans = []BlockTx{}
	}

	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  trans,
		PoH:    segment,
	}
}

// ToBlock converts a BlockData into a Block.
func ToBlock(blockData BlockData) Block {
	return Block{
		Header: blockData.Header,
		Trans:  blockData.Trans,
	}
}
