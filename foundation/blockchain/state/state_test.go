package state_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ardanlabs/ethsim/foundation/blockchain/blockstore"
	"github.com/ardanlabs/ethsim/foundation/blockchain/database"
	"github.com/ardanlabs/ethsim/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv/leveldb"
	"github.com/ardanlabs/ethsim/foundation/blockchain/signature"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/blockchain/worker"
	"github.com/ardanlabs/ethsim/foundation/events"
	"github.com/ardanlabs/ethsim/foundation/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey   = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	passphrase = "this is my passphrase"
)

var recipient = common.HexToAddress("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")

// node bundles a running chain for tests.
type node struct {
	state    *state.State
	heads    <-chan *types.Header
	unlocked common.Address
	locked   common.Address
	external common.Address
}

// =============================================================================

func Test_SendTransaction(t *testing.T) {
	n := newNode(t)

	t.Log("Given the need to mine transactions from an unlocked account.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen sending a value transfer.", testID)
		{
			value := big.NewInt(1_000)
			hash, err := n.state.SendTransaction(context.Background(), state.TxArgs{From: n.unlocked, To: &recipient, Value: value})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to send the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to send the transaction.", success, testID)

			receipt, err := n.state.QueryReceipt(hash)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find the receipt: %v", failed, testID, err)
			}
			if receipt.Status != 1 || receipt.GasUsed != 21_000 || receipt.BlockNumber != 1 || receipt.From != n.unlocked {
				t.Fatalf("\t%s\tTest %d:\tShould get a successful receipt in block 1: %+v", failed, testID, receipt)
			}
			t.Logf("\t%s\tTest %d:\tShould get a successful receipt in block 1.", success, testID)

			latest, _ := n.state.RetrieveLatestBlock()
			if latest.Number() != 1 || latest.Hash() != receipt.BlockHash || len(latest.Transactions) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould advance the latest block.", failed, testID)
			}
			if latest.Header.Root != n.state.RetrieveStateRoot() {
				t.Fatalf("\t%s\tTest %d:\tShould record the state root in the block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould advance the latest block.", success, testID)

			info, err := n.state.QueryTransaction(hash)
			if err != nil || info.From != n.unlocked || info.Tx.Nonce() != 0 || info.Tx.Gas() != genesis.DefaultTxGas {
				t.Fatalf("\t%s\tTest %d:\tShould find the transaction with defaults applied: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould find the transaction with defaults applied.", success, testID)

			bal, err := n.state.QueryBalance(recipient, "latest")
			if err != nil || bal.Cmp(value) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould credit the recipient: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould credit the recipient.", success, testID)

			select {
			case h := <-n.heads:
				if h.Hash() != latest.Hash() {
					t.Fatalf("\t%s\tTest %d:\tShould notify the committed header.", failed, testID)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould notify the committed header.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould notify the committed header.", success, testID)
		}
	}
}

func Test_LockedAccount(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()
	args := state.TxArgs{From: n.locked, To: &recipient, Value: big.NewInt(1)}

	t.Log("Given the need to refuse transactions from locked accounts.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen sending without a passphrase.", testID)
		{
			_, err := n.state.SendTransaction(ctx, args)
			if !errors.Is(err, accounts.ErrAccountLocked) || err.Error() != "signer account is locked" {
				t.Fatalf("\t%s\tTest %d:\tShould fail with the account locked: %v", failed, testID, err)
			}
			if n.state.RetrieveBlockNumber() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not mine a block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail with the account locked.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen sending with invalid passphrases.", testID)
		{
			for _, bad := range []string{"this is not my passphrase", "", "1", "0"} {
				_, err := n.state.SendTransactionWithPassphrase(ctx, args, bad)
				if !errors.Is(err, accounts.ErrInvalidPassword) || err.Error() != "Invalid password" {
					t.Fatalf("\t%s\tTest %d:\tShould fail with an invalid password for %q: %v", failed, testID, bad, err)
				}
			}
			if nonce, _ := n.state.QueryNonce(n.locked, "latest"); nonce != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not change the nonce.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail with an invalid password.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen sending with the right passphrase.", testID)
		{
			hash, err := n.state.SendTransactionWithPassphrase(ctx, args, passphrase)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to send: %v", failed, testID, err)
			}
			if _, err := n.state.QueryReceipt(hash); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find the receipt: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to send.", success, testID)

			if _, err := n.state.SendTransaction(ctx, args); !errors.Is(err, accounts.ErrAccountLocked) {
				t.Fatalf("\t%s\tTest %d:\tShould leave the account locked: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the account locked.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen unlocking and locking the account.", testID)
		{
			if err := n.state.UnlockAccount(ctx, n.locked, passphrase, 0); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to unlock: %v", failed, testID, err)
			}
			if _, err := n.state.SendTransaction(ctx, args); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould send while unlocked: %v", failed, testID, err)
			}
			if err := n.state.LockAccount(ctx, n.locked); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to lock: %v", failed, testID, err)
			}
			if _, err := n.state.SendTransaction(ctx, args); !errors.Is(err, accounts.ErrAccountLocked) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse once locked again: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould follow the lock state.", success, testID)
		}
	}
}

func Test_Nonce(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	send := func(nonce uint64) error {
		_, err := n.state.SendTransaction(ctx, state.TxArgs{From: n.unlocked, To: &recipient, Nonce: &nonce})
		return err
	}

	type table struct {
		name  string
		nonce uint64
		err   error
	}

	tt := []table{
		{name: "first", nonce: 0},
		{name: "replay", nonce: 0, err: state.ErrNonceTooLow},
		{name: "gap", nonce: 5, err: state.ErrNonceTooHigh},
		{name: "next", nonce: 1},
	}

	t.Log("Given the need to enforce account nonces.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen sending the %s nonce %d.", testID, tst.name, tst.nonce)
			{
				err := send(tst.nonce)
				if !errors.Is(err, tst.err) {
					t.Fatalf("\t%s\tTest %d:\tShould get %v, got %v.", failed, testID, tst.err, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get %v.", success, testID, tst.err)
			}
		}
	}

	if got := n.state.RetrieveBlockNumber(); got != 2 {
		t.Fatalf("Should only mine the accepted transactions, got block %d.", got)
	}

	bad := "wrong"
	nonce := uint64(99)
	_, err := n.state.SendTransactionWithPassphrase(ctx, state.TxArgs{From: n.locked, To: &recipient, Nonce: &nonce}, bad)
	if !errors.Is(err, accounts.ErrInvalidPassword) {
		t.Fatalf("Should check the passphrase before the nonce: %v", err)
	}
}

func Test_RawTransaction(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	raw := func(key string, nonce uint64) []byte {
		k, err := crypto.HexToECDSA(key)
		if err != nil {
			t.Fatalf("Should be able to generate a private key: %s", err)
		}

		tx := types.NewTx(&types.LegacyTx{Nonce: nonce, Gas: 21_000, GasPrice: big.NewInt(1), To: &recipient, Value: big.NewInt(5)})
		signed, err := signature.SignTx(tx, n.state.ChainID(), func(hash []byte) ([]byte, error) {
			return crypto.Sign(hash, k)
		})
		if err != nil {
			t.Fatalf("Should be able to sign: %s", err)
		}

		data, err := signed.MarshalBinary()
		if err != nil {
			t.Fatalf("Should be able to encode: %s", err)
		}
		return data
	}

	t.Log("Given the need to accept transactions signed by clients.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the sender is funded at genesis.", testID)
		{
			hash, err := n.state.SendRawTransaction(ctx, raw(pkHexKey, 0))
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %v", failed, testID, err)
			}
			info, err := n.state.QueryTransaction(hash)
			if err != nil || info.From != crypto.PubkeyToAddress(pk.PublicKey) {
				t.Fatalf("\t%s\tTest %d:\tShould recover the sender: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the transaction.", success, testID)

			if _, err := n.state.SendRawTransaction(ctx, raw(pkHexKey, 0)); !errors.Is(err, state.ErrNonceTooLow) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse a replay: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse a replay.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the sender is unknown.", testID)
		{
			const unknown = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"
			if _, err := n.state.SendRawTransaction(ctx, raw(unknown, 0)); !errors.Is(err, accounts.ErrUnknownAccount) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse the transaction.", success, testID)
		}
	}
}

func Test_Concurrency(t *testing.T) {
	n := newNode(t)

	const total = 20

	var wg sync.WaitGroup
	errs := make(chan error, total)
	hashes := make(chan common.Hash, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hash, err := n.state.SendTransaction(context.Background(), state.TxArgs{From: n.unlocked, To: &recipient, Value: big.NewInt(1)})
			if err != nil {
				errs <- err
				return
			}
			hashes <- hash
		}()
	}

	wg.Wait()
	close(errs)
	close(hashes)

	for err := range errs {
		t.Fatalf("Should send every transaction: %s", err)
	}

	var nonces []int
	for hash := range hashes {
		info, err := n.state.QueryTransaction(hash)
		if err != nil {
			t.Fatalf("Should find transaction %s: %s", hash, err)
		}
		nonces = append(nonces, int(info.Tx.Nonce()))
	}

	sort.Ints(nonces)
	for i, nonce := range nonces {
		if nonce != i {
			t.Fatalf("Should assign nonces without gaps or duplicates: %v", nonces)
		}
	}

	if got := n.state.RetrieveBlockNumber(); got != total {
		t.Fatalf("Should mine one block per transaction, got %d.", got)
	}

	for want := uint64(1); want <= total; want++ {
		select {
		case h := <-n.heads:
			if h.Number.Uint64() != want {
				t.Fatalf("Should notify headers in commit order: got %d, want %d", h.Number.Uint64(), want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Should notify header %d.", want)
		}
	}

	select {
	case h := <-n.heads:
		t.Fatalf("Should notify each header once, got an extra %d.", h.Number.Uint64())
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_ValueOverflow(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	tooBig := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	t.Log("Given the need to refuse amounts that don't fit in 256 bits.")
	{
		tests := []struct {
			name string
			args state.TxArgs
		}{
			{"value", state.TxArgs{From: n.unlocked, To: &recipient, Value: tooBig}},
			{"gasprice", state.TxArgs{From: n.unlocked, To: &recipient, Value: big.NewInt(1), GasPrice: tooBig}},
			{"negative", state.TxArgs{From: n.unlocked, To: &recipient, Value: big.NewInt(-1)}},
		}

		for testID, tt := range tests {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen sending an out of range %s.", testID, tt.name)
				{
					_, err := n.state.SendTransaction(ctx, tt.args)
					if !errors.Is(err, database.ErrUint256Overflow) {
						t.Fatalf("\t%s\tTest %d:\tShould refuse the transaction: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould refuse the transaction.", success, testID)

					if got := n.state.RetrieveBlockNumber(); got != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould not mine a block, got %d.", failed, testID, got)
					}
					if nonce, _ := n.state.QueryNonce(n.unlocked, "latest"); nonce != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould not change the nonce, got %d.", failed, testID, nonce)
					}
					if bal, _ := n.state.QueryBalance(recipient, "latest"); bal.Sign() != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould not credit the recipient, got %s.", failed, testID, bal)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the chain untouched.", success, testID)
				}
			}

			t.Run(tt.name, f)
		}
	}

	hash, err := n.state.SendTransaction(ctx, state.TxArgs{From: n.unlocked, To: &recipient, Value: big.NewInt(1)})
	if err != nil {
		t.Fatalf("Should send a transaction afterwards: %s", err)
	}
	if info, err := n.state.QueryTransaction(hash); err != nil || info.Tx.Nonce() != 0 {
		t.Fatalf("Should reuse nonce 0 afterwards: %v", err)
	}
}

func Test_CommitFailure(t *testing.T) {
	mem, err := leveldb.NewMemory()
	if err != nil {
		t.Fatalf("Should be able to open the store: %s", err)
	}
	store := &flakyStore{Store: mem}

	n := newNodeWithStore(t, store)
	ctx := context.Background()

	genesisBlock, _ := n.state.RetrieveLatestBlock()
	before, _ := n.state.QueryBalance(n.unlocked, "latest")
	args := state.TxArgs{From: n.unlocked, To: &recipient, Value: big.NewInt(1_000)}

	t.Log("Given the need to keep the chain consistent when a block can't be written.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the block write fails.", testID)
		{
			store.fail.Store(true)

			_, err := n.state.SendTransaction(ctx, args)
			if !errors.Is(err, blockstore.ErrPersistence) {
				t.Fatalf("\t%s\tTest %d:\tShould report a persistence failure: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report a persistence failure.", success, testID)

			if got := n.state.RetrieveBlockNumber(); got != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not advance the latest block, got %d.", failed, testID, got)
			}
			if nonce, _ := n.state.QueryNonce(n.unlocked, "latest"); nonce != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould restore the nonce, got %d.", failed, testID, nonce)
			}
			if bal, _ := n.state.QueryBalance(n.unlocked, "latest"); bal.Cmp(before) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould restore the sender balance, got %s.", failed, testID, bal)
			}
			if bal, _ := n.state.QueryBalance(recipient, "latest"); bal.Sign() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould restore the recipient balance, got %s.", failed, testID, bal)
			}
			if n.state.RetrieveStateRoot() != genesisBlock.Header.Root {
				t.Fatalf("\t%s\tTest %d:\tShould restore the state root.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould restore the world state.", success, testID)

			select {
			case h := <-n.heads:
				t.Fatalf("\t%s\tTest %d:\tShould not notify a header, got %d.", failed, testID, h.Number.Uint64())
			case <-time.After(100 * time.Millisecond):
			}
			t.Logf("\t%s\tTest %d:\tShould not notify a header.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the store recovers.", testID)
		{
			store.fail.Store(false)

			hash, err := n.state.SendTransaction(ctx, args)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to send: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to send.", success, testID)

			info, err := n.state.QueryTransaction(hash)
			if err != nil || info.Tx.Nonce() != 0 || info.BlockNumber != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould mine nonce 0 in block 1: %v", failed, testID, err)
			}
			if nonce, _ := n.state.QueryNonce(n.unlocked, "latest"); nonce != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould advance the nonce once, got %d.", failed, testID, nonce)
			}
			t.Logf("\t%s\tTest %d:\tShould mine nonce 0 in block 1.", success, testID)
		}
	}
}

func Test_MineBlock(t *testing.T) {
	n := newNode(t)

	block, err := n.state.MineBlock(context.Background())
	if err != nil {
		t.Fatalf("Should be able to mine an empty block: %s", err)
	}

	if block.Number() != 1 || len(block.Transactions) != 0 || block.Header.TxHash != types.EmptyTxsHash {
		t.Fatalf("Should mine an empty block 1.")
	}

	genesisBlock, err := n.state.QueryBlockByNumber("earliest")
	if err != nil || block.Header.ParentHash != genesisBlock.Hash() {
		t.Fatalf("Should build on the genesis block: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		n.state.MineBlock(ctx)
	}
	if got := n.state.RetrieveBlockNumber(); got > 11 {
		t.Fatalf("Should never mine more blocks than requested, got %d.", got)
	}
}

// =============================================================================

// flakyStore fails block writes while fail is set.
type flakyStore struct {
	kv.Store
	fail atomic.Bool
}

func (f *flakyStore) Put(key []byte, value []byte) error {
	if f.fail.Load() && len(key) > 0 && key[0] == 'n' {
		return errors.New("disk full")
	}
	return f.Store.Put(key, value)
}

func newNode(t *testing.T) *node {
	store, err := leveldb.NewMemory()
	if err != nil {
		t.Fatalf("Should be able to open the store: %s", err)
	}

	return newNodeWithStore(t, store)
}

func newNodeWithStore(t *testing.T, store kv.Store) *node {
	log, err := logger.New("TEST")
	if err != nil {
		t.Fatalf("Should be able to construct a logger: %s", err)
	}
	t.Cleanup(func() { log.Sync() })

	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
	}

	gen, err := accounts.NewGenerator("state-test", "")
	if err != nil {
		t.Fatalf("Should be able to construct a generator: %s", err)
	}

	mgr, err := accounts.New(accounts.Config{Generator: gen})
	if err != nil {
		t.Fatalf("Should be able to construct the account manager: %s", err)
	}

	unlocked, err := mgr.Create(nil)
	if err != nil {
		t.Fatalf("Should be able to create an account: %s", err)
	}

	pass := passphrase
	locked, err := mgr.Create(&pass)
	if err != nil {
		t.Fatalf("Should be able to create an account: %s", err)
	}

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}
	external := crypto.PubkeyToAddress(pk.PublicKey)

	g := genesis.Default()
	g.Date = time.Unix(1_600_000_000, 0)
	g.Credit(unlocked, 100)
	g.Credit(locked, 100)
	g.Credit(external, 100)

	heads := events.New[*types.Header]()
	ch := heads.Acquire("test")

	st, err := state.New(state.Config{
		Genesis:   g,
		Store:     store,
		Accounts:  mgr,
		Heads:     heads,
		EvHandler: ev,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	worker.Run(st, ev)

	t.Cleanup(func() {
		st.Shutdown()
		heads.Shutdown()
	})

	return &node{
		state:    st,
		heads:    ch,
		unlocked: unlocked,
		locked:   locked,
		external: external,
	}
}
