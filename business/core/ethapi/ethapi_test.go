package ethapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/ethsim/business/core/ethapi"
	"github.com/ardanlabs/ethsim/foundation/blockchain/accounts"
	"github.com/ardanlabs/ethsim/foundation/blockchain/genesis"
	"github.com/ardanlabs/ethsim/foundation/blockchain/kv/pebble"
	"github.com/ardanlabs/ethsim/foundation/blockchain/state"
	"github.com/ardanlabs/ethsim/foundation/blockchain/worker"
	"github.com/ardanlabs/ethsim/foundation/events"
	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const passphrase = "this is my passphrase"

// =============================================================================

func Test_ListAccounts(t *testing.T) {
	t.Log("Given the need to list the accounts of the node.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen calling eth_accounts and personal_listAccounts.", testID)
		{
			d := newDispatcher(t, "temet nosce")
			conn := jsonrpc.NewConn()

			var eth, personal []common.Address
			mustCall(t, d, conn, &eth, "eth_accounts")
			mustCall(t, d, conn, &personal, "personal_listAccounts")

			if len(eth) == 0 || len(eth) != len(personal) {
				t.Fatalf("\t%s\tTest %d:\tShould get the same accounts, got %d and %d.", failed, testID, len(eth), len(personal))
			}
			for i := range eth {
				if eth[i] != personal[i] {
					t.Fatalf("\t%s\tTest %d:\tShould get the same accounts in the same order.", failed, testID)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get the same accounts in the same order.", success, testID)
		}
	}
}

func Test_NewAccount(t *testing.T) {
	t.Log("Given the need to generate accounts deterministically.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two nodes share a seed.", testID)
		{
			d1 := newDispatcher(t, "ethsim")
			d2 := newDispatcher(t, "ethsim")
			d3 := newDispatcher(t, "temet nosce")

			var a1, a2, a3, next common.Address
			mustCall(t, d1, jsonrpc.NewConn(), &a1, "personal_newAccount")
			mustCall(t, d2, jsonrpc.NewConn(), &a2, "personal_newAccount")
			mustCall(t, d3, jsonrpc.NewConn(), &a3, "personal_newAccount")
			mustCall(t, d1, jsonrpc.NewConn(), &next, "personal_newAccount")

			if a1 != a2 {
				t.Fatalf("\t%s\tTest %d:\tShould generate the same account, got %s and %s.", failed, testID, a1, a2)
			}
			t.Logf("\t%s\tTest %d:\tShould generate the same account.", success, testID)

			if a1 == a3 {
				t.Fatalf("\t%s\tTest %d:\tShould generate a different account for another seed.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould generate a different account for another seed.", success, testID)

			if a1 == next {
				t.Fatalf("\t%s\tTest %d:\tShould never repeat an account.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould never repeat an account.", success, testID)
		}
	}
}

func Test_UnlockLock(t *testing.T) {
	t.Log("Given the need to gate signing by the lock state of an account.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen unlocking and locking a new account.", testID)
		{
			d := newDispatcher(t, "ethsim")
			conn := jsonrpc.NewConn()

			var addr common.Address
			mustCall(t, d, conn, &addr, "personal_newAccount", passphrase)

			tx := txObject(addr, 0)

			expectError(t, call(d, conn, "eth_sendTransaction", tx), jsonrpc.CodeServer, "signer account is locked")
			t.Logf("\t%s\tTest %d:\tShould reject a transaction from a locked account.", success, testID)

			var unlocked bool
			mustCall(t, d, conn, &unlocked, "personal_unlockAccount", addr, passphrase, 0)
			if !unlocked {
				t.Fatalf("\t%s\tTest %d:\tShould unlock the account.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould unlock the account.", success, testID)

			var hash common.Hash
			mustCall(t, d, conn, &hash, "eth_sendTransaction", tx)

			var receipt struct {
				Status int `json:"status"`
			}
			mustCall(t, d, conn, &receipt, "eth_getTransactionReceipt", hash)
			if receipt.Status != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould get a successful receipt, got %d.", failed, testID, receipt.Status)
			}
			t.Logf("\t%s\tTest %d:\tShould get a successful receipt.", success, testID)

			var locked bool
			mustCall(t, d, conn, &locked, "personal_lockAccount", addr)
			if !locked {
				t.Fatalf("\t%s\tTest %d:\tShould lock the account.", failed, testID)
			}

			expectError(t, call(d, conn, "eth_sendTransaction", txObject(addr, 1)), jsonrpc.CodeServer, "signer account is locked")
			t.Logf("\t%s\tTest %d:\tShould reject a transaction once locked again.", success, testID)
		}
	}
}

func Test_PersonalSendTransaction(t *testing.T) {
	t.Log("Given the need to sign a transaction with a one-shot passphrase.")
	{
		d := newDispatcher(t, "ethsim")
		conn := jsonrpc.NewConn()

		var addr common.Address
		mustCall(t, d, conn, &addr, "personal_newAccount", passphrase)

		tx := txObject(addr, 0)

		invalid := []json.RawMessage{
			json.RawMessage(`"this is not my passphrase"`),
			json.RawMessage(`null`),
			json.RawMessage(`{"type":"Buffer","data":[]}`),
			json.RawMessage(`1`),
			json.RawMessage(`0`),
		}

		for testID, pass := range invalid {
			t.Logf("\tTest %d:\tWhen using the passphrase %s.", testID, pass)
			{
				expectError(t, call(d, conn, "personal_sendTransaction", tx, pass), jsonrpc.CodeServer, "Invalid password")
				t.Logf("\t%s\tTest %d:\tShould get an invalid password error.", success, testID)
			}
		}

		testID := len(invalid)
		t.Logf("\tTest %d:\tWhen the passphrase is absent.", testID)
		{
			expectError(t, call(d, conn, "personal_sendTransaction", tx), jsonrpc.CodeServer, "Invalid password")
			t.Logf("\t%s\tTest %d:\tShould get an invalid password error.", success, testID)

			var nonce string
			mustCall(t, d, conn, &nonce, "eth_getTransactionCount", addr, "latest")
			if nonce != "0x0" {
				t.Fatalf("\t%s\tTest %d:\tShould not change the nonce, got %s.", failed, testID, nonce)
			}
			t.Logf("\t%s\tTest %d:\tShould not change the nonce.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen using the right passphrase.", testID)
		{
			var hash common.Hash
			mustCall(t, d, conn, &hash, "personal_sendTransaction", tx, passphrase)

			var receipt struct {
				Status int `json:"status"`
			}
			mustCall(t, d, conn, &receipt, "eth_getTransactionReceipt", hash)
			if receipt.Status != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould get a successful receipt, got %d.", failed, testID, receipt.Status)
			}
			t.Logf("\t%s\tTest %d:\tShould get a successful receipt.", success, testID)

			expectError(t, call(d, conn, "eth_sendTransaction", txObject(addr, 1)), jsonrpc.CodeServer, "signer account is locked")
			t.Logf("\t%s\tTest %d:\tShould leave the account locked.", success, testID)
		}
	}
}

func Test_Subscribe(t *testing.T) {
	t.Log("Given the need to push new block headers to subscribers.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen subscribing over a request-only connection.", testID)
		{
			d := newDispatcher(t, "ethsim")

			expectError(t, call(d, jsonrpc.NewConn(), "eth_subscribe", "newHeads"), jsonrpc.CodeServer, "notifications not supported")
			t.Logf("\t%s\tTest %d:\tShould get a notifications not supported error.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen subscribing over a push connection.", testID)
		{
			d := newDispatcher(t, "ethsim")

			msgs := make(chan []byte, 10)
			conn := jsonrpc.NewPushConn(func(msg []byte) error {
				msgs <- msg
				return nil
			})
			t.Cleanup(conn.Close)

			resp := call(d, conn, "eth_subscribe", "newHeads")
			if resp.Error != nil {
				t.Fatalf("\t%s\tTest %d:\tShould subscribe: %s", failed, testID, resp.Error.Message)
			}

			var id string
			json.Unmarshal(resp.Result, &id)

			data, _ := json.Marshal(resp)
			if err := conn.Reply(data); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould reply: %s", failed, testID, err)
			}
			<-msgs

			var mined string
			mustCall(t, d, conn, &mined, "evm_mine")

			var n struct {
				Method string `json:"method"`
				Params struct {
					Subscription string `json:"subscription"`
					Result       struct {
						Number string `json:"number"`
					} `json:"result"`
				} `json:"params"`
			}

			select {
			case msg := <-msgs:
				if err := json.Unmarshal(msg, &n); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould decode the notification: %s", failed, testID, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould receive a notification.", failed, testID)
			}

			if n.Method != "eth_subscription" || n.Params.Subscription != id || n.Params.Result.Number != "0x1" {
				t.Fatalf("\t%s\tTest %d:\tShould get the header of block 1, got %+v.", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould get the header of block 1.", success, testID)

			var removed bool
			mustCall(t, d, conn, &removed, "eth_unsubscribe", id)
			if !removed {
				t.Fatalf("\t%s\tTest %d:\tShould unsubscribe.", failed, testID)
			}

			mustCall(t, d, conn, &removed, "eth_unsubscribe", id)
			if removed {
				t.Fatalf("\t%s\tTest %d:\tShould not unsubscribe twice.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould unsubscribe once.", success, testID)
		}
	}
}

func Test_SubscribeOrder(t *testing.T) {
	d := newDispatcher(t, "ethsim")

	var accts []common.Address
	mustCall(t, d, jsonrpc.NewConn(), &accts, "eth_accounts")

	msgs := make(chan []byte, 32)
	conn := jsonrpc.NewPushConn(func(msg []byte) error {
		msgs <- msg
		return nil
	})
	t.Cleanup(conn.Close)

	resp := call(d, conn, "eth_subscribe", "newHeads")
	if resp.Error != nil {
		t.Fatalf("Should subscribe: %s", resp.Error.Message)
	}

	var id string
	json.Unmarshal(resp.Result, &id)

	data, _ := json.Marshal(resp)
	if err := conn.Reply(data); err != nil {
		t.Fatalf("Should reply: %s", err)
	}
	<-msgs

	const blocks = 6

	t.Log("Given the need to push one header per committed block in commit order.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen committing %d blocks with transactions and evm_mine.", testID, blocks)
		{
			var nonce int
			for i := 0; i < blocks; i++ {
				switch i % 2 {
				case 0:
					var hash string
					mustCall(t, d, conn, &hash, "eth_sendTransaction", txObject(accts[0], nonce))
					nonce++
				default:
					var mined string
					mustCall(t, d, conn, &mined, "evm_mine")
				}
			}

			for i := 1; i <= blocks; i++ {
				var n struct {
					Params struct {
						Subscription string `json:"subscription"`
						Result       struct {
							Number string `json:"number"`
						} `json:"result"`
					} `json:"params"`
				}

				select {
				case msg := <-msgs:
					if err := json.Unmarshal(msg, &n); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould decode notification %d: %s", failed, testID, i, err)
					}
				case <-time.After(5 * time.Second):
					t.Fatalf("\t%s\tTest %d:\tShould receive notification %d.", failed, testID, i)
				}

				want := fmt.Sprintf("0x%x", i)
				if n.Params.Subscription != id || n.Params.Result.Number != want {
					t.Fatalf("\t%s\tTest %d:\tShould get block %s next, got %s for %s.", failed, testID, want, n.Params.Result.Number, n.Params.Subscription)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get blocks 0x1 to 0x%x in order.", success, testID, blocks)

			select {
			case msg := <-msgs:
				t.Fatalf("\t%s\tTest %d:\tShould not get extra notifications, got %s.", failed, testID, msg)
			case <-time.After(200 * time.Millisecond):
			}
			t.Logf("\t%s\tTest %d:\tShould get each block exactly once.", success, testID)
		}
	}
}

func Test_Blocks(t *testing.T) {
	t.Log("Given the need to look up blocks, transactions and receipts.")
	{
		d := newDispatcher(t, "ethsim")
		conn := jsonrpc.NewConn()

		testID := 0
		t.Logf("\tTest %d:\tWhen asking for the earliest block.", testID)
		{
			var block struct {
				Number       string        `json:"number"`
				Transactions []common.Hash `json:"transactions"`
			}
			mustCall(t, d, conn, &block, "eth_getBlockByNumber", "earliest", false)

			if block.Number != "0x0" || len(block.Transactions) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould get block 0, got %+v.", failed, testID, block)
			}
			t.Logf("\t%s\tTest %d:\tShould get block 0.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen asking for things that don't exist.", testID)
		{
			for _, resp := range []jsonrpc.Response{
				call(d, conn, "eth_getBlockByNumber", "0x99", false),
				call(d, conn, "eth_getBlockByHash", common.Hash{1}, false),
				call(d, conn, "eth_getTransactionByHash", common.Hash{1}),
				call(d, conn, "eth_getTransactionReceipt", common.Hash{1}),
			} {
				if resp.Error != nil || string(resp.Result) != "null" {
					t.Fatalf("\t%s\tTest %d:\tShould get null, got %s %v.", failed, testID, resp.Result, resp.Error)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get null.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen using an invalid block tag.", testID)
		{
			expectError(t, call(d, conn, "eth_getBlockByNumber", "bogus", false), jsonrpc.CodeInvalidParams, "invalid block tag")
			expectError(t, call(d, conn, "eth_getBalance", common.Address{}, "bogus"), jsonrpc.CodeInvalidParams, "invalid block tag")
			t.Logf("\t%s\tTest %d:\tShould get an invalid block tag error.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transaction is mined.", testID)
		{
			var accts []common.Address
			mustCall(t, d, conn, &accts, "eth_accounts")

			var hash common.Hash
			mustCall(t, d, conn, &hash, "eth_sendTransaction", map[string]any{
				"from":  accts[0],
				"to":    accts[1],
				"value": "0x2a",
			})

			var number string
			mustCall(t, d, conn, &number, "eth_blockNumber")
			if number != "0x1" {
				t.Fatalf("\t%s\tTest %d:\tShould mine block 1, got %s.", failed, testID, number)
			}

			var tx struct {
				Hash        common.Hash    `json:"hash"`
				From        common.Address `json:"from"`
				BlockNumber string         `json:"blockNumber"`
				Value       string         `json:"value"`
			}
			mustCall(t, d, conn, &tx, "eth_getTransactionByHash", hash)
			if tx.Hash != hash || tx.From != accts[0] || tx.BlockNumber != "0x1" || tx.Value != "0x2a" {
				t.Fatalf("\t%s\tTest %d:\tShould get the transaction, got %+v.", failed, testID, tx)
			}
			t.Logf("\t%s\tTest %d:\tShould get the transaction.", success, testID)

			var block struct {
				Transactions []struct {
					Hash common.Hash `json:"hash"`
				} `json:"transactions"`
			}
			mustCall(t, d, conn, &block, "eth_getBlockByNumber", "latest", true)
			if len(block.Transactions) != 1 || block.Transactions[0].Hash != hash {
				t.Fatalf("\t%s\tTest %d:\tShould get the full transactions of the block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould get the full transactions of the block.", success, testID)
		}
	}
}

func Test_Misc(t *testing.T) {
	t.Log("Given the need to serve the auxiliary methods.")
	{
		d := newDispatcher(t, "ethsim")
		conn := jsonrpc.NewConn()

		testID := 0
		t.Logf("\tTest %d:\tWhen asking for the chain parameters.", testID)
		{
			var chainID, version, sha string
			mustCall(t, d, conn, &chainID, "eth_chainId")
			mustCall(t, d, conn, &version, "net_version")
			mustCall(t, d, conn, &sha, "web3_sha3", "0x68656c6c6f20776f726c64")

			if chainID != "0x539" || version != "1337" {
				t.Fatalf("\t%s\tTest %d:\tShould get the chain parameters, got %s %s.", failed, testID, chainID, version)
			}
			if sha != "0x47173285a8d7341e5e972fc677286384f802f8ef42a5ec5f03bbfa254cb01fad" {
				t.Fatalf("\t%s\tTest %d:\tShould hash the data, got %s.", failed, testID, sha)
			}
			t.Logf("\t%s\tTest %d:\tShould get the chain parameters.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transaction misses its sender.", testID)
		{
			expectError(t, call(d, conn, "eth_sendTransaction", map[string]any{"value": 1}), jsonrpc.CodeInvalidParams, "from is a required field")
			t.Logf("\t%s\tTest %d:\tShould get a validation error.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a transaction value exceeds 256 bits.", testID)
		{
			var accts []common.Address
			mustCall(t, d, conn, &accts, "eth_accounts")

			tx := txObject(accts[0], 0)
			tx["value"] = "0x1" + strings.Repeat("0", 64)

			resp := call(d, conn, "eth_sendTransaction", tx)
			if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
				t.Fatalf("\t%s\tTest %d:\tShould reject the value with %d, got %+v.", failed, testID, jsonrpc.CodeInvalidParams, resp.Error)
			}

			var number string
			mustCall(t, d, conn, &number, "eth_blockNumber")
			if number != "0x0" {
				t.Fatalf("\t%s\tTest %d:\tShould not commit a block, got %s.", failed, testID, number)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the value before committing.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen signing a message.", testID)
		{
			var accts []common.Address
			mustCall(t, d, conn, &accts, "eth_accounts")

			var sig string
			mustCall(t, d, conn, &sig, "eth_sign", accts[0], "0x68656c6c6f")

			var recovered common.Address
			mustCall(t, d, conn, &recovered, "personal_ecRecover", "0x68656c6c6f", sig)
			if recovered != accts[0] {
				t.Fatalf("\t%s\tTest %d:\tShould recover the signer, got %s.", failed, testID, recovered)
			}
			t.Logf("\t%s\tTest %d:\tShould recover the signer.", success, testID)
		}
	}
}

// =============================================================================

func newDispatcher(t *testing.T, seed string) *jsonrpc.Dispatcher {
	gen, err := accounts.NewGenerator(seed, "")
	if err != nil {
		t.Fatalf("Should be able to construct a generator: %s", err)
	}

	mgr, err := accounts.New(accounts.Config{Generator: gen})
	if err != nil {
		t.Fatalf("Should be able to construct the account manager: %s", err)
	}

	g := genesis.Default()
	for range 2 {
		addr, err := mgr.Create(nil)
		if err != nil {
			t.Fatalf("Should be able to create an account: %s", err)
		}
		g.Credit(addr, 100)
	}

	store, err := pebble.NewMemory()
	if err != nil {
		t.Fatalf("Should be able to open the store: %s", err)
	}

	heads := events.New[*types.Header]()

	st, err := state.New(state.Config{
		Genesis:  g,
		Store:    store,
		Accounts: mgr,
		Heads:    heads,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	worker.Run(st, nil)

	t.Cleanup(func() {
		heads.Shutdown()
		st.Shutdown()
	})

	api := ethapi.New(ethapi.Config{
		Log:     zap.NewNop().Sugar(),
		State:   st,
		Heads:   heads,
		Version: "test",
	})

	d := jsonrpc.NewDispatcher()
	api.Register(d)

	return d
}

func txObject(from common.Address, nonce int) map[string]any {
	return map[string]any{
		"from":     from,
		"to":       from,
		"gasLimit": 21000,
		"gasPrice": 0,
		"value":    0,
		"nonce":    nonce,
	}
}

func call(d *jsonrpc.Dispatcher, conn *jsonrpc.Conn, method string, params ...any) jsonrpc.Response {
	if params == nil {
		params = []any{}
	}
	raw, _ := json.Marshal(params)

	req := jsonrpc.Request{
		Version: jsonrpc.Version,
		ID:      json.RawMessage("1"),
		Method:  method,
		Params:  raw,
	}

	return d.Call(context.Background(), conn, req)
}

func mustCall(t *testing.T, d *jsonrpc.Dispatcher, conn *jsonrpc.Conn, result any, method string, params ...any) {
	t.Helper()

	resp := call(d, conn, method, params...)
	if resp.Error != nil {
		t.Fatalf("\t%s\tShould be able to call %s: %d %s", failed, method, resp.Error.Code, resp.Error.Message)
	}

	if err := json.Unmarshal(resp.Result, result); err != nil {
		t.Fatalf("\t%s\tShould be able to decode the result of %s: %s", failed, method, err)
	}
}

func expectError(t *testing.T, resp jsonrpc.Response, code int, message string) {
	t.Helper()

	if resp.Error == nil {
		t.Fatalf("\t%s\tShould get error %q, got result %s.", failed, message, resp.Result)
	}

	if resp.Error.Code != code || resp.Error.Message != message {
		t.Fatalf("\t%s\tShould get error %d %q, got %d %q.", failed, code, message, resp.Error.Code, resp.Error.Message)
	}
}
