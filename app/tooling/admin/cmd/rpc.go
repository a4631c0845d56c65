package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ardanlabs/ethsim/foundation/jsonrpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/cobra"
)

var (
	from  string
	to    string
	value uint64
	pass  string
)

// Client performs JSON-RPC calls against a node over HTTP.
type Client struct {
	URL  string
	HTTP *http.Client
	id   int
}

// Call invokes the method and decodes the result into result. An error
// object in the response is returned as a *jsonrpc.Error.
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	if params == nil {
		params = []any{}
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}

	c.id++
	req := jsonrpc.Request{
		Version: jsonrpc.Version,
		ID:      json.RawMessage(fmt.Sprint(c.id)),
		Method:  method,
		Params:  rawParams,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, payload)
	}

	var rpcResp jsonrpc.Response
	if err := json.Unmarshal(payload, &rpcResp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result == nil {
		return nil
	}

	return json.Unmarshal(rpcResp.Result, result)
}

// =============================================================================

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the balance of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid address %q", args[0])
		}

		client := newClient()

		var balance hexutil.Big
		if err := client.Call(cmd.Context(), &balance, "eth_getBalance", common.HexToAddress(args[0]), "latest"); err != nil {
			return err
		}

		fmt.Printf("Account: %s  Balance: %s wei\n", common.HexToAddress(args[0]), balance.ToInt())
		return nil
	},
}

// sendCmd submits a value transfer signed by an account the node manages.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a value transfer from a node account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(from) || !common.IsHexAddress(to) {
			return fmt.Errorf("invalid from %q or to %q address", from, to)
		}

		wei := new(big.Int).Mul(new(big.Int).SetUint64(value), big.NewInt(params.GWei))

		tx := map[string]any{
			"from":  common.HexToAddress(from),
			"to":    common.HexToAddress(to),
			"value": (*hexutil.Big)(wei),
		}

		client := newClient()

		var hash common.Hash
		var err error
		switch {
		case cmd.Flags().Changed("passphrase"):
			err = client.Call(cmd.Context(), &hash, "personal_sendTransaction", tx, pass)
		default:
			err = client.Call(cmd.Context(), &hash, "eth_sendTransaction", tx)
		}
		if err != nil {
			return err
		}

		fmt.Println(hash.Hex())
		return nil
	},
}

var receiptCmd = &cobra.Command{
	Use:   "receipt <hash>",
	Short: "Print the receipt of a mined transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var receipt json.RawMessage
		if err := client.Call(cmd.Context(), &receipt, "eth_getTransactionReceipt", common.HexToHash(args[0])); err != nil {
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, receipt, "", "  "); err != nil {
			return err
		}

		fmt.Println(out.String())
		return nil
	},
}

func newClient() *Client {
	return &Client{
		URL:  url,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

func init() {
	rootCmd.AddCommand(balanceCmd)

	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&from, "from", "f", "", "Account sending the value.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the value.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send in gwei.")
	sendCmd.Flags().StringVarP(&pass, "passphrase", "w", "", "Passphrase of a locked sender.")

	rootCmd.AddCommand(receiptCmd)
}
