// Command client is the line-oriented CLI described in §6: each line of
// stdin is sent as one request over a fresh connection, tracking the
// transaction id returned by the server across lines.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mdbms/pkg/logging"
	"mdbms/pkg/processor"
	"mdbms/pkg/protocol"
)

var (
	host string
	port int
)

func main() {
	root := &cobra.Command{
		Use:   "mdbms-client",
		Short: "Connect to an mDBMS server",
		RunE:  run,
	}
	root.Flags().StringVarP(&host, "host", "h", "127.0.0.1", "server host")
	root.Flags().IntVarP(&port, "port", "p", 5761, "server port")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := logging.NewCLI()
	if err != nil {
		return fmt.Errorf("client: build logger: %w", err)
	}
	defer logger.Sync()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	txnID := int64(processor.NoActiveTransaction)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "EXIT") {
			return nil
		}

		resp, err := send(addr, protocol.Request{TransactionId: txnID, Query: line})
		if err != nil {
			logger.Error("request failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		txnID = resp.TransactionId
		printResponse(resp)
	}
	return scanner.Err()
}

// send opens a fresh connection, writes the JSON request, half-closes the
// write side, and reads the JSON response to EOF — one connection per
// request/response pair, per the wire protocol.
func send(addr string, req protocol.Request) (protocol.Response, error) {
	var resp protocol.Response

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return resp, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	defer conn.Close()

	encoded, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("client: encode request: %w", err)
	}
	if _, err := conn.Write(encoded); err != nil {
		return resp, fmt.Errorf("client: write request: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}

	body, err := io.ReadAll(conn)
	if err != nil {
		return resp, fmt.Errorf("client: read response: %w", err)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("client: decode response: %w", err)
	}
	return resp, nil
}

func printResponse(resp protocol.Response) {
	if !resp.Success {
		fmt.Printf("ERROR: %s\n", resp.Message)
		return
	}
	fmt.Printf("OK (txn=%d) %s\n", resp.TransactionId, resp.Message)
	for _, row := range resp.Data {
		fmt.Printf("  %s: %v\n", row.Id, row.Columns)
	}
}
