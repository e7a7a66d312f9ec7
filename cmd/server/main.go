// Command server runs the mDBMS TCP listener: one connection per
// request/response pair, per the wire protocol in §6.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mdbms/pkg/catalog"
	"mdbms/pkg/concurrency"
	"mdbms/pkg/config"
	"mdbms/pkg/engine"
	"mdbms/pkg/logging"
	"mdbms/pkg/planner"
	"mdbms/pkg/processor"
	"mdbms/pkg/protocol"
	"mdbms/pkg/recovery"
	"mdbms/pkg/wal"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "mdbms-server",
		Short: "Run the mDBMS server",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewServer()
	if err != nil {
		return fmt.Errorf("server: build logger: %w", err)
	}
	defer logger.Sync()

	eng, err := engine.New(cfg.DataDir, cfg.BufferPoolCapacity)
	if err != nil {
		return fmt.Errorf("server: open engine: %w", err)
	}
	defer eng.Close()

	cat := catalog.New(eng)

	logManager, err := wal.New(cfg.LogPath, eng, logger)
	if err != nil {
		return fmt.Errorf("server: open wal: %w", err)
	}
	defer logManager.Close()
	logManager.SetCheckpointInterval(cfg.CheckpointInterval)

	recoveryManager := recovery.New(logManager)
	ccm := concurrency.New(protocolFromName(cfg.ConcurrencyProtocol))
	optimizer := planner.New(eng)
	proc := processor.New(eng, ccm, logManager, recoveryManager, optimizer, cat, cfg.MaxConcurrentConns, logger)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", cfg.ListenAddr, err)
	}
	defer listener.Close()
	logger.Info("listening", zap.String("addr", cfg.ListenAddr))

	timeout := time.Duration(cfg.ReceiveTimeoutMs) * time.Millisecond
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Error("accept failed", zap.Error(err))
			continue
		}
		go handleConn(conn, proc, timeout, logger)
	}
}

func protocolFromName(name string) concurrency.Protocol {
	switch name {
	case "to", "timestamp-ordering":
		return concurrency.TimestampOrdering
	case "occ", "optimistic":
		return concurrency.OptimisticValidation
	default:
		return concurrency.TwoPhaseLocking
	}
}

// handleConn implements the one-request-per-connection contract: read the
// JSON request until EOF (the client half-closes its write side), execute
// it, write the JSON response, and close.
func handleConn(conn net.Conn, proc *processor.Processor, receiveTimeout time.Duration, logger *zap.Logger) {
	defer conn.Close()

	if receiveTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(receiveTimeout))
	}

	body, err := io.ReadAll(bufio.NewReader(conn))
	if err != nil {
		logger.Warn("read request failed", zap.Error(err))
		return
	}

	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		resp := protocol.NewFailure(processor.NoActiveTransaction, string(body), fmt.Sprintf("%s: %v", "SyntaxError", err))
		writeResponse(conn, resp, logger)
		return
	}

	resp := proc.Execute(context.Background(), req)
	writeResponse(conn, resp, logger)
}

func writeResponse(conn net.Conn, resp protocol.Response, logger *zap.Logger) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		logger.Error("encode response failed", zap.Error(err))
		return
	}
	if _, err := conn.Write(encoded); err != nil {
		logger.Warn("write response failed", zap.Error(err))
	}
}
