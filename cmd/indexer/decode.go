package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"nftsync/internal/config"
	"nftsync/internal/handlers"
	"nftsync/internal/indexer"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
	"nftsync/internal/storage"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode transactions without persisting them",
		RunE:  runDecode,
	}
	cmd.Flags().String("tx", "", "transaction hashes (comma-separated)")
	cmd.Flags().String("out", "-", "output JSONL path, - for stdout")
	return cmd
}

type decodedTx struct {
	TxHash string                `json:"tx_hash"`
	Events []model.EnhancedEvent `json:"events"`
	Data   *onchain.Data         `json:"data"`
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadDecode(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	hashes, err := indexer.ParseTxHashes(strings.Split(cfg.TxHash, ","))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Decoding never writes, so no store is opened.
	cfg.PGDSN = ""
	cfg.ClickHouseDSN = ""
	a, err := newApp(ctx, cfg.Config, logger, appOptions{needChain: true})
	if err != nil {
		return err
	}
	defer a.close()

	extractor, err := a.extractor()
	if err != nil {
		return err
	}
	logger.Info("decode start", zap.Int("txs", len(hashes)), zap.Int("event_kinds", len(extractor.Catalogue().Entries())))

	registry, err := handlers.NewDefaultRegistry(logger.Named("handlers"))
	if err != nil {
		return err
	}
	decode := handlers.DecodeContext{
		Context: ctx,
		Network: a.network,
		Chain:   handlers.NewTxValueCache(a.chain),
		Logger:  logger.Named("decode"),
	}
	if cfg.DecodeErrors != "" {
		decode.Errors = storage.NewJsonlStorage(cfg.DecodeErrors)
	}

	var out *jsonlWriter
	if cfg.Out == "" || cfg.Out == "-" {
		out = newStdoutWriter()
	} else if out, err = newJSONLWriter(cfg.Out, false); err != nil {
		return err
	}
	defer out.Close()

	for _, hash := range hashes {
		evs, err := extractor.FromTx(ctx, hash)
		if err != nil {
			return err
		}
		data := onchain.New()
		if err := registry.Dispatch(decode, evs, data); err != nil {
			return fmt.Errorf("decode %s: %w", hash.Hex(), err)
		}
		if err := out.Write(decodedTx{TxHash: hash.Hex(), Events: evs, Data: data}); err != nil {
			return err
		}
		logger.Info("transaction decoded", append(data.LogFields(), zap.String("tx_hash", hash.Hex()))...)
	}
	return nil
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return &jsonlWriter{file: file, writer: bufio.NewWriter(file)}, nil
}

// newStdoutWriter writes to stdout; Close only flushes.
func newStdoutWriter() *jsonlWriter {
	return &jsonlWriter{writer: bufio.NewWriter(os.Stdout)}
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := sonnet.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		if w.file != nil {
			w.file.Close()
		}
		return err
	}
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
