package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gotorrent/download"
	"gotorrent/torrent"
)

// TorrentDir is the directory downloaded files are written to when -o is
// not given.
var TorrentDir = os.Getenv("TORRENT_DIR")

func init() {
	if TorrentDir == "" {
		TorrentDir = "./tinytorrentDownloads"
	}
}

// clientID returns '-', the id 'GT' followed by a version number, '-',
// and 12 random bytes, per the conventional Azureus-style peer id.
func clientID() ([20]byte, error) {
	id := [20]byte{'-', 'G', 'T', '0', '0', '0', '1', '-'}
	_, err := rand.Read(id[8:])
	return id, err
}

func main() {
	const (
		torrentDescription = "Required: path of the torrent file."
		outDescription     = "Optional: path of the output file.\nIf not set, the file is written to TORRENT_DIR (or ./tinytorrentDownloads) under the name recorded in the torrent."
	)

	var torrentPath string
	var outPath string
	var port int64
	var chokeTimeout time.Duration
	var verbose bool

	flag.StringVar(&torrentPath, "f", "", torrentDescription)
	flag.StringVar(&torrentPath, "file", "", torrentDescription)
	flag.StringVar(&outPath, "o", "", outDescription)
	flag.StringVar(&outPath, "output", "", outDescription)
	flag.Int64Var(&port, "port", download.DefaultListenPort, "port advertised to trackers")
	flag.DurationVar(&chokeTimeout, "choke-timeout", download.DefaultChokeTimeout, "how long to wait to be unchoked before giving up on a chunk")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()

	if torrentPath == "" {
		fmt.Fprintln(os.Stderr, "tinytorrent: -f/-file is required")
		os.Exit(2)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(torrentPath, outPath, port, chokeTimeout, logger); err != nil {
		logger.Error("download failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(torrentPath, outPath string, port int64, chokeTimeout time.Duration, logger *slog.Logger) error {
	raw, err := os.ReadFile(torrentPath)
	if err != nil {
		return fmt.Errorf("read torrent file: %w", err)
	}

	meta, err := torrent.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse torrent file: %w", err)
	}

	id, err := clientID()
	if err != nil {
		return fmt.Errorf("generate client id: %w", err)
	}

	if outPath == "" {
		if err := os.MkdirAll(TorrentDir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create download dir: %w", err)
		}
		outPath = filepath.Join(TorrentDir, meta.Info.Name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting download",
		slog.String("name", meta.Info.Name),
		slog.Int("pieces", meta.NumPieces()),
		slog.Int64("bytes", meta.BytesToDownload()),
	)

	orch := download.New(logger, meta,
		download.WithListenPort(port),
		download.WithChokeTimeout(chokeTimeout),
		download.WithClientID(string(id[:])),
	)

	content, err := orch.Download(ctx)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	if err := os.WriteFile(outPath, content, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	logger.Info("download complete", slog.String("path", outPath))
	return nil
}
