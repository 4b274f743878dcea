package stream_test

import (
	"context"
	"os"

	"streamcore/config"
	"streamcore/fetch"
	"streamcore/logger"
	"streamcore/parser"
	"streamcore/stream"

	"go.uber.org/zap"
)

// Example shows the full path from manifest text to a continuous
// decrypted byte stream, configured from the environment.
func Example() {
	logger.Init(config.Env.LogLevel)
	config.LoadEnv()

	playlist := []byte(`#EXTM3U
#EXT-X-TARGETDURATION:4
#EXTINF:4.000,
seg0.ts
#EXTINF:4.000,
seg1.ts
#EXT-X-ENDLIST
`)
	manifest, err := parser.ParseM3U8Manifest(playlist, "https://cdn.example.com/v/index.m3u8")
	if err != nil {
		zap.S().Fatalf("failed to parse playlist: %v", err)
	}

	cfg := config.ProcessConfig()
	assembler := stream.NewAssembler(manifest, fetch.NewHTTPFetcher(cfg), cfg)
	defer assembler.Close()

	if _, err := assembler.WriteTo(context.Background(), os.Stdout); err != nil {
		zap.S().Fatalf("stream failed: %v", err)
	}
}
