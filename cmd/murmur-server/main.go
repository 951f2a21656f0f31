package main

import (
	"os"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"murmur/internal/proxy"
	"murmur/internal/server"
	"murmur/internal/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	addr := cli.StringP("addr", "a", ":8000", "Listen address")
	socksAddr := cli.StringP("proxy", "p", "", "Socks proxy address for API egress")
	whisperModel := cli.StringP("whisper", "w", "", "Path to a whisper.cpp model for local transcription")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Error("OPENAI_API_KEY not set")
		os.Exit(1)
	}

	log.Debug("Loaded API Key")

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if *socksAddr != "" {
		httpClient, err := proxy.NewSocksClient(*socksAddr)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", *socksAddr, "err", err)
			os.Exit(1)
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(httpClient))
		log.Debug("Loaded proxy")
	}

	client := openai.NewClient(clientOpts...)

	var local *stt.Transcriber
	if *whisperModel != "" {
		var err error
		local, err = stt.NewTranscriber(*whisperModel)
		if err != nil {
			log.Error("Failed to init whisper", "err", err)
			os.Exit(1)
		}
		defer local.Close()
		log.Info("Local transcription enabled", "model", *whisperModel)
	}

	srv := server.New(server.NewOpenAIEngine(client, local), apiKey)

	log.Info("Boot up - successful", "addr", *addr)

	if err := srv.Listen(*addr); err != nil {
		log.Error("Server stopped", "err", err)
		os.Exit(1)
	}
}
