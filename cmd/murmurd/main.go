package main

import (
	"os"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"murmur/internal/assistant"
	"murmur/internal/audio"
	"murmur/internal/avatar"
	"murmur/internal/botapi"
	"murmur/internal/capture"
	"murmur/internal/ipc"
	"murmur/internal/notify"
	"murmur/internal/pipeline"
	"murmur/internal/playback"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	apiURL := cli.StringP("api", "a", "http://127.0.0.1:8000/api", "Backend API base URL")
	duck := cli.Bool("duck", true, "Fade other audio streams during playback")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)

	if err := capture.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer capture.Terminate()

	log.Debug("Loaded recorder")

	client := botapi.NewClient(*apiURL)
	ctrl := capture.NewController(capture.DefaultConfig(), capture.NewPortAudioSource())
	runner := pipeline.NewRunner(client, client, client)
	player := playback.NewPlayer()
	face := avatar.New(os.Stdout)

	opts := []assistant.Option{assistant.WithChirp(notify.Chirp)}
	if *duck {
		opts = append(opts, assistant.WithDucker(audio.NewDucker([]string{"murmur"}, 20)))
	}

	asst := assistant.New(ctrl, runner, assistant.NewPlayerOutput(player), face, opts...)

	log.Info("Boot up - successful", "api", *apiURL)

	if err := ipc.StartServer(func(msg ipc.ControlMessage) {
		switch msg.Cmd {
		case "trigger":
			asst.Trigger()
		case "stop":
			asst.Stop()
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
		}
	}); err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	select {}
}
