package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/alarm"
	"github.com/CarlEnstrom/Goodmornin/internal/config"
	"github.com/CarlEnstrom/Goodmornin/internal/logger"
	"github.com/CarlEnstrom/Goodmornin/internal/model"
	"github.com/CarlEnstrom/Goodmornin/internal/storage"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "goodmornin",
	Short: "Networked alarm clock",
	Long: `Runs the alarm scheduler, audio output and HTTP API of a Goodmornin
clock, and manages its stored alarms.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file")
}

// device holds what every command needs: config, logger, device filesystem
// and the slot store.
type device struct {
	cfg    *config.Config
	logger *zap.Logger
	loc    *time.Location
	fs     afero.Fs
	store  *storage.SlotStore
	closer func()
}

func openDevice(ctx context.Context) (*device, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "goodmornin")
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Device.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Device.Timezone, err)
	}

	var fs afero.Fs
	if cfg.FS.Root == "" {
		fs = afero.NewMemMapFs()
	} else {
		if err := os.MkdirAll(cfg.FS.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create fs root: %w", err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), cfg.FS.Root)
	}

	d := &device{cfg: cfg, logger: log, loc: loc, fs: fs, closer: func() { log.Sync() }}

	var kv storage.KV
	switch cfg.Storage.Backend {
	case "redis":
		client := storage.NewRedisClient(storage.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		rkv := storage.NewRedisKV(client, "goodmornin:"+cfg.Device.ID+":")
		if err := rkv.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		kv = rkv
		d.closer = func() {
			rkv.Close()
			log.Sync()
		}
	case "file", "":
		fkv := storage.NewFileKV(afero.NewOsFs(), cfg.Storage.FilePath)
		if err := fkv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load storage: %w", err)
		}
		kv = fkv
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	d.store = storage.NewSlotStore(kv, log)
	return d, nil
}

func (d *device) idSeed() uint32 {
	h := fnv.New32a()
	h.Write([]byte(d.cfg.Device.ID))
	return h.Sum32()
}

func (d *device) engine(player alarm.Player, notifier alarm.Notifier) *alarm.Engine {
	return alarm.NewEngine(alarm.Options{
		DeviceID:         d.cfg.Device.ID,
		Location:         d.loc,
		DefaultAudioPath: d.cfg.Audio.DefaultPath,
		IDSeed:           d.idSeed(),
	}, player, notifier, d.store, d.logger)
}

// offline stands in for the audio player and notification queue in
// commands that only touch stored definitions.
type offline struct{}

func (offline) PlayAlarm(context.Context, model.AlarmDefinition, string) error { return nil }
func (offline) Stop()                                                          {}
func (offline) IsPlaying() bool                                                { return false }
func (offline) Enqueue(string, model.Payload) bool                             { return true }
