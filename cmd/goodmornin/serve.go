package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CarlEnstrom/Goodmornin/internal/audio"
	"github.com/CarlEnstrom/Goodmornin/internal/hal"
	"github.com/CarlEnstrom/Goodmornin/internal/input"
	"github.com/CarlEnstrom/Goodmornin/internal/notify"
	"github.com/CarlEnstrom/Goodmornin/internal/ring"
	"github.com/CarlEnstrom/Goodmornin/internal/storage"
	"github.com/CarlEnstrom/Goodmornin/internal/transport"
	"github.com/CarlEnstrom/Goodmornin/internal/web"
	"github.com/CarlEnstrom/Goodmornin/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the clock: scheduler, audio output and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, stop)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// serve runs until ctx is done. restart cancels ctx; the process then exits
// cleanly and its supervisor starts it again.
func serve(ctx context.Context, restart context.CancelFunc) error {
	d, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer d.closer()
	log := d.logger
	cfg := d.cfg

	if created, err := storage.EnsureDefaultAudio(d.fs, cfg.Audio.DefaultPath); err != nil {
		log.Error("Failed to create default audio asset", zap.Error(err))
	} else if created {
		log.Info("Created default audio asset", zap.String("path", cfg.Audio.DefaultPath))
	}

	// Output stage
	rb := ring.New(cfg.Audio.RingCapacity)
	driver := audio.NewDriver(rb, hal.NewMemPWM(int(cfg.Audio.PWMBits)), hal.NewTickerTimer())
	driver.Start()
	defer driver.Close()

	// Network
	httpClient := transport.NewClient(cfg.Audio.StreamTimeout)
	publisher := transport.NewMQTTPublisher(transport.MQTTConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, log)
	defer publisher.Close()

	queue := notify.NewQueue(transport.NewDispatcher(httpClient, publisher), log, notify.Options{
		Capacity: cfg.Notify.Capacity,
		Timeout:  cfg.Notify.Timeout,
	})
	player := audio.NewPlayer(d.fs, httpClient, rb, driver, log, audio.Options{
		StreamTimeout: cfg.Audio.StreamTimeout,
	})

	engine := d.engine(player, queue)
	engine.Load(ctx)
	engine.EnsureOne(ctx)
	engine.RecomputeAll()

	button := input.NewButton(hal.NewMemGPIO(), engine, log, input.Options{
		Debounce:  cfg.Input.Debounce,
		LongPress: cfg.Input.LongPress,
	})
	w := worker.New(engine, button, player, queue, cfg.Loop.Interval, log)

	loopDone := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(loopDone)
	}()

	srv := web.NewServer(w, d.fs, queue, log, web.Options{
		AdminToken: cfg.AdminToken,
		FSCapacity: cfg.FS.Capacity,
		Restart:    restart,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", cfg.Server.Addr), zap.String("device_id", cfg.Device.ID))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		restart()
		<-loopDone
		return err
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	<-loopDone
	player.Stop()
	queue.WaitIdle()
	log.Info("Server exited")
	return nil
}
