package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/parcel/internal/env"
	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/server"
	"github.com/luma/parcel/storage"
	"github.com/luma/parcel/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on, empty disables the http server
	httpPort string

	// The number of listening sockets sharing the port
	numListeners int

	reuseport bool
)

func init() {
	flags := ServeCmd.PersistentFlags()

	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.StringVar(&httpPort, "http-port", "", "The port to listen to HTTP requests on, disabled when empty")
	flags.IntVar(&numListeners, "listeners", 1, "The number of listening sockets sharing the port")
	flags.BoolVar(&reuseport, "reuseport", false, "Set SO_REUSEPORT on the listening sockets")
}

var ServeCmd = &cobra.Command{
	Use:   "serve <port>",
	Short: "Start up the parcel file server",
	Long: `Start up the parcel file server

Usage
	parcel serve 7363

The server is configured through PARCEL_* environment variables, which may
also be placed in a .env.local file.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		port, err := ParsePort(args[0])
		if err != nil {
			return err
		}

		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint:errcheck

		if conf.MaxConns > 1 {
			fileLimit, err := setFileLimit()
			if err != nil {
				return err
			}

			log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))
		}

		codec, err := protocol.NewCodec(conf.CodecConfig())
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(conf, log.Named("storage"))
		if err != nil {
			return err
		}

		defer func() {
			if closeErr := closeStore(); closeErr != nil {
				log.Error("Failed to close the store", zap.Error(closeErr))
				err = multierr.Append(err, closeErr)
			}
		}()

		var s *http.Server
		if httpPort != "" {
			s = &http.Server{
				Addr:    net.JoinHostPort(host, httpPort),
				Handler: newRouter(conf.DebugHTTP, store, log.Named("http")),
			}

			// Initializing the server in a goroutine so that
			// it won't block the graceful shutdown handling below
			go func() {
				if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Http server errored", zap.Error(err))
				}
			}()
		}

		tcp := transport.NewTCP(transport.Options{
			Host:         host,
			Port:         port,
			Reuseport:    reuseport,
			NumListeners: numListeners,
			MaxConns:     conf.MaxConns,
			IdleTimeout:  conf.IdleTimeout,
			WriteTimeout: conf.WriteTimeout,
			Codec:        codec,
			Handler: server.NewDispatcher(server.Options{
				Store:             store,
				AllowEmptyPut:     conf.AllowEmptyPut,
				AllowedExtensions: conf.AllowedExtensions,
				Log:               log.Named("dispatcher"),
			}),
			Log: log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		if s != nil {
			// The context is used to inform the server it has 5 seconds to finish
			// the request it is currently handling
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s.SetKeepAlivesEnabled(false)

			if err := s.Shutdown(shutdownCtx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
			}
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

// openStore opens the configured store. The returned func closes it, first
// writing the memory store's snapshot when one is configured.
func openStore(conf *env.Config, log *zap.Logger) (storage.Store, func() error, error) {
	if conf.Storage == env.StorageDisk {
		store, err := storage.NewDiskStore(conf.StorageDir)
		if err != nil {
			return nil, nil, err
		}

		log.Info("Storing files on disk", zap.String("dir", store.Dir()))
		return store, store.Close, nil
	}

	store := storage.NewInmemoryStore()
	if conf.Snapshot == "" {
		log.Info("Storing files in memory")
		return store, store.Close, nil
	}

	snapshot, err := os.ReadFile(conf.Snapshot)
	switch {
	case err == nil:
		if err := store.Restore(snapshot); err != nil {
			return nil, nil, fmt.Errorf("restore snapshot %s: %w", conf.Snapshot, err)
		}
		log.Info("Restored snapshot", zap.String("snapshot", conf.Snapshot))

	case errors.Is(err, os.ErrNotExist):
		log.Info("No snapshot to restore yet", zap.String("snapshot", conf.Snapshot))

	default:
		return nil, nil, err
	}

	closeStore := func() error {
		backup, err := store.Backup()
		if err == nil {
			err = os.WriteFile(conf.Snapshot, backup, 0640)
		}

		if err == nil {
			log.Info("Wrote snapshot", zap.String("snapshot", conf.Snapshot))
		}

		return multierr.Append(err, store.Close())
	}

	return store, closeStore, nil
}

func newRouter(debugHTTP bool, store storage.Store, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, in
	// RFC3339 UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	// Ping test
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/files", func(c *gin.Context) {
		names, err := store.List(c.Request.Context())
		if err != nil {
			log.Error("Failed to list files", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list files"})
			return
		}

		if names == nil {
			names = []string{}
		}

		c.JSON(http.StatusOK, gin.H{"files": names})
	})

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
