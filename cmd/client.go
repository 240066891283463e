package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/parcel/client"
	"github.com/luma/parcel/internal/env"
	"github.com/luma/parcel/protocol"
	"github.com/luma/parcel/storage"
)

// How long a single command may take, zero waits forever
var clientTimeout time.Duration

func init() {
	flags := ClientCmd.PersistentFlags()

	flags.DurationVar(&clientTimeout, "timeout", 0, "Give up on the command after this long")
}

var ClientCmd = &cobra.Command{
	Use:   "client <host> <port> <command> [filename]",
	Short: "Run one put, get or list command against a parcel server",
	Long: `Run one put, get or list command against a parcel server

Usage
	parcel client localhost 7363 put ./cat.png
	parcel client localhost 7363 get cat.png
	parcel client localhost 7363 list

One report line is printed for the command:
	host	COMMAND	[filename]	SUCCESS|FAILURE[: message.]
`,
	Args: cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := ParsePort(args[1])
		if err != nil {
			return err
		}

		command, err := client.ParseVerb(args[2])
		if err != nil {
			return err
		}

		var filename string
		if len(args) == 4 {
			filename = args[3]
		}

		switch {
		case command != protocol.CommandList && filename == "":
			return fmt.Errorf("%s needs a filename", command)
		case command == protocol.CommandList && filename != "":
			return fmt.Errorf("%s does not take a filename", command)
		}

		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		if clientTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, clientTimeout)
			defer cancel()
		}

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() // nolint:errcheck

		codec, err := protocol.NewCodec(conf.CodecConfig())
		if err != nil {
			return err
		}

		downloads, err := storage.NewDiskStore(conf.DownloadDir)
		if err != nil {
			return err
		}
		defer downloads.Close()

		addr := net.JoinHostPort(args[0], args[1])
		out := cmd.OutOrStdout()

		conn := client.New(codec, log.Named("conn"))
		if err := conn.Connect(ctx, addr); err != nil {
			fmt.Fprintln(out, client.Report{Host: addr, Command: command, Filename: filename, Message: err.Error()})
			return err
		}

		defer func() {
			if err := conn.Disconnect(); err != nil {
				log.Debug("Failed to disconnect cleanly", zap.Error(err))
			}
		}()

		log.Debug("Connected", zap.String("host", args[0]), zap.Int("port", port))

		driver := client.NewDriver(client.DriverOptions{
			Conn:              conn,
			Downloads:         downloads,
			Out:               out,
			AllowedExtensions: conf.AllowedExtensions,
			Log:               log.Named("driver"),
		})

		// The report line is printed even when the exchange itself failed.
		report, err := driver.Run(ctx, command, filename)
		if err != nil {
			report.Success = false
			report.Message = err.Error()
		}

		fmt.Fprintln(out, report)
		return err
	},
}
