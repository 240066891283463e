package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/luma/parcel/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "parcel",
	Short: "Store and fetch files over a length-prefixed TCP protocol",
	Long: `Parcel stores and fetches files over a length-prefixed TCP protocol.

Run a server with "parcel serve <port>" and talk to it with
"parcel client <host> <port> put|get|list [filename]".`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(ServeCmd, ClientCmd, VersionCmd, gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ParsePort accepts TCP ports from 1 to 65535.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q, it must be a number between 1 and 65535", s)
	}

	return port, nil
}
