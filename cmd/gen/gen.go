package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate parcel documentation",
	Long:  `Generate documentation, such as man pages, for the parcel commands`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
