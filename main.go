package main

import (
	"github.com/luma/parcel/cmd"
)

func main() {
	cmd.Execute()
}
