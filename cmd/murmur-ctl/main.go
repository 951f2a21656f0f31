package main

import (
	"fmt"
	"os"

	"murmur/internal/ipc"
)

func main() {
	cmd := "trigger"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := ipc.SendCommand(cmd); err != nil {
		fmt.Println("murmurd not running:", err)
		os.Exit(1)
	}
}
