package main

import (
	"os"

	capsulecmder "github.com/papercomputeco/capsule/cmd/capsule"
)

func main() {
	cmd := capsulecmder.NewCapsuleCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
