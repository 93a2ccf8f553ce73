// Package main starts the biometric daemon process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	biomgatedcmd "github.com/louisbranch/biomgate/internal/cmd/biomgated"
	"github.com/louisbranch/biomgate/internal/platform/config"
)

func main() {
	cfg, err := biomgatedcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[BIOMGATED] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := biomgatedcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
