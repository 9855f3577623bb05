// Package main runs feed cache commands against a configured backend.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	feedcachecmd "github.com/louisbranch/feedcache/internal/cmd/feedcache"
	"github.com/louisbranch/feedcache/internal/platform/config"
)

func main() {
	cfg, args, err := feedcachecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if len(args) != 1 {
		config.Exitf("usage: feedcache [flags] <show|insert|clear>")
	}

	log.SetPrefix("[FEEDCACHE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := feedcachecmd.Run(ctx, cfg, args[0], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("run %s: %v", args[0], err)
	}
}
