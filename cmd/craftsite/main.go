package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chataru/craftsite/config"
	"github.com/chataru/craftsite/internal/api"
	"github.com/chataru/craftsite/internal/app"
	"github.com/chataru/craftsite/internal/webserver"
)

var (
	conffile = flag.String("c", "craftsite.yml", "config yaml file")
	initdb   = flag.Bool("initdb", false, "drop and recreate all tables, then exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.NewApplication(cfg)
	if err := application.Init(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database tables recreated")
		return
	}

	srv := webserver.NewWebServer(cfg)
	api.Init(srv, application)

	if err := srv.Start(ctx); err != nil {
		zap.L().Error("web server stopped", zap.Error(err))
		application.Release()
		os.Exit(1)
	}
}
