package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jkachoura/scara-master/config"
	"github.com/jkachoura/scara-master/internal/transport"
	applog "github.com/jkachoura/scara-master/log"
	"github.com/jkachoura/scara-master/master"
	log "github.com/sirupsen/logrus"
)

func main() {
	iface := flag.String("i", "", "fieldbus interface e.g. eth0")
	iniPath := flag.String("c", "", "optional ini config file (section [master])")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	cfg := config.DefaultMasterConfig(*iface)
	if *iniPath != "" {
		if err := config.LoadINI(*iniPath, &cfg); err != nil {
			fmt.Printf("could not load config %v: %v\n", *iniPath, err)
			os.Exit(1)
		}
	}
	if *verbose {
		cfg.Verbose = true
	}
	if cfg.Interface == "" {
		fmt.Println("no fieldbus interface given, pass -i or set interface= in the config file")
		os.Exit(1)
	}
	applog.SetVerbose(cfg.Verbose)

	// NewSoem(nil) is a deliberately inert adapter until a real SOEM-equivalent
	// binding is wired in (see internal/transport/soem.go).
	bus := transport.NewSoem(nil)
	m := master.New(bus, cfg.Interface, cfg.CycleTime, cfg.Verbose)

	if err := m.Startup(); err != nil {
		log.Errorf("[MASTER] startup failed: %v", err)
		os.Exit(1)
	}
	log.Infof("[MASTER] running on %s, cycle time %s", cfg.Interface, cfg.CycleTime)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("[MASTER] shutdown requested")
	if err := m.Shutdown(); err != nil {
		log.Errorf("[MASTER] shutdown error: %v", err)
		os.Exit(1)
	}
}
