package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	slcan "github.com/samsamfire/goslcan"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

var DEFAULT_CONFIG_PATH = "slcand.ini"

func main() {
	log.SetLevel(log.DebugLevel)
	// Command line arguments
	configPath := flag.String("c", DEFAULT_CONFIG_PATH, "bridge configuration file (ini)")
	virtualAddress := flag.String("v", "", "use a virtual TCP transport instead of the serial port e.g. localhost:18000")
	lang := flag.String("lang", "", "serial driver language")
	flag.Parse()

	config, err := slcan.LoadBridgeConfig(*configPath)
	if err != nil {
		panic(err)
	}

	registrar := slcan.NewSocketcanRegistrar(config.Interfaces)
	registry := slcan.NewRegistry(config.Slcan, registrar)

	var channel *slcan.Channel
	if *virtualAddress != "" {
		transport := slcan.NewVirtualTransport(*virtualAddress)
		if err := transport.Connect(); err != nil {
			panic(err)
		}
		channel, err = registry.Open(transport)
		if err != nil {
			panic(err)
		}
		transport.SetOnHangup(func() { registry.Close(transport) })
		transport.Attach(channel)
		defer transport.Detach()
	} else {
		transport, err := slcan.NewSerialTransport(config.Serial)
		if err != nil {
			panic(err)
		}
		if *lang != "" {
			tag, err := language.Parse(*lang)
			if err != nil {
				panic(err)
			}
			transport.Localize(tag)
		}
		channel, err = registry.Open(transport)
		if err != nil {
			panic(err)
		}
		transport.SetOnHangup(func() { registry.Close(transport) })
		if err := transport.Open(channel); err != nil {
			panic(err)
		}
		defer transport.Close()
	}

	// Bring every endpoint up
	for addr := 0; addr < channel.MuxCount(); addr++ {
		if err := channel.OpenEndpoint(addr); err != nil {
			panic(err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("[MAIN] shutting down")
	registry.Shutdown()
}
