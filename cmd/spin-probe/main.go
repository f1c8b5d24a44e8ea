package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spintraffic/internal/config"
	"spintraffic/internal/model"
	"spintraffic/internal/probe"
	"spintraffic/pkg/pcap"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from (overrides probe.iface).")
	pcapFile := flag.String("pcap", "", "Pcap file to replay instead of a live interface (overrides probe.pcap_file).")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *iface != "" {
		cfg.Probe.Iface = *iface
	}
	if *pcapFile != "" {
		cfg.Probe.PcapFile = *pcapFile
	}

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		runProbe(cfg)
	case "sub":
		runSubscriber(cfg)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// runProbe captures packets and publishes them as traffic messages.
func runProbe(cfg *config.Config) {
	var (
		reader *pcap.Reader
		err    error
	)
	switch {
	case cfg.Probe.PcapFile != "":
		log.Printf("Starting spin-probe in PROBE mode on file: %s", cfg.Probe.PcapFile)
		reader, err = pcap.NewReader(cfg.Probe.PcapFile)
	case cfg.Probe.Iface != "":
		log.Printf("Starting spin-probe in PROBE mode on interface: %s", cfg.Probe.Iface)
		reader, err = pcap.NewLiveReader(cfg.Probe.Iface)
	default:
		log.Println("Error: an interface or a pcap file is required for probe mode.")
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Error opening capture source: %v", err)
	}
	defer reader.Close()

	interval, err := cfg.ProbeReportInterval()
	if err != nil {
		log.Fatalf("Invalid probe configuration: %v", err)
	}
	collector, err := probe.NewCollector(cfg.Probe.LocalNetworks)
	if err != nil {
		log.Fatalf("Invalid probe configuration: %v", err)
	}

	pub, err := probe.NewPublisher(cfg.Bus)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	publish := func() {
		msg := collector.Flush(time.Now())
		if msg == nil {
			return
		}
		if err := pub.Publish(msg); err != nil {
			log.Printf("Failed to publish traffic report: %v", err)
			return
		}
		log.Printf("Published %d flows (%d packets).", len(msg.Result.Flows), msg.Result.TotalCount)
	}

	packets := make(chan *probe.PacketInfo, 1024)
	go reader.ReadPackets(packets)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("Capture started successfully. Publishing traffic to NATS...")
	for {
		select {
		case info, ok := <-packets:
			if !ok {
				publish()
				log.Println("Capture source exhausted, exiting.")
				return
			}
			collector.Add(info)
		case <-ticker.C:
			publish()
		case <-sigChan:
			log.Println("Shutdown signal received, cleaning up...")
			publish()
			return
		}
	}
}

// runSubscriber prints the traffic messages seen on the bus.
func runSubscriber(cfg *config.Config) {
	log.Println("Starting spin-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg.Bus, nil, nil)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(data []byte) {
		records, ok, err := model.DecodeTraffic(data)
		if err != nil {
			log.Printf("Malformed message: %v", err)
			return
		}
		if !ok {
			return
		}
		for _, rec := range records {
			out, _ := json.Marshal(rec)
			log.Printf("Received flow: %s", out)
		}
	}

	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
