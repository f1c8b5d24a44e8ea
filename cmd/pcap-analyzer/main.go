package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"spintraffic/internal/config"
	"spintraffic/internal/engine/flowtable"
	"spintraffic/internal/engine/manager"
	"spintraffic/internal/engine/replay"
	"spintraffic/internal/factory"
	"spintraffic/internal/metrics"
	"spintraffic/internal/probe"
	"spintraffic/internal/report"
	"spintraffic/pkg/pcap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() < 1 {
		fmt.Println("Usage: pcap-analyzer [-config path] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	windowInterval, _ := cfg.WindowInterval()
	reportInterval, _ := cfg.ProbeReportInterval()

	// 3. Initialize modules
	m := metrics.New()
	table := flowtable.New()
	reporter := report.NewReporter(factory.Create(cfg), m)
	mgr, err := manager.NewManager(cfg, table, reporter)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}
	collector, err := probe.NewCollector(cfg.Probe.LocalNetworks)
	if err != nil {
		log.Fatalf("Failed to create collector: %v", err)
	}

	pcapReader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer pcapReader.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	// 4. Replay the capture through the pipeline
	packets := make(chan *probe.PacketInfo, 1024)
	go pcapReader.ReadPackets(packets)

	replayer := replay.NewReplayer(collector, probe.TrafficHandler(table, m), mgr, reportInterval, windowInterval)
	windows := replayer.Run(packets)
	log.Printf("Finished reading all packets from pcap file, %d windows reported.", windows)
}
