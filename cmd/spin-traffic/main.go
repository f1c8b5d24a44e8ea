package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spintraffic/internal/config"
	"spintraffic/internal/engine/streamaggregator"
)

func main() {
	// --- Command-Line Flag Parsing ---
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML configuration file.")
	host := flag.String("m", "", "Bus host to connect to.")
	port := flag.Int("p", 0, "Bus port to connect to.")
	interval := flag.Int("i", 0, "Window interval in seconds.")
	quiet := flag.Bool("q", false, "Do not print windows to the console.")
	clearScreen := flag.Bool("r", false, "Clear the screen before printing a window.")
	showCSV := flag.Bool("c", false, "Print the full CSV view instead of the simplified one.")
	csvPrefix := flag.String("w", "", "Write every window to <prefix>_<time>.csv.")
	simplifiedPrefix := flag.String("o", "", "Write every simplified window to <prefix>_<time>.txt.")
	flag.Parse()

	log.Println("Starting spin-traffic...")

	// 1. Load configuration; flags override the file only when given.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "m":
			cfg.Bus.Host = *host
		case "p":
			cfg.Bus.Port = *port
		case "i":
			cfg.Window.Interval = fmt.Sprintf("%ds", *interval)
		case "q":
			cfg.Output.Quiet = *quiet
		case "r":
			cfg.Output.ClearScreen = *clearScreen
		case "c":
			cfg.Output.ShowCSV = *showCSV
		case "w":
			cfg.Output.WriteCSV = *csvPrefix
		case "o":
			cfg.Output.WriteSimplified = *simplifiedPrefix
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid options: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Initialize the aggregator
	streamAgg, err := streamaggregator.NewStreamAggregator(cfg)
	if err != nil {
		log.Fatalf("Failed to create stream aggregator: %v", err)
	}

	// 3. Start the aggregator
	if err := streamAgg.Start(); err != nil {
		streamAgg.Stop()
		log.Fatalf("Failed to start stream aggregator: %v", err)
	}

	// 4. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	log.Println("Shutdown signal received, stopping aggregator...")
	streamAgg.Stop()
	log.Println("Shutdown complete.")
}
