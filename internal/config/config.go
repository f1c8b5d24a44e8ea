package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// BusConfig holds the connection details of the message bus carrying traffic reports.
type BusConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Subject       string `yaml:"subject"`
	ClientName    string `yaml:"client_name"`
	ReconnectWait string `yaml:"reconnect_wait"`
}

// URL returns the NATS server URL for the configured host and port.
func (b BusConfig) URL() string {
	return "nats://" + net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// WindowConfig controls the reporting window.
type WindowConfig struct {
	Interval    string `yaml:"interval"`
	FlushOnStop bool   `yaml:"flush_on_stop"`
}

// ClickHouseConfig holds the configuration for the ClickHouse writer.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// OutputConfig selects the sinks a finished window is written to.
type OutputConfig struct {
	Quiet           bool             `yaml:"quiet"`
	ClearScreen     bool             `yaml:"clear_screen"`
	ShowCSV         bool             `yaml:"show_csv"`
	WriteCSV        string           `yaml:"write_csv"`        // file prefix, empty disables
	WriteSimplified string           `yaml:"write_simplified"` // file prefix, empty disables
	WriteJSON       string           `yaml:"write_json"`       // file prefix, empty disables
	ClickHouse      ClickHouseConfig `yaml:"clickhouse"`
}

// APIConfig holds the configuration for the HTTP and gRPC endpoints.
type APIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// ProbeConfig holds the configuration for the packet capture publisher.
type ProbeConfig struct {
	Iface          string   `yaml:"iface"`
	PcapFile       string   `yaml:"pcap_file"`
	ReportInterval string   `yaml:"report_interval"`
	LocalNetworks  []string `yaml:"local_networks"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Bus    BusConfig    `yaml:"bus"`
	Window WindowConfig `yaml:"window"`
	Output OutputConfig `yaml:"output"`
	API    APIConfig    `yaml:"api"`
	Probe  ProbeConfig  `yaml:"probe"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Options missing from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset option with its default value.
func (c *Config) ApplyDefaults() {
	if c.Bus.Host == "" {
		c.Bus.Host = "127.0.0.1"
	}
	if c.Bus.Port == 0 {
		c.Bus.Port = 4222
	}
	if c.Bus.Subject == "" {
		c.Bus.Subject = "SPIN.traffic"
	}
	if c.Bus.ClientName == "" {
		c.Bus.ClientName = "spin-traffic"
	}
	if c.Bus.ReconnectWait == "" {
		c.Bus.ReconnectWait = "2s"
	}
	if c.Window.Interval == "" {
		c.Window.Interval = "60s"
	}
	if c.Output.ClickHouse.Host == "" {
		c.Output.ClickHouse.Host = "localhost"
	}
	if c.Output.ClickHouse.Port == 0 {
		c.Output.ClickHouse.Port = 9000
	}
	if c.Output.ClickHouse.Database == "" {
		c.Output.ClickHouse.Database = "default"
	}
	if c.Output.ClickHouse.Username == "" {
		c.Output.ClickHouse.Username = "default"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.GRPCListenAddr == "" {
		c.API.GRPCListenAddr = ":9090"
	}
	if c.Probe.ReportInterval == "" {
		c.Probe.ReportInterval = "1s"
	}
	if c.Probe.LocalNetworks == nil {
		c.Probe.LocalNetworks = []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"}
	}
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
		return fmt.Errorf("%w: bus port %d out of range", ErrInvalidConfig, c.Bus.Port)
	}
	if _, err := c.ReconnectWait(); err != nil {
		return err
	}
	if _, err := c.WindowInterval(); err != nil {
		return err
	}
	if _, err := c.ProbeReportInterval(); err != nil {
		return err
	}
	for _, cidr := range c.Probe.LocalNetworks {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("%w: local network %q: %v", ErrInvalidConfig, cidr, err)
		}
	}
	return nil
}

// WindowInterval returns the parsed reporting window length.
func (c *Config) WindowInterval() (time.Duration, error) {
	return positiveDuration("window interval", c.Window.Interval)
}

// ReconnectWait returns the parsed delay between bus reconnect attempts.
func (c *Config) ReconnectWait() (time.Duration, error) {
	return c.Bus.ReconnectInterval()
}

// ReconnectInterval returns the parsed delay between reconnect attempts.
func (b BusConfig) ReconnectInterval() (time.Duration, error) {
	return positiveDuration("bus reconnect_wait", b.ReconnectWait)
}

// ProbeReportInterval returns the parsed interval at which the probe publishes traffic reports.
func (c *Config) ProbeReportInterval() (time.Duration, error) {
	return positiveDuration("probe report_interval", c.Probe.ReportInterval)
}

func positiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", ErrInvalidConfig, name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive duration", ErrInvalidConfig, name)
	}
	return d, nil
}
