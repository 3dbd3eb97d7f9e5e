// Package config provides layered configuration loading for hydranet using
// Viper. Configuration is loaded from an optional YAML file with automatic
// environment variable binding.
//
// Environment variables use the HYDRANET prefix and underscore-separated
// keys:
//   - HYDRANET_DNS_SERVERS -> dns.servers (comma-separated)
//   - HYDRANET_DNS_TIMEOUT -> dns.timeout
//   - HYDRANET_TCP_ACCEPT_THREADS -> tcp.accept_threads
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how a worker/accept-thread count is determined.
type WorkersMode int

const (
	// WorkersAuto derives the count from runtime.GOMAXPROCS.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific count.
	WorkersFixed
)

// WorkerSetting is a "auto" or fixed-N worker/thread count.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// DNSConfig contains dnsclient.Client defaults.
type DNSConfig struct {
	Servers    []string `yaml:"servers"     mapstructure:"servers"     json:"servers"`
	Timeout    string   `yaml:"timeout"     mapstructure:"timeout"     json:"timeout"`
	MaxRetries int      `yaml:"max_retries" mapstructure:"max_retries" json:"max_retries"`
	Sequential bool     `yaml:"sequential"  mapstructure:"sequential"  json:"sequential"`
}

// NTPConfig contains ntp.Client/ntp.Server defaults.
type NTPConfig struct {
	Server  string `yaml:"server"  mapstructure:"server"  json:"server"`
	Timeout string `yaml:"timeout" mapstructure:"timeout" json:"timeout"`
}

// TCPConfig contains tcpnet.Client/tcpnet.Server defaults.
type TCPConfig struct {
	AcceptThreadsRaw    string        `yaml:"accept_threads"         mapstructure:"accept_threads"`
	AcceptThreads       WorkerSetting `yaml:"-"                      mapstructure:"-"`
	MaxConnectionsPerIP int           `yaml:"max_connections_per_ip" mapstructure:"max_connections_per_ip" json:"max_connections_per_ip"`
	ConnectTimeout      string        `yaml:"connect_timeout"        mapstructure:"connect_timeout"        json:"connect_timeout"`
	WriteTimeout        string        `yaml:"write_timeout"          mapstructure:"write_timeout"          json:"write_timeout"`
	DirectWrites        bool          `yaml:"direct_writes"          mapstructure:"direct_writes"          json:"direct_writes"`
}

// TLSConfig contains tlsnet.Client defaults.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// IMAPConfig contains imapclient.Client defaults.
type IMAPConfig struct {
	ReadTimeout  string `yaml:"read_timeout"  mapstructure:"read_timeout"  json:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
}

// LoggingConfig contains internal/logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// Config is the root configuration structure covering every hydranet
// component's tunable defaults.
type Config struct {
	DNS     DNSConfig     `yaml:"dns"     mapstructure:"dns"`
	NTP     NTPConfig     `yaml:"ntp"     mapstructure:"ntp"`
	TCP     TCPConfig     `yaml:"tcp"     mapstructure:"tcp"`
	TLS     TLSConfig     `yaml:"tls"     mapstructure:"tls"`
	IMAP    IMAPConfig    `yaml:"imap"    mapstructure:"imap"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("HYDRANET_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from an optional YAML file with environment
// variable overrides. This is the main entry point for loading
// configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (HYDRANET_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
