package config

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variable binding.
	// Uses HYDRANET prefix: HYDRANET_DNS_SERVERS -> dns.servers
	v.SetEnvPrefix("HYDRANET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New("failed to read config file: " + err.Error())
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("dns.servers", []string{})
	v.SetDefault("dns.timeout", "2s")
	v.SetDefault("dns.max_retries", 2)
	v.SetDefault("dns.sequential", false)

	v.SetDefault("ntp.server", "pool.ntp.org")
	v.SetDefault("ntp.timeout", "2s")

	v.SetDefault("tcp.accept_threads", "auto")
	v.SetDefault("tcp.max_connections_per_ip", 0)
	v.SetDefault("tcp.connect_timeout", "5s")
	v.SetDefault("tcp.write_timeout", "5s")
	v.SetDefault("tcp.direct_writes", false)

	v.SetDefault("tls.insecure_skip_verify", false)

	v.SetDefault("imap.read_timeout", "30s")
	v.SetDefault("imap.write_timeout", "30s")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadDNSConfig(v, cfg)
	loadNTPConfig(v, cfg)
	loadTCPConfig(v, cfg)
	loadTLSConfig(v, cfg)
	loadIMAPConfig(v, cfg)
	loadLoggingConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDNSConfig(v *viper.Viper, cfg *Config) {
	// Handle comma-separated strings from env: GetStringSlice splits an env
	// value on whitespace only, so each element is split on commas too.
	var servers []string
	for _, s := range v.GetStringSlice("dns.servers") {
		servers = append(servers, strings.Split(s, ",")...)
	}
	cfg.DNS.Servers = parseServerList(servers)
	cfg.DNS.Timeout = v.GetString("dns.timeout")
	cfg.DNS.MaxRetries = v.GetInt("dns.max_retries")
	cfg.DNS.Sequential = v.GetBool("dns.sequential")
}

func loadNTPConfig(v *viper.Viper, cfg *Config) {
	cfg.NTP.Server = v.GetString("ntp.server")
	cfg.NTP.Timeout = v.GetString("ntp.timeout")
}

func loadTCPConfig(v *viper.Viper, cfg *Config) {
	cfg.TCP.AcceptThreadsRaw = v.GetString("tcp.accept_threads")
	cfg.TCP.AcceptThreads = parseWorkers(cfg.TCP.AcceptThreadsRaw)
	cfg.TCP.MaxConnectionsPerIP = v.GetInt("tcp.max_connections_per_ip")
	cfg.TCP.ConnectTimeout = v.GetString("tcp.connect_timeout")
	cfg.TCP.WriteTimeout = v.GetString("tcp.write_timeout")
	cfg.TCP.DirectWrites = v.GetBool("tcp.direct_writes")
}

func loadTLSConfig(v *viper.Viper, cfg *Config) {
	cfg.TLS.InsecureSkipVerify = v.GetBool("tls.insecure_skip_verify")
}

func loadIMAPConfig(v *viper.Viper, cfg *Config) {
	cfg.IMAP.ReadTimeout = v.GetString("imap.read_timeout")
	cfg.IMAP.WriteTimeout = v.GetString("imap.write_timeout")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

// parseWorkers converts a worker/thread-count string to a WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// parseServerList cleans up a list of server addresses.
func parseServerList(servers []string) []string {
	result := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

// normalizeConfig validates and fills in conservative defaults.
func normalizeConfig(cfg *Config) error {
	if cfg.DNS.MaxRetries < 0 {
		return errors.New("dns.max_retries must be >= 0")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}
	if cfg.TCP.MaxConnectionsPerIP < 0 {
		return errors.New("tcp.max_connections_per_ip must be >= 0")
	}
	return nil
}
