package common

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is used when an endpoint or a registration carries no port.
const DefaultPort = 5000

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of an instance.
type ServerConfig struct {
	// HTTP api settings
	Endpoint    string
	AdvertiseIP string

	// Identity and storage
	DataDir       string
	PCID          string
	FlushInterval time.Duration

	// Discovery
	Discovery    string
	ScanInterval time.Duration
	ProbeTimeout time.Duration
	ScanWorkers  int
	Targets      []string
	ScanCIDRs    []string
	MaxTargets   int
	MDNSService  string

	// Election
	RegisterTimeout time.Duration

	// Synchronization
	AutoSyncInterval time.Duration
	// Serializer used by the peer client (json or msgpack)
	Serializer string

	// Logging configuration
	LogLevel string
}

// ListenHost returns the host part of the endpoint.
func (c *ServerConfig) ListenHost() string {
	host, _, err := net.SplitHostPort(c.Endpoint)
	if err != nil {
		return c.Endpoint
	}
	return host
}

// Port returns the port of the endpoint, DefaultPort if it has none.
func (c *ServerConfig) Port() int {
	_, port, err := net.SplitHostPort(c.Endpoint)
	if err != nil {
		return DefaultPort
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 {
		return DefaultPort
	}
	return n
}

// Validate checks the configuration for values that can not work.
func (c *ServerConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Endpoint); err != nil {
		return fmt.Errorf("invalid endpoint %q (expected host:port): %w", c.Endpoint, err)
	}
	if c.AdvertiseIP != "" && net.ParseIP(c.AdvertiseIP).To4() == nil {
		return fmt.Errorf("invalid advertise ip %q (expected IPv4)", c.AdvertiseIP)
	}
	if c.ScanWorkers < 0 || c.MaxTargets < 0 {
		return fmt.Errorf("scan workers and max targets must not be negative")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orDefault := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}

	// HTTP settings
	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)
	addField("Advertise IP", orDefault(c.AdvertiseIP, "(auto)"))

	// Identity and storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("PC ID", orDefault(c.PCID, "(from data dir)"))
	addField("Flush Interval", c.FlushInterval.String())

	// Discovery
	addSection("Discovery")
	addField("Mode", c.Discovery)
	if c.Discovery == "mdns" {
		addField("Service", c.MDNSService)
	} else {
		addField("Scan Interval", c.ScanInterval.String())
		addField("Probe Timeout", c.ProbeTimeout.String())
		addField("Workers", strconv.Itoa(c.ScanWorkers))
		addField("Max Targets", strconv.Itoa(c.MaxTargets))
		addField("Targets", orDefault(strings.Join(c.Targets, ", "), "-"))
		addField("CIDRs", orDefault(strings.Join(c.ScanCIDRs, ", "), "(local /24)"))
		addField("Register Timeout", c.RegisterTimeout.String())
	}

	// Synchronization
	addSection("Synchronization")
	if c.AutoSyncInterval > 0 {
		addField("Auto Sync", c.AutoSyncInterval.String())
	} else {
		addField("Auto Sync", "disabled")
	}
	addField("Serializer", orDefault(c.Serializer, "json"))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	// Endpoint is the base URL of the instance used by the CLI
	Endpoint      string
	TimeoutSecond int
	RetryCount    int
	Serializer    string
}

// Timeout returns the request timeout.
func (c *ClientConfig) Timeout() time.Duration {
	if c.TimeoutSecond <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", c.Timeout().String())
	addField("Retry Count", strconv.Itoa(max(1, c.RetryCount)))
	addField("Serializer", c.Serializer)

	return sb.String()
}
