package connector

import (
	"fmt"
	"time"

	"github.com/integrasaude/hl7-engine/internal/mllp"
)

// Channel selects the transport a connector speaks.
type Channel string

const (
	ChannelMLLP Channel = "mllp"
	ChannelXML  Channel = "xml"  // vendor XML over HTTP POST
	ChannelREST Channel = "rest" // generic REST with pluggable auth
)

// Vendor selects the adapter enriching outbound messages and decoding
// vendor extension segments. A closed set, chosen at construction time.
type Vendor string

const (
	VendorNone   Vendor = ""
	VendorTasy   Vendor = "tasy"
	VendorMV     Vendor = "mv"
	VendorPixeon Vendor = "pixeon"
)

// AuthKind selects the REST channel's authentication scheme.
type AuthKind string

const (
	AuthNone   AuthKind = ""
	AuthAPIKey AuthKind = "apikey"
	AuthBasic  AuthKind = "basic"
	AuthBearer AuthKind = "bearer"
	AuthOAuth2 AuthKind = "oauth2" // client credentials
)

// AuthConfig carries the credentials for the REST channel.
type AuthConfig struct {
	Kind         AuthKind `json:"kind"`
	APIKeyHeader string   `json:"api_key_header,omitempty"`
	APIKey       string   `json:"api_key,omitempty"`
	Username     string   `json:"username,omitempty"`
	Password     string   `json:"password,omitempty"`
	Token        string   `json:"token,omitempty"`
	TokenURL     string   `json:"token_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scope        string   `json:"scope,omitempty"`
}

// RetryPolicy bounds the exponential backoff applied to retryable errors.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
}

// Config describes one connector instance.
type Config struct {
	OrgID       string  `json:"org_id"`
	ConnectorID string  `json:"connector_id"`
	Channel     Channel `json:"channel"`
	Vendor      Vendor  `json:"vendor"`

	// MLLP channel
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	PoolSize       int           `json:"pool_size"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	SendTimeout    time.Duration `json:"send_timeout"`
	AckTimeout     time.Duration `json:"ack_timeout"`
	AcquireTimeout time.Duration `json:"acquire_timeout"`
	KeepAlive      time.Duration `json:"keep_alive"`
	Encoding       string        `json:"encoding"` // informational, UTF-8 assumed
	FrameStart     byte          `json:"frame_start"`
	FrameEnd1      byte          `json:"frame_end1"`
	FrameEnd2      byte          `json:"frame_end2"`

	// HTTP channels
	Endpoint string     `json:"endpoint"`
	Auth     AuthConfig `json:"auth"`

	Retry RetryPolicy `json:"retry"`

	// Identity stamped into outbound MSH headers
	SendingApp      string `json:"sending_app"`
	SendingFacility string `json:"sending_facility"`
	ReceivingApp    string `json:"receiving_app"`
	ReceivingFac    string `json:"receiving_fac"`
}

func (c *Config) applyDefaults() {
	if c.Channel == "" {
		c.Channel = ChannelMLLP
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 5
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 30 * time.Second
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 15 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 500 * time.Millisecond
	}
	if c.SendingApp == "" {
		c.SendingApp = "INTEGRA"
	}
}

// Addr is the MLLP endpoint address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Key identifies the connector inside the registry.
func (c Config) Key() string {
	return c.OrgID + "/" + c.ConnectorID
}

func (c *Config) framing() mllp.Framing {
	f := mllp.Framing{Start: c.FrameStart, End1: c.FrameEnd1, End2: c.FrameEnd2}
	if f == (mllp.Framing{}) {
		return mllp.DefaultFraming()
	}
	return f
}
