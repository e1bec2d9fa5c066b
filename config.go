package slcan

import (
	"strconv"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const (
	DefaultMaxChannels = 10
	DefaultMuxCount    = 2
	MinChannels        = 4
)

// Registry configuration. Zero values select the defaults, out of range
// values are clamped rather than rejected.
type Config struct {
	// Maximum number of slcan channels, at least MinChannels
	MaxChannels int
	// Number of endpoints multiplexed per channel, 1..MuxEndpointMax
	MuxCount int
}

func (config Config) clamped() Config {
	if config.MaxChannels == 0 {
		config.MaxChannels = DefaultMaxChannels
	}
	if config.MaxChannels < MinChannels {
		config.MaxChannels = MinChannels
	}
	if config.MuxCount == 0 {
		config.MuxCount = DefaultMuxCount
	}
	if config.MuxCount < 1 {
		config.MuxCount = 1
	}
	if config.MuxCount > MuxEndpointMax {
		config.MuxCount = MuxEndpointMax
	}
	return config
}

// Serial port settings for the physical transport
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string
}

// BridgeConfig is the full configuration of a serial to CAN bridge : the
// registry limits, the serial port and the endpoint address to CAN
// interface mapping used by the socketcan side.
type BridgeConfig struct {
	Slcan      Config
	Serial     SerialConfig
	Interfaces map[int]string
}

// LoadBridgeConfig parses an ini formatted configuration file :
//
//	[slcan]
//	maxchannel = 10
//	muxnetdevs = 2
//
//	[serial]
//	port = /dev/ttyUSB0
//	baudrate = 115200
//	databits = 8
//	parity = None
//
//	[bridge]
//	0 = can0
//	1 = can1
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	iniFile, err := ini.Load(path)
	if err != nil {
		log.Errorf("[CONFIG] failed to load %v : %v", path, err)
		return nil, err
	}
	config := &BridgeConfig{Interfaces: map[int]string{}}

	slcanSection := iniFile.Section("slcan")
	config.Slcan.MaxChannels = slcanSection.Key("maxchannel").MustInt(DefaultMaxChannels)
	config.Slcan.MuxCount = slcanSection.Key("muxnetdevs").MustInt(DefaultMuxCount)
	config.Slcan = config.Slcan.clamped()

	serialSection := iniFile.Section("serial")
	config.Serial.Port = serialSection.Key("port").String()
	config.Serial.BaudRate = serialSection.Key("baudrate").MustInt(115200)
	config.Serial.DataBits = serialSection.Key("databits").MustInt(8)
	config.Serial.Parity = serialSection.Key("parity").MustString("None")

	bridgeSection := iniFile.Section("bridge")
	for _, key := range bridgeSection.Keys() {
		addr, err := strconv.Atoi(key.Name())
		if err != nil || addr < 0 || addr >= MuxEndpointMax {
			log.Warnf("[CONFIG] ignoring bridge entry %v : not a valid endpoint address", key.Name())
			continue
		}
		config.Interfaces[addr] = key.String()
	}
	return config, nil
}
