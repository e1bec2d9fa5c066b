package slcan

import (
	"sync"

	gxcommon "github.com/Gurux/gxcommon-go"
	gxserial "github.com/Gurux/gxserial-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

// Physical serial port transport built on Gurux serial. Received bytes are
// pushed to the attached channel from the port's event callback, which is
// never re-entered concurrently for the same port.
type SerialTransport struct {
	media    *gxserial.GXSerial
	channel  *Channel
	onHangup func()
	mu       sync.Mutex
	wakeup   bool
}

func NewSerialTransport(config SerialConfig) (*SerialTransport, error) {
	parity, err := gxcommon.ParityParse(config.Parity)
	if err != nil {
		return nil, err
	}
	media := gxserial.NewGXSerial(config.Port,
		gxcommon.BaudRate(config.BaudRate),
		config.DataBits,
		parity,
		gxcommon.StopBitsOne)
	return &SerialTransport{media: media}, nil
}

// Localize sets the language used by the underlying serial driver
func (serial *SerialTransport) Localize(tag language.Tag) {
	serial.media.Localize(tag)
}

// SetOnHangup registers a callback invoked when the port closes or errors
func (serial *SerialTransport) SetOnHangup(onHangup func()) {
	serial.mu.Lock()
	serial.onHangup = onHangup
	serial.mu.Unlock()
}

// Open the port and attach the receive path of the given channel
func (serial *SerialTransport) Open(channel *Channel) error {
	serial.mu.Lock()
	serial.channel = channel
	serial.mu.Unlock()
	serial.media.SetOnError(func(media gxcommon.IGXMedia, err error) {
		log.Errorf("[SERIAL] %v : %v", serial.media.GetName(), err)
		serial.hangup()
	})
	serial.media.SetOnMediaStateChange(func(media gxcommon.IGXMedia, event gxcommon.MediaStateEventArgs) {
		log.Infof("[SERIAL] %v state : %v", serial.media.GetName(), event.State().String())
	})
	serial.media.SetOnReceived(func(media gxcommon.IGXMedia, event gxcommon.ReceiveEventArgs) {
		data := event.Data()
		if data == nil {
			return
		}
		channel.Receive(data, nil)
	})
	return serial.media.Open()
}

// Close the port
func (serial *SerialTransport) Close() error {
	return serial.media.Close()
}

// Write implementation of Transport interface. The port accepts whole
// buffers, so an armed wakeup fires right after the send.
func (serial *SerialTransport) Write(data []byte) (int, error) {
	err := serial.media.Send(data, "")
	if err != nil {
		return 0, err
	}
	serial.mu.Lock()
	armed := serial.wakeup
	channel := serial.channel
	serial.mu.Unlock()
	if armed && channel != nil {
		go channel.WriteWakeup()
	}
	return len(data), nil
}

// SetWriteWakeup implementation of Transport interface
func (serial *SerialTransport) SetWriteWakeup(enabled bool) {
	serial.mu.Lock()
	serial.wakeup = enabled
	serial.mu.Unlock()
}

func (serial *SerialTransport) hangup() {
	serial.mu.Lock()
	onHangup := serial.onHangup
	serial.mu.Unlock()
	if onHangup != nil {
		onHangup()
	}
}

var _ Transport = (*SerialTransport)(nil)
