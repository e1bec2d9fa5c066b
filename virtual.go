package slcan

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Virtual serial transport used for basic testing and hardware free
// operation. This uses TCP as transport : every byte written to the
// connection is treated as raw wire traffic and fed to the attached
// channel's receive path.
type VirtualTransport struct {
	address    string
	conn       net.Conn
	channel    *Channel
	onHangup   func()
	mu         sync.Mutex
	wg         sync.WaitGroup
	stopChan   chan bool
	isRunning  bool
	wakeup     bool
	writeLimit int
}

func NewVirtualTransport(address string) *VirtualTransport {
	return &VirtualTransport{address: address, stopChan: make(chan bool)}
}

// "Connect" to server e.g. localhost:18000
func (client *VirtualTransport) Connect() error {
	conn, err := net.Dial("tcp", client.address)
	if err != nil {
		return err
	}
	client.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		err := tcpConn.SetNoDelay(true)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetWriteLimit caps the number of bytes accepted by a single Write call.
// Useful for exercising the partial write flow control. 0 means unlimited.
func (client *VirtualTransport) SetWriteLimit(limit int) {
	client.mu.Lock()
	client.writeLimit = limit
	client.mu.Unlock()
}

// SetOnHangup registers a callback invoked when the connection drops
func (client *VirtualTransport) SetOnHangup(onHangup func()) {
	client.mu.Lock()
	client.onHangup = onHangup
	client.mu.Unlock()
}

// Attach binds the transport to a channel and starts the goroutine that
// feeds incoming bytes to the channel's receive path
func (client *VirtualTransport) Attach(channel *Channel) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.channel = channel
	if client.isRunning {
		return
	}
	client.wg.Add(1)
	client.isRunning = true
	go client.handleReception()
}

// Detach stops the reception goroutine and closes the connection
func (client *VirtualTransport) Detach() error {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.isRunning {
		client.stopChan <- true
		client.wg.Wait()
	}
	if client.conn != nil {
		return client.conn.Close()
	}
	return nil
}

// Write implementation of Transport interface. The connection accepts at
// most writeLimit bytes per call, an armed write wakeup fires once the
// bytes are on their way.
func (client *VirtualTransport) Write(data []byte) (int, error) {
	client.mu.Lock()
	conn := client.conn
	limit := client.writeLimit
	armed := client.wakeup
	channel := client.channel
	client.mu.Unlock()
	if conn == nil {
		return 0, ErrNoTransport
	}
	if limit > 0 && len(data) > limit {
		data = data[:limit]
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	accepted, err := conn.Write(data)
	if err != nil {
		return accepted, err
	}
	if armed && channel != nil {
		go channel.WriteWakeup()
	}
	return accepted, nil
}

// SetWriteWakeup implementation of Transport interface
func (client *VirtualTransport) SetWriteWakeup(enabled bool) {
	client.mu.Lock()
	client.wakeup = enabled
	client.mu.Unlock()
}

// Handle incoming traffic
func (client *VirtualTransport) handleReception() {
	defer func() {
		client.mu.Lock()
		client.isRunning = false
		client.mu.Unlock()
		client.wg.Done()
	}()
	buffer := make([]byte, 256)
	for {
		select {
		case <-client.stopChan:
			return
		default:
			client.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
			n, err := client.conn.Read(buffer)
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No data received, this is OK
				continue
			}
			if err != nil {
				log.Errorf("[VIRTUAL TRANSPORT] listening routine has closed because : %v", err)
				client.mu.Lock()
				onHangup := client.onHangup
				client.mu.Unlock()
				if onHangup != nil {
					onHangup()
				}
				return
			}
			if n > 0 {
				client.mu.Lock()
				channel := client.channel
				client.mu.Unlock()
				if channel != nil {
					channel.Receive(buffer[:n], nil)
				}
			}
		}
	}
}

// Compile-time check of the Transport contract
var _ Transport = (*VirtualTransport)(nil)
