// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"djviz/internal/analysis"
	"djviz/internal/log"
	"djviz/internal/transport"
)

// Publisher periodically fetches the latest analysis frame, packs it into a
// fixed binary layout and sends it through a Sender. It runs on its own
// ticker goroutine managed by Start and Stop, decoupled from the render loop.
type Publisher struct {
	sender   *Sender
	source   transport.FrameSource
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	sequenceNum  uint32
	packetBuffer *bytes.Buffer // Reusable packet construction buffer.
}

// NewPublisher creates a publisher. An interval <= 0 defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender *Sender, source transport.FrameSource) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("publisher requires a UDP sender")
	}
	if source == nil {
		return nil, fmt.Errorf("publisher requires a frame source")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		log.Warnf("transport: invalid UDP publish interval, defaulting to %s", interval)
	}

	return &Publisher{
		sender:       sender,
		source:       source,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Safe to call more than once; a
// running publisher ignores further Starts.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("transport: UDP publisher already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Capture locals so Stop can nil the fields without racing the goroutine.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Infof("transport: UDP publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop terminates the publishing goroutine and waits for it to exit.
// Idempotent.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Infof("transport: UDP publisher stopped")
	return nil
}

/*
Packet layout (BigEndian):

| Field           | Type       | Bytes |
|-----------------|------------|-------|
| Sequence number | uint32     | 4     |
| Timestamp       | int64      | 8     | Nanoseconds since epoch
| Band count      | uint16     | 2     | Currently always 8
| Bands           | [8]float32 | 32    | Smoothed band levels
| Energy          | float32    | 4     |
| Bass            | float32    | 4     |
| Mids            | float32    | 4     |
| Treble          | float32    | 4     |
| Kick flag       | uint8      | 1     | 1 when a kick fired this frame
| Kick confidence | float32    | 4     |
*/
func (p *Publisher) buildAndSendPacket() {
	frame := p.source.LatestFrame()

	p.sequenceNum++
	p.packetBuffer.Reset()

	var kickFlag uint8
	if frame.Kick.Detected {
		kickFlag = 1
	}

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, time.Now().UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(analysis.NumBands))
	}
	if err == nil {
		var bands [analysis.NumBands]float32
		for i, v := range frame.Bands {
			bands[i] = float32(v)
		}
		err = binary.Write(p.packetBuffer, binary.BigEndian, bands)
	}
	if err == nil {
		scalars := [4]float32{
			float32(frame.Energy), float32(frame.Bass),
			float32(frame.Mids), float32(frame.Treble),
		}
		err = binary.Write(p.packetBuffer, binary.BigEndian, scalars)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, kickFlag)
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(frame.Kick.Confidence))
	}
	if err != nil {
		log.Errorf("transport: error packing UDP frame: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		log.Debugf("transport: UDP send failed: %v", err)
		return
	}
	log.Debugf("transport: sent UDP frame %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

// Close implements io.Closer; it stops the publisher goroutine.
func (p *Publisher) Close() error {
	return p.Stop()
}
