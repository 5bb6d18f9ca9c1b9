package peerlink

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// peerTimeout mirrors m4g_espnow_is_peer_connected's 5 second recency
// window: a peer is considered present if a packet arrived within this
// window.
const peerTimeout = 5 * time.Second

// heartbeatInterval matches the cadence the other half announces presence
// at when no HID traffic is flowing.
const heartbeatInterval = 1 * time.Second

// Stats mirrors m4g_espnow_stats_t.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLost     uint64
	SendFailures    uint64
	LastSeenAgo     time.Duration
}

// RxFunc is invoked for each received HID-report packet, mirroring the
// ESP-NOW rx_callback(slot, report, report_len, is_charachorder) shape. It
// must not retain payload beyond the call.
type RxFunc func(slot uint8, payload []byte, isChording bool)

// Link is a UDP-broadcast substitute for the ESP-NOW peer radio: it
// decodes/encodes Packet frames and forwards HID reports to the local
// bridge.Core via RxFunc, exactly as spec.md §6 describes for the split
// topology. It never interprets the reports it forwards.
type Link struct {
	mu sync.Mutex

	conn       *net.UDPConn
	broadcast  *net.UDPAddr
	peer       net.Addr // auto-learned on first received packet, mirrors ESP-NOW peer learning
	peerSeenAt time.Time

	sendSeq uint32
	rxSeq   uint32
	haveRx  bool

	stats Stats

	onReport RxFunc
	done     chan struct{}
}

// NewLink opens a UDP socket bound to listenAddr (e.g. ":7770") and ready
// to broadcast to broadcastAddr (e.g. "255.255.255.255:7770"). onReport is
// called from the Link's own receive goroutine, so a caller that feeds
// bridge.Core from it has to serialize those calls with Core's other entry
// points (cmd/m4gbridged does this with guardedCore's mutex).
func NewLink(listenAddr, broadcastAddr string, onReport RxFunc) (*Link, error) {
	laddr, err := net.ResolveUDPAddr("udp4", listenAddr)
	if err != nil {
		return nil, err
	}
	baddr, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}
	return &Link{
		conn:      conn,
		broadcast: baddr,
		onReport:  onReport,
		done:      make(chan struct{}),
	}, nil
}

// Run reads packets until Close is called, calling onReport from the
// goroutine it runs on. Run is the only reader of l.conn.
func (l *Link) Run() {
	buf := make([]byte, headerSize+MaxPayload)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			log.Warnf("peerlink: read: %v", err)
			continue
		}
		l.handle(buf[:n], addr)
	}
}

func (l *Link) handle(raw []byte, from *net.UDPAddr) {
	pkt, err := Decode(raw)
	if err != nil {
		log.Debugf("peerlink: dropping malformed packet: %v", err)
		return
	}

	l.mu.Lock()
	l.peer = from
	l.peerSeenAt = time.Now()
	l.stats.PacketsReceived++
	if l.haveRx && pkt.Sequence != l.rxSeq+1 {
		lost := uint64(pkt.Sequence - l.rxSeq - 1)
		l.stats.PacketsLost += lost
	}
	l.rxSeq = pkt.Sequence
	l.haveRx = true
	l.mu.Unlock()

	if pkt.Type != PacketTypeHIDReport || l.onReport == nil {
		return
	}
	l.onReport(pkt.Slot, pkt.Payload, pkt.IsChording)
}

// Send transmits a HID report to the peer half, broadcasting until a
// specific peer address has been learned, matching m4g_espnow's
// broadcast-then-unicast behavior.
func (l *Link) Send(slot uint8, payload []byte, isChording bool) bool {
	l.mu.Lock()
	seq := l.sendSeq
	l.sendSeq++
	dst := l.broadcast
	if l.peer != nil {
		dst = l.peer.(*net.UDPAddr)
	}
	l.mu.Unlock()

	out, err := Encode(Packet{
		Type:       PacketTypeHIDReport,
		Slot:       slot,
		IsChording: isChording,
		Payload:    payload,
		Sequence:   seq,
	})
	if err != nil {
		log.Warnf("peerlink: encode: %v", err)
		return false
	}

	if _, err := l.conn.WriteToUDP(out, dst); err != nil {
		l.mu.Lock()
		l.stats.SendFailures++
		l.mu.Unlock()
		log.Warnf("peerlink: send: %v", err)
		return false
	}
	l.mu.Lock()
	l.stats.PacketsSent++
	l.mu.Unlock()
	return true
}

// SendHeartbeat announces presence when no HID traffic is flowing, so the
// other half's IsPeerConnected stays true during idle periods.
func (l *Link) SendHeartbeat() bool {
	l.mu.Lock()
	seq := l.sendSeq
	l.sendSeq++
	dst := l.broadcast
	if l.peer != nil {
		dst = l.peer.(*net.UDPAddr)
	}
	l.mu.Unlock()

	out, err := Encode(Packet{Type: PacketTypeHeartbeat, Sequence: seq})
	if err != nil {
		return false
	}
	_, err = l.conn.WriteToUDP(out, dst)
	return err == nil
}

// RunHeartbeat sends a heartbeat every heartbeatInterval until Close.
// Callers that already drive HID traffic continuously may skip this.
func (l *Link) RunHeartbeat() {
	t := time.NewTicker(heartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.SendHeartbeat()
		}
	}
}

// IsPeerConnected mirrors m4g_espnow_is_peer_connected: true if a packet
// was received within peerTimeout.
func (l *Link) IsPeerConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peer == nil {
		return false
	}
	return time.Since(l.peerSeenAt) < peerTimeout
}

// Stats returns a snapshot of the link's counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	if l.peer != nil {
		s.LastSeenAgo = time.Since(l.peerSeenAt)
	}
	return s
}

// Close stops Run/RunHeartbeat and releases the socket.
func (l *Link) Close() error {
	close(l.done)
	return l.conn.Close()
}

// BothHalvesPresent implements the half of bridge.StatusAccessor this
// package can answer; callers compose it with local chording-device
// presence to satisfy the full interface.
func (l *Link) BothHalvesPresent() bool {
	return l.IsPeerConnected()
}
