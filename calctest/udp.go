package calctest

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
)

func (s *Server) listenUDP(port int, opts Options) error {
	addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	s.packet = conn
	s.udpOpts = opts
	s.port = conn.LocalAddr().(*net.UDPAddr).Port

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.packetLoop()
	}()
	return nil
}

// packetLoop serves one client at a time. A session starts with the first
// datagram of a peer.
func (s *Server) packetLoop() {
	logger := s.udpOpts.Logger.With().Str("com", "calctest-udp").Logger()
	buf := make([]byte, transport.ReceiveBufferSize)
	for {
		_ = s.packet.SetReadDeadline(time.Time{})
		n, peer, err := s.packet.ReadFromUDP(buf)
		if err != nil {
			if !isClosed(err) {
				logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		s.sessionStarted(transport.KindUDP)
		hello := append([]byte(nil), buf[:n]...)
		if err := s.serveUDP(peer, hello); err != nil && !isClosed(err) {
			logger.Debug().Err(err).Msg("session ended")
		}
	}
}

func (s *Server) serveUDP(peer *net.UDPAddr, hello []byte) error {
	opts := s.udpOpts
	if opts.Silent {
		return nil
	}
	if opts.API == protocol.BinaryAPI {
		return s.serveBinaryUDP(peer, hello)
	}

	send := func(b []byte) error {
		_, err := s.packet.WriteToUDP(b, peer)
		return err
	}

	if strings.TrimSpace(string(hello)) != protocol.Greeting(protocol.TextAPI, transport.KindUDP.String()) {
		return send([]byte("ERROR\n"))
	}

	a := opts.assignment()
	if !opts.SkipGreeting {
		block := strings.Join(opts.greeting(transport.KindUDP), "\n") + "\n"
		if err := send([]byte(block)); err != nil {
			return err
		}
		line, err := s.receiveFrom(peer)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(line)) != protocol.Acceptance(protocol.TextAPI, transport.KindUDP.String()) {
			return send([]byte("ERROR\n"))
		}
	}
	if err := send(protocol.EncodeLine(a.String())); err != nil {
		return err
	}

	line, err := s.receiveFrom(peer)
	if err != nil {
		return err
	}
	got, err := strconv.ParseInt(strings.TrimSpace(string(line)), 10, 32)
	if err != nil {
		return send([]byte("ERROR\n"))
	}
	s.resultReceived(transport.KindUDP, int32(got))
	return send(textVerdict(opts.judge(int32(got))))
}

func (s *Server) serveBinaryUDP(peer *net.UDPAddr, hello []byte) error {
	opts := s.udpOpts
	send := func(b []byte) error {
		_, err := s.packet.WriteToUDP(b, peer)
		return err
	}

	msg, err := protocol.DecodeHandshake(hello)
	if err != nil || msg.Type != protocol.MsgTypeHello || opts.RejectHello {
		return send(binaryVerdict(false))
	}

	if !opts.SkipGreeting {
		if err := send(protocol.EncodeHandshake(protocol.HandshakeMessage{
			Type:         1,
			Message:      protocol.AckNotApplicable,
			Protocol:     protocol.ProtocolID,
			MajorVersion: protocol.MajorVersion,
			MinorVersion: protocol.MinorVersion,
		})); err != nil {
			return err
		}
	}
	if err := send(protocol.EncodeAssignment(opts.record())); err != nil {
		return err
	}

	data, err := s.receiveFrom(peer)
	if err != nil {
		return err
	}
	result, err := protocol.DecodeAssignment(data)
	if err != nil {
		return send(binaryVerdict(false))
	}
	s.resultReceived(transport.KindUDP, result.Result)
	return send(binaryVerdict(result.ID == opts.AssignmentID && opts.judge(result.Result)))
}

// receiveFrom waits for the next datagram of peer, dropping others.
func (s *Server) receiveFrom(peer *net.UDPAddr) ([]byte, error) {
	if err := s.packet.SetReadDeadline(time.Now().Add(ioTimeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, transport.ReceiveBufferSize)
	for {
		n, from, err := s.packet.ReadFromUDP(buf)
		if err != nil {
			return nil, err
		}
		if from.String() == peer.String() {
			return buf[:n], nil
		}
	}
}
