package calctest

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
)

func (s *Server) listenTCP(port int, opts Options) error {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return err
	}
	s.listener = ln
	s.tcpOpts = opts
	s.port = ln.Addr().(*net.TCPAddr).Port

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

func (s *Server) acceptLoop() {
	logger := s.tcpOpts.Logger.With().Str("com", "calctest-tcp").Logger()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !isClosed(err) {
				logger.Debug().Err(err).Msg("accept failed")
			}
			return
		}
		s.sessionStarted(transport.KindTCP)

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				_ = conn.Close()
			}()
			if err := s.serveTCP(conn); err != nil && err != io.EOF {
				logger.Debug().Err(err).Msg("session ended")
			}
		}()
	}
}

// serveTCP runs one stream session: greeting block, acceptance line,
// assignment, result, verdict.
func (s *Server) serveTCP(conn net.Conn) error {
	opts := s.tcpOpts
	if opts.HangUp {
		return nil
	}
	if err := conn.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		return err
	}
	r := bufio.NewReader(conn)

	if opts.Silent {
		_, err := io.Copy(io.Discard, r)
		return err
	}

	block := strings.Join(opts.greeting(transport.KindTCP), "\n") + "\n\n"
	if _, err := conn.Write([]byte(block)); err != nil {
		return err
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != protocol.Acceptance(opts.API, transport.KindTCP.String()) {
		_, err = conn.Write([]byte("ERROR\n"))
		return err
	}

	a := opts.assignment()
	if opts.API == protocol.TextAPI {
		if _, err := conn.Write(protocol.EncodeLine(a.String())); err != nil {
			return err
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		got, err := strconv.ParseInt(strings.TrimSpace(line), 10, 32)
		if err != nil {
			_, err = conn.Write([]byte("ERROR\n"))
			return err
		}
		s.resultReceived(transport.KindTCP, int32(got))
		_, err = conn.Write(textVerdict(opts.judge(int32(got))))
		return err
	}

	if _, err := conn.Write(protocol.EncodeAssignment(opts.record())); err != nil {
		return err
	}
	buf := make([]byte, protocol.AssignmentResultSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	msg, err := protocol.DecodeAssignment(buf)
	if err != nil {
		return err
	}
	s.resultReceived(transport.KindTCP, msg.Result)
	_, err = conn.Write(binaryVerdict(msg.ID == opts.AssignmentID && opts.judge(msg.Result)))
	return err
}

func (o Options) record() protocol.AssignmentMessage {
	a := o.assignment()
	return protocol.AssignmentMessage{
		Type:         1,
		MajorVersion: o.majorVersion(),
		MinorVersion: protocol.MinorVersion,
		ID:           o.AssignmentID,
		Arith:        uint32(a.Op),
		Value1:       a.Value1,
		Value2:       a.Value2,
	}
}

func textVerdict(ok bool) []byte {
	if ok {
		return protocol.EncodeLine("OK")
	}
	return protocol.EncodeLine("NOT OK")
}

func binaryVerdict(ok bool) []byte {
	msg := protocol.HandshakeMessage{
		Type:         protocol.MsgTypeResult,
		Message:      protocol.AckNotOK,
		Protocol:     protocol.ProtocolID,
		MajorVersion: protocol.MajorVersion,
		MinorVersion: protocol.MinorVersion,
	}
	if ok {
		msg.Message = protocol.AckOK
	}
	return protocol.EncodeHandshake(msg)
}
