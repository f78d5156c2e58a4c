package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Mmx233/QCalc/outcome"
	"github.com/Mmx233/QCalc/protocol"
	"github.com/Mmx233/QCalc/transport"
)

// Protocol is the transport selection of a target.
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolUDP
	ProtocolAny // TCP first, UDP on transport failure
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolAny:
		return "any"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Kind returns the transport of an explicit protocol. It is meaningless for
// ProtocolAny.
func (p Protocol) Kind() transport.Kind {
	if p == ProtocolUDP {
		return transport.KindUDP
	}
	return transport.KindTCP
}

// ParseProtocol parses "tcp", "udp" or "any", case-insensitive.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	case "any":
		return ProtocolAny, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", s)
	}
}

// Target is a parsed protocol://host:port/api string.
type Target struct {
	Protocol Protocol
	Host     string
	Port     int
	API      protocol.API
}

// Endpoint returns the endpoint of the target on the given transport.
func (t Target) Endpoint(kind transport.Kind) transport.Endpoint {
	return transport.Endpoint{Kind: kind, Host: t.Host, Port: t.Port}
}

func (t Target) String() string {
	return fmt.Sprintf("%s://%s/%s", t.Protocol, transport.Endpoint{Host: t.Host, Port: t.Port}.Address(), t.API)
}

// TargetProblem names what is wrong with a target string.
type TargetProblem int

const (
	TargetTripleSlash TargetProblem = iota
	TargetMissingScheme
	TargetUnknownProtocol
	TargetMissingHost
	TargetMissingPort
	TargetPortNotNumeric
	TargetPortOutOfRange
	TargetMissingAPI
	TargetUnknownAPI
)

var targetProblemText = map[TargetProblem]string{
	TargetTripleSlash:     `invalid format, "///" is not allowed`,
	TargetMissingScheme:   `missing "://"`,
	TargetUnknownProtocol: "unknown or unsupported protocol",
	TargetMissingHost:     "host is missing",
	TargetMissingPort:     `port is missing or ":" is misplaced`,
	TargetPortNotNumeric:  "port must be numeric",
	TargetPortOutOfRange:  "port must be between 1 and 65535",
	TargetMissingAPI:      `path is missing, expected "/text" or "/binary"`,
	TargetUnknownAPI:      `unknown api, expected "text" or "binary"`,
}

// TargetError reports a malformed target string. It classifies as
// outcome.InvalidInput.
type TargetError struct {
	Input   string
	Problem TargetProblem
	Detail  string
}

func (e *TargetError) Error() string {
	msg := fmt.Sprintf("invalid target %q: %s", e.Input, targetProblemText[e.Problem])
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *TargetError) Unwrap() error {
	return outcome.ErrInvalidInput
}

// IsTargetError reports whether err is a *TargetError with the given problem.
func IsTargetError(err error, problem TargetProblem) bool {
	var te *TargetError
	return errors.As(err, &te) && te.Problem == problem
}

// ParseTarget parses protocol://host:port/api. IPv6 hosts must be bracketed.
// No network activity happens here.
func ParseTarget(input string) (Target, error) {
	fail := func(problem TargetProblem, detail string) (Target, error) {
		return Target{}, &TargetError{Input: input, Problem: problem, Detail: detail}
	}

	if strings.Contains(input, "///") {
		return fail(TargetTripleSlash, "")
	}

	schemeEnd := strings.Index(input, "://")
	if schemeEnd < 0 {
		return fail(TargetMissingScheme, "")
	}
	proto, err := ParseProtocol(input[:schemeEnd])
	if err != nil {
		return fail(TargetUnknownProtocol, input[:schemeEnd])
	}

	rest := input[schemeEnd+3:]
	hostPort, apiPart, hasPath := strings.Cut(rest, "/")

	host, portStr, err := splitHostPort(hostPort)
	if err != nil {
		var te *TargetError
		if errors.As(err, &te) {
			te.Input = input
		}
		return Target{}, err
	}
	port, err := parsePort(portStr)
	if err != nil {
		var te *TargetError
		if errors.As(err, &te) {
			te.Input = input
		}
		return Target{}, err
	}

	if !hasPath || apiPart == "" {
		return fail(TargetMissingAPI, "")
	}
	api, err := protocol.ParseAPI(apiPart)
	if err != nil {
		return fail(TargetUnknownAPI, apiPart)
	}

	return Target{Protocol: proto, Host: host, Port: port, API: api}, nil
}

func splitHostPort(hostPort string) (host, port string, err error) {
	if strings.HasPrefix(hostPort, "[") {
		end := strings.Index(hostPort, "]")
		if end < 0 {
			return "", "", &TargetError{Problem: TargetMissingHost, Detail: "unterminated IPv6 literal"}
		}
		host = hostPort[1:end]
		after := hostPort[end+1:]
		if !strings.HasPrefix(after, ":") {
			return "", "", &TargetError{Problem: TargetMissingPort}
		}
		port = after[1:]
	} else {
		var found bool
		host, port, found = strings.Cut(hostPort, ":")
		if !found {
			if hostPort == "" {
				return "", "", &TargetError{Problem: TargetMissingHost}
			}
			return "", "", &TargetError{Problem: TargetMissingPort}
		}
	}

	if host == "" {
		return "", "", &TargetError{Problem: TargetMissingHost}
	}
	if port == "" {
		return "", "", &TargetError{Problem: TargetMissingPort}
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, &TargetError{Problem: TargetPortNotNumeric, Detail: s}
		}
	}
	// Long digit strings overflow Atoi, which is still out of range
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, &TargetError{Problem: TargetPortOutOfRange, Detail: s}
	}
	return port, nil
}
