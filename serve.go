package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/Jon-Bright/cpufreqctl/policy"
)

// Server is the line-protocol control server. Each line is a command and
// gets exactly one reply line: a value, OK, or ERR: with the reason.
type Server struct {
	p *policy.Policy
	l net.Listener
}

func NewServer(addr string, p *policy.Policy) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	log.Printf("Listening on %v", l.Addr())
	return &Server{p, l}, nil
}

func (s *Server) Addr() net.Addr {
	return s.l.Addr()
}

func (s *Server) Close() error {
	return s.l.Close()
}

func parseKHz(parms string) (string, uint32, error) {
	t := strings.SplitN(parms, " ", 2)
	v, err := strconv.ParseUint(t[0], 10, 32)
	if err != nil {
		return "", 0, fmt.Errorf("error parsing frequency: %v", err)
	}
	if len(t) == 1 {
		return "", uint32(v), nil
	}
	return strings.TrimSpace(t[1]), uint32(v), nil
}

func joinKHz(f []uint32) string {
	s := make([]string, len(f))
	for i, v := range f {
		s[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(s, " ")
}

// runCommand executes one command and returns its reply.
func (s *Server) runCommand(cmd, parms string) (string, error) {
	switch cmd {
	case "GET":
		st, err := s.p.Status()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(st.KHz), 10), nil
	case "TABLE":
		return joinKHz(s.p.Info().Available), nil
	case "BOOSTED":
		return joinKHz(s.p.Info().BoostKHz), nil
	case "SET":
		rest, khz, err := parseKHz(parms)
		if err != nil {
			return "", err
		}
		rel := policy.RelationL
		if rest != "" {
			rel, err = policy.ParseRelation(rest)
			if err != nil {
				return "", err
			}
		}
		got, err := s.p.Target(khz, rel)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("OK %d", got), nil
	case "INDEX":
		i, err := strconv.Atoi(parms)
		if err != nil {
			return "", fmt.Errorf("error parsing index: %v", err)
		}
		err = s.p.TargetIndex(i)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("OK %d", s.p.Info().Cur), nil
	case "BOOST":
		switch strings.ToUpper(parms) {
		case "":
			if s.p.Info().Boost {
				return "ON", nil
			}
			return "OFF", nil
		case "ON":
			return "OK", s.p.SetBoost(true)
		case "OFF":
			return "OK", s.p.SetBoost(false)
		}
		return "", fmt.Errorf("BOOST wants ON or OFF, got %q", parms)
	case "LIMITS":
		if parms == "" {
			info := s.p.Info()
			return fmt.Sprintf("%d %d", info.Min, info.Max), nil
		}
		rest, min, err := parseKHz(parms)
		if err != nil {
			return "", err
		}
		_, max, err := parseKHz(rest)
		if err != nil {
			return "", err
		}
		err = s.p.SetLimits(min, max)
		if err != nil {
			return "", err
		}
		return "OK", nil
	}
	return "", fmt.Errorf("unknown command: %s", cmd)
}

func (s *Server) handleConnection(c net.Conn) {
	log.Printf("Handling connection from %v", c.RemoteAddr())
	defer c.Close()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		l, err := r.ReadString('\n')
		if err == io.EOF {
			log.Printf("EOF for connection %v", c.RemoteAddr())
			return
		}
		if err != nil {
			log.Printf("Error reading string for connection %v: %v", c.RemoteAddr(), err)
			return
		}
		l = strings.TrimSpace(l)
		log.Printf("Got line '%s'", l)
		if l == "" {
			continue
		}
		t := strings.SplitN(l, " ", 2)
		cmd := strings.ToUpper(t[0])
		parms := ""
		if len(t) > 1 {
			parms = strings.TrimSpace(t[1])
		}
		if cmd == "QUIT" {
			return
		}
		reply, err := s.runCommand(cmd, parms)
		if err != nil {
			reply = "ERR: " + err.Error()
			log.Printf("Command '%s' failed: %v", l, err)
		}
		w.WriteString(reply + "\n")
		err = w.Flush()
		if err != nil {
			log.Printf("error writing reply: %v", err)
			return
		}
	}
}

func (s *Server) handleConnections() {
	for {
		conn, err := s.l.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}
