package captive

import (
	"log/slog"
	"net"

	"github.com/miekg/dns"
)

// dnsServer answers every A query with the access point's own address. That
// is what trips captive-portal detection on phones and laptops: their
// connectivity probe resolves, lands on the portal, and gets redirected.
type dnsServer struct {
	srv    *dns.Server
	answer net.IP
	logger *slog.Logger
}

func newDNSServer(addr string, answer net.IP, logger *slog.Logger) (*dnsServer, error) {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}

	s := &dnsServer{answer: answer.To4(), logger: logger}
	s.srv = &dns.Server{PacketConn: pc, Handler: dns.HandlerFunc(s.handle)}
	go func() {
		if err := s.srv.ActivateAndServe(); err != nil {
			logger.Error("dns responder stopped", "error", err)
		}
	}()
	return s, nil
}

func (s *dnsServer) handle(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	for _, q := range req.Question {
		if q.Qtype != dns.TypeA {
			continue
		}
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    10,
			},
			A: s.answer,
		})
	}

	if err := w.WriteMsg(m); err != nil {
		s.logger.Warn("writing dns reply failed", "error", err)
	}
}

// Addr returns the responder's bound UDP address.
func (s *dnsServer) Addr() string {
	return s.srv.PacketConn.LocalAddr().String()
}

func (s *dnsServer) Shutdown() error {
	return s.srv.Shutdown()
}
