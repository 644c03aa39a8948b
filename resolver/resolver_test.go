package resolver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// startFakeDNS starts a local UDP DNS server answering every SRV query for
// name with a single SRV record pointing at target.
func startFakeDNS(t *testing.T, name, target string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(name, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Answer = append(m.Answer, &dns.SRV{
			Hdr:    dns.RR_Header{Name: name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 60},
			Target: target,
			Port:   443,
		})
		_ = w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolver_ResolveReturnsSRVTargets(t *testing.T) {
	addr := startFakeDNS(t, "dps.example.com.", "dps-1.example.com.")
	time.Sleep(20 * time.Millisecond)

	r := New(addr)
	targets, err := r.Resolve(context.Background(), "dps.example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"dps-1.example.com."}, targets)
}

func TestResolver_NoRecordsIsAnError(t *testing.T) {
	addr := startFakeDNS(t, "dps.example.com.", "dps-1.example.com.")
	time.Sleep(20 * time.Millisecond)

	r := New(addr)
	_, err := r.Resolve(context.Background(), "other.example.com")
	require.Error(t, err)
}
