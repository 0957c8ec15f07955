package main

import (
	"github.com/gateway-fm/walletpulse/internal/metrics"
	"github.com/gateway-fm/walletpulse/internal/store"
	"github.com/gateway-fm/walletpulse/internal/transport"
	"github.com/gateway-fm/walletpulse/internal/txlog"
	"github.com/gateway-fm/walletpulse/pkg/types"
)

// app is the running dispatcher as seen by the status API.
// It implements transport.StatusProvider.
type app struct {
	stats     *metrics.CycleStats
	buffer    *txlog.Buffer
	dead      *store.DeadProxies
	personas  *store.Personas
	hub       *transport.Hub
	keys      int
	proxies   int
	proxyMode bool
}

func (a *app) Status() types.Status {
	var st types.Status
	a.stats.Fill(&st)
	st.Buffered = a.buffer.Len()
	st.Keys = a.keys
	st.ActiveProxies = a.proxies
	st.DeadProxies = a.dead.Len()
	st.ProxyMode = a.proxyMode
	if a.hub != nil {
		st.FeedClients = a.hub.ClientCount()
	}
	return st
}

func (a *app) Personas() map[string]store.Persona {
	return a.personas.Snapshot()
}

func (a *app) DeadProxies() map[string]store.DeadProxy {
	return a.dead.Snapshot()
}
