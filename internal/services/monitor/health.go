package monitor

import (
	"context"
	"log"
	"net"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name of the monitor.
const ServiceName = "citywatch.Monitor"

// HealthReporter publishes the monitor state on the standard
// grpc.health.v1 service. The overall status is SERVING only when every
// probe passes; each probe is also exposed under its own service name.
type HealthReporter struct {
	srv    *health.Server
	probes map[string]func() bool
}

func NewHealthReporter() *HealthReporter {
	return &HealthReporter{srv: health.NewServer(), probes: make(map[string]func() bool)}
}

// AddProbe registers a named check, e.g. "mqtt" -> client.IsConnectionOpen.
func (h *HealthReporter) AddProbe(name string, fn func() bool) {
	h.probes[name] = fn
}

func (h *HealthReporter) Server() *health.Server { return h.srv }

// Refresh runs every probe once and updates the statuses.
func (h *HealthReporter) Refresh() bool {
	names := make([]string, 0, len(h.probes))
	for n := range h.probes {
		names = append(names, n)
	}
	sort.Strings(names)

	all := true
	for _, n := range names {
		st := healthpb.HealthCheckResponse_SERVING
		if !h.probes[n]() {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			all = false
		}
		h.srv.SetServingStatus(ServiceName+"/"+n, st)
	}
	overall := healthpb.HealthCheckResponse_SERVING
	if !all {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.srv.SetServingStatus("", overall)
	h.srv.SetServingStatus(ServiceName, overall)
	return all
}

// Run refreshes on an interval until ctx is done, then marks everything
// NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	h.Refresh()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Refresh()
		}
	}
}

// ServeGRPC serves the health service on addr until ctx is done.
func (h *HealthReporter) ServeGRPC(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h.srv)

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()
	log.Printf("monitor: gRPC health on %s", addr)
	return gs.Serve(lis)
}
