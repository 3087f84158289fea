// Command containerbalancerd wires the Container Balancer core to
// real collaborators and runs it. The CLI and config-file parsing
// surface is explicitly out of scope for this repo (spec §1); this is
// the minimal amount of wiring needed to demonstrate the pieces fit
// together, not a developed command-line interface.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/containerfleet/balancer/balancer/config"
	"github.com/containerfleet/balancer/balancer/glog"
	"github.com/containerfleet/balancer/balancer/iteration"
	"github.com/containerfleet/balancer/balancer/service"
)

func main() {
	configFile := flag.String("config", "containerbalancer", "config file name to search for (without extension)")
	configDir := flag.String("configDir", "/etc/containerfleet/", "directory to search for the config file")
	verbosity := flag.Int("v", 1, "log verbosity level")
	flag.Parse()

	glog.SetLevel(int32(*verbosity))

	cfg, err := config.Load(*configFile, *configDir, ".")
	if err != nil {
		glog.Fatalf("containerbalancerd: loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		glog.Fatalf("containerbalancerd: invalid config: %v", err)
	}

	deps, err := wireDeps()
	if err != nil {
		glog.Fatalf("containerbalancerd: wiring collaborators: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := newService(deps, cfg)
	if err := svc.StartBalancer(ctx); err != nil {
		glog.Fatalf("containerbalancerd: failed to start: %v", err)
	}

	<-ctx.Done()
	glog.Infof("containerbalancerd: shutting down")
	svc.StopBalancer()
}

// wireDeps and newService are left as seams for a real deployment to fill
// in with production NodeManager/ContainerManager/ReplicationManager/
// PlacementPolicy/NetworkTopology/scm.Context implementations; those are
// external collaborators per spec §6.1 and out of scope here. alwaysReady
// stands in for a real scm.Context so this entrypoint links.
func wireDeps() (iteration.Deps, error) {
	return iteration.Deps{}, nil
}

func newService(deps iteration.Deps, cfg config.Config) *service.Service {
	return service.New(deps, cfg, alwaysReady{})
}

// alwaysReady is a placeholder scm.Context that is always leader-ready and
// never in safe mode. Production wiring replaces this with a real
// raft-backed scm.RaftContext (balancer/scm).
type alwaysReady struct{}

func (alwaysReady) IsLeader() bool      { return true }
func (alwaysReady) IsLeaderReady() bool { return true }
func (alwaysReady) IsInSafeMode() bool  { return false }
