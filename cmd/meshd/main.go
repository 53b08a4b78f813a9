// Command meshd is the reference node daemon: it loads a bus table from
// YAML, runs an ESB controller over it, and logs every inbound request
// addressed to this node.
//
// Called by: operators, or the launcher when a node is configured to
// spawn meshd as a child process.
// Calls: esb.Controller, internal/config.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/meshwire/meshwire/address"
	"github.com/meshwire/meshwire/bus"
	"github.com/meshwire/meshwire/endpoint"
	"github.com/meshwire/meshwire/esb"
	"github.com/meshwire/meshwire/internal/audit"
	"github.com/meshwire/meshwire/internal/config"
	"github.com/meshwire/meshwire/wire"
)

type nodeHandler struct {
	identity address.ServiceName
}

func (h nodeHandler) Identity() address.ServiceName { return h.identity }

func (h nodeHandler) OnReady(ep *endpoint.Table[string, address.ServiceName]) error {
	order, _ := ep.Snapshot()
	log.Printf("meshd: node %q ready with %d buses", h.identity, len(order))
	return nil
}

func (h nodeHandler) Handle(ep *endpoint.Table[string, address.ServiceName], busID string, source address.ServiceName, request json.RawMessage) error {
	log.Printf("meshd: bus %s: %s -> %s: %s", busID, source, h.identity, string(request))
	return nil
}

func (h nodeHandler) HandleErr(busID string, err error) error {
	log.Printf("meshd: bus %s: transport error: %v", busID, err)
	return nil
}

func main() {
	configPath := flag.String("config", "meshd.yaml", "path to node config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("meshd: %v", err)
	}

	identity := address.FromString(cfg.NodeName)
	busConfigs, err := buildBusConfigs(cfg.Buses)
	if err != nil {
		log.Fatalf("meshd: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	controller, err := esb.New[string, address.ServiceName, json.RawMessage](
		ctx, busConfigs, wire.JSONCodec{}, address.ServiceNameCodec{}, nodeHandler{identity: identity},
	)
	if err != nil {
		log.Fatalf("meshd: %v", err)
	}
	defer controller.Close()

	if cfg.AuditDir != "" {
		auditLog, err := audit.Open(cfg.AuditDir)
		if err != nil {
			log.Fatalf("meshd: opening audit log: %v", err)
		}
		defer auditLog.Close()
		controller.EnableAudit(auditLog)
	}

	log.Printf("meshd: node %q running with %d buses", cfg.NodeName, len(busConfigs))
	if err := controller.RunLoop(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("meshd: run loop: %v", err)
	}
}

func buildBusConfigs(buses []config.BusConfig) (map[string]bus.Config[address.ServiceName], error) {
	out := make(map[string]bus.Config[address.ServiceName], len(buses))
	for _, b := range buses {
		role, err := parseRole(b.Role)
		if err != nil {
			return nil, fmt.Errorf("bus %s: %w", b.ID, err)
		}
		bc := bus.Config[address.ServiceName]{
			Role:    role,
			Carrier: bus.Carrier{URI: b.URI},
			Queued:  b.Queued,
			Topic:   b.Topic,
		}
		if b.Router != "" {
			r := address.FromString(b.Router)
			bc.Router = &r
		}
		out[b.ID] = bc
	}
	return out, nil
}

func parseRole(s string) (bus.Role, error) {
	switch s {
	case "request":
		return bus.RoleRequest, nil
	case "reply":
		return bus.RoleReply, nil
	case "publish":
		return bus.RolePublish, nil
	case "subscribe":
		return bus.RoleSubscribe, nil
	case "push":
		return bus.RolePush, nil
	case "pull":
		return bus.RolePull, nil
	case "router":
		return bus.RoleRouter, nil
	case "dealer":
		return bus.RoleDealer, nil
	default:
		return 0, fmt.Errorf("unknown socket role %q", s)
	}
}
