package message

import (
	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/wire"
)

// Event is a server-initiated notification, delivered on stream -1.
// Exactly one of the payload fields is set, matching Type.
type Event struct {
	Type     string
	Topology *TopologyChange
	Status   *StatusChange
	Schema   *SchemaChange
}

func (Event) isResponse() {}

// TopologyChange reports a node joining or leaving the cluster.
type TopologyChange struct {
	Change  string
	Address wire.Inet
}

// StatusChange reports a node going up or down.
type StatusChange struct {
	Change  string
	Address wire.Inet
}

// SchemaChange reports a schema alteration made elsewhere.
type SchemaChange struct {
	ChangeType string
	Target     string
	Keyspace   string
	Name       string
	Arguments  []string
}

func decodeEvent(r *wire.Reader) (Response, error) {
	eventType, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	ev := Event{Type: eventType}
	switch eventType {
	case EventTopologyChange:
		change, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		addr, err := r.ReadInet()
		if err != nil {
			return nil, err
		}
		ev.Topology = &TopologyChange{Change: change, Address: addr}

	case EventStatusChange:
		change, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		addr, err := r.ReadInet()
		if err != nil {
			return nil, err
		}
		ev.Status = &StatusChange{Change: change, Address: addr}

	case EventSchemaChange:
		sc, err := decodeSchemaChange(r)
		if err != nil {
			return nil, err
		}
		change := SchemaChange(sc)
		ev.Schema = &change

	default:
		return nil, cqlerr.New(cqlerr.BadData, "message: unknown event type %q", eventType)
	}
	return ev, nil
}
