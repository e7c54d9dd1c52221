package inbound

import "linkmesh/pkg/config"

// Record is one side effect produced while processing a link message.
type Record struct {
	Topic string
	Key   string
	Value any
}

// Topics names the bus topics the processor reads and writes.
type Topics struct {
	LinkIn            string
	LinkOut           string
	P2PIn             string
	P2POutMarkers     string
	SessionPartitions string
}

// DefaultTopics returns the standard topic names.
func DefaultTopics() Topics {
	return Topics{
		LinkIn:            "link.in",
		LinkOut:           "link.out",
		P2PIn:             "p2p.in",
		P2POutMarkers:     "p2p.out.markers",
		SessionPartitions: "session.out.partitions",
	}
}

// TopicsFromConfig maps the config section, keeping defaults for blanks.
func TopicsFromConfig(c config.TopicsConfig) Topics {
	t := DefaultTopics()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&t.LinkIn, c.LinkIn)
	set(&t.LinkOut, c.LinkOut)
	set(&t.P2PIn, c.P2PIn)
	set(&t.P2POutMarkers, c.P2POutMarkers)
	set(&t.SessionPartitions, c.SessionPartitions)
	return t
}
