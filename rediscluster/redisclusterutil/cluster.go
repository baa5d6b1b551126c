package redisclusterutil

import (
	"strconv"
	"strings"

	"github.com/joomcode/redisrouter/redis"
)

// SlotMoving is a flag about direction of slot migration.
type SlotMoving byte

const (
	// SlotMigrating indicates slot is migrating from this instance.
	SlotMigrating SlotMoving = 1
	// SlotImporting indicates slot is importing into this instance.
	SlotImporting SlotMoving = 2
)

// InstanceInfo represents line of CLUSTER NODES result.
type InstanceInfo struct {
	Uuid     string
	Addr     string
	IP       string
	Port     int
	Port2    int
	Hostname string
	Fail     bool
	MySelf   bool
	// NoAddr means that node were missed due to misconfiguration.
	// More probably, redis instance with other UUID were started on the same port.
	NoAddr    bool
	Handshake bool
	// Replica is set by slave/replica flag. SlaveOf is empty if replica's master is not known yet.
	Replica   bool
	SlaveOf   string
	Slots     [][2]uint16
	Migrating []SlotMigration
	// BadTokens are slot tokens which could not be parsed. They are skipped.
	BadTokens []string
}

// InstanceInfos represents CLUSTER NODES result
type InstanceInfos []InstanceInfo

// SlotMigration represents one migrating slot.
type SlotMigration struct {
	Number uint16
	Moving SlotMoving
	Peer   string
}

// HasAddr returns true if it is addressless instance (replaced with instance with other UUID),
// it will have no port
func (ii *InstanceInfo) HasAddr() bool {
	return !ii.NoAddr && ii.Port != 0
}

// AddrValid returns true if instance is successfully configure.
// Note that it could differ from HasAddr in some corner cases.
func (ii *InstanceInfo) AddrValid() bool {
	return ii.IP != "" && ii.Port != 0
}

// IsMaster returns if this instance is master
func (ii *InstanceInfo) IsMaster() bool {
	return !ii.Replica
}

// Usable returns true if instance could be routed to: it has address and is not in handshake.
func (ii *InstanceInfo) Usable() bool {
	return ii.HasAddr() && ii.AddrValid() && !ii.Handshake
}

// MySelf returns info line for the host information were collected from.
func (iis InstanceInfos) MySelf() *InstanceInfo {
	for i := range iis {
		if iis[i].MySelf {
			return &iis[i]
		}
	}
	return nil
}

// Hosts returns set of instance addresses.
func (iis InstanceInfos) Hosts() []string {
	res := make([]string, 0, len(iis))
	for i := range iis {
		if iis[i].AddrValid() {
			res = append(res, iis[i].Addr)
		}
	}
	return res
}

// ParseClusterNodes parses result of CLUSTER NODES command.
// Lines are returned in order they appear in the listing.
//
// Line format is
//
//	<id> <ip:port@cport[,hostname]> <flags> <master> <ping-sent> <pong-recv> <config-epoch> <link-state> <slot> <slot> ... <slot>
//
// where slot is either a number, a range "from-to", or migration annotation "[slot->-id]" / "[slot-<-id]".
// Structurally broken line is an error, but malformed slot token is only collected into BadTokens.
func ParseClusterNodes(data []byte) (InstanceInfos, error) {
	errf := func(f string, args ...interface{}) (InstanceInfos, error) {
		return nil, redis.ErrResponseUnexpected.New(f, args...)
	}

	infos := InstanceInfos{}
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if len(parts) < 8 {
			return errf("CLUSTER NODES line has %d fields, at least 8 expected: %q", len(parts), line)
		}
		node := InstanceInfo{Uuid: parts[0]}

		addr := parts[1]
		if ix := strings.IndexByte(addr, ','); ix != -1 {
			node.Hostname = addr[ix+1:]
			addr = addr[:ix]
		}
		if ix := strings.IndexByte(addr, '@'); ix != -1 {
			node.Port2, _ = strconv.Atoi(addr[ix+1:])
			addr = addr[:ix]
		}
		ix := strings.LastIndexByte(addr, ':')
		if ix == -1 {
			return errf("ip-port is not in 'ip:port@port2' format, but %q", line)
		}
		node.IP = addr[:ix]
		if port := addr[ix+1:]; port != "" {
			var err error
			if node.Port, err = strconv.Atoi(port); err != nil || node.Port < 0 || node.Port > 65535 {
				return errf("port is not valid in %q", line)
			}
		}
		node.Addr = addr

		for _, flag := range strings.Split(parts[2], ",") {
			switch flag {
			case "myself":
				node.MySelf = true
			case "slave", "replica":
				node.Replica = true
				if parts[3] != "-" {
					node.SlaveOf = parts[3]
				}
			case "fail", "fail?":
				node.Fail = true
			case "noaddr":
				node.NoAddr = true
			case "handshake":
				node.Handshake = true
			}
		}

		for _, slot := range parts[8:] {
			if slot[0] == '[' {
				if m, ok := parseMigration(slot); ok {
					node.Migrating = append(node.Migrating, m)
				} else {
					node.BadTokens = append(node.BadTokens, slot)
				}
				continue
			}
			if r, ok := parseSlotRange(slot); ok {
				node.Slots = append(node.Slots, r)
			} else {
				node.BadTokens = append(node.BadTokens, slot)
			}
		}
		infos = append(infos, node)
	}
	return infos, nil
}

func parseSlot(s string) (uint16, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= NumSlots {
		return 0, false
	}
	return uint16(n), true
}

func parseSlotRange(tok string) ([2]uint16, bool) {
	if ix := strings.IndexByte(tok, '-'); ix != -1 {
		from, ok1 := parseSlot(tok[:ix])
		to, ok2 := parseSlot(tok[ix+1:])
		if !ok1 || !ok2 || from > to {
			return [2]uint16{}, false
		}
		return [2]uint16{from, to}, true
	}
	n, ok := parseSlot(tok)
	return [2]uint16{n, n}, ok
}

func parseMigration(tok string) (SlotMigration, bool) {
	if len(tok) < 2 || tok[len(tok)-1] != ']' {
		return SlotMigration{}, false
	}
	body := tok[1 : len(tok)-1]
	dir := SlotImporting
	ix := strings.Index(body, "-<-")
	if ix == -1 {
		ix = strings.Index(body, "->-")
		dir = SlotMigrating
	}
	if ix == -1 {
		return SlotMigration{}, false
	}
	n, ok := parseSlot(body[:ix])
	if !ok {
		return SlotMigration{}, false
	}
	return SlotMigration{Number: n, Moving: dir, Peer: body[ix+3:]}, true
}
