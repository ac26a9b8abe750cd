// Package peerlist parses the peer-list file format: one record per
// line, three ';'-separated fields (<id>;<ip>;<port>), no blank lines
// or comments.
//
// Grounded on original_source/src/utils/arg_handler.rs::get_other_processes
// (line-by-line, split on ';', parse each field, abort the whole process
// on any parse error) adapted to Go's bufio.Scanner, and on the
// teacher's cmd/coordinator/config.go for the read-file-then-build-slice
// shape and the fmt.Errorf("...: %w", err) wrapping idiom.
package peerlist

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/oss-bully/peerguard/internal/membership"
)

// Load reads path and returns the peer records it describes, each with
// Self and Leader left false: it is the caller's job to append the self
// record. Any parse error aborts with a wrapped error, which the caller
// treats as fatal at startup.
func Load(path string) ([]membership.Peer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("peerlist: open %s: %w", path, err)
	}
	defer f.Close()

	var peers []membership.Peer
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		parts := strings.Split(line, ";")
		if len(parts) != 3 {
			return nil, fmt.Errorf("peerlist: %s:%d: expected 3 fields separated by ';', got %d", path, lineNo, len(parts))
		}

		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("peerlist: %s:%d: invalid id %q: %w", path, lineNo, parts[0], err)
		}

		port, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("peerlist: %s:%d: invalid port %q: %w", path, lineNo, parts[2], err)
		}

		peers = append(peers, membership.Peer{
			ID:   id,
			Host: parts[1],
			Port: uint16(port),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("peerlist: reading %s: %w", path, err)
	}

	if err := checkUnique(peers); err != nil {
		return nil, err
	}

	return peers, nil
}

// checkUnique rejects a peer list with duplicate identifiers or
// duplicate ports before the process ever binds a listener.
func checkUnique(peers []membership.Peer) error {
	ids := make(map[uint64]struct{}, len(peers))
	ports := make(map[uint16]struct{}, len(peers))
	for _, p := range peers {
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("peerlist: duplicate peer id %d", p.ID)
		}
		ids[p.ID] = struct{}{}

		if _, dup := ports[p.Port]; dup {
			return fmt.Errorf("peerlist: duplicate peer port %d", p.Port)
		}
		ports[p.Port] = struct{}{}
	}
	return nil
}
