// Package payload fetches a content-addressed registration payload from
// IPFS before it is handed to dpsm.Task as Config.Payload, for devices that
// reference their payload by CID instead of carrying it directly.
package payload

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"
)

// CID is a content identifier reference, as opposed to an inline byte
// payload. A Config.Payload built from a literal byte slice bypasses
// Resolver entirely.
type CID string

// Resolver fetches payloads from an IPFS node or gateway.
type Resolver struct {
	shell *shell.Shell
	log   *slog.Logger
}

// NewResolver connects to the IPFS API at apiAddr (e.g. "127.0.0.1:5001").
func NewResolver(apiAddr string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{shell: shell.NewShell(apiAddr), log: log}
}

// Fetch retrieves the bytes behind cid. Returns an error if the node is
// unreachable or the CID can't be resolved.
func (r *Resolver) Fetch(cid CID) ([]byte, error) {
	if !r.shell.IsUp() {
		return nil, fmt.Errorf("payload resolver: ipfs node unavailable")
	}

	reader, err := r.shell.Cat(string(cid))
	if err != nil {
		if strings.Contains(err.Error(), "no link named") {
			return nil, fmt.Errorf("payload resolver: cid %q not found", cid)
		}
		return nil, fmt.Errorf("payload resolver: fetch cid %q: %w", cid, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("payload resolver: read cid %q: %w", cid, err)
	}

	r.log.Debug("fetched payload from ipfs", "cid", string(cid), "bytes", len(data))
	return data, nil
}
