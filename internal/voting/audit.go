package voting

import (
	"fmt"
	"os"
	"sync"
)

// AuditLog is the append-only local trail of cast votes. One line per vote,
// written with O_APPEND and synced before returning, so the trail survives a
// crash even when the ledger reference never arrived.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog creates an audit log writing to path.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Append records one cast vote. An empty ledgerReference marks a vote the
// ledger never confirmed.
func (a *AuditLog) Append(name, candidateID, ledgerReference string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	txInfo := "blockchain_failed"
	if ledgerReference != "" {
		txInfo = "tx: " + ledgerReference
	}
	if _, err := fmt.Fprintf(f, "%s: %s (%s)\n", name, candidateID, txInfo); err != nil {
		return fmt.Errorf("writing audit line: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing audit log: %w", err)
	}
	return nil
}
