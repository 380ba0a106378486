// Startup reconciliation. The two stores have no transaction spanning
// them, so crashes and partial failures leave orphan blobs or dangling
// metadata. The sweep makes the divergence explicit: orphan blobs are
// deleted, dangling metadata is reported and left in place (it renders
// as missing).

package service

import (
	"context"
	"log/slog"

	"github.com/maruel/ksid"
)

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	// OrphanBlobsRemoved counts blobs that no FileMeta referenced.
	OrphanBlobsRemoved int
	// DanglingFiles counts FileMeta entries whose blob is gone.
	DanglingFiles int
}

// Reconcile sweeps both stores once. It should run at startup, before
// any domain operation is in flight.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	if err := s.blobs.CleanupTmp(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to clean up blob temp files", "err", err)
	}

	referenced := map[ksid.ID]string{}
	for _, u := range s.docs.Load() {
		for _, f := range u.Files {
			referenced[f.ID] = u.Username
		}
	}

	stored, err := s.blobs.List(ctx)
	if err != nil {
		return report, err
	}
	onDisk := map[ksid.ID]bool{}
	for _, id := range stored {
		onDisk[id] = true
		if _, ok := referenced[id]; ok {
			continue
		}
		if err := s.blobs.Delete(ctx, id); err != nil {
			slog.WarnContext(ctx, "Failed to delete orphan blob", "id", id, "err", err)
			continue
		}
		report.OrphanBlobsRemoved++
	}

	for id, owner := range referenced {
		if !onDisk[id] {
			report.DanglingFiles++
			slog.WarnContext(ctx, "File metadata has no blob, will render as missing", "id", id, "user", owner)
		}
	}

	if report.OrphanBlobsRemoved > 0 || report.DanglingFiles > 0 {
		slog.InfoContext(ctx, "Reconciliation complete",
			"orphanBlobsRemoved", report.OrphanBlobsRemoved,
			"danglingFiles", report.DanglingFiles)
	}
	return report, nil
}
