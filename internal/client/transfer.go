package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rahulkumargit1/Krypt/internal/protocol"
	"github.com/rahulkumargit1/Krypt/internal/store"
)

// transferKey identifies one in-flight file transfer.
type transferKey struct {
	sender   string
	fileName string
}

// pendingTransfer accumulates decrypted chunks by index. Completion means
// contiguous coverage of 0..total-1, not a max index reached.
type pendingTransfer struct {
	chunks      map[int][]byte
	total       int
	mime        string
	lastChunkAt time.Time
}

// transferTable reassembles chunked file transfers from an unordered,
// possibly duplicated stream. The dispatch loop is the only writer, so the
// map needs no lock.
type transferTable struct {
	log     *zap.Logger
	metrics *Metrics
	oracle  Oracle
	records store.Store
	private []byte

	pending map[transferKey]*pendingTransfer
	onCount func(int)
}

func newTransferTable(log *zap.Logger, metrics *Metrics, oracle Oracle, records store.Store, private []byte, onCount func(int)) *transferTable {
	return &transferTable{
		log:     log,
		metrics: metrics,
		oracle:  oracle,
		records: records,
		private: private,
		pending: make(map[transferKey]*pendingTransfer),
		onCount: onCount,
	}
}

// handleChunk decrypts the arriving chunk, inserts it at its index, and
// completes the transfer once every index is present. Re-delivery at the
// same index overwrites, making duplicates idempotent.
func (t *transferTable) handleChunk(ctx context.Context, from string, chunk protocol.ChunkPayload, now time.Time) error {
	key := transferKey{sender: from, fileName: chunk.FileName}

	pending, ok := t.pending[key]
	if !ok {
		pending = &pendingTransfer{
			chunks: make(map[int][]byte, chunk.TotalChunks),
			total:  chunk.TotalChunks,
			mime:   chunk.MimeType,
		}
		t.pending[key] = pending
		t.countChanged()
	}
	if chunk.TotalChunks != pending.total {
		return fmt.Errorf("chunk count changed mid-transfer for %s/%s: %d vs %d",
			from, chunk.FileName, chunk.TotalChunks, pending.total)
	}

	plain, err := t.oracle.DecryptChunk(chunk, t.private)
	if err != nil {
		// Discard only this chunk; the transfer stays pending.
		t.metrics.RecordDecryptDrop()
		t.log.Debug("dropped undecryptable chunk",
			zap.String("from", from),
			zap.String("file", chunk.FileName),
			zap.Int("index", chunk.ChunkIndex))
		return nil
	}

	pending.chunks[chunk.ChunkIndex] = plain
	pending.lastChunkAt = now
	t.metrics.RecordChunk()

	if len(pending.chunks) < pending.total {
		return nil
	}
	return t.complete(ctx, key, pending, now)
}

func (t *transferTable) complete(ctx context.Context, key transferKey, pending *pendingTransfer, now time.Time) error {
	size := 0
	for _, chunk := range pending.chunks {
		size += len(chunk)
	}
	data := make([]byte, 0, size)
	for i := 0; i < pending.total; i++ {
		data = append(data, pending.chunks[i]...)
	}

	if err := t.records.SaveFile(ctx, store.StoredFile{
		Sender:     key.sender,
		Name:       key.fileName,
		MimeType:   pending.mime,
		Data:       data,
		ReceivedAt: now,
	}); err != nil {
		return fmt.Errorf("store received file: %w", err)
	}
	if err := t.records.AppendMessage(ctx, store.Message{
		ID:             uuid.NewString(),
		ConversationID: key.sender,
		Kind:           store.KindFile,
		Content:        key.fileName,
		Sent:           false,
		At:             now,
	}); err != nil {
		return fmt.Errorf("append file record: %w", err)
	}

	delete(t.pending, key)
	t.countChanged()
	t.metrics.RecordFileCompleted()
	t.log.Info("file transfer completed",
		zap.String("from", key.sender),
		zap.String("file", key.fileName),
		zap.Int("chunks", pending.total),
		zap.Int("bytes", len(data)))
	return nil
}

// sweep evicts transfers idle past maxAge. A zero maxAge keeps transfers
// pending indefinitely.
func (t *transferTable) sweep(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for key, pending := range t.pending {
		if pending.lastChunkAt.Before(cutoff) {
			delete(t.pending, key)
			removed++
			t.log.Info("evicted stalled file transfer",
				zap.String("from", key.sender),
				zap.String("file", key.fileName),
				zap.Int("received", len(pending.chunks)),
				zap.Int("total", pending.total))
		}
	}
	if removed > 0 {
		t.countChanged()
	}
	return removed
}

func (t *transferTable) countChanged() {
	t.metrics.SetPendingTransfers(len(t.pending))
	if t.onCount != nil {
		t.onCount(len(t.pending))
	}
}
