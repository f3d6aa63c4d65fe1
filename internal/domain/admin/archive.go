package admin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aislide/aislide-bot/internal/pkg/imaging"
	"github.com/aislide/aislide-bot/internal/pkg/messenger"
	"github.com/aislide/aislide-bot/internal/pkg/storage"
)

const archiveTimeout = 30 * time.Second

// Downloader fetches chat attachments by file id.
type Downloader interface {
	Download(ctx context.Context, fileID string) (body io.ReadCloser, filePath string, err error)
}

// ArchiveKeySetter records where a receipt was archived.
type ArchiveKeySetter interface {
	SetArchiveKey(ctx context.Context, id int64, key string) error
}

// ReceiptArchiver copies deposit receipts out of the chat into object storage,
// so they survive the chat's file retention.
type ReceiptArchiver struct {
	files  Downloader
	images *imaging.Processor
	store  storage.Storage
	ledger ArchiveKeySetter
}

func NewReceiptArchiver(files Downloader, images *imaging.Processor, store storage.Storage, ledger ArchiveKeySetter) *ReceiptArchiver {
	return &ReceiptArchiver{files: files, images: images, store: store, ledger: ledger}
}

// Archive stores the receipt of d under receipts/<user>/<tx>.<ext>. Photos
// are normalized to JPEG; other files are stored as they come.
func (a *ReceiptArchiver) Archive(ctx context.Context, d PendingDeposit) error {
	ctx, cancel := context.WithTimeout(ctx, archiveTimeout)
	defer cancel()

	body, filePath, err := a.files.Download(ctx, d.FileID)
	if err != nil {
		return a.fail(d, fmt.Errorf("download receipt: %w", err))
	}
	defer body.Close()

	ext := strings.ToLower(path.Ext(filePath))
	var (
		reader      io.Reader
		contentType string
	)
	if d.FileKind == messenger.FilePhoto || ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
		data, ct, err := a.images.Normalize(body)
		if err != nil {
			return a.fail(d, err)
		}
		reader, contentType, ext = bytes.NewReader(data), ct, ".jpg"
	} else {
		if ext == "" {
			ext = ".bin"
		}
		contentType = mime.TypeByExtension(ext)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		// The S3 client needs a seekable body to sign plain-http uploads.
		data, err := io.ReadAll(io.LimitReader(body, imaging.MaxFileSize))
		if err != nil {
			return a.fail(d, fmt.Errorf("read receipt: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	key := fmt.Sprintf("receipts/%d/%d%s", d.UserID, d.TransactionID, ext)

	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return a.fail(d, fmt.Errorf("check archive: %w", err))
	}
	if !exists {
		if err := a.store.Put(ctx, key, reader, contentType); err != nil {
			return a.fail(d, fmt.Errorf("upload receipt: %w", err))
		}
	}

	if err := a.ledger.SetArchiveKey(ctx, d.TransactionID, key); err != nil {
		return a.fail(d, fmt.Errorf("record archive key: %w", err))
	}

	log.Info().Int64("tx_id", d.TransactionID).Int64("user_id", d.UserID).Str("key", key).Msg("Receipt archived")
	return nil
}

func (a *ReceiptArchiver) fail(d PendingDeposit, err error) error {
	log.Warn().Err(err).Int64("tx_id", d.TransactionID).Int64("user_id", d.UserID).Msg("Receipt archive failed")
	return err
}
