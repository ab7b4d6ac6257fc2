package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/api/drive/v3"

	"github.com/koopa0/corpus/internal/ingest"
)

// Google Workspace MIME types and their export targets.
const (
	mimeGoogleDoc    = "application/vnd.google-apps.document"
	mimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	mimeGoogleSlides = "application/vnd.google-apps.presentation"
	mimeFolder       = "application/vnd.google-apps.folder"

	exportMimeText = "text/plain"
	exportMimeCSV  = "text/csv"
)

// maxDownloadSize caps per-file downloads at 10MB.
const maxDownloadSize = 10 * 1024 * 1024

// driveAPI is the Drive call surface the watcher uses. Satisfied by
// driveClient over a real *drive.Service; tests substitute a fake.
type driveAPI interface {
	listFolder(ctx context.Context, folderID string) ([]*drive.File, error)
	export(ctx context.Context, fileID, exportMime string) ([]byte, error)
	download(ctx context.Context, fileID string) ([]byte, error)
}

// Drive polls a Google Drive folder and keeps its files indexed. It
// holds a soft cache of file id to last modified time; losing the cache
// only causes redundant re-ingestion, never data loss.
type Drive struct {
	api      driveAPI
	folderID string
	ingestor Ingestor
	interval time.Duration
	logger   *slog.Logger

	// lastSeen maps file id -> ModifiedTime from the previous scan.
	// Accessed only from the scan loop, no locking needed.
	lastSeen map[string]string
}

// NewDrive creates a Drive folder watcher over the given service.
func NewDrive(svc *drive.Service, folderID string, ingestor Ingestor, interval time.Duration, logger *slog.Logger) (*Drive, error) {
	if svc == nil {
		return nil, fmt.Errorf("drive service is required")
	}
	return newDrive(&driveClient{svc: svc}, folderID, ingestor, interval, logger)
}

func newDrive(api driveAPI, folderID string, ingestor Ingestor, interval time.Duration, logger *slog.Logger) (*Drive, error) {
	if folderID == "" {
		return nil, fmt.Errorf("folder ID is required")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Drive{
		api:      api,
		folderID: folderID,
		ingestor: ingestor,
		interval: interval,
		logger:   logger,
		lastSeen: make(map[string]string),
	}, nil
}

// Run scans immediately, then on every tick until ctx is canceled.
// Scans never overlap: the next tick waits for the previous scan.
func (d *Drive) Run(ctx context.Context) error {
	d.scan(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.scan(ctx)
		}
	}
}

// scan lists the folder, ingests new and modified files, and deletes
// sources whose files disappeared. The diff runs against the old map
// before the map is replaced, so a crash mid-scan just redoes affected
// files on the next pass.
func (d *Drive) scan(ctx context.Context) {
	files, err := d.api.listFolder(ctx, d.folderID)
	if err != nil {
		d.logger.Warn("drive folder listing failed", "folder_id", d.folderID, "error", err)
		return
	}

	current := make(map[string]string, len(files))
	var ingested, failed int

	for _, f := range files {
		if ctx.Err() != nil {
			return
		}
		current[f.Id] = f.ModifiedTime

		if prev, ok := d.lastSeen[f.Id]; ok && prev == f.ModifiedTime {
			continue
		}
		if err := d.ingestFile(ctx, f); err != nil {
			failed++
			d.logger.Error("drive ingestion failed",
				"file_id", f.Id, "name", f.Name, "error", err)
			// Leave the old entry so the next scan retries this file.
			if prev, ok := d.lastSeen[f.Id]; ok {
				current[f.Id] = prev
			} else {
				delete(current, f.Id)
			}
			continue
		}
		ingested++
	}

	// Files no longer listed are gone from the folder.
	for fileID := range d.lastSeen {
		if _, ok := current[fileID]; ok {
			continue
		}
		if err := d.ingestor.Delete(ctx, DriveSourceID(fileID)); err != nil {
			d.logger.Error("deleting vanished drive file failed", "file_id", fileID, "error", err)
			// Keep the entry so deletion is retried next scan.
			current[fileID] = d.lastSeen[fileID]
		}
	}

	d.lastSeen = current
	if ingested > 0 || failed > 0 {
		d.logger.Info("drive scan complete",
			"folder_id", d.folderID, "files", len(files), "ingested", ingested, "failed", failed)
	}
}

// ingestFile downloads or exports a Drive file and runs it through the
// pipeline. Folders are skipped.
func (d *Drive) ingestFile(ctx context.Context, f *drive.File) error {
	if f.MimeType == mimeFolder {
		return nil
	}

	data, mimeType, err := d.fetchContent(ctx, f)
	if err != nil {
		return err
	}

	return d.ingestor.Ingest(ctx, ingest.Request{
		SourceID:  DriveSourceID(f.Id),
		Data:      data,
		MimeType:  mimeType,
		Filename:  f.Name,
		Title:     f.Name,
		OriginURL: f.WebViewLink,
	})
}

// fetchContent returns the file bytes and effective MIME type. Google
// Workspace files are exported: Docs and Slides as plain text, Sheets
// as CSV. Everything else downloads as-is.
func (d *Drive) fetchContent(ctx context.Context, f *drive.File) ([]byte, string, error) {
	switch f.MimeType {
	case mimeGoogleDoc, mimeGoogleSlides:
		data, err := d.api.export(ctx, f.Id, exportMimeText)
		return data, exportMimeText, err
	case mimeGoogleSheet:
		data, err := d.api.export(ctx, f.Id, exportMimeCSV)
		return data, exportMimeCSV, err
	}

	data, err := d.api.download(ctx, f.Id)
	return data, f.MimeType, err
}

// driveClient implements driveAPI over a real *drive.Service.
type driveClient struct {
	svc *drive.Service
}

// listFolder pages through all non-trashed files in the folder.
func (c *driveClient) listFolder(ctx context.Context, folderID string) ([]*drive.File, error) {
	var files []*drive.File
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	call := c.svc.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, webViewLink, size)").
		PageSize(100)

	err := call.Pages(ctx, func(page *drive.FileList) error {
		files = append(files, page.Files...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing drive folder: %w", err)
	}
	return files, nil
}

// export converts a Google Workspace file to the requested format.
func (c *driveClient) export(ctx context.Context, fileID, exportMime string) ([]byte, error) {
	resp, err := c.svc.Files.Export(fileID, exportMime).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("exporting drive file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("reading drive export: %w", err)
	}
	return data, nil
}

func (c *driveClient) download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("downloading drive file: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("reading drive file: %w", err)
	}
	return data, nil
}
