package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveArchiver uploads completed dataset reports to Google Drive.
type DriveArchiver struct {
	service    *drive.Service
	folderName string
	folderID   string
	now        func() time.Time
}

// NewDriveArchiver creates a Drive client from an OAuth client credentials
// file and a previously authorised token file. The server never runs the
// interactive consent flow, so a missing token is an error.
func NewDriveArchiver(ctx context.Context, credentialsFile, tokenFile, folderName string) (*DriveArchiver, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	da := &DriveArchiver{
		service:    srv,
		folderName: folderName,
		now:        time.Now,
	}
	if err := da.ensureFolder(ctx); err != nil {
		return nil, err
	}
	return da, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

var driveQueryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// folderQuery builds a Drive search for a folder called name, optionally
// inside parentID. Values are quoted per the Drive query syntax.
func folderQuery(name, parentID string) string {
	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", driveQueryEscaper.Replace(name), folderMimeType)
	if parentID != "" {
		q = fmt.Sprintf("'%s' in parents and %s", driveQueryEscaper.Replace(parentID), q)
	}
	return q
}

// Name identifies the archiver in logs.
func (da *DriveArchiver) Name() string { return "gdrive" }

// ensureFolder finds or creates the root folder
func (da *DriveArchiver) ensureFolder(ctx context.Context) error {
	query := folderQuery(da.folderName, "")

	r, err := da.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to search for folder: %w", err)
	}
	if len(r.Files) > 0 {
		da.folderID = r.Files[0].Id
		return nil
	}

	folder := &drive.File{Name: da.folderName, MimeType: folderMimeType}
	file, err := da.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to create folder: %w", err)
	}
	da.folderID = file.Id
	return nil
}

// Archive uploads the record JSON into <folder>/YYYY/MM/DD and returns a
// shareable link.
func (da *DriveArchiver) Archive(ctx context.Context, rec *types.Record) (string, error) {
	now := da.now()
	folderID, err := da.ensureDateFolder(ctx, now)
	if err != nil {
		return "", err
	}

	body, err := archiveDocument(rec)
	if err != nil {
		return "", err
	}

	meta := &drive.File{
		Name:     archiveFilename(rec, now),
		Parents:  []string{folderID},
		MimeType: "application/json",
	}
	created, err := da.service.Files.Create(meta).Media(bytes.NewReader(body)).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (da *DriveArchiver) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	parent := da.folderID
	for _, name := range []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	} {
		id, err := da.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

// findOrCreateFolder finds or creates a folder with the given parent
func (da *DriveArchiver) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := folderQuery(name, parentID)

	r, err := da.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}
	file, err := da.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}
