package queue

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/codebuildervaibhav/abacus/internal/types"
)

// BlobOpener gives access to stored upload content.
type BlobOpener interface {
	Open(ref types.BlobRef) (io.ReadCloser, error)
}

// Multipart field names of the hand-off request.
const (
	FieldFile        = "file"
	FieldDatasetID   = "datasetId"
	FieldCallbackURL = "callbackUrl"
)

// HTTPHandOff posts stored uploads to the analysis worker's /process
// endpoint as multipart/form-data.
type HTTPHandOff struct {
	baseURL   string
	publicURL string
	blobs     BlobOpener
	client    *http.Client
}

// NewHTTPHandOff creates a hand-off client. publicURL is this service's
// externally reachable address, used to build the result callback URL.
// A nil client means http.DefaultClient.
func NewHTTPHandOff(baseURL, publicURL string, blobs BlobOpener, client *http.Client) *HTTPHandOff {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHandOff{
		baseURL:   strings.TrimRight(baseURL, "/"),
		publicURL: strings.TrimRight(publicURL, "/"),
		blobs:     blobs,
		client:    client,
	}
}

// CallbackURL returns the address the worker reports the result of jobID to.
func (h *HTTPHandOff) CallbackURL(jobID string) string {
	return h.publicURL + "/api/datasets/" + url.PathEscape(jobID) + "/result"
}

func (h *HTTPHandOff) endpoint() (string, error) {
	u, err := url.Parse(h.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid worker address %q: %w", h.baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid worker address %q", h.baseURL)
	}
	return u.JoinPath("process").String(), nil
}

// HandOff streams the stored file and job id to the worker. Any transport
// error or non-2xx response is returned as an error.
func (h *HTTPHandOff) HandOff(ctx context.Context, task Task) error {
	endpoint, err := h.endpoint()
	if err != nil {
		return err
	}

	content, err := h.blobs.Open(task.Blob)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)

	go func() {
		err := h.writeForm(form, task, content)
		content.Close()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return fmt.Errorf("build hand-off request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("worker rejected hand-off: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (h *HTTPHandOff) writeForm(form *multipart.Writer, task Task, content io.Reader) error {
	if err := form.WriteField(FieldDatasetID, task.JobID); err != nil {
		return err
	}
	if err := form.WriteField(FieldCallbackURL, h.CallbackURL(task.JobID)); err != nil {
		return err
	}

	name := task.Blob.Name
	if name == "" {
		name = task.Blob.Key
	}
	part, err := form.CreateFormFile(FieldFile, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return form.Close()
}
