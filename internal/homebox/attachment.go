package homebox

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"snapshelf/internal/retry"
)

// UploadAttachment posts a photo to an existing item. The multipart body is
// built by hand because the service is strict about part order: the "name"
// field must precede the "file" part. Returns false on failure with the
// reason recorded in LastError.
func (c *Client) UploadAttachment(ctx context.Context, itemID string, data []byte, filename string) bool {
	boundary := attachmentBoundary()
	body := encodeAttachmentForm(boundary, filename, attachmentMIME(filename), data)
	path := "/items/" + itemID + "/attachments"

	err := retry.Run(ctx, c.logger, c.policy, "upload attachment", func(ctx context.Context) error {
		auth, err := c.ensureAuthorized(ctx)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create upload request: %w", err)
		}
		req.Header.Set("Authorization", auth)
		req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.setLastError(fmt.Sprintf("POST %s: %v", path, err))
			return fmt.Errorf("failed to upload attachment: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			detail := readBodySnippet(resp.Body)
			c.setLastError(fmt.Sprintf("POST %s: status %d: %s", path, resp.StatusCode, detail))
			return &StatusError{Method: http.MethodPost, Path: path, StatusCode: resp.StatusCode, Detail: detail}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("attachment upload failed", "item_id", itemID, "error", err)
		return false
	}
	return true
}

// attachmentBoundary mimics a browser-style boundary with a random hex
// suffix so it cannot collide with image bytes.
func attachmentBoundary() string {
	return "----WebKitFormBoundary" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// encodeAttachmentForm builds the exact two-part body the attachment
// endpoint expects. Part order and the trailing CRLFs matter; do not swap
// this for mime/multipart without checking the golden test.
func encodeAttachmentForm(boundary, filename, mimeType string, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Disposition: form-data; name=\"name\"\r\n\r\n")
	fmt.Fprintf(&buf, "%s\r\n", filename)
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Disposition: form-data; name=\"file\"; filename=%q\r\n", filename)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n\r\n", mimeType)
	buf.Write(data)
	fmt.Fprintf(&buf, "\r\n--%s--\r\n", boundary)
	return buf.Bytes()
}

func attachmentMIME(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
