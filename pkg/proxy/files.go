package proxy

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// FileUploadRejectedError is a structural rejection of an inline file
// upload: ingestion is a base-tenant operation and is refused outright
// for session-scoped tenant keys, regardless of payload validity.
type FileUploadRejectedError struct {
	Tenant string
	Reason string
}

// Error implements the error interface.
func (e *FileUploadRejectedError) Error() string {
	return fmt.Sprintf("file upload rejected for %q: %s", e.Tenant, e.Reason)
}

// ToErrorResponse converts the rejection to the OpenAI envelope.
func (e *FileUploadRejectedError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Error(), "messages", types.CodeUploadRejected)
}

// UploadedFile is a decoded inline file extracted from a message.
type UploadedFile struct {
	Name string
	Mime string
	Data []byte
}

// Ingestor receives uploaded files for a base tenant. Implementations
// own chunking and storage; the proxy only splits and decodes.
type Ingestor interface {
	Ingest(ctx context.Context, base string, file UploadedFile) error
}

// SplitFiles strips file_data parts out of the message list and returns
// the cleaned messages plus the decoded files. Multi-part content is
// flattened to its text parts. Files larger than maxBytes are skipped
// with a logged warning; the request is still served.
func SplitFiles(msgs []types.Message, maxBytes int) ([]types.Message, []UploadedFile) {
	cleaned := make([]types.Message, 0, len(msgs))
	var files []UploadedFile

	for _, msg := range msgs {
		if _, ok := msg.Content.(string); ok || msg.Content == nil {
			cleaned = append(cleaned, msg)
			continue
		}

		parts, err := msg.Parts()
		if err != nil {
			slog.Warn("skipping undecodable content parts", "role", msg.Role, "error", err)
			cleaned = append(cleaned, msg)
			continue
		}

		var textParts []string
		for _, part := range parts {
			switch {
			case part.Type == "text":
				if part.Text != "" {
					textParts = append(textParts, part.Text)
				}
			case part.FileData != nil:
				data, err := base64.StdEncoding.DecodeString(part.FileData.Data)
				if err != nil {
					slog.Warn("skipping undecodable file part", "file", part.FileData.Name, "error", err)
					continue
				}
				if maxBytes > 0 && len(data) > maxBytes {
					slog.Warn("skipping oversized file part",
						"file", part.FileData.Name,
						"size_bytes", len(data),
						"max_bytes", maxBytes,
					)
					continue
				}
				files = append(files, UploadedFile{
					Name: part.FileData.Name,
					Mime: part.FileData.Mime,
					Data: data,
				})
			}
		}

		if len(textParts) > 0 {
			cleaned = append(cleaned, types.Message{
				Role:       msg.Role,
				Content:    strings.Join(textParts, "\n"),
				Name:       msg.Name,
				ToolCalls:  msg.ToolCalls,
				ToolCallID: msg.ToolCallID,
			})
		}
	}

	return cleaned, files
}

// HasFileParts reports whether any message carries a file_data part.
// Used to reject uploads on session-scoped keys before any decoding.
func HasFileParts(msgs []types.Message) bool {
	for _, msg := range msgs {
		parts, err := msg.Parts()
		if err != nil {
			continue
		}
		for _, part := range parts {
			if part.FileData != nil {
				return true
			}
		}
	}
	return false
}
